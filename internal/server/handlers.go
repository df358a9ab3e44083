package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/telnet2/wamux/internal/logging"
	"github.com/telnet2/wamux/internal/sessionstore"
	"github.com/telnet2/wamux/internal/supervisor"
	"github.com/telnet2/wamux/pkg/types"
)

const (
	defaultLogLines = 100
	maxLogLines     = 5000
)

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status  string    `json:"status"`
	Version string    `json:"version,omitempty"`
	Uptime  string    `json:"uptime"`
	Time    time.Time `json:"time"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Time:    time.Now(),
	})
}

// StatsResponse is returned by GET /api/stats.
type StatsResponse struct {
	supervisor.Stats
	Configured int `json:"configured"`
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	cfg := s.store.Snapshot(r.Context())
	writeJSON(w, http.StatusOK, StatsResponse{
		Stats:      s.sup.Stats(),
		Configured: len(cfg.Sessions),
	})
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Snapshot(r.Context()))
}

// SyncResponse reports the sessions a config change started and stopped.
type SyncResponse struct {
	Success bool     `json:"success"`
	Started []string `json:"started"`
	Stopped []string `json:"stopped"`
}

// saveConfig replaces the whole session list and reconciles running
// sessions with it.
func (s *Server) saveConfig(w http.ResponseWriter, r *http.Request) {
	var cfg types.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid request body")
		return
	}
	if err := sessionstore.Normalize(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	if err := s.store.Save(r.Context(), &cfg); err != nil {
		writeStoreError(w, err)
		return
	}

	started, stopped, err := s.sup.Sync(r.Context(), s.store.Snapshot(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, SyncResponse{Success: true, Started: nonNil(started), Stopped: nonNil(stopped)})
}

func (s *Server) listActive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sup.List())
}

// StartResponse is returned by POST /api/sessions/start.
type StartResponse struct {
	Success bool                    `json:"success"`
	Session types.SessionDescriptor `json:"session"`
	Status  *types.ActiveSession    `json:"status,omitempty"`
}

// startSession saves the posted descriptor and starts it.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var desc types.SessionDescriptor
	if err := json.NewDecoder(r.Body).Decode(&desc); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid request body")
		return
	}
	if err := s.store.Upsert(r.Context(), desc); err != nil {
		writeStoreError(w, err)
		return
	}
	saved, ok := s.store.FindByName(r.Context(), desc.Name)
	if !ok {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "session was not saved")
		return
	}
	if err := s.sup.Start(r.Context(), saved); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	status, _ := s.sup.Status(saved.Name)
	writeJSON(w, http.StatusOK, StartResponse{Success: true, Session: saved, Status: status})
}

// RestartAllResponse is returned by POST /api/sessions/restart-all.
type RestartAllResponse struct {
	Success   bool     `json:"success"`
	Restarted []string `json:"restarted"`
}

func (s *Server) restartAll(w http.ResponseWriter, r *http.Request) {
	names, err := s.sup.RestartAll(r.Context())
	if err != nil {
		writeErrorWithDetails(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error(),
			map[string]any{"restarted": nonNil(names)})
		return
	}
	writeJSON(w, http.StatusOK, RestartAllResponse{Success: true, Restarted: nonNil(names)})
}

// SessionStatusResponse is returned by GET /api/session/{name}/status.
// Active is null when the session is configured but not running.
type SessionStatusResponse struct {
	Name       string                   `json:"name"`
	Configured bool                     `json:"configured"`
	Session    *types.SessionDescriptor `json:"session,omitempty"`
	Active     *types.ActiveSession     `json:"active"`
}

func (s *Server) sessionStatus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	resp := SessionStatusResponse{Name: name}
	if desc, ok := s.store.FindByName(r.Context(), name); ok {
		resp.Configured = true
		resp.Session = &desc
	}
	if active, ok := s.sup.Status(name); ok {
		resp.Active = active
	}
	if !resp.Configured && resp.Active == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, fmt.Sprintf("session %q not found", name))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) restartSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sup.Restart(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w)
}

// deleteSession stops the session, removes it from the config and erases its
// credentials.
func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ok, err := s.sup.Remove(r.Context(), name)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, fmt.Sprintf("session %q not found", name))
		return
	}
	writeSuccess(w)
}

func (s *Server) backupStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.backup.Status(r.Context()))
}

// LogsResponse is returned by GET /api/logs.
type LogsResponse struct {
	Path  string   `json:"path"`
	Lines []string `json:"lines"`
}

// logs returns the last ?lines= lines of the log file.
func (s *Server) logs(w http.ResponseWriter, r *http.Request) {
	n := defaultLogLines
	if v := r.URL.Query().Get("lines"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "lines must be a positive integer")
			return
		}
		n = min(parsed, maxLogLines)
	}

	path := logging.GetLogFilePath()
	if path == "" {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "file logging is disabled")
		return
	}
	lines, err := logging.Tail(n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, LogsResponse{Path: path, Lines: nonNil(lines)})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var errNoBus = errors.New("event streaming is not available")
