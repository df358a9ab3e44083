package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/telnet2/wamux/internal/logging"
)

const (
	// SSEHeartbeatInterval is the interval for SSE heartbeats.
	SSEHeartbeatInterval = 30 * time.Second
)

// sseWriter wraps http.ResponseWriter for SSE.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

// newSSEWriter creates a new SSE writer.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	rc := http.NewResponseController(w)

	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	return &sseWriter{w: w, flusher: flusher, rc: rc}, nil
}

// writeEvent writes one SSE frame whose data is already JSON encoded.
func (s *sseWriter) writeEvent(eventType string, data []byte) error {
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, data); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil {
		s.flusher.Flush()
	}
	return nil
}

// writeHeartbeat writes an SSE heartbeat comment.
func (s *sseWriter) writeHeartbeat() {
	fmt.Fprintf(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// events streams the bus' mirrored topic. ?type= restricts the stream to one
// event type and ?session= to one session.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, errNoBus.Error())
		return
	}
	filterType := r.URL.Query().Get("type")
	filterSession := r.URL.Query().Get("session")

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	messages, err := s.bus.Stream(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	if err := sse.writeEvent("server.connected", []byte("{}")); err != nil {
		return
	}

	ticker := time.NewTicker(SSEHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			msg.Ack()
			if !gjson.ValidBytes(msg.Payload) {
				logging.Warn().Str("id", msg.UUID).Msg("dropping malformed event payload")
				continue
			}
			typ := gjson.GetBytes(msg.Payload, "type").String()
			if filterType != "" && typ != filterType {
				continue
			}
			if filterSession != "" && !matchesSession(msg.Payload, filterSession) {
				continue
			}
			if err := sse.writeEvent(typ, msg.Payload); err != nil {
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}

// matchesSession reports whether an encoded event concerns the session.
// Event payloads name their session as data.name or data.session.
func matchesSession(payload []byte, session string) bool {
	res := gjson.GetManyBytes(payload, "data.name", "data.session")
	return res[0].String() == session || res[1].String() == session
}
