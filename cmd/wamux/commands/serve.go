package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/telnet2/wamux/internal/command"
	"github.com/telnet2/wamux/internal/command/builtin"
	"github.com/telnet2/wamux/internal/config"
	"github.com/telnet2/wamux/internal/credential"
	"github.com/telnet2/wamux/internal/dispatch"
	"github.com/telnet2/wamux/internal/event"
	"github.com/telnet2/wamux/internal/logging"
	"github.com/telnet2/wamux/internal/permission"
	"github.com/telnet2/wamux/internal/server"
	"github.com/telnet2/wamux/internal/sessionstore"
	"github.com/telnet2/wamux/internal/storage"
	"github.com/telnet2/wamux/internal/supervisor"
	"github.com/telnet2/wamux/internal/transport/whatsapp"
)

const shutdownTimeout = 30 * time.Second

var (
	servePort     int
	serveHostname string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run all sessions and the HTTP API",
	Long: `Start every configured session and expose the HTTP control API.

Edits to the session config file and to the commands directory are picked
up without a restart. SIGINT or SIGTERM stops the HTTP server first, then
the sessions.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default from settings)")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "", "Hostname to listen on (default from settings)")
}

func runServe(cmd *cobra.Command, args []string) error {
	s := settings
	if servePort != 0 {
		s.Port = servePort
	}
	if serveHostname != "" {
		s.Hostname = serveHostname
	}

	if err := config.GetPaths().EnsurePaths(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.DataDir, 0755); err != nil {
		return err
	}
	logging.Info().Str("version", Version).Str("data_dir", s.DataDir).Str("commands_dir", s.CommandsDir).Msg("starting wamux")

	bus := event.NewBus()
	defer bus.Close()
	defer bus.SubscribeAll(func(e event.Event) {
		logging.Debug().Str("event", string(e.Type)).Str("id", e.ID).Msg("event published")
	})()

	st := storage.New(s.DataDir)
	store := sessionstore.New(st, bus)

	backup, err := openBackup(s)
	if err != nil {
		return err
	}
	bootstrap := credential.NewBootstrap(st, backup)

	registry := command.NewRegistry(s.CommandsDir, builtin.Commands()...)
	registry.Load()

	cache := permission.NewGroupCache()
	dispatcher := dispatch.New(dispatch.Options{
		Store:    store,
		Registry: registry,
		Resolver: permission.NewResolver(cache),
		Bus:      bus,
	})
	sup := supervisor.New(supervisor.Options{
		Settings:  s,
		Store:     store,
		Factory:   whatsapp.NewFactory(),
		Handler:   dispatcher,
		Bootstrap: bootstrap,
		Cache:     cache,
		Bus:       bus,
	})
	dispatcher.SetRecorder(sup)

	configWatcher, err := sessionstore.NewWatcher(store)
	if err != nil {
		return err
	}
	configWatcher.Start()
	defer configWatcher.Stop()

	commandWatcher, err := command.NewWatcher(registry, bus)
	if err != nil {
		return err
	}
	commandWatcher.Start()
	defer commandWatcher.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sup.StartAll(ctx); err != nil {
		return err
	}

	srvConfig := server.DefaultConfig()
	srvConfig.Hostname = s.Hostname
	srvConfig.Port = s.Port
	srv := server.New(srvConfig, server.Options{
		Store:      store,
		Supervisor: sup,
		Backup:     backup,
		Bus:        bus,
		Version:    Version,
	})

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", srv.Addr()).Msg("HTTP server listening")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("shutting down")
	case serveErr = <-errCh:
		logging.Error().Err(serveErr).Msg("HTTP server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("HTTP server shutdown error")
	}
	if err := sup.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("sessions did not stop in time")
	}

	logging.Info().Msg("wamux stopped")
	return serveErr
}
