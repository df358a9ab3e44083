// Package testutil starts a complete wamux stack on a loopback port with an
// in-memory transport, for black-box API tests.
package testutil

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/telnet2/wamux/internal/command"
	"github.com/telnet2/wamux/internal/command/builtin"
	"github.com/telnet2/wamux/internal/config"
	"github.com/telnet2/wamux/internal/credential"
	"github.com/telnet2/wamux/internal/dispatch"
	"github.com/telnet2/wamux/internal/event"
	"github.com/telnet2/wamux/internal/permission"
	"github.com/telnet2/wamux/internal/server"
	"github.com/telnet2/wamux/internal/sessionstore"
	"github.com/telnet2/wamux/internal/storage"
	"github.com/telnet2/wamux/internal/supervisor"
	"github.com/telnet2/wamux/internal/transport/transporttest"
)

// TestServer wraps a running stack.
type TestServer struct {
	Server     *server.Server
	BaseURL    string
	Settings   *config.Settings
	Store      *sessionstore.Store
	Registry   *command.Registry
	Supervisor *supervisor.Supervisor
	Factory    *transporttest.Factory
	Bus        *event.Bus
	TempDir    string

	watcher *command.Watcher
}

// TestServerOption configures TestServer
type TestServerOption func(*testServerConfig)

type testServerConfig struct {
	envFile   string
	manifests map[string]string
}

// WithEnvFile sets the .env file to load
func WithEnvFile(path string) TestServerOption {
	return func(c *testServerConfig) {
		c.envFile = path
	}
}

// WithManifest writes a command manifest before the registry loads.
func WithManifest(name, content string) TestServerOption {
	return func(c *testServerConfig) {
		if c.manifests == nil {
			c.manifests = make(map[string]string)
		}
		c.manifests[name] = content
	}
}

// StartTestServer creates and starts a test server
func StartTestServer(opts ...TestServerOption) (*TestServer, error) {
	cfg := &testServerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.envFile != "" {
		_ = godotenv.Load(cfg.envFile)
	} else {
		_ = godotenv.Load("../../.env")
	}

	tempDir, err := os.MkdirTemp("", "wamux-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	settings := buildTestSettings(tempDir)
	if err := os.MkdirAll(settings.CommandsDir, 0755); err != nil {
		os.RemoveAll(tempDir)
		return nil, err
	}
	for name, content := range cfg.manifests {
		if err := os.WriteFile(filepath.Join(settings.CommandsDir, name), []byte(content), 0644); err != nil {
			os.RemoveAll(tempDir)
			return nil, err
		}
	}

	port, err := findAvailablePort()
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to find available port: %w", err)
	}
	settings.Port = port

	bus := event.NewBus()
	st := storage.New(settings.DataDir)
	store := sessionstore.New(st, bus)
	registry := command.NewRegistry(settings.CommandsDir, builtin.Commands()...)
	registry.Load()

	cache := permission.NewGroupCache()
	dispatcher := dispatch.New(dispatch.Options{
		Store:    store,
		Registry: registry,
		Resolver: permission.NewResolver(cache),
		Bus:      bus,
	})
	factory := transporttest.NewFactory()
	sup := supervisor.New(supervisor.Options{
		Settings:  settings,
		Store:     store,
		Factory:   factory,
		Handler:   dispatcher,
		Bootstrap: credential.NewBootstrap(st, nil),
		Cache:     cache,
		Bus:       bus,
	})
	dispatcher.SetRecorder(sup)

	watcher, err := command.NewWatcher(registry, bus)
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, err
	}
	watcher.Start()

	ctx := context.Background()
	if err := sup.StartAll(ctx); err != nil {
		watcher.Stop()
		os.RemoveAll(tempDir)
		return nil, err
	}

	srvConfig := server.DefaultConfig()
	srvConfig.Hostname = settings.Hostname
	srvConfig.Port = port
	srv := server.New(srvConfig, server.Options{
		Store:      store,
		Supervisor: sup,
		Bus:        bus,
		Version:    "citest",
	})
	go func() {
		_ = srv.Start()
	}()

	ts := &TestServer{
		Server:     srv,
		BaseURL:    fmt.Sprintf("http://%s", srv.Addr()),
		Settings:   settings,
		Store:      store,
		Registry:   registry,
		Supervisor: sup,
		Factory:    factory,
		Bus:        bus,
		TempDir:    tempDir,
		watcher:    watcher,
	}
	if err := waitForServer(ts.BaseURL, 10*time.Second); err != nil {
		ts.Stop()
		return nil, fmt.Errorf("server failed to start: %w", err)
	}
	return ts, nil
}

// Stop shuts down the stack and removes its data.
func (ts *TestServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var firstErr error
	if ts.Server != nil {
		firstErr = ts.Server.Shutdown(ctx)
	}
	if ts.Supervisor != nil {
		if err := ts.Supervisor.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if ts.watcher != nil {
		ts.watcher.Stop()
	}
	if ts.Bus != nil {
		ts.Bus.Close()
	}
	if ts.TempDir != "" {
		os.RemoveAll(ts.TempDir)
	}
	return firstErr
}

// Client returns a new test client for this server
func (ts *TestServer) Client() *TestClient {
	return NewTestClient(ts.BaseURL)
}

// SSEClient returns a new SSE client for this server
func (ts *TestServer) SSEClient() *SSEClient {
	return NewSSEClient(ts.BaseURL)
}

// WriteManifest writes a command manifest into the live commands directory.
func (ts *TestServer) WriteManifest(name, content string) error {
	return os.WriteFile(filepath.Join(ts.Settings.CommandsDir, name), []byte(content), 0644)
}

// buildTestSettings uses short delays so reconnects happen within a test.
func buildTestSettings(dir string) *config.Settings {
	welcome := false
	s := config.Default()
	s.DataDir = filepath.Join(dir, "data")
	s.CommandsDir = filepath.Join(dir, "commands")
	s.Hostname = "127.0.0.1"
	s.ReconnectDelay = config.Duration(20 * time.Millisecond)
	s.ReconnectMaxDelay = config.Duration(50 * time.Millisecond)
	s.SweepInterval = 0
	s.WelcomeDelay = 0
	s.WelcomeEnabled = &welcome
	return s
}

// findAvailablePort finds an available TCP port
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// waitForServer waits for the server to be ready
func waitForServer(baseURL string, timeout time.Duration) error {
	client := NewTestClient(baseURL)
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		resp, err := client.Get(context.Background(), "/api/health")
		if err == nil && resp.IsSuccess() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("server not ready after %v", timeout)
}
