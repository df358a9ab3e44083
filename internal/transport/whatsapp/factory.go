package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"

	"github.com/telnet2/wamux/internal/credential"
	"github.com/telnet2/wamux/internal/logging"
	"github.com/telnet2/wamux/internal/transport"
	"github.com/telnet2/wamux/pkg/types"
)

// Factory opens whatsmeow clients backed by a per-session sqlite store.
type Factory struct {
	log zerolog.Logger
}

// NewFactory creates a factory.
func NewFactory() *Factory {
	return &Factory{log: logging.Component("whatsapp")}
}

// StorePath returns the device database path inside dir.
func StorePath(dir string) string {
	return filepath.Join(dir, credential.StoreFile)
}

func storeDSN(dir string) string {
	return "file:" + StorePath(dir) + "?_foreign_keys=on&_busy_timeout=5000"
}

// Open implements transport.Factory.
func (f *Factory) Open(ctx context.Context, desc types.SessionDescriptor, opts transport.Options) (transport.Client, error) {
	if opts.Dir == "" {
		return nil, errors.New("whatsapp: session directory is required")
	}
	if err := os.MkdirAll(opts.Dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	log := f.log.With().Str("session", desc.Name).Logger()
	container, err := sqlstore.New(ctx, "sqlite3", storeDSN(opts.Dir), newLogger(log, "store"))
	if err != nil {
		return nil, fmt.Errorf("failed to open device store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("failed to load device: %w", err)
	}

	wa := whatsmeow.NewClient(device, newLogger(log, "client"))
	// Reconnection is driven by the supervisor's backoff.
	wa.EnableAutoReconnect = false
	return newClient(wa, container, opts, log), nil
}

var _ transport.Factory = (*Factory)(nil)
