// Package credential restores and backs up per-session credential material.
//
// Each session keeps its credentials in <data>/sessions/<name>/store.db. When
// that file is missing and the session id is a backup locator, Ensure
// downloads the sealed copy before the connection is opened so the session
// does not need to pair again.
package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/telnet2/wamux/internal/config"
	"github.com/telnet2/wamux/internal/logging"
	"github.com/telnet2/wamux/internal/storage"
	"github.com/telnet2/wamux/pkg/types"
)

// StoreFile is the credential file name inside a session directory.
const StoreFile = "store.db"

// Bootstrap prepares session credential directories.
type Bootstrap struct {
	storage *storage.Storage
	backup  *Backup
	log     zerolog.Logger
}

// NewBootstrap creates a bootstrap over the data directory storage. backup
// may be nil.
func NewBootstrap(st *storage.Storage, backup *Backup) *Bootstrap {
	return &Bootstrap{
		storage: st,
		backup:  backup,
		log:     logging.Component("credential"),
	}
}

func sessionKey(name string) []string {
	return []string{"sessions", name}
}

func storeKey(name string) []string {
	return []string{"sessions", name, StoreFile}
}

// Dir returns the session's credential directory.
func (b *Bootstrap) Dir(name string) string {
	return config.SessionDir(b.storage.BasePath(), name)
}

// HasLocal reports whether the session already has credentials on disk.
func (b *Bootstrap) HasLocal(ctx context.Context, name string) bool {
	return b.storage.BlobExists(ctx, storeKey(name))
}

// Ensure restores the session's credentials from backup when none exist
// locally. It reports whether a restore happened. Without local credentials
// or a locator the session falls back to interactive pairing.
func (b *Bootstrap) Ensure(ctx context.Context, desc types.SessionDescriptor) (bool, error) {
	if b.HasLocal(ctx, desc.Name) {
		return false, nil
	}
	if !IsLocator(desc.SessionID) {
		return false, nil
	}
	if !b.backup.Configured() {
		return false, ErrNoBackup
	}

	data, err := b.backup.Download(ctx, desc.SessionID)
	if err != nil {
		return false, fmt.Errorf("restore %s: %w", desc.Name, err)
	}
	if err := b.storage.WriteBlob(ctx, storeKey(desc.Name), data); err != nil {
		return false, fmt.Errorf("restore %s: %w", desc.Name, err)
	}
	b.log.Info().Str("session", desc.Name).Int("bytes", len(data)).Msg("credentials restored from backup")
	return true, nil
}

// Push uploads the session's local credentials and returns the locator.
func (b *Bootstrap) Push(ctx context.Context, name string) (Locator, error) {
	data, err := b.storage.ReadBlob(ctx, storeKey(name))
	if errors.Is(err, storage.ErrNotFound) {
		return Locator{}, fmt.Errorf("session %s has no local credentials", name)
	}
	if err != nil {
		return Locator{}, err
	}
	return b.backup.Upload(ctx, name, data)
}

// Erase deletes the session's credential directory.
func (b *Bootstrap) Erase(ctx context.Context, name string) error {
	return b.storage.RemoveDir(ctx, sessionKey(name))
}
