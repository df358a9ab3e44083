package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrNoBackup is returned when no blob store is configured.
var ErrNoBackup = errors.New("credential backup not configured")

// Backup seals credential files and keeps them in a BlobStore.
type Backup struct {
	store BlobStore
	now   func() time.Time
}

// NewBackup creates a backup over store. A nil store yields a Backup whose
// operations return ErrNoBackup.
func NewBackup(store BlobStore) *Backup {
	return &Backup{store: store, now: time.Now}
}

// Configured reports whether a blob store is set.
func (b *Backup) Configured() bool {
	return b != nil && b.store != nil
}

// Upload seals data and stores it. The returned locator is the only way to
// read it back.
func (b *Backup) Upload(ctx context.Context, name string, data []byte) (Locator, error) {
	if !b.Configured() {
		return Locator{}, ErrNoBackup
	}
	sealed, key, err := seal(data)
	if err != nil {
		return Locator{}, err
	}
	fileID := strings.ToLower(ulid.Make().String())
	if name != "" && fileIDPattern.MatchString(name) {
		fileID = name + "-" + fileID
	}
	if err := b.store.Put(ctx, fileID, sealed); err != nil {
		return Locator{}, err
	}
	return Locator{FileID: fileID, Key: key}, nil
}

// Download fetches and unseals the backup a locator points at.
func (b *Backup) Download(ctx context.Context, locator string) ([]byte, error) {
	if !b.Configured() {
		return nil, ErrNoBackup
	}
	loc, err := ParseLocator(locator)
	if err != nil {
		return nil, err
	}
	sealed, err := b.store.Get(ctx, loc.FileID)
	if err != nil {
		return nil, err
	}
	data, err := unseal(sealed, loc.Key)
	if err != nil {
		return nil, fmt.Errorf("open backup %s: %w", loc.FileID, err)
	}
	return data, nil
}

// Status is the result of a blob store health check.
type Status struct {
	Configured bool      `json:"configured"`
	Reachable  bool      `json:"reachable"`
	LatencyMs  int64     `json:"latencyMs"`
	Error      string    `json:"error,omitempty"`
	CheckedAt  time.Time `json:"checkedAt"`
}

// Status checks that the blob store is reachable.
func (b *Backup) Status(ctx context.Context) Status {
	if !b.Configured() {
		return Status{CheckedAt: time.Now()}
	}
	start := b.now()
	st := Status{Configured: true, CheckedAt: start}
	if err := b.store.Ping(ctx); err != nil {
		st.Error = err.Error()
	} else {
		st.Reachable = true
	}
	st.LatencyMs = b.now().Sub(start).Milliseconds()
	return st
}
