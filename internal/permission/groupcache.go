package permission

import (
	"context"
	"sync"

	"github.com/telnet2/wamux/pkg/types"
)

// MetadataSource fetches group metadata from the transport.
type MetadataSource interface {
	GroupMetadata(ctx context.Context, chatID string) (*types.GroupMetadata, error)
}

// GroupCache memoizes group metadata per session. Entries never expire; they
// are replaced by an explicit refetch or dropped with their session.
type GroupCache struct {
	mu      sync.RWMutex
	entries map[string]map[string]*types.GroupMetadata // session -> chat -> metadata
}

// NewGroupCache creates an empty cache.
func NewGroupCache() *GroupCache {
	return &GroupCache{entries: make(map[string]map[string]*types.GroupMetadata)}
}

// Get returns the cached metadata for a chat within a session.
func (c *GroupCache) Get(session, chat string) (*types.GroupMetadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	meta, ok := c.entries[session][chat]
	return meta, ok
}

// Put stores metadata for a chat within a session.
func (c *GroupCache) Put(session, chat string, meta *types.GroupMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	part, ok := c.entries[session]
	if !ok {
		part = make(map[string]*types.GroupMetadata)
		c.entries[session] = part
	}
	part[chat] = meta
}

// Invalidate forgets one chat's metadata.
func (c *GroupCache) Invalidate(session, chat string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries[session], chat)
}

// Drop forgets everything cached for a session.
func (c *GroupCache) Drop(session string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, session)
}

// Len returns the number of cached chats for a session.
func (c *GroupCache) Len(session string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries[session])
}

// Fetch returns cached metadata, or loads it from src and caches it.
// bypass forces a load even when an entry exists. Failed loads are not cached.
func (c *GroupCache) Fetch(ctx context.Context, session, chat string, src MetadataSource, bypass bool) (*types.GroupMetadata, error) {
	if !bypass {
		if meta, ok := c.Get(session, chat); ok {
			return meta, nil
		}
	}
	meta, err := src.GroupMetadata(ctx, chat)
	if err != nil {
		return nil, err
	}
	c.Put(session, chat, meta)
	return meta, nil
}
