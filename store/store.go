// Package store holds conversation contexts in memory. Contexts live for
// the lifetime of the process; there is no eviction.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vitwit/mcpay/types"
)

// entry pairs a context with its own lock so appends to one context are
// serialized in arrival order without blocking other contexts.
type entry struct {
	mu  sync.Mutex
	ctx *types.Context
}

// MemoryStore is a thread-safe in-memory context store.
type MemoryStore struct {
	mu       sync.RWMutex
	contexts map[string]*entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contexts: make(map[string]*entry),
	}
}

// Create allocates a new context with an empty message sequence. The
// returned context is a snapshot owned by the caller.
func (s *MemoryStore) Create(metadata map[string]any) *types.Context {
	if metadata == nil {
		metadata = map[string]any{}
	}

	ctx := &types.Context{
		ID:       uuid.NewString(),
		Created:  time.Now().UTC(),
		Messages: []types.Message{},
		Metadata: metadata,
	}

	s.mu.Lock()
	s.contexts[ctx.ID] = &entry{ctx: ctx}
	s.mu.Unlock()

	return snapshot(ctx)
}

// Get returns a snapshot of the context, or a NOT_FOUND error.
func (s *MemoryStore) Get(id string) (*types.Context, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e.ctx), nil
}

// AppendMessage appends a message with a server-assigned id and timestamp.
// Appends to the same context are serialized, so message order matches
// arrival order.
func (s *MemoryStore) AppendMessage(id string, role types.Role, content string) (types.Message, error) {
	e, err := s.lookup(id)
	if err != nil {
		return types.Message{}, err
	}

	msg := types.Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}

	e.mu.Lock()
	e.ctx.Messages = append(e.ctx.Messages, msg)
	e.mu.Unlock()

	return msg, nil
}

// SetProcessingMetadata overwrites the context's last tool outcome.
func (s *MemoryStore) SetProcessingMetadata(id string, metadata map[string]any) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.ctx.LastProcessingMetadata = metadata
	e.mu.Unlock()
	return nil
}

// List returns snapshots of all contexts ordered by creation time.
func (s *MemoryStore) List() []*types.Context {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.contexts))
	for _, e := range s.contexts {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]*types.Context, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, snapshot(e.ctx))
		e.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Created.Before(out[j].Created)
	})
	return out
}

func (s *MemoryStore) lookup(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.contexts[id]
	s.mu.RUnlock()

	if !ok {
		return nil, types.NotFound("context", id)
	}
	return e, nil
}

// snapshot copies the context so callers never share the store's slices
// or maps.
func snapshot(c *types.Context) *types.Context {
	out := &types.Context{
		ID:       c.ID,
		Created:  c.Created,
		Messages: make([]types.Message, len(c.Messages)),
		Metadata: make(map[string]any, len(c.Metadata)),
	}
	copy(out.Messages, c.Messages)
	for k, v := range c.Metadata {
		out.Metadata[k] = v
	}
	if c.LastProcessingMetadata != nil {
		out.LastProcessingMetadata = make(map[string]any, len(c.LastProcessingMetadata))
		for k, v := range c.LastProcessingMetadata {
			out.LastProcessingMetadata[k] = v
		}
	}
	return out
}
