// Package cache holds the last-fetched body and content hash of each
// group's feed, so unchanged feeds can be skipped without re-parsing or
// re-reconciling them. Equality is decided by a SHA-256 of the raw bytes
// rather than HTTP caching headers, which upstream servers get wrong too
// often to trust.
package cache

import (
	"context"
	"sync"
)

// Entry is one cached feed snapshot.
type Entry struct {
	Body []byte
	Hash string
}

// FeedCache stores the last-seen feed per group. A Get miss is not an
// error; it signals a group being seen for the first time.
type FeedCache interface {
	Get(ctx context.Context, groupID string) (Entry, bool, error)
	Put(ctx context.Context, groupID string, e Entry) error
}

// Memory is a process-local FeedCache. It only helps while the process
// stays up, which is enough for the cron-in-process deployment and for
// tests.
type Memory struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Get(_ context.Context, groupID string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[groupID]
	return e, ok, nil
}

func (m *Memory) Put(_ context.Context, groupID string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[groupID] = e
	return nil
}
