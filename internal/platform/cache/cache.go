// Package cache stores computed slot listings keyed by scope (one doctor) and
// key (one date). Invalidating a scope bumps its version so every key written
// under the old version stops being served.
//
// Get reports the scope version it observed, hit or miss. Set only stores a
// value under that same version, so a listing computed before an Invalidate
// is never served after it.
package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Store is a best-effort cache. A failed read is a miss and a failed write is
// dropped. An empty version from Get means the version is unknown and Set
// must not store anything for it.
type Store interface {
	Get(ctx context.Context, scope, key string) (value []byte, version string, ok bool)
	Set(ctx context.Context, scope, key, version string, value []byte)
	Invalidate(ctx context.Context, scope string)
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string, string) ([]byte, string, bool) { return nil, "", false }
func (Nop) Set(context.Context, string, string, string, []byte)        {}
func (Nop) Invalidate(context.Context, string)                         {}

// ---------------------------------------------------------------------------
// Memory
// ---------------------------------------------------------------------------

type memoryEntry struct {
	data      []byte
	version   uint64
	expiresAt time.Time
}

// Memory is a thread-safe in-process Store with lazy expiration.
type Memory struct {
	mu       sync.Mutex
	ttl      time.Duration
	versions map[string]uint64
	entries  map[string]*memoryEntry
	now      func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:      ttl,
		versions: make(map[string]uint64),
		entries:  make(map[string]*memoryEntry),
		now:      time.Now,
	}
}

func (m *Memory) Get(_ context.Context, scope, key string) ([]byte, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := m.versions[scope]
	version := strconv.FormatUint(current, 10)
	k := scope + "|" + key
	e, ok := m.entries[k]
	if !ok {
		return nil, version, false
	}
	if e.version != current || m.now().After(e.expiresAt) {
		delete(m.entries, k)
		return nil, version, false
	}
	return e.data, version, true
}

// Set drops the value when the scope was invalidated after version was read.
func (m *Memory) Set(_ context.Context, scope, key, version string, value []byte) {
	v, err := strconv.ParseUint(version, 10, 64)
	if err != nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if v != m.versions[scope] {
		return
	}
	m.entries[scope+"|"+key] = &memoryEntry{
		data:      append([]byte(nil), value...),
		version:   v,
		expiresAt: m.now().Add(m.ttl),
	}
}

func (m *Memory) Invalidate(_ context.Context, scope string) {
	m.mu.Lock()
	m.versions[scope]++
	m.mu.Unlock()
}
