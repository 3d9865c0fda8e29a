package storage

import (
	"context"
	"sync"
)

// MemoryLocal is an in-process Local store.
type MemoryLocal struct {
	mu      sync.Mutex
	values  map[string][]byte
	failSet error
}

// NewMemoryLocal returns an empty MemoryLocal.
func NewMemoryLocal() *MemoryLocal {
	return &MemoryLocal{values: make(map[string][]byte)}
}

// Get implements Local.
func (m *MemoryLocal) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set implements Local.
func (m *MemoryLocal) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet != nil {
		return m.failSet
	}
	m.values[key] = append([]byte(nil), value...)
	return nil
}

// FailWrites makes every later Set return err. A nil err restores writes.
func (m *MemoryLocal) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSet = err
}

// MemoryRemote is an in-process Remote store that counts writes.
type MemoryRemote struct {
	mu        sync.Mutex
	values    map[string][]byte
	upserts   int
	failFetch error
	failWrite error
	onUpsert  func(userID string, payload []byte)
}

// NewMemoryRemote returns an empty MemoryRemote.
func NewMemoryRemote() *MemoryRemote {
	return &MemoryRemote{values: make(map[string][]byte)}
}

// Fetch implements Remote.
func (m *MemoryRemote) Fetch(_ context.Context, userID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFetch != nil {
		return nil, m.failFetch
	}
	v, ok := m.values[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Upsert implements Remote.
func (m *MemoryRemote) Upsert(_ context.Context, userID string, payload []byte) error {
	m.mu.Lock()
	if m.failWrite != nil {
		err := m.failWrite
		m.mu.Unlock()
		return err
	}
	m.values[userID] = append([]byte(nil), payload...)
	m.upserts++
	hook := m.onUpsert
	m.mu.Unlock()

	if hook != nil {
		hook(userID, payload)
	}
	return nil
}

// Put seeds a stored payload without counting it as an upsert.
func (m *MemoryRemote) Put(userID string, payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[userID] = append([]byte(nil), payload...)
}

// Upserts returns how many successful upserts were made.
func (m *MemoryRemote) Upserts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}

// FailFetch makes Fetch return err until called again with nil.
func (m *MemoryRemote) FailFetch(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFetch = err
}

// FailUpsert makes Upsert return err until called again with nil.
func (m *MemoryRemote) FailUpsert(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrite = err
}

// OnUpsert registers a hook called after every successful upsert.
func (m *MemoryRemote) OnUpsert(fn func(userID string, payload []byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpsert = fn
}
