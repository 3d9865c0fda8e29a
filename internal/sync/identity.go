package syncstate

import "sync"

// IdentitySource announces the signed-in user at most once per session. The
// channel yields one user id and is then closed; an anonymous session never
// sends.
type IdentitySource interface {
	Arrived() <-chan string
}

// StaticIdentity is known up front, typically from configuration.
type StaticIdentity struct {
	ch chan string
}

// NewStaticIdentity returns a source that has already arrived, or one that
// never arrives when userID is empty.
func NewStaticIdentity(userID string) StaticIdentity {
	ch := make(chan string, 1)
	if userID != "" {
		ch <- userID
		close(ch)
	}
	return StaticIdentity{ch: ch}
}

// Arrived implements IdentitySource.
func (s StaticIdentity) Arrived() <-chan string { return s.ch }

// ManualIdentity arrives when SignIn is first called.
type ManualIdentity struct {
	once sync.Once
	ch   chan string
}

// NewManualIdentity returns a source waiting for SignIn.
func NewManualIdentity() *ManualIdentity {
	return &ManualIdentity{ch: make(chan string, 1)}
}

// SignIn publishes userID. Only the first non-empty call has any effect; it
// reports whether this call was the one that published.
func (m *ManualIdentity) SignIn(userID string) bool {
	if userID == "" {
		return false
	}
	published := false
	m.once.Do(func() {
		m.ch <- userID
		close(m.ch)
		published = true
	})
	return published
}

// Arrived implements IdentitySource.
func (m *ManualIdentity) Arrived() <-chan string { return m.ch }
