package server

import (
	"sync"
)

// Shutdown is a one-shot broadcast signal. Every connection handler and the
// periodic tasks select on Done alongside their own work; triggering is
// idempotent and observed at least once by every holder.
type Shutdown struct {
	once sync.Once
	ch   chan struct{}
}

// NewShutdown creates an untriggered signal
func NewShutdown() *Shutdown {
	return &Shutdown{ch: make(chan struct{})}
}

// Trigger requests shutdown. Safe to call more than once.
func (s *Shutdown) Trigger() {
	s.once.Do(func() {
		close(s.ch)
	})
}

// Done returns a channel closed once shutdown is requested
func (s *Shutdown) Done() <-chan struct{} {
	return s.ch
}

// IsShutdown polls the signal without blocking
func (s *Shutdown) IsShutdown() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}
