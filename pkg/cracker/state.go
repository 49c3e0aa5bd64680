package cracker

import (
	"sync"
	"sync/atomic"
)

// State is the search state. It only ever moves from Searching to one of the
// two terminal states.
type State int32

const (
	Searching State = iota
	Found
	Exhausted
)

func (s State) String() string {
	switch s {
	case Searching:
		return "searching"
	case Found:
		return "found"
	case Exhausted:
		return "exhausted"
	}
	return "unknown"
}

// search is the state shared by the producer and the workers of one Run.
type search struct {
	winner atomic.Pointer[[]byte]
	tried  atomic.Uint64

	stop     chan struct{}
	stopOnce sync.Once
}

func newSearch() *search {
	return &search{stop: make(chan struct{})}
}

// publish records password as the winner. Only the first caller succeeds;
// later callers get false and must discard their result.
func (s *search) publish(password []byte) bool {
	if !s.winner.CompareAndSwap(nil, &password) {
		return false
	}
	s.halt()
	return true
}

func (s *search) found() bool {
	return s.winner.Load() != nil
}

func (s *search) halt() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *search) password() []byte {
	if p := s.winner.Load(); p != nil {
		return *p
	}
	return nil
}
