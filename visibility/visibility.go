package visibility

import (
	"sort"
	"sync"
)

// State is a visibility state.
type State int

const (
	// Visible means the presentation layer is shown and focused.
	Visible State = iota
	// Hidden means it is in the background.
	Hidden
)

// String returns "visible" or "hidden".
func (s State) String() string {
	if s == Hidden {
		return "hidden"
	}
	return "visible"
}

// Parse returns the state named by s.
func Parse(s string) (State, bool) {
	switch s {
	case "visible":
		return Visible, true
	case "hidden":
		return Hidden, true
	default:
		return Visible, false
	}
}

// Listener receives a new state after each transition.
type Listener func(State)

// Signal is a visible/hidden broadcaster.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Listeners run after the lock is released, in subscription order, on
//   the goroutine that called Set.
type Signal struct {
	mu     sync.Mutex
	state  State
	subs   map[int]Listener
	nextID int
}

// NewSignal returns a Signal starting in initial.
func NewSignal(initial State) *Signal {
	return &Signal{state: initial, subs: make(map[int]Listener)}
}

// State returns the current state.
func (s *Signal) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Set changes the state and notifies listeners. Setting the current state
// again is a no-op and reports false.
func (s *Signal) Set(state State) bool {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return false
	}
	s.state = state
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]Listener, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
	return true
}

// Subscribe registers fn and returns a func that removes it.
func (s *Signal) Subscribe(fn Listener) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}
