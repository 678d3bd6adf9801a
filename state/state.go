// Package state holds the application state of the bridge
// and notifies subscribers of every change to it.
package state

import (
	"sync"

	"github.com/bobg/ethbs"
	"github.com/bobg/ethbs/node"
)

// State is the whole of the application state.
// Values of State are snapshots:
// subscribers and callers of Store.GetState may keep them
// without seeing later mutations.
type State struct {
	PeerInfo node.Info
	Peers    []node.Peer

	Blocks    Blocks
	BestBlock *ethbs.Block

	PseudoQuery string
	DagQuery    string // derived from PseudoQuery and BestBlock
	DagResult   string

	TokenHolder  string
	ENSName      string
	TokenBalance string
	ENSAddress   string

	Tracking bool

	// Pending holds the peer addresses with a connect or disconnect in flight.
	Pending map[string]bool

	Err error
}

// WithPending returns a copy of s.Pending with addr set or cleared.
func (s State) WithPending(addr string, pending bool) map[string]bool {
	m := make(map[string]bool, len(s.Pending)+1)
	for k, v := range s.Pending {
		m[k] = v
	}
	if pending {
		m[addr] = true
	} else {
		delete(m, addr)
	}
	return m
}

// Store holds a State and the subscribers to it.
// All mutation goes through UpdateState.
type Store struct {
	mu         sync.Mutex
	state      State
	subs       []*subscription
	queue      []State
	delivering bool
}

type subscription struct {
	f func(State)
}

// New produces a Store holding the initial state s.
func New(s State) *Store {
	return &Store{state: s}
}

// GetState returns the current state.
func (st *Store) GetState() State {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state
}

// UpdateState applies f to the current state
// and notifies every subscriber of the result in subscription order.
//
// Only one goroutine delivers notifications at a time.
// An UpdateState made while a delivery is under way
// (from a subscriber callback or from another goroutine)
// is committed at once and its notification is queued for the delivering goroutine.
// Subscribers thus see every state in commit order,
// each exactly once.
// A callback that updates unconditionally never lets the queue drain.
func (st *Store) UpdateState(f func(*State)) {
	st.mu.Lock()
	f(&st.state)
	st.queue = append(st.queue, st.state)
	if st.delivering {
		st.mu.Unlock()
		return
	}
	st.delivering = true

	finished := false
	defer func() {
		if !finished {
			// A subscriber panicked with the lock released.
			// Queued states go out with the next update.
			st.mu.Lock()
			st.delivering = false
			st.mu.Unlock()
		}
	}()

	for len(st.queue) > 0 {
		s := st.queue[0]
		st.queue = st.queue[1:]
		subs := append([]*subscription(nil), st.subs...)
		st.mu.Unlock()

		for _, sub := range subs {
			sub.f(s)
		}

		st.mu.Lock()
	}
	st.delivering = false
	finished = true
	st.mu.Unlock()
}

// Subscribe adds f to the subscribers.
// The returned function removes it again.
func (st *Store) Subscribe(f func(State)) (unsubscribe func()) {
	sub := &subscription{f: f}

	st.mu.Lock()
	st.subs = append(st.subs, sub)
	st.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			st.mu.Lock()
			defer st.mu.Unlock()
			for i, s := range st.subs {
				if s == sub {
					st.subs = append(st.subs[:i:i], st.subs[i+1:]...)
					return
				}
			}
		})
	}
}
