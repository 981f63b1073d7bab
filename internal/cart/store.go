package cart

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Listener receives the new state after every dispatched operation.
type Listener func(State)

type subscription struct {
	id int
	fn Listener
}

// Store is a mutable cart container. Every operation is atomic and notifies
// subscribers with the resulting state, in dispatch order.
//
// Listeners may read the store but must not dispatch into it.
type Store struct {
	mu    sync.Mutex
	state State

	notifyMu  sync.Mutex
	subsMu    sync.Mutex
	subs      []subscription
	nextSubID int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{state: State{Items: []Item{}}}
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs = append(s.subs, subscription{id: id, fn: l})
	return func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) dispatch(transition func(State) State) State {
	s.mu.Lock()
	s.state = transition(s.state)
	snapshot := s.state.Clone()
	// notifyMu is taken before mu is released so listeners observe states in dispatch order
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	s.subsMu.Lock()
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.subsMu.Unlock()

	for _, sub := range subs {
		sub.fn(snapshot.Clone())
	}
	return snapshot
}

func (s *Store) LoadCart(snapshot State) State {
	return s.dispatch(func(cur State) State { return LoadCart(cur, snapshot) })
}

func (s *Store) AddToCart(p Product) State {
	return s.dispatch(func(cur State) State { return AddToCart(cur, p) })
}

func (s *Store) RemoveFromCart(id int64) State {
	return s.dispatch(func(cur State) State { return RemoveFromCart(cur, id) })
}

func (s *Store) SetQuantity(id int64, qty float64) State {
	return s.dispatch(func(cur State) State { return SetQuantity(cur, id, qty) })
}

func (s *Store) ClearCart() State {
	return s.dispatch(ClearCart)
}

// TotalCount is recomputed from the current state on every call.
func (s *Store) TotalCount() int {
	return s.State().TotalCount()
}

// TotalPrice is recomputed from the current state on every call.
func (s *Store) TotalPrice() decimal.Decimal {
	return s.State().TotalPrice()
}
