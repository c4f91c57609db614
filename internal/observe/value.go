// Package observe broadcasts a current value to any number of observers.
//
// New observers receive the latest value immediately, then every later
// update in emission order. Each observer has a single pending slot: a slow
// observer sees the newest value once it catches up and never blocks the
// producer.
package observe

import "sync"

// Value holds the latest value of one observable
type Value[T any] struct {
	mu     sync.Mutex
	cur    T
	has    bool
	subs   map[*Subscription[T]]struct{}
	closed bool
}

// NewValue creates an observable with no initial value
func NewValue[T any]() *Value[T] {
	return &Value[T]{subs: make(map[*Subscription[T]]struct{})}
}

// NewValueWith creates an observable holding v
func NewValueWith[T any](v T) *Value[T] {
	val := NewValue[T]()
	val.cur = v
	val.has = true
	return val
}

// Set publishes v to all observers. It never blocks.
func (v *Value[T]) Set(x T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.cur = x
	v.has = true
	for s := range v.subs {
		s.offer(x)
	}
}

// Update applies fn to the current value and publishes the result
func (v *Value[T]) Update(fn func(T) T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.cur = fn(v.cur)
	v.has = true
	for s := range v.subs {
		s.offer(v.cur)
	}
}

// Get returns the latest value and whether one was ever set
func (v *Value[T]) Get() (T, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cur, v.has
}

// Subscribe registers a new observer. The caller must Close it when done.
// Subscribing to a closed Value returns an already-closed subscription.
func (v *Value[T]) Subscribe() *Subscription[T] {
	s := &Subscription[T]{ch: make(chan T, 1), parent: v}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		s.done = true
		close(s.ch)
		return s
	}
	if v.has {
		s.ch <- v.cur
	}
	v.subs[s] = struct{}{}
	return s
}

// Len returns the number of live observers
func (v *Value[T]) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}

// Close ends every subscription. Later Set calls are ignored.
func (v *Value[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	for s := range v.subs {
		s.done = true
		close(s.ch)
	}
	v.subs = nil
}

func (v *Value[T]) remove(s *Subscription[T]) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	delete(v.subs, s)
	close(s.ch)
}

// Subscription is one observer's view of a Value
type Subscription[T any] struct {
	ch     chan T
	parent *Value[T]
	done   bool // guarded by parent.mu
}

// C returns the update channel. It is closed when either side closes.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Close detaches the observer. Safe to call more than once.
func (s *Subscription[T]) Close() {
	s.parent.remove(s)
}

// offer replaces any unread value with x. Called with parent.mu held, so
// only one producer touches the slot at a time.
func (s *Subscription[T]) offer(x T) {
	select {
	case s.ch <- x:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- x
}
