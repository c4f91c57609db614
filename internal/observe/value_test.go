package observe

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv[T any](t *testing.T, s *Subscription[T]) T {
	t.Helper()
	select {
	case v, ok := <-s.C():
		require.True(t, ok, "subscription closed")
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}

func assertEmpty[T any](t *testing.T, s *Subscription[T]) {
	t.Helper()
	select {
	case v := <-s.C():
		t.Fatalf("unexpected value %v", v)
	default:
	}
}

func TestSubscribeReceivesCurrentValue(t *testing.T) {
	v := NewValueWith(7)
	s := v.Subscribe()
	defer s.Close()

	assert.Equal(t, 7, recv(t, s))
	assertEmpty(t, s)
}

func TestSubscribeWithoutValueWaits(t *testing.T) {
	v := NewValue[string]()
	s := v.Subscribe()
	defer s.Close()

	assertEmpty(t, s)
	v.Set("a")
	assert.Equal(t, "a", recv(t, s))
}

func TestUpdatesArriveInOrder(t *testing.T) {
	v := NewValue[int]()
	s := v.Subscribe()
	defer s.Close()

	for i := 1; i <= 5; i++ {
		v.Set(i)
		assert.Equal(t, i, recv(t, s))
	}
}

func TestSlowObserverCoalescesToLatest(t *testing.T) {
	v := NewValue[int]()
	s := v.Subscribe()
	defer s.Close()

	for i := 1; i <= 100; i++ {
		v.Set(i)
	}
	assert.Equal(t, 100, recv(t, s))
	assertEmpty(t, s)
}

func TestProducerNeverBlocks(t *testing.T) {
	v := NewValue[int]()
	subs := make([]*Subscription[int], 10)
	for i := range subs {
		subs[i] = v.Subscribe()
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			v.Set(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producer blocked on slow observers")
	}
	for _, s := range subs {
		assert.Equal(t, 9999, recv(t, s))
	}
}

func TestConcurrentObserversSeeMonotonicValues(t *testing.T) {
	v := NewValue[int]()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		s := v.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := -1
			for x := range s.C() {
				assert.Greater(t, x, last)
				last = x
				if x == 999 {
					s.Close()
				}
			}
		}()
	}
	for i := 0; i < 1000; i++ {
		v.Set(i)
	}
	wg.Wait()
}

func TestUpdate(t *testing.T) {
	v := NewValueWith([]string{"a"})
	v.Update(func(cur []string) []string { return append(cur, "b") })
	got, ok := v.Get()
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestCloseEndsSubscriptions(t *testing.T) {
	v := NewValueWith(1)
	s := v.Subscribe()
	assert.Equal(t, 1, recv(t, s))

	v.Close()
	_, ok := <-s.C()
	assert.False(t, ok)

	// Set after close is ignored and Close is idempotent
	v.Set(2)
	v.Close()
	s.Close()

	late := v.Subscribe()
	_, ok = <-late.C()
	assert.False(t, ok)
}

func TestSubscriptionCloseDetaches(t *testing.T) {
	v := NewValue[int]()
	s := v.Subscribe()
	assert.Equal(t, 1, v.Len())
	s.Close()
	s.Close()
	assert.Equal(t, 0, v.Len())
	v.Set(3)
}
