// Package lock provides named advisory locks.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/h1b-jobs-crawler/internal/crawler"
)

// Keyed is an in-process crawler.Locker. Each key is a one-slot semaphore that
// disappears once nobody holds or waits on it. TTLs are ignored.
type Keyed struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewKeyed returns an empty Keyed locker.
func NewKeyed() *Keyed {
	return &Keyed{slots: make(map[string]*slot)}
}

// Acquire blocks until key is free or ctx ends. An already-expired ctx still gets
// one non-blocking attempt.
func (k *Keyed) Acquire(ctx context.Context, key string, _ time.Duration) (func(), error) {
	s := k.ref(key)

	select {
	case s.ch <- struct{}{}:
		return k.releaser(key, s), nil
	default:
	}

	select {
	case s.ch <- struct{}{}:
		return k.releaser(key, s), nil
	case <-ctx.Done():
		k.unref(key, s)
		return nil, fmt.Errorf("%w: %s: %v", crawler.ErrLockHeld, key, ctx.Err())
	}
}

func (k *Keyed) releaser(key string, s *slot) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			k.unref(key, s)
		})
	}
}

func (k *Keyed) ref(key string) *slot {
	k.mu.Lock()
	defer k.mu.Unlock()
	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	return s
}

func (k *Keyed) unref(key string, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}

// size reports how many keys are tracked.
func (k *Keyed) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}
