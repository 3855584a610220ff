package queue

import (
	"context"
	"sync"
	"time"

	"github.com/gogogo1024/campus-desk/internal/observability"
)

// Locker serialises mutations of one office queue.
type Locker interface {
	// Lock blocks until the office lock is held or ctx is done. The returned func releases it.
	Lock(ctx context.Context, officeID string) (func(), error)
}

// LocalLocker is an in-process keyed mutex. Entries are dropped once nobody holds or waits.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker { return &LocalLocker{locks: map[string]*keyLock{}} }

func (l *LocalLocker) Lock(ctx context.Context, officeID string) (func(), error) {
	start := time.Now()
	l.mu.Lock()
	k, ok := l.locks[officeID]
	if !ok {
		k = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[officeID] = k
	}
	k.refs++
	l.mu.Unlock()

	select {
	case k.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(officeID, k, false)
		return nil, ctx.Err()
	}
	observability.ObserveLockWait(time.Since(start))
	var once sync.Once
	return func() { once.Do(func() { l.release(officeID, k, true) }) }, nil
}

func (l *LocalLocker) release(officeID string, k *keyLock, held bool) {
	if held {
		<-k.ch
	}
	l.mu.Lock()
	k.refs--
	if k.refs == 0 {
		delete(l.locks, officeID)
	}
	l.mu.Unlock()
}

// size reports tracked keys; used by tests.
func (l *LocalLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
