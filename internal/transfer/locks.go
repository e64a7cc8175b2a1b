package transfer

import (
	"context"
	"sort"
	"sync"

	"github.com/endesomnia/cloud-sub000/internal/events"
)

// LockArena hands out advisory locks keyed by (bucket, key). Locks exist only
// while held or awaited.
type LockArena struct {
	mu    sync.Mutex
	locks map[events.ObjectRef]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewLockArena returns an empty arena.
func NewLockArena() *LockArena {
	return &LockArena{locks: make(map[events.ObjectRef]*keyLock)}
}

// Acquire locks every ref in canonical order and returns a release func that
// must be called on all exit paths. On ctx expiry nothing stays held.
func (a *LockArena) Acquire(ctx context.Context, refs ...events.ObjectRef) (func(), error) {
	ordered := canonical(refs)

	held := make([]events.ObjectRef, 0, len(ordered))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			a.unlock(held[i])
		}
	}

	for _, ref := range ordered {
		if err := a.lock(ctx, ref); err != nil {
			release()
			return nil, err
		}
		held = append(held, ref)
	}
	return release, nil
}

// Len reports how many keys currently have holders or waiters.
func (a *LockArena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.locks)
}

func (a *LockArena) lock(ctx context.Context, ref events.ObjectRef) error {
	a.mu.Lock()
	l, ok := a.locks[ref]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		a.locks[ref] = l
	}
	l.refs++
	a.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		a.unref(ref, l)
		return ctx.Err()
	}
}

func (a *LockArena) unlock(ref events.ObjectRef) {
	a.mu.Lock()
	l := a.locks[ref]
	a.mu.Unlock()

	<-l.ch
	a.unref(ref, l)
}

func (a *LockArena) unref(ref events.ObjectRef, l *keyLock) {
	a.mu.Lock()
	defer a.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(a.locks, ref)
	}
}

func canonical(refs []events.ObjectRef) []events.ObjectRef {
	out := make([]events.ObjectRef, 0, len(refs))
	seen := make(map[events.ObjectRef]struct{}, len(refs))
	for _, ref := range refs {
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bucket != out[j].Bucket {
			return out[i].Bucket < out[j].Bucket
		}
		return out[i].Key < out[j].Key
	})
	return out
}
