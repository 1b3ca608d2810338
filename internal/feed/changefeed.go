// Package feed bridges the store's register/unregister listener API
// into cancellable pull-based snapshot streams. This is the only place
// that bridging lives; everything downstream consumes channels.
package feed

import (
	"context"
	"sync"

	"Forumus/internal/db"
)

// Feed is a live subscription to one query. Snapshots arrive in store
// emission order through a latest-wins buffer of size one: a consumer
// slower than the store sees collapsed snapshots, but never a stale one
// queued behind a newer one.
type Feed struct {
	ch   chan db.Snapshot
	stop db.CancelFunc

	mu       sync.Mutex
	err      error
	done     chan struct{}
	doneOnce sync.Once
	stopOnce sync.Once
}

// Open subscribes to q and starts delivering snapshots, beginning with
// the query's current result set.
func Open(ctx context.Context, store db.Store, q *db.Query) (*Feed, error) {
	f := &Feed{
		ch:   make(chan db.Snapshot, 1),
		done: make(chan struct{}),
	}
	stop, err := store.Listen(ctx, q, f.deliver)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.stop = stop
	f.mu.Unlock()

	// The listener may have already terminated while registration was
	// still in flight; tear the watch down now in that case.
	select {
	case <-f.done:
		f.stopOnce.Do(stop)
	default:
	}
	return f, nil
}

// Snapshots is the stream of query result sets. The channel is never
// closed; select against Done to observe termination.
func (f *Feed) Snapshots() <-chan db.Snapshot {
	return f.ch
}

// Done is closed when the feed terminates, by cancellation or by a
// terminal store error.
func (f *Feed) Done() <-chan struct{} {
	return f.done
}

// Err returns the terminal error, nil after a plain cancel. Valid once
// Done is closed.
func (f *Feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Cancel tears down the underlying watch. Idempotent; a second call is
// a no-op.
func (f *Feed) Cancel() {
	f.stopOnce.Do(f.stop)
	f.finish(nil)
}

func (f *Feed) deliver(snap db.Snapshot, err error) {
	if err != nil {
		// Terminal: no retry here, the consumer owns retry policy.
		f.mu.Lock()
		stop := f.stop
		f.mu.Unlock()
		if stop != nil {
			f.stopOnce.Do(stop)
		}
		f.finish(err)
		return
	}
	f.push(snap)
}

// push publishes a snapshot with latest-wins semantics: when the buffer
// already holds an unconsumed snapshot, that one is dropped in favour
// of the newer one.
func (f *Feed) push(snap db.Snapshot) {
	for {
		select {
		case <-f.done:
			return
		default:
		}
		select {
		case f.ch <- snap:
			return
		default:
		}
		select {
		case <-f.ch:
		default:
		}
	}
}

func (f *Feed) finish(err error) {
	f.doneOnce.Do(func() {
		f.mu.Lock()
		f.err = err
		f.mu.Unlock()
		close(f.done)
	})
}
