package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"Forumus/internal/db"
	"Forumus/internal/model"

	"go.mongodb.org/mongo-driver/bson"
)

// fakeStore keeps canned query results per collection and lets tests
// drive registered listeners by hand.
type fakeStore struct {
	mu        sync.Mutex
	results   map[string]db.Snapshot
	queryErr  error
	listeners map[string][]db.ListenFunc
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		results:   map[string]db.Snapshot{},
		listeners: map[string][]db.ListenFunc{},
	}
}

func (s *fakeStore) Listen(_ context.Context, q *db.Query, fn db.ListenFunc) (db.CancelFunc, error) {
	s.mu.Lock()
	s.listeners[q.Collection()] = append(s.listeners[q.Collection()], fn)
	initial, ok := s.results[q.Collection()]
	s.mu.Unlock()
	if ok {
		fn(initial, nil)
	}
	return func() {}, nil
}

func (s *fakeStore) emit(collection string, snap db.Snapshot) {
	s.mu.Lock()
	fns := append([]db.ListenFunc(nil), s.listeners[collection]...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(snap, nil)
	}
}

func (s *fakeStore) fail(collection string, err error) {
	s.mu.Lock()
	fns := append([]db.ListenFunc(nil), s.listeners[collection]...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(nil, err)
	}
}

func (s *fakeStore) RunQuery(_ context.Context, q *db.Query) (db.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.results[q.Collection()], nil
}

func (s *fakeStore) WriteFields(context.Context, db.DocRef, map[string]any) error { return nil }
func (s *fakeStore) WriteDocument(context.Context, db.DocRef, any) error          { return nil }
func (s *fakeStore) CreateIfAbsent(context.Context, db.DocRef, any) (bool, error) {
	return false, nil
}
func (s *fakeStore) TransactionalIncrement(context.Context, db.DocRef, string, int64) error {
	return nil
}

// fakeDirectory resolves from a fixed map, with optional per-user
// delays and errors.
type fakeDirectory struct {
	mu       sync.Mutex
	profiles map[string]model.Profile
	errs     map[string]error
	delays   map[string]time.Duration
	blocks   map[string]chan struct{}
	started  chan string
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		profiles: map[string]model.Profile{},
		errs:     map[string]error{},
		delays:   map[string]time.Duration{},
		blocks:   map[string]chan struct{}{},
	}
}

func (d *fakeDirectory) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	d.mu.Lock()
	p, okP := d.profiles[userID]
	err := d.errs[userID]
	delay := d.delays[userID]
	block := d.blocks[userID]
	started := d.started
	d.mu.Unlock()

	if started != nil {
		started <- userID
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !okP {
		return nil, context.Canceled
	}
	return &p, nil
}

func rawDoc(t *testing.T, id string, v any) db.RawDoc {
	t.Helper()
	data, err := bson.Marshal(v)
	if err != nil {
		t.Fatalf("marshal fixture %s: %v", id, err)
	}
	return db.RawDoc{ID: id, Data: bson.Raw(data)}
}

func threadFixture(t *testing.T, id string, participants []string, unread map[string]int, deleted map[string]bool, at time.Time) db.RawDoc {
	t.Helper()
	return rawDoc(t, id, model.ChatThread{
		ID:             id,
		ParticipantIDs: participants,
		LastActivityAt: at,
		UnreadCounts:   unread,
		DeletedFor:     deleted,
		CreatedAt:      at,
	})
}
