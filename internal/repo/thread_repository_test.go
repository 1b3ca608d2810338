package repo_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"Forumus/internal/db"
	"Forumus/internal/model"
	"Forumus/internal/repo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

type fieldWrite struct {
	ref    db.DocRef
	fields map[string]any
}

type incCall struct {
	ref   db.DocRef
	field string
	delta int64
}

type createCall struct {
	ref db.DocRef
	doc any
}

// recordingStore captures writes and serves canned query results.
type recordingStore struct {
	mu       sync.Mutex
	results  map[string]db.Snapshot
	queryErr error

	fieldWrites []fieldWrite
	incs        []incCall
	creates     []createCall
	docs        []any
	created     bool
	writeErr    error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{results: map[string]db.Snapshot{}}
}

func (s *recordingStore) Listen(_ context.Context, _ *db.Query, _ db.ListenFunc) (db.CancelFunc, error) {
	return func() {}, nil
}

func (s *recordingStore) RunQuery(_ context.Context, q *db.Query) (db.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.results[q.Collection()], nil
}

func (s *recordingStore) WriteFields(_ context.Context, ref db.DocRef, fields map[string]any) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fieldWrites = append(s.fieldWrites, fieldWrite{ref, fields})
	return nil
}

func (s *recordingStore) WriteDocument(_ context.Context, ref db.DocRef, doc any) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, doc)
	return nil
}

func (s *recordingStore) CreateIfAbsent(_ context.Context, ref db.DocRef, doc any) (bool, error) {
	if s.writeErr != nil {
		return false, s.writeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates = append(s.creates, createCall{ref, doc})
	return s.created, nil
}

func (s *recordingStore) TransactionalIncrement(_ context.Context, ref db.DocRef, field string, delta int64) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incs = append(s.incs, incCall{ref, field, delta})
	return nil
}

func fixture(t *testing.T, id string, v any) db.RawDoc {
	t.Helper()
	data, err := bson.Marshal(v)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return db.RawDoc{ID: id, Data: bson.Raw(data)}
}

func TestGetOrCreateCanonicalisesThePair(t *testing.T) {
	store := newRecordingStore()
	store.created = true
	threads := repo.NewThreadRepository(store, zap.NewNop())

	got, err := threads.GetOrCreate(context.Background(), "bob", "alice")
	require.NoError(t, err)

	assert.Equal(t, model.PairKey("alice", "bob"), got.ID)
	assert.Equal(t, []string{"alice", "bob"}, got.ParticipantIDs)
	require.Len(t, store.creates, 1)
	assert.Equal(t, got.ID, store.creates[0].ref.ID)
	assert.Equal(t, repo.ThreadsCollection, store.creates[0].ref.Collection)
}

func TestGetOrCreateBothOrderingsShareOneThread(t *testing.T) {
	assert.Equal(t, model.PairKey("alice", "bob"), model.PairKey("bob", "alice"))
}

func TestGetOrCreateReturnsExistingThread(t *testing.T) {
	store := newRecordingStore()
	store.created = false

	existing := model.ChatThread{
		ID:             model.PairKey("alice", "bob"),
		ParticipantIDs: []string{"alice", "bob"},
		UnreadCounts:   map[string]int{"alice": 4},
		LastActivityAt: time.Now().UTC(),
	}
	store.results[repo.ThreadsCollection] = db.Snapshot{fixture(t, existing.ID, existing)}

	threads := repo.NewThreadRepository(store, zap.NewNop())
	got, err := threads.GetOrCreate(context.Background(), "bob", "alice")
	require.NoError(t, err)

	assert.Equal(t, existing.ID, got.ID)
	assert.Equal(t, 4, got.UnreadFor("alice"), "an existing thread's state must survive get-or-create")
}

func TestMarkReadResetsOnlyCallersCounter(t *testing.T) {
	store := newRecordingStore()
	threads := repo.NewThreadRepository(store, zap.NewNop())

	require.NoError(t, threads.MarkRead(context.Background(), "alice:bob", "alice"))

	require.Len(t, store.fieldWrites, 1)
	assert.Equal(t, map[string]any{"unread_counts.alice": 0}, store.fieldWrites[0].fields)
}

func TestSoftDeleteSetsPerUserTombstone(t *testing.T) {
	store := newRecordingStore()
	threads := repo.NewThreadRepository(store, zap.NewNop())

	require.NoError(t, threads.SoftDelete(context.Background(), "alice:bob", "bob"))

	require.Len(t, store.fieldWrites, 1)
	assert.Equal(t, map[string]any{"deleted_for.bob": true}, store.fieldWrites[0].fields)
}

func TestUpdateAfterSendFlipsRecipientTombstone(t *testing.T) {
	store := newRecordingStore()
	threads := repo.NewThreadRepository(store, zap.NewNop())
	at := time.Now().UTC()

	require.NoError(t, threads.UpdateAfterSend(context.Background(), "alice:bob", "bob", "hey", at))

	require.Len(t, store.fieldWrites, 1)
	assert.Equal(t, map[string]any{
		"last_message_preview": "hey",
		"last_activity_at":     at,
		"deleted_for.bob":      false,
	}, store.fieldWrites[0].fields)
}

func TestIncrementUnreadTargetsRecipientField(t *testing.T) {
	store := newRecordingStore()
	threads := repo.NewThreadRepository(store, zap.NewNop())

	require.NoError(t, threads.IncrementUnread(context.Background(), "alice:bob", "bob"))

	require.Len(t, store.incs, 1)
	assert.Equal(t, "unread_counts.bob", store.incs[0].field)
	assert.Equal(t, int64(1), store.incs[0].delta)
}

func TestGetMissingThread(t *testing.T) {
	store := newRecordingStore()
	threads := repo.NewThreadRepository(store, zap.NewNop())

	_, err := threads.Get(context.Background(), "nope")

	assert.ErrorIs(t, err, repo.ErrThreadNotFound)
}
