package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"Forumus/internal/db"
	"Forumus/internal/model"
	"Forumus/internal/repo"
	"Forumus/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newChatListSync(store *fakeStore, dir *fakeDirectory) *service.ChatListSync {
	logger := zap.NewNop()
	threads := repo.NewThreadRepository(store, logger)
	enricher := service.NewProfileEnricher(dir, time.Second, logger)
	return service.NewChatListSync(store, threads, enricher, logger)
}

func recvList(t *testing.T, stream *service.ChatListStream) []model.EnrichedThread {
	t.Helper()
	select {
	case list := <-stream.Updates():
		return list
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for chat list emission")
		return nil
	}
}

func TestObserveRequiresUser(t *testing.T) {
	sync := newChatListSync(newFakeStore(), newFakeDirectory())

	_, err := sync.Observe(context.Background(), "", service.FilterAll)

	assert.ErrorIs(t, err, service.ErrUnauthenticated)
}

func TestObserveHidesSoftDeletedThreads(t *testing.T) {
	store := newFakeStore()
	dir := newFakeDirectory()
	dir.profiles["b"] = model.Profile{UserID: "b", DisplayName: "Bee"}
	dir.profiles["c"] = model.Profile{UserID: "c", DisplayName: "Cee"}

	now := time.Now()
	store.results[repo.ThreadsCollection] = db.Snapshot{
		threadFixture(t, "a:b", []string{"a", "b"}, map[string]int{"a": 5}, nil, now),
		threadFixture(t, "a:c", []string{"a", "c"}, map[string]int{"a": 1}, map[string]bool{"a": true}, now.Add(-time.Minute)),
	}

	stream, err := newChatListSync(store, dir).Observe(context.Background(), "a", service.FilterAll)
	require.NoError(t, err)
	defer stream.Cancel()

	list := recvList(t, stream)
	require.Len(t, list, 1, "a thread hidden for the user must never appear, unread or not")
	assert.Equal(t, "a:b", list[0].Thread.ID)
	assert.Equal(t, "Bee", list[0].Counterpart.DisplayName)
}

func TestObservePreservesDescendingOrder(t *testing.T) {
	store := newFakeStore()
	dir := newFakeDirectory()
	for _, p := range []string{"b", "c", "d"} {
		dir.profiles[p] = model.Profile{UserID: p, DisplayName: p}
	}

	now := time.Now()
	// Store order is the query's order: last_activity_at descending.
	store.results[repo.ThreadsCollection] = db.Snapshot{
		threadFixture(t, "a:d", []string{"a", "d"}, nil, nil, now),
		threadFixture(t, "a:b", []string{"a", "b"}, nil, nil, now.Add(-time.Hour)),
		threadFixture(t, "a:c", []string{"a", "c"}, nil, nil, now.Add(-2*time.Hour)),
	}

	stream, err := newChatListSync(store, dir).Observe(context.Background(), "a", service.FilterAll)
	require.NoError(t, err)
	defer stream.Cancel()

	list := recvList(t, stream)
	require.Len(t, list, 3)
	for i := 1; i < len(list); i++ {
		assert.False(t,
			list[i-1].Thread.LastActivityAt.Before(list[i].Thread.LastActivityAt),
			"chat list must stay sorted by lastActivityAt descending",
		)
	}
}

func TestObserveUnreadFilter(t *testing.T) {
	store := newFakeStore()
	dir := newFakeDirectory()
	dir.profiles["b"] = model.Profile{UserID: "b", DisplayName: "Bee"}
	dir.profiles["c"] = model.Profile{UserID: "c", DisplayName: "Cee"}

	now := time.Now()
	store.results[repo.ThreadsCollection] = db.Snapshot{
		threadFixture(t, "a:b", []string{"a", "b"}, map[string]int{"a": 2}, nil, now),
		threadFixture(t, "a:c", []string{"a", "c"}, map[string]int{"a": 0}, nil, now.Add(-time.Minute)),
	}

	stream, err := newChatListSync(store, dir).Observe(context.Background(), "a", service.FilterUnread)
	require.NoError(t, err)
	defer stream.Cancel()

	list := recvList(t, stream)
	require.Len(t, list, 1)
	assert.Equal(t, "a:b", list[0].Thread.ID)
	assert.True(t, list[0].IsUnread)
}

func TestLastSnapshotWins(t *testing.T) {
	store := newFakeStore()
	dir := newFakeDirectory()
	dir.profiles["slow"] = model.Profile{UserID: "slow", DisplayName: "Slowpoke"}
	dir.profiles["fast"] = model.Profile{UserID: "fast", DisplayName: "Fast"}

	release := make(chan struct{})
	dir.blocks["slow"] = release
	started := make(chan string, 4)
	dir.started = started

	now := time.Now()
	stream, err := newChatListSync(store, dir).Observe(context.Background(), "a", service.FilterAll)
	require.NoError(t, err)
	defer stream.Cancel()

	// Snapshot A's enrichment blocks on the slow counterpart.
	store.emit(repo.ThreadsCollection, db.Snapshot{
		threadFixture(t, "a:slow", []string{"a", "slow"}, nil, nil, now),
	})
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("snapshot A enrichment never started")
	}

	// Snapshot B arrives and completes while A is still in flight.
	store.emit(repo.ThreadsCollection, db.Snapshot{
		threadFixture(t, "a:fast", []string{"a", "fast"}, nil, nil, now),
	})
	<-started

	list := recvList(t, stream)
	require.Len(t, list, 1)
	assert.Equal(t, "a:fast", list[0].Thread.ID)

	// A finishes late; its result must be discarded, not emitted.
	close(release)
	select {
	case stale := <-stream.Updates():
		t.Fatalf("superseded snapshot leaked through: %+v", stale)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLastSnapshotWinsUnderSimultaneousRelease(t *testing.T) {
	// Both snapshots' enrichments finish in the same instant, so the
	// older one's emission races the newer one's. Whatever the
	// interleaving, the last list the consumer holds must be the newer
	// snapshot's.
	now := time.Now()
	for i := 0; i < 200; i++ {
		store := newFakeStore()
		dir := newFakeDirectory()
		dir.profiles["slow1"] = model.Profile{UserID: "slow1", DisplayName: "One"}
		dir.profiles["slow2"] = model.Profile{UserID: "slow2", DisplayName: "Two"}

		release := make(chan struct{})
		dir.blocks["slow1"] = release
		dir.blocks["slow2"] = release
		started := make(chan string, 2)
		dir.started = started

		stream, err := newChatListSync(store, dir).Observe(context.Background(), "a", service.FilterAll)
		require.NoError(t, err)

		store.emit(repo.ThreadsCollection, db.Snapshot{
			threadFixture(t, "a:slow1", []string{"a", "slow1"}, nil, nil, now),
		})
		<-started
		store.emit(repo.ThreadsCollection, db.Snapshot{
			threadFixture(t, "a:slow2", []string{"a", "slow2"}, nil, nil, now),
		})
		<-started

		close(release)

		final := recvList(t, stream)
		for settled := false; !settled; {
			select {
			case list := <-stream.Updates():
				final = list
			case <-time.After(10 * time.Millisecond):
				settled = true
			}
		}

		require.Len(t, final, 1)
		require.Equal(t, "a:slow2", final[0].Thread.ID,
			"iteration %d: superseded snapshot observed as the final list", i)
		stream.Cancel()
	}
}

func TestTerminalErrorDeliversFinalSnapshot(t *testing.T) {
	store := newFakeStore()
	dir := newFakeDirectory()
	dir.profiles["b"] = model.Profile{UserID: "b", DisplayName: "Bee"}

	stream, err := newChatListSync(store, dir).Observe(context.Background(), "a", service.FilterAll)
	require.NoError(t, err)

	// The last good snapshot lands immediately before the watch dies.
	store.emit(repo.ThreadsCollection, db.Snapshot{
		threadFixture(t, "a:b", []string{"a", "b"}, nil, nil, time.Now()),
	})
	wantErr := errors.New("permission revoked")
	store.fail(repo.ThreadsCollection, wantErr)

	list := recvList(t, stream)
	require.Len(t, list, 1)
	assert.Equal(t, "a:b", list[0].Thread.ID)

	select {
	case <-stream.Done():
	case <-time.After(time.Second):
		t.Fatal("stream must terminate after delivering the final list")
	}
	assert.ErrorIs(t, stream.Err(), wantErr)
}

func TestStreamEndsOnTerminalFeedError(t *testing.T) {
	store := newFakeStore()
	stream, err := newChatListSync(store, newFakeDirectory()).Observe(context.Background(), "a", service.FilterAll)
	require.NoError(t, err)

	wantErr := errors.New("permission revoked")
	store.fail(repo.ThreadsCollection, wantErr)

	select {
	case <-stream.Done():
	case <-time.After(time.Second):
		t.Fatal("stream must terminate on feed error")
	}
	assert.ErrorIs(t, stream.Err(), wantErr)
}
