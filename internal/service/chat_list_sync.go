package service

import (
	"context"
	"sync"

	"Forumus/internal/db"
	"Forumus/internal/feed"
	"Forumus/internal/model"
	"Forumus/internal/repo"

	"go.uber.org/zap"
)

// ListFilter selects which threads the chat list shows.
type ListFilter int

const (
	FilterAll ListFilter = iota
	FilterUnread
)

// ChatListSync composes a thread change feed with profile enrichment
// into a live, ordered chat list per user.
type ChatListSync struct {
	store    db.Store
	threads  repo.ThreadRepository
	enricher *ProfileEnricher
	logger   *zap.Logger
}

func NewChatListSync(store db.Store, threads repo.ThreadRepository, enricher *ProfileEnricher, logger *zap.Logger) *ChatListSync {
	return &ChatListSync{store: store, threads: threads, enricher: enricher, logger: logger}
}

// ChatListStream is one live Observe subscription.
type ChatListStream struct {
	updates chan []model.EnrichedThread
	feed    *feed.Feed

	mu          sync.Mutex
	lastEmitted uint64

	done     chan struct{}
	doneOnce sync.Once
	err      error
}

// Updates delivers enriched chat lists, newest emission wins. Never
// closed; select against Done.
func (s *ChatListStream) Updates() <-chan []model.EnrichedThread {
	return s.updates
}

// Done is closed on cancellation or terminal feed error.
func (s *ChatListStream) Done() <-chan struct{} {
	return s.done
}

// Err returns the terminal error, valid once Done is closed.
func (s *ChatListStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancel stops new emissions and releases the underlying watch.
// Idempotent. Enrichment already in flight runs to completion and is
// discarded; correctness only needs its result dropped, not its work
// interrupted.
func (s *ChatListStream) Cancel() {
	s.feed.Cancel()
	s.finish(nil)
}

func (s *ChatListStream) finish(err error) {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

// emit publishes a result for generation gen unless a newer generation
// already made it out. This is the last-snapshot-wins guarantee: the
// consumer never sees output older than output it has already seen.
// The lock covers both the generation check and the buffer swap; an
// older emission admitted by the check alone could otherwise drain a
// newer list out of the buffer and replace it with its own.
func (s *ChatListStream) emit(gen uint64, list []model.EnrichedThread) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen <= s.lastEmitted {
		return
	}
	s.lastEmitted = gen

	// Every channel op below is non-blocking, so the lock is held only
	// briefly and never across a wait.
	for {
		select {
		case <-s.done:
			return
		default:
		}
		select {
		case s.updates <- list:
			return
		default:
		}
		select {
		case <-s.updates:
		default:
		}
	}
}

// Observe starts a live chat list for forUser. An empty forUser fails
// immediately with ErrUnauthenticated: "no chats" and "cannot determine
// chats" are different answers.
func (s *ChatListSync) Observe(ctx context.Context, forUser string, filter ListFilter) (*ChatListStream, error) {
	if forUser == "" {
		return nil, ErrUnauthenticated
	}

	q := s.threads.ListQuery(forUser, filter == FilterUnread)
	f, err := feed.Open(ctx, s.store, q)
	if err != nil {
		return nil, err
	}

	stream := &ChatListStream{
		updates: make(chan []model.EnrichedThread, 1),
		feed:    f,
		done:    make(chan struct{}),
	}

	go s.pump(ctx, stream, forUser, filter)

	return stream, nil
}

func (s *ChatListSync) pump(ctx context.Context, stream *ChatListStream, forUser string, filter ListFilter) {
	var gen uint64
	var inFlight sync.WaitGroup

	// Enrichment is asynchronous so a newer snapshot can start before an
	// older one's lookups settle; emit arbitrates.
	enrich := func(gen uint64, snap db.Snapshot) {
		inFlight.Add(1)
		go func() {
			defer inFlight.Done()
			visible := s.decodeVisible(snap, forUser, filter)
			stream.emit(gen, s.enricher.Enrich(ctx, visible, forUser))
		}()
	}

	for {
		select {
		case <-stream.done:
			return
		case <-stream.feed.Done():
			// A snapshot that arrived just ahead of termination may still
			// be buffered. The consumer is owed that last consistent
			// list, so process it and let in-flight enrichment settle
			// before Done closes.
			select {
			case snap := <-stream.feed.Snapshots():
				gen++
				enrich(gen, snap)
			default:
			}
			inFlight.Wait()
			stream.finish(stream.feed.Err())
			return
		case snap := <-stream.feed.Snapshots():
			gen++
			enrich(gen, snap)
		}
	}
}

// decodeVisible decodes the snapshot and drops rows hidden for the
// user. Undecodable records are logged and skipped.
func (s *ChatListSync) decodeVisible(snap db.Snapshot, forUser string, filter ListFilter) []model.ChatThread {
	visible := make([]model.ChatThread, 0, len(snap))
	for _, doc := range snap {
		t, err := model.DecodeThread(doc.ID, doc.Data)
		if err != nil {
			s.logger.Warn("skipping undecodable thread", zap.String("doc_id", doc.ID), zap.Error(err))
			continue
		}
		if t.HiddenFor(forUser) {
			continue
		}
		if filter == FilterUnread && t.UnreadFor(forUser) == 0 {
			continue
		}
		visible = append(visible, t)
	}
	return visible
}
