package service

import (
	"context"
	"sort"
	"sync"

	"Forumus/internal/db"
	"Forumus/internal/feed"
	"Forumus/internal/model"
	"Forumus/internal/repo"

	"go.uber.org/zap"
)

// MessageTailSync keeps the most recent messages of one thread live.
// Every snapshot replaces the previous list wholesale; edits and
// soft-deletes flow through exactly like inserts.
type MessageTailSync struct {
	store    db.Store
	messages repo.MessageRepository
	logger   *zap.Logger
}

func NewMessageTailSync(store db.Store, messages repo.MessageRepository, logger *zap.Logger) *MessageTailSync {
	return &MessageTailSync{store: store, messages: messages, logger: logger}
}

// TailStream is one live tail subscription.
type TailStream struct {
	updates chan []model.Message
	feed    *feed.Feed

	mu       sync.Mutex
	err      error
	done     chan struct{}
	doneOnce sync.Once
}

// Updates delivers the current tail, ascending by (createdAt, id).
func (s *TailStream) Updates() <-chan []model.Message {
	return s.updates
}

func (s *TailStream) Done() <-chan struct{} {
	return s.done
}

func (s *TailStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancel stops emissions and releases the watch. Idempotent.
func (s *TailStream) Cancel() {
	s.feed.Cancel()
	s.finish(nil)
}

func (s *TailStream) finish(err error) {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *TailStream) push(msgs []model.Message) {
	for {
		select {
		case <-s.done:
			return
		default:
		}
		select {
		case s.updates <- msgs:
			return
		default:
		}
		select {
		case <-s.updates:
		default:
		}
	}
}

// Observe starts a live view of the newest tailSize messages in a
// thread.
func (s *MessageTailSync) Observe(ctx context.Context, threadID string, tailSize int64) (*TailStream, error) {
	if threadID == "" {
		return nil, ErrNotFound
	}

	f, err := feed.Open(ctx, s.store, s.messages.TailQuery(threadID, tailSize))
	if err != nil {
		return nil, err
	}

	stream := &TailStream{
		updates: make(chan []model.Message, 1),
		feed:    f,
		done:    make(chan struct{}),
	}

	go func() {
		for {
			select {
			case <-stream.done:
				return
			case <-f.Done():
				stream.finish(f.Err())
				return
			case snap := <-f.Snapshots():
				stream.push(SortMessages(repo.DecodeMessages(snap, s.logger)))
			}
		}
	}()

	return stream, nil
}

// SortMessages orders msgs ascending by (createdAt, id) in place and
// returns the slice.
func SortMessages(msgs []model.Message) []model.Message {
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Before(msgs[j]) })
	return msgs
}
