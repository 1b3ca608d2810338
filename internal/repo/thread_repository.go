package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"Forumus/internal/db"
	"Forumus/internal/model"

	"go.uber.org/zap"
)

var (
	ErrThreadNotFound  = errors.New("thread not found")
	ErrInvalidThreadID = errors.New("invalid thread id: cannot be empty")
	ErrInvalidUserID   = errors.New("invalid user id: cannot be empty")
)

const (
	ThreadsCollection = "threads"

	defaultWriteTimeout = 5 * time.Second
	defaultReadTimeout  = 10 * time.Second
)

type threadRepository struct {
	store  db.Store
	logger *zap.Logger
}

type ThreadRepository interface {
	// GetOrCreate finds the thread between two users or creates it.
	// Idempotent: concurrent first contact yields exactly one thread.
	GetOrCreate(ctx context.Context, a, b string) (*model.ChatThread, error)
	Get(ctx context.Context, threadID string) (*model.ChatThread, error)
	// MarkRead resets userID's unread counter to zero.
	MarkRead(ctx context.Context, threadID, userID string) error
	// SoftDelete hides the thread for userID only. The thread stays
	// live for the other participant and is never physically removed.
	SoftDelete(ctx context.Context, threadID, userID string) error
	// UpdateAfterSend refreshes the thread summary after a message
	// lands: preview, activity timestamp, and the recipient's
	// soft-delete flag flips back to false. Field-level writes only.
	UpdateAfterSend(ctx context.Context, threadID, recipient, preview string, at time.Time) error
	// IncrementUnread atomically bumps the recipient's unread counter.
	IncrementUnread(ctx context.Context, threadID, recipient string) error
	// ListQuery builds the chat-list query for a user: threads the user
	// participates in, newest activity first, optionally unread-only.
	ListQuery(userID string, unreadOnly bool) *db.Query
}

func NewThreadRepository(store db.Store, logger *zap.Logger) ThreadRepository {
	return &threadRepository{store: store, logger: logger}
}

func (r *threadRepository) GetOrCreate(ctx context.Context, a, b string) (*model.ChatThread, error) {
	if a == "" || b == "" {
		return nil, ErrInvalidUserID
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	id := model.PairKey(a, b)
	participants := []string{a, b}
	if a == b {
		participants = []string{a}
	}
	sort.Strings(participants)

	now := time.Now().UTC()
	doc := model.ChatThread{
		ID:             id,
		ParticipantIDs: participants,
		LastActivityAt: now,
		UnreadCounts:   map[string]int{a: 0, b: 0},
		DeletedFor:     map[string]bool{},
		CreatedAt:      now,
	}

	created, err := r.store.CreateIfAbsent(ctx, db.DocRef{Collection: ThreadsCollection, ID: id}, doc)
	if err != nil {
		return nil, fmt.Errorf("get-or-create thread %s: %w", id, err)
	}
	if created {
		r.logger.Info("thread created",
			zap.String("thread_id", id),
			zap.Strings("participants", participants),
		)
		return &doc, nil
	}
	return r.Get(ctx, id)
}

func (r *threadRepository) Get(ctx context.Context, threadID string) (*model.ChatThread, error) {
	if threadID == "" {
		return nil, ErrInvalidThreadID
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	q := db.NewQuery(ThreadsCollection).Eq("_id", threadID).Limit(1)
	snap, err := r.store.RunQuery(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fetch thread %s: %w", threadID, err)
	}
	if len(snap) == 0 {
		return nil, ErrThreadNotFound
	}

	t, err := model.DecodeThread(snap[0].ID, snap[0].Data)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *threadRepository) MarkRead(ctx context.Context, threadID, userID string) error {
	if threadID == "" {
		return ErrInvalidThreadID
	}
	if userID == "" {
		return ErrInvalidUserID
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	err := r.store.WriteFields(ctx,
		db.DocRef{Collection: ThreadsCollection, ID: threadID},
		map[string]any{"unread_counts." + userID: 0},
	)
	if err != nil {
		return fmt.Errorf("mark read %s: %w", threadID, err)
	}
	return nil
}

func (r *threadRepository) SoftDelete(ctx context.Context, threadID, userID string) error {
	if threadID == "" {
		return ErrInvalidThreadID
	}
	if userID == "" {
		return ErrInvalidUserID
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	err := r.store.WriteFields(ctx,
		db.DocRef{Collection: ThreadsCollection, ID: threadID},
		map[string]any{"deleted_for." + userID: true},
	)
	if err != nil {
		return fmt.Errorf("soft delete %s for %s: %w", threadID, userID, err)
	}
	r.logger.Debug("thread hidden",
		zap.String("thread_id", threadID),
		zap.String("user_id", userID),
	)
	return nil
}

func (r *threadRepository) UpdateAfterSend(ctx context.Context, threadID, recipient, preview string, at time.Time) error {
	if threadID == "" {
		return ErrInvalidThreadID
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	err := r.store.WriteFields(ctx,
		db.DocRef{Collection: ThreadsCollection, ID: threadID},
		map[string]any{
			"last_message_preview":   preview,
			"last_activity_at":       at,
			"deleted_for." + recipient: false,
		},
	)
	if err != nil {
		return fmt.Errorf("update thread %s after send: %w", threadID, err)
	}
	return nil
}

func (r *threadRepository) IncrementUnread(ctx context.Context, threadID, recipient string) error {
	if threadID == "" {
		return ErrInvalidThreadID
	}
	if recipient == "" {
		return ErrInvalidUserID
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	err := r.store.TransactionalIncrement(ctx,
		db.DocRef{Collection: ThreadsCollection, ID: threadID},
		"unread_counts."+recipient, 1,
	)
	if err != nil {
		return fmt.Errorf("increment unread on %s: %w", threadID, err)
	}
	return nil
}

func (r *threadRepository) ListQuery(userID string, unreadOnly bool) *db.Query {
	q := db.NewQuery(ThreadsCollection).
		ArrayContains("participant_ids", userID).
		OrderBy("last_activity_at", db.Descending)
	if unreadOnly {
		q.Ne("unread_counts."+userID, 0)
	}
	return q
}

func ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
