package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Forumus/internal/db"
	"Forumus/internal/model"

	"go.uber.org/zap"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrInvalidMessage  = errors.New("invalid message: message cannot be nil")
)

const MessagesCollection = "messages"

type messageRepository struct {
	store  db.Store
	logger *zap.Logger
}

type MessageRepository interface {
	// Insert persists a fully-formed message record.
	Insert(ctx context.Context, msg *model.Message) error
	// SoftDelete tombstones a message in place: content cleared,
	// attachments cleared, kind set to DELETED. Only the original
	// sender may do this; anyone else sees ErrMessageNotFound.
	SoftDelete(ctx context.Context, messageID, senderID string) error
	// LoadOlder returns up to pageSize messages strictly older than the
	// (before, beforeID) boundary, ascending. An empty page means the
	// start of history, not an error.
	LoadOlder(ctx context.Context, threadID string, before time.Time, beforeID string, pageSize int64) ([]model.Message, error)
	// TailQuery builds the live query for a thread's most recent
	// tailSize messages.
	TailQuery(threadID string, tailSize int64) *db.Query
}

func NewMessageRepository(store db.Store, logger *zap.Logger) MessageRepository {
	return &messageRepository{store: store, logger: logger}
}

func (r *messageRepository) Insert(ctx context.Context, msg *model.Message) error {
	if msg == nil {
		return ErrInvalidMessage
	}
	if msg.ThreadID == "" {
		return ErrInvalidThreadID
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	ref := db.DocRef{Collection: MessagesCollection, ID: msg.ID.Hex()}
	if err := r.store.WriteDocument(ctx, ref, msg); err != nil {
		return fmt.Errorf("insert message %s: %w", msg.ID.Hex(), err)
	}

	r.logger.Info("message inserted",
		zap.String("message_id", msg.ID.Hex()),
		zap.String("thread_id", msg.ThreadID),
	)
	return nil
}

func (r *messageRepository) SoftDelete(ctx context.Context, messageID, senderID string) error {
	if messageID == "" {
		return ErrMessageNotFound
	}
	if senderID == "" {
		return ErrInvalidUserID
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	// Constraining the lookup by sender makes "not yours" and "does not
	// exist" indistinguishable on purpose.
	q := db.NewQuery(MessagesCollection).
		Eq("_id", messageID).
		Eq("sender_id", senderID).
		Limit(1)
	snap, err := r.store.RunQuery(ctx, q)
	if err != nil {
		return fmt.Errorf("lookup message %s: %w", messageID, err)
	}
	if len(snap) == 0 {
		return ErrMessageNotFound
	}

	err = r.store.WriteFields(ctx,
		db.DocRef{Collection: MessagesCollection, ID: messageID},
		map[string]any{
			"content":         "",
			"attachment_urls": []string{},
			"kind":            string(model.KindDeleted),
		},
	)
	if err != nil {
		return fmt.Errorf("soft delete message %s: %w", messageID, err)
	}
	return nil
}

func (r *messageRepository) LoadOlder(ctx context.Context, threadID string, before time.Time, beforeID string, pageSize int64) ([]model.Message, error) {
	if threadID == "" {
		return nil, ErrInvalidThreadID
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	// Walk backwards from the boundary, newest-first, then flip the
	// page to ascending for the caller's prepend-merge.
	q := db.NewQuery(MessagesCollection).
		Eq("thread_id", threadID).
		OrderBy("created_at", db.Descending).
		StartAfter(before, beforeID).
		Limit(pageSize)

	snap, err := r.store.RunQuery(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("load older messages for %s: %w", threadID, err)
	}

	page := r.decodeAll(snap)
	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}
	return page, nil
}

func (r *messageRepository) TailQuery(threadID string, tailSize int64) *db.Query {
	return db.NewQuery(MessagesCollection).
		Eq("thread_id", threadID).
		OrderBy("created_at", db.Descending).
		Limit(tailSize)
}

func (r *messageRepository) decodeAll(snap db.Snapshot) []model.Message {
	return DecodeMessages(snap, r.logger)
}

// DecodeMessages maps raw records to messages, logging and skipping any
// record that fails to decode.
func DecodeMessages(snap db.Snapshot, logger *zap.Logger) []model.Message {
	msgs := make([]model.Message, 0, len(snap))
	for _, doc := range snap {
		m, err := model.DecodeMessage(doc.ID, doc.Data)
		if err != nil {
			logger.Warn("skipping undecodable message", zap.String("doc_id", doc.ID), zap.Error(err))
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs
}
