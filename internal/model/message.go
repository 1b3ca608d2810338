package model

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MessageKind discriminates live messages from in-place tombstones.
type MessageKind string

const (
	KindText    MessageKind = "TEXT"
	KindDeleted MessageKind = "DELETED"
)

// Message is one chat message. Ids are client-generated ObjectIDs, so
// they embed a creation timestamp and stay sortable by creation order;
// CreatedAt remains the primary sort key with the id as tie-break.
type Message struct {
	ID             primitive.ObjectID `json:"id" bson:"_id"`
	ThreadID       string             `json:"threadId" bson:"thread_id"`
	SenderID       string             `json:"senderId" bson:"sender_id"`
	Content        string             `json:"content" bson:"content"`
	AttachmentURLs []string           `json:"attachmentUrls" bson:"attachment_urls"`
	Kind           MessageKind        `json:"kind" bson:"kind"`
	CreatedAt      time.Time          `json:"createdAt" bson:"created_at"`
}

// Before orders messages by (CreatedAt, ID). Ties on CreatedAt are
// broken by lexical id order so every thread has a total order.
func (m Message) Before(o Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.ID.Hex() < o.ID.Hex()
}

// DecodeMessage maps a raw store document onto a Message. Records that
// fail to decode are skipped by callers, never batch-fatal.
func DecodeMessage(id string, data bson.Raw) (Message, error) {
	var m Message
	if err := bson.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode message %s: %w", id, err)
	}
	if m.ID.IsZero() {
		return Message{}, fmt.Errorf("decode message %s: missing id", id)
	}
	if m.Kind == "" {
		m.Kind = KindText
	}
	return m, nil
}
