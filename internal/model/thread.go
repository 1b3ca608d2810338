package model

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// ChatThread represents a two-party conversation document. Participants
// are fixed at creation; everything else is mutated through field-level
// updates only, never full replacement.
type ChatThread struct {
	ID                 string          `json:"id" bson:"_id"`
	ParticipantIDs     []string        `json:"participantIds" bson:"participant_ids"`
	LastMessagePreview string          `json:"lastMessagePreview" bson:"last_message_preview"`
	LastActivityAt     time.Time       `json:"lastActivityAt" bson:"last_activity_at"`
	UnreadCounts       map[string]int  `json:"unreadCounts" bson:"unread_counts"`
	DeletedFor         map[string]bool `json:"deletedFor" bson:"deleted_for"`
	CreatedAt          time.Time       `json:"createdAt" bson:"created_at"`
}

// PairKey derives the canonical thread id for a pair of users. Both
// orderings map to the same key, which is what makes get-or-create
// idempotent under concurrent first contact.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("%s:%s", a, b)
}

// Counterpart returns the other participant's id, or uid itself for a
// self-conversation.
func (t *ChatThread) Counterpart(uid string) string {
	for _, p := range t.ParticipantIDs {
		if p != uid {
			return p
		}
	}
	return uid
}

// HiddenFor reports whether the thread is soft-deleted for uid.
func (t *ChatThread) HiddenFor(uid string) bool {
	return t.DeletedFor[uid]
}

// UnreadFor returns uid's unread counter, zero when absent.
func (t *ChatThread) UnreadFor(uid string) int {
	return t.UnreadCounts[uid]
}

// DecodeThread maps a raw store document onto a ChatThread, filling
// safe defaults for missing fields. A decode error marks the record as
// skippable; it is never fatal for the snapshot that carried it.
func DecodeThread(id string, data bson.Raw) (ChatThread, error) {
	var t ChatThread
	if err := bson.Unmarshal(data, &t); err != nil {
		return ChatThread{}, fmt.Errorf("decode thread %s: %w", id, err)
	}
	if t.ID == "" {
		t.ID = id
	}
	if t.UnreadCounts == nil {
		t.UnreadCounts = map[string]int{}
	}
	if t.DeletedFor == nil {
		t.DeletedFor = map[string]bool{}
	}
	if strings.TrimSpace(t.ID) == "" || len(t.ParticipantIDs) == 0 {
		return ChatThread{}, fmt.Errorf("decode thread %s: missing identity fields", id)
	}
	return t, nil
}
