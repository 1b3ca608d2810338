package service

import (
	"context"
	"time"

	"Forumus/internal/model"
	"Forumus/internal/repo"
)

// PageBoundary is the compound cursor for backward pagination: the
// oldest currently-held message's timestamp and id. The compound form
// matters when several messages share one timestamp; a bare timestamp
// comparison would silently skip the boundary's siblings.
type PageBoundary struct {
	At time.Time `json:"at"`
	ID string    `json:"id"`
}

// BoundaryOf returns the boundary for loading the page before msgs,
// taken from the oldest held message. ok is false for an empty list.
func BoundaryOf(msgs []model.Message) (PageBoundary, bool) {
	if len(msgs) == 0 {
		return PageBoundary{}, false
	}
	oldest := msgs[0]
	for _, m := range msgs[1:] {
		if m.Before(oldest) {
			oldest = m
		}
	}
	return PageBoundary{At: oldest.CreatedAt, ID: oldest.ID.Hex()}, true
}

// PaginationCursor backward-fetches history pages that merge cleanly
// with a live tail window.
type PaginationCursor struct {
	messages repo.MessageRepository
}

func NewPaginationCursor(messages repo.MessageRepository) *PaginationCursor {
	return &PaginationCursor{messages: messages}
}

// LoadOlder returns up to pageSize messages strictly older than the
// boundary, ascending. An empty page signals the start of history;
// callers use emptiness, not errors, to disable "load more".
func (p *PaginationCursor) LoadOlder(ctx context.Context, threadID string, before PageBoundary, pageSize int64) ([]model.Message, error) {
	return p.messages.LoadOlder(ctx, threadID, before.At, before.ID, pageSize)
}

// MergeOlder prepends a history page to the currently-held window. The
// result is strictly ascending by (createdAt, id) with every message id
// appearing once.
func MergeOlder(page, current []model.Message) []model.Message {
	merged := make([]model.Message, 0, len(page)+len(current))
	merged = append(merged, page...)
	merged = append(merged, current...)
	SortMessages(merged)

	out := merged[:0]
	seen := make(map[string]struct{}, len(merged))
	for _, m := range merged {
		id := m.ID.Hex()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, m)
	}
	return out
}
