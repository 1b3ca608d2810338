package service

import (
	"context"
	"sync"
	"time"

	"Forumus/internal/directory"
	"Forumus/internal/model"

	"go.uber.org/zap"
)

const defaultLookupTimeout = 3 * time.Second

// ProfileEnricher resolves counterpart profiles for a batch of threads.
// Lookups fan out concurrently with a per-lookup timeout; a failed or
// slow lookup degrades that one row to a placeholder identity instead
// of failing the batch.
type ProfileEnricher struct {
	directory     directory.Directory
	lookupTimeout time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

func NewProfileEnricher(dir directory.Directory, lookupTimeout time.Duration, logger *zap.Logger) *ProfileEnricher {
	if lookupTimeout <= 0 {
		lookupTimeout = defaultLookupTimeout
	}
	return &ProfileEnricher{
		directory:     dir,
		lookupTimeout: lookupTimeout,
		logger:        logger,
		now:           time.Now,
	}
}

// Enrich returns one EnrichedThread per input thread, in input order.
// It blocks until every lookup has settled, success or fallback.
func (e *ProfileEnricher) Enrich(ctx context.Context, threads []model.ChatThread, forUser string) []model.EnrichedThread {
	out := make([]model.EnrichedThread, len(threads))
	now := e.now()

	var wg sync.WaitGroup
	for i, t := range threads {
		wg.Add(1)
		go func(i int, t model.ChatThread) {
			defer wg.Done()
			out[i] = e.enrichOne(ctx, t, forUser, now)
		}(i, t)
	}
	wg.Wait()

	return out
}

func (e *ProfileEnricher) enrichOne(ctx context.Context, t model.ChatThread, forUser string, now time.Time) model.EnrichedThread {
	row := model.EnrichedThread{
		Thread:   t,
		IsUnread: t.UnreadFor(forUser) > 0,
		Age:      model.BucketAge(now, t.LastActivityAt),
	}

	counterpart := t.Counterpart(forUser)
	if counterpart == forUser {
		row.IsSelf = true
		row.Counterpart = model.Profile{UserID: forUser, DisplayName: "self"}
		return row
	}

	lctx, cancel := context.WithTimeout(ctx, e.lookupTimeout)
	defer cancel()

	p, err := e.directory.GetProfile(lctx, counterpart)
	if err != nil {
		e.logger.Warn("profile lookup fell back to placeholder",
			zap.String("thread_id", t.ID),
			zap.String("counterpart", counterpart),
			zap.Error(err),
		)
		row.Counterpart = model.PlaceholderProfile(counterpart)
		return row
	}
	row.Counterpart = *p
	return row
}
