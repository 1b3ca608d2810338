// Package directory resolves user ids to display profiles.
package directory

import (
	"context"
	"errors"
	"fmt"

	"Forumus/internal/db"
	"Forumus/internal/model"

	"go.uber.org/zap"
)

var ErrProfileNotFound = errors.New("profile not found")

const UsersCollection = "users"

// Directory is the profile lookup collaborator.
type Directory interface {
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
}

type storeDirectory struct {
	store  db.Store
	logger *zap.Logger
}

// NewStoreDirectory resolves profiles from the users collection of the
// same document store the sync core runs against.
func NewStoreDirectory(store db.Store, logger *zap.Logger) Directory {
	return &storeDirectory{store: store, logger: logger}
}

func (d *storeDirectory) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	if userID == "" {
		return nil, ErrProfileNotFound
	}

	q := db.NewQuery(UsersCollection).Eq("user_id", userID).Limit(1)
	snap, err := d.store.RunQuery(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("profile lookup %s: %w", userID, err)
	}
	if len(snap) == 0 {
		return nil, ErrProfileNotFound
	}

	p, err := model.DecodeProfile(snap[0].ID, snap[0].Data)
	if err != nil {
		d.logger.Warn("undecodable profile", zap.String("user_id", userID), zap.Error(err))
		return nil, ErrProfileNotFound
	}
	return &p, nil
}
