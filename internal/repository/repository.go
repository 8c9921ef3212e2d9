// Package repository declares the storage interfaces the service depends on.
// Implementations live in subpackages (mongo, sqlite).
package repository

import (
	"context"

	"github.com/sakif/user-avatar-service/internal/model"
)

// AvatarRepository persists encrypted avatars keyed by user ID.
type AvatarRepository interface {
	// FindByUserID returns apperror.ErrNotFound when no record exists.
	FindByUserID(ctx context.Context, userID string) (*model.AvatarRecord, error)
	// Save creates the record for rec.UserID, or replaces the stored avatar
	// if one exists. Concurrent saves for one user leave the last write.
	Save(ctx context.Context, rec *model.AvatarRecord) error
	// DeleteByUserID reports how many records were removed (0 or 1).
	DeleteByUserID(ctx context.Context, userID string) (int64, error)
	Close(ctx context.Context) error
}
