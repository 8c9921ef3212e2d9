package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/user-avatar-service/internal/apperror"
	"github.com/sakif/user-avatar-service/internal/model"
	"github.com/sakif/user-avatar-service/internal/repository"
)

// compile-time check that *DB implements repository.AvatarRepository
var _ repository.AvatarRepository = (*DB)(nil)

// FindByUserID loads the avatar record for userID.
// Returns apperror.ErrNotFound if the user has no cached avatar.
func (db *DB) FindByUserID(ctx context.Context, userID string) (*model.AvatarRecord, error) {
	var rec model.AvatarRecord

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, encrypted_avatar, created_at, updated_at
		 FROM avatars WHERE user_id = ?`,
		userID,
	).Scan(
		&rec.ID,
		&rec.UserID,
		&rec.EncryptedAvatar,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("avatar", userID)
		}
		return nil, fmt.Errorf("sqlite: getting avatar for user %s: %w", userID, err)
	}

	return &rec, nil
}

// Save upserts the avatar for rec.UserID.
//
// ON CONFLICT(user_id) keeps the original id and created_at and overwrites
// the ciphertext, so two concurrent cache fills end with the later one.
// Afterwards rec carries the stored id and timestamps.
func (db *DB) Save(ctx context.Context, rec *model.AvatarRecord) error {
	now := time.Now().UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO avatars (id, user_id, encrypted_avatar, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		     encrypted_avatar = excluded.encrypted_avatar,
		     updated_at       = excluded.updated_at`,
		xid.New().String(),
		rec.UserID,
		rec.EncryptedAvatar,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving avatar for user %s: %w", rec.UserID, err)
	}

	err = db.conn.QueryRowContext(ctx,
		`SELECT id, created_at, updated_at FROM avatars WHERE user_id = ?`,
		rec.UserID,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: reading saved avatar for user %s: %w", rec.UserID, err)
	}

	return nil
}

// DeleteByUserID removes the avatar record and reports the number of rows deleted.
func (db *DB) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM avatars WHERE user_id = ?`, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting avatar for user %s: %w", userID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking delete result: %w", err)
	}
	return n, nil
}

// Close closes the connection pool. The context is unused; it exists to
// satisfy repository.AvatarRepository.
func (db *DB) Close(_ context.Context) error {
	return db.conn.Close()
}
