package mongo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/sakif/user-avatar-service/internal/apperror"
	"github.com/sakif/user-avatar-service/internal/model"
)

func TestDatabaseName(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"mongodb://localhost:27017", "test"},
		{"mongodb://localhost:27017/", "test"},
		{"mongodb://localhost:27017/avatars", "avatars"},
		{"mongodb://user:pw@db1,db2/avatars?replicaSet=rs0", "avatars"},
		{"mongodb+srv://cluster.example.net/prod?retryWrites=true", "prod"},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			assert.Equal(t, tt.want, databaseName(tt.uri))
		})
	}
}

// newTestStore connects to MONGO_TEST_URI and drops the collection afterwards.
// The tests are skipped when no server is configured.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := New(ctx, uri, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = s.coll.Drop(context.Background())
		_ = s.Close(context.Background())
	})
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.FindByUserID(ctx, "12345")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	first := &model.AvatarRecord{UserID: "12345", EncryptedAvatar: "cipher-1"}
	require.NoError(t, s.Save(ctx, first))
	assert.NotEmpty(t, first.ID)

	second := &model.AvatarRecord{UserID: "12345", EncryptedAvatar: "cipher-2"}
	require.NoError(t, s.Save(ctx, second))
	assert.Equal(t, first.ID, second.ID, "upsert keeps the document")
	assert.Equal(t, first.CreatedAt.Unix(), second.CreatedAt.Unix())

	got, err := s.FindByUserID(ctx, "12345")
	require.NoError(t, err)
	assert.Equal(t, "cipher-2", got.EncryptedAvatar)

	n, err := s.DeleteByUserID(ctx, "12345")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.DeleteByUserID(ctx, "12345")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestPrepare_CollapsesDuplicateUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Start from a collection without the unique index, as older deployments have.
	require.NoError(t, s.coll.Drop(ctx))

	old := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := s.coll.InsertMany(ctx, []any{
		avatarDocument{ID: bson.NewObjectID(), UserID: "2", Avatar: "older", CreatedAt: old, UpdatedAt: old},
		avatarDocument{ID: bson.NewObjectID(), UserID: "2", Avatar: "newest", CreatedAt: old, UpdatedAt: old.Add(time.Hour)},
		avatarDocument{ID: bson.NewObjectID(), UserID: "2", Avatar: "oldest", CreatedAt: old, UpdatedAt: old.Add(-time.Hour)},
		avatarDocument{ID: bson.NewObjectID(), UserID: "3", Avatar: "only", CreatedAt: old, UpdatedAt: old},
	})
	require.NoError(t, err)

	require.NoError(t, prepare(ctx, s.coll, slog.New(slog.NewTextHandler(io.Discard, nil))))

	count, err := s.coll.CountDocuments(ctx, bson.D{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	got, err := s.FindByUserID(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, "newest", got.EncryptedAvatar)

	_, err = s.coll.InsertOne(ctx, avatarDocument{UserID: "3", Avatar: "dup"})
	assert.Error(t, err, "the unique index rejects a second document for a user")
}
