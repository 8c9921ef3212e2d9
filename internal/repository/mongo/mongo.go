// Package mongo stores encrypted avatars in a MongoDB collection.
//
// The collection layout (users: userId, avatar, createdAt, updatedAt) is the
// one existing deployments already hold. Older deployments may hold several
// documents for one userId; New keeps the most recently updated one of each
// before building the unique index. Their OpenSSL-envelope ciphertexts are
// read by the codec.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/sakif/user-avatar-service/internal/apperror"
	"github.com/sakif/user-avatar-service/internal/model"
	"github.com/sakif/user-avatar-service/internal/repository"
)

const (
	collectionName  = "users"
	defaultDatabase = "test"
)

var _ repository.AvatarRepository = (*Store)(nil)

type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// avatarDocument is the on-disk shape of a record.
type avatarDocument struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	UserID    string        `bson:"userId"`
	Avatar    string        `bson:"avatar"`
	CreatedAt time.Time     `bson:"createdAt"`
	UpdatedAt time.Time     `bson:"updatedAt"`
}

func (d *avatarDocument) toRecord() *model.AvatarRecord {
	return &model.AvatarRecord{
		ID:              d.ID.Hex(),
		UserID:          d.UserID,
		EncryptedAvatar: d.Avatar,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

// New connects to uri, verifies the primary is reachable and ensures the
// unique index on userId. The database name is taken from the URI path.
func New(ctx context.Context, uri string, logger *slog.Logger) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connecting: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: pinging primary: %w", err)
	}

	coll := client.Database(databaseName(uri)).Collection(collectionName)

	if err := prepare(ctx, coll, logger); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return &Store{client: client, coll: coll}, nil
}

func prepare(ctx context.Context, coll *mongo.Collection, logger *slog.Logger) error {
	removed, err := dedupe(ctx, coll)
	if err != nil {
		return fmt.Errorf("mongo: removing duplicate avatars: %w", err)
	}
	if removed > 0 {
		logger.Warn("removed duplicate avatar documents", slog.Int64("count", removed))
	}

	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("mongo: creating userId index: %w", err)
	}
	return nil
}

// dedupe deletes every document of a userId except the most recently updated
// one and returns how many were deleted.
func dedupe(ctx context.Context, coll *mongo.Collection) (int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "updatedAt", Value: -1}, {Key: "_id", Value: -1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$userId"},
			{Key: "ids", Value: bson.D{{Key: "$push", Value: "$_id"}}},
		}}},
		{{Key: "$match", Value: bson.D{{Key: "ids.1", Value: bson.D{{Key: "$exists", Value: true}}}}}},
	}

	cur, err := coll.Aggregate(ctx, pipeline, options.Aggregate().SetAllowDiskUse(true))
	if err != nil {
		return 0, err
	}
	defer cur.Close(ctx)

	var removed int64
	for cur.Next(ctx) {
		var group struct {
			IDs []bson.ObjectID `bson:"ids"`
		}
		if err := cur.Decode(&group); err != nil {
			return removed, err
		}

		res, err := coll.DeleteMany(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: group.IDs[1:]}}}})
		if err != nil {
			return removed, err
		}
		removed += res.DeletedCount
	}
	return removed, cur.Err()
}

// databaseName returns the path segment of a mongodb URI, or "test" like the
// driver's own default when the URI names no database.
func databaseName(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return defaultDatabase
	}
	name := strings.Trim(u.Path, "/")
	if name == "" {
		return defaultDatabase
	}
	return name
}

func (s *Store) FindByUserID(ctx context.Context, userID string) (*model.AvatarRecord, error) {
	var doc avatarDocument
	err := s.coll.FindOne(ctx, bson.D{{Key: "userId", Value: userID}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("avatar", userID)
		}
		return nil, fmt.Errorf("mongo: finding avatar for user %s: %w", userID, err)
	}
	return doc.toRecord(), nil
}

// Save upserts by userId and copies the stored document back into rec.
func (s *Store) Save(ctx context.Context, rec *model.AvatarRecord) error {
	now := time.Now().UTC()

	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "avatar", Value: rec.EncryptedAvatar},
			{Key: "updatedAt", Value: now},
		}},
		{Key: "$setOnInsert", Value: bson.D{
			{Key: "createdAt", Value: now},
		}},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc avatarDocument
	err := s.coll.FindOneAndUpdate(ctx, bson.D{{Key: "userId", Value: rec.UserID}}, update, opts).Decode(&doc)
	if err != nil {
		return fmt.Errorf("mongo: saving avatar for user %s: %w", rec.UserID, err)
	}

	*rec = *doc.toRecord()
	return nil
}

func (s *Store) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	res, err := s.coll.DeleteOne(ctx, bson.D{{Key: "userId", Value: userID}})
	if err != nil {
		return 0, fmt.Errorf("mongo: deleting avatar for user %s: %w", userID, err)
	}
	return res.DeletedCount, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
