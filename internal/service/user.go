// Package service holds the business logic: it decides what happens for each
// user operation and calls the adapters (directory, store, codec, files,
// mail, events) through small interfaces.
//
// Handlers never talk to adapters directly, and adapters never make
// decisions; every branch on an outcome lives here.
package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/sakif/user-avatar-service/internal/apperror"
	"github.com/sakif/user-avatar-service/internal/events"
	"github.com/sakif/user-avatar-service/internal/metrics"
	"github.com/sakif/user-avatar-service/internal/model"
	"github.com/sakif/user-avatar-service/internal/pool"
	"github.com/sakif/user-avatar-service/internal/repository"
)

// Client-facing messages.
const (
	msgAvatarUnavailable = "Unable to retrieve avatar for given user Id"
	msgDeleteFailed      = "Unable to delete the user avatar"
	msgInternal          = "Internal server error"
)

// Directory is the external user directory.
type Directory interface {
	Create(ctx context.Context, req *model.CreateUserRequest) (json.RawMessage, error)
	// FetchByID returns (nil, nil) when the directory has no data for id.
	FetchByID(ctx context.Context, id string) (*model.User, error)
}

type Codec interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// FileCache stores downloaded images on disk.
type FileCache interface {
	Download(ctx context.Context, url, userID string) ([]byte, error)
	Remove(userID string) error
}

type Notifier interface {
	Send(ctx context.Context, to string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, pattern string, payload any) error
}

// Dispatcher runs side effects after the response has been decided.
type Dispatcher interface {
	Enqueue(ctx context.Context, name string, task pool.Task) error
}

type Deps struct {
	Directory  Directory
	Avatars    repository.AvatarRepository
	Codec      Codec
	Files      FileCache
	Notifier   Notifier
	Events     EventPublisher
	Dispatcher Dispatcher
	Metrics    *metrics.Metrics
	Logger     *slog.Logger

	// FillTimeout bounds one cache fill (lookup, download, store).
	// Zero means defaultFillTimeout.
	FillTimeout time.Duration
}

const defaultFillTimeout = 30 * time.Second

type UserService struct {
	dir        Directory
	avatars    repository.AvatarRepository
	codec      Codec
	files      FileCache
	notifier   Notifier
	events     EventPublisher
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	validate   *validator.Validate

	// fills collapses concurrent cache misses for one user into one download.
	fills       singleflight.Group
	fillTimeout time.Duration
}

func NewUserService(d Deps) *UserService {
	s := &UserService{
		dir:        d.Directory,
		avatars:    d.Avatars,
		codec:      d.Codec,
		files:      d.Files,
		notifier:   d.Notifier,
		events:     d.Events,
		dispatcher: d.Dispatcher,
		metrics:    d.Metrics,
		logger:     d.Logger,
		validate:   newValidator(),
	}

	s.fillTimeout = d.FillTimeout
	if s.fillTimeout <= 0 {
		s.fillTimeout = defaultFillTimeout
	}
	return s
}

// Create validates req, forwards it to the directory and returns the
// directory's response body. The confirmation email and the User_Created
// event are queued afterwards; their failures are logged and never change
// the result.
func (s *UserService) Create(ctx context.Context, req *model.CreateUserRequest) (json.RawMessage, error) {
	if err := s.validateCreate(req); err != nil {
		return nil, err
	}

	data, err := s.dir.Create(ctx, req)
	if err != nil {
		s.logger.Warn("directory rejected user",
			slog.String("email", req.EmailAddress()),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating user: %w", err)
	}

	email := req.EmailAddress()
	s.dispatch(ctx, "email", func(ctx context.Context) error {
		return s.notifier.Send(ctx, email)
	})
	s.dispatch(ctx, "event", func(ctx context.Context) error {
		return s.events.Publish(ctx, events.UserCreated, req)
	})

	s.logger.Info("user created", slog.String("email", email))
	return data, nil
}

// dispatch queues a side effect of the given kind and counts failures.
func (s *UserService) dispatch(ctx context.Context, kind string, task pool.Task) {
	counted := func(ctx context.Context) error {
		err := task(ctx)
		if err != nil {
			s.metrics.SideEffectFailures.WithLabelValues(kind).Inc()
		}
		return err
	}

	if err := s.dispatcher.Enqueue(ctx, kind, counted); err != nil {
		s.metrics.SideEffectFailures.WithLabelValues(kind).Inc()
		s.logger.Error("side effect not queued",
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
	}
}

// GetUser returns the directory record, or nil when the directory knows no
// such user but still answered successfully.
func (s *UserService) GetUser(ctx context.Context, id string) (*model.User, error) {
	user, err := s.dir.FetchByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetching user %s: %w", id, err)
	}
	return user, nil
}

// GetAvatar returns the base64 image of userID. A stored avatar is
// decrypted; otherwise the image is downloaded, encrypted and stored first.
// Every failure is reported as the same not-found error.
func (s *UserService) GetAvatar(ctx context.Context, userID string) (string, error) {
	b64, err := s.getAvatar(ctx, userID)
	if err != nil {
		s.logger.Warn("avatar unavailable",
			slog.String("userId", userID),
			slog.String("error", err.Error()),
		)
		return "", apperror.NotFoundMessage(msgAvatarUnavailable, err)
	}
	return b64, nil
}

func (s *UserService) getAvatar(ctx context.Context, userID string) (string, error) {
	rec, err := s.avatars.FindByUserID(ctx, userID)
	switch {
	case err == nil:
		s.metrics.CacheLookups.WithLabelValues("hit").Inc()
		plain, err := s.codec.Decrypt(rec.EncryptedAvatar)
		if err != nil {
			return "", fmt.Errorf("decrypting stored avatar: %w", err)
		}
		return plain, nil
	case !errors.Is(err, apperror.ErrNotFound):
		return "", fmt.Errorf("looking up avatar: %w", err)
	}

	s.metrics.CacheLookups.WithLabelValues("miss").Inc()

	// The fill is shared by every caller waiting on userID, so it must not
	// stop when the caller that started it goes away. Each caller still
	// returns as soon as its own context ends.
	ch := s.fills.DoChan(userID, func() (any, error) {
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fillTimeout)
		defer cancel()
		return s.fillAvatar(fillCtx, userID)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for avatar fill: %w", ctx.Err())
	}
}

// fillAvatar downloads, encrypts and stores the avatar of userID and
// returns the plaintext base64.
func (s *UserService) fillAvatar(ctx context.Context, userID string) (string, error) {
	user, err := s.dir.FetchByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("fetching user: %w", err)
	}
	if user == nil {
		return "", errors.New("user not found in directory")
	}

	image, err := s.files.Download(ctx, user.Avatar, userID)
	if err != nil {
		return "", err
	}

	b64 := base64.StdEncoding.EncodeToString(image)
	sealed, err := s.codec.Encrypt(b64)
	if err != nil {
		return "", fmt.Errorf("encrypting avatar: %w", err)
	}

	if err := s.avatars.Save(ctx, &model.AvatarRecord{UserID: userID, EncryptedAvatar: sealed}); err != nil {
		return "", fmt.Errorf("saving avatar: %w", err)
	}

	s.logger.Info("avatar cached", slog.String("userId", userID), slog.Int("bytes", len(image)))
	return b64, nil
}

// RemoveAvatar deletes the stored avatar and its file. The file must exist:
// a record without a file is reported as an internal error.
func (s *UserService) RemoveAvatar(ctx context.Context, userID string) error {
	n, err := s.avatars.DeleteByUserID(ctx, userID)
	if err != nil {
		s.logger.Error("deleting avatar record failed",
			slog.String("userId", userID),
			slog.String("error", err.Error()),
		)
		return apperror.Internal(msgInternal, err)
	}
	if n == 0 {
		return apperror.NotFoundMessage(msgDeleteFailed, nil)
	}

	if err := s.files.Remove(userID); err != nil {
		s.logger.Error("removing avatar file failed",
			slog.String("userId", userID),
			slog.String("error", err.Error()),
		)
		return apperror.Internal(msgInternal, err)
	}

	s.logger.Info("avatar removed", slog.String("userId", userID))
	return nil
}
