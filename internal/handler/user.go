package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/user-avatar-service/internal/model"
)

// UserService is what the handler needs from the service layer.
type UserService interface {
	Create(ctx context.Context, req *model.CreateUserRequest) (json.RawMessage, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetAvatar(ctx context.Context, userID string) (string, error)
	RemoveAvatar(ctx context.Context, userID string) error
}

// UserHandler serves the /api user routes.
type UserHandler struct {
	svc    UserService
	logger *slog.Logger
}

func NewUserHandler(svc UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{svc: svc, logger: logger}
}

// HandleCreate creates a user in the directory.
//
// HTTP: POST /api/users
// REQUEST BODY: {"userId":"12345","email":"test@example.com","first_name":"Janet"}
func (h *UserHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req model.CreateUserRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.logger.Warn("invalid create user body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, MessageResponse{Message: decodeMessage(err)})
		return
	}

	data, err := h.svc.Create(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, DataResponse{
		Message: "User created successfully",
		Data:    data,
	})
}

// decodeMessage words a body decoding failure for the client.
func decodeMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Sprintf("%s must be a string", typeErr.Field)
	}
	// encoding/json has no typed error for unknown keys.
	if field, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
		return fmt.Sprintf("%s is not allowed", strings.Trim(field, `"`))
	}
	return "Invalid JSON body"
}

// HandleGetUser proxies a directory lookup.
//
// HTTP: GET /api/user/{userId}
//
// A directory answer without data is still a 200, with the message
// "User Not Found" and no data field. Clients rely on that shape.
func (h *UserHandler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.GetUser(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, err)
		return
	}

	if user == nil {
		writeJSON(w, http.StatusOK, MessageResponse{Message: "User Not Found"})
		return
	}

	writeJSON(w, http.StatusOK, DataResponse{
		Message: "User retrieved successfully",
		Data:    user,
	})
}

// HandleGetAvatar returns the user's avatar as base64.
//
// HTTP: GET /api/user/{userId}/avatar[?format=dataurl]
//
// format=dataurl returns "data:image/jpeg;base64,..." instead of bare base64.
func (h *UserHandler) HandleGetAvatar(w http.ResponseWriter, r *http.Request) {
	avatar, err := h.svc.GetAvatar(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "dataurl" {
		avatar = model.DataURL(avatar)
	}

	writeJSON(w, http.StatusOK, AvatarResponse{
		Message: "Image retrieved successfully",
		Avatar:  avatar,
	})
}

// HandleRemoveAvatar deletes the stored avatar and its file.
//
// HTTP: DELETE /api/user/{userId}/avatar
func (h *UserHandler) HandleRemoveAvatar(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemoveAvatar(r.Context(), chi.URLParam(r, "userId")); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "User avatar removed successfully"})
}

// HandleHealth reports liveness.
//
// HTTP: GET /healthz
func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
