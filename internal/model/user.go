// Package model defines the data structures shared by the service layers.
package model

import "encoding/json"

// User is a record owned by the upstream user directory.
// This service never persists it; it only reads it to find the avatar URL
// and passes it through to clients.
//
// The upstream sends "id" as a JSON number, but other directories use
// strings. json.RawMessage keeps whatever was sent, byte for byte.
type User struct {
	ID        json.RawMessage `json:"id,omitempty"`
	Email     string          `json:"email"`
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	Avatar    string          `json:"avatar"` // URL of the profile picture
}

// CreateUserRequest is the payload accepted by POST /api/users.
//
// Every field is a pointer so that "absent" and "empty" stay distinct:
// the payload is forwarded upstream and published as-is, and validation
// reports a missing email differently from an empty one.
type CreateUserRequest struct {
	UserID    *string `json:"userId,omitempty"`
	FirstName *string `json:"first_name,omitempty" validate:"omitnil,min=1"`
	LastName  *string `json:"last_name,omitempty"  validate:"omitnil,min=1"`
	Avatar    *string `json:"avatar,omitempty"     validate:"omitnil,min=1"`
	Email     *string `json:"email,omitempty"      validate:"required,email"`
}

// EmailAddress returns the email or "" when it was not sent.
func (r *CreateUserRequest) EmailAddress() string {
	if r.Email == nil {
		return ""
	}
	return *r.Email
}
