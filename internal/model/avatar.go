package model

import "time"

// AvatarRecord maps a user ID to the encrypted, base64-encoded avatar image.
// There is at most one record per UserID.
type AvatarRecord struct {
	ID              string    `json:"id"        db:"id"`
	UserID          string    `json:"userId"    db:"user_id"`
	EncryptedAvatar string    `json:"-"         db:"encrypted_avatar"` // ciphertext, never sent to clients
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time `json:"updatedAt" db:"updated_at"`
}

// dataURLPrefix is the prefix browsers expect for an inline JPEG.
const dataURLPrefix = "data:image/jpeg;base64,"

// DataURL turns a base64 image into a data URL usable in an <img> tag.
// An empty input stays empty.
func DataURL(b64 string) string {
	if b64 == "" {
		return ""
	}
	return dataURLPrefix + b64
}
