package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataURL(t *testing.T) {
	assert.Equal(t, "data:image/jpeg;base64,aGVsbG8=", DataURL("aGVsbG8="))
	assert.Equal(t, "", DataURL(""))
}

func TestUser_KeepsUpstreamIDVerbatim(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "numeric id", body: `{"id":2,"email":"janet@reqres.in"}`, want: `2`},
		{name: "string id", body: `{"id":"12345","email":"janet@reqres.in"}`, want: `"12345"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var u User
			require.NoError(t, json.Unmarshal([]byte(tt.body), &u))
			assert.Equal(t, tt.want, string(u.ID))

			out, err := json.Marshal(u)
			require.NoError(t, err)
			assert.Contains(t, string(out), `"id":`+tt.want)
		})
	}
}

func TestCreateUserRequest_PreservesAbsentFields(t *testing.T) {
	var req CreateUserRequest
	require.NoError(t, json.Unmarshal([]byte(`{"userId":"12345","email":"test@example.com"}`), &req))

	assert.Equal(t, "test@example.com", req.EmailAddress())
	assert.Nil(t, req.FirstName)

	out, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"userId":"12345","email":"test@example.com"}`, string(out))
}

func TestCreateUserRequest_EmailAddressWhenMissing(t *testing.T) {
	var req CreateUserRequest
	assert.Equal(t, "", req.EmailAddress())
}
