package codec

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T, secret string) *Codec {
	t.Helper()
	c, err := New(secret)
	require.NoError(t, err)
	return c
}

func TestNew_EmptySecret(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	c := newTestCodec(t, "hash-secret")

	tests := []struct {
		name      string
		plaintext string
	}{
		{name: "empty", plaintext: ""},
		{name: "base64 image", plaintext: base64.StdEncoding.EncodeToString([]byte("new-avatar-data"))},
		{name: "large", plaintext: strings.Repeat("QUJD", 64*1024)},
		{name: "unicode", plaintext: "héllo wörld"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ciphertext, err := c.Encrypt(tt.plaintext)
			require.NoError(t, err)
			assert.NotEqual(t, tt.plaintext, ciphertext)

			got, err := c.Decrypt(ciphertext)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, got)
		})
	}
}

func TestEncrypt_IsRandomised(t *testing.T) {
	c := newTestCodec(t, "hash-secret")

	a, err := c.Encrypt("same input")
	require.NoError(t, err)
	b, err := c.Encrypt("same input")
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "fresh salt and nonce per message")
}

func TestDecrypt_WrongSecret(t *testing.T) {
	ciphertext, err := newTestCodec(t, "right-secret").Encrypt("payload")
	require.NoError(t, err)

	_, err = newTestCodec(t, "wrong-secret").Decrypt(ciphertext)
	assert.True(t, errors.Is(err, ErrDecrypt), "got %v", err)
}

func TestDecrypt_Malformed(t *testing.T) {
	c := newTestCodec(t, "hash-secret")

	valid, err := c.Encrypt("payload")
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(valid)
	require.NoError(t, err)

	tampered := append([]byte(nil), raw...)
	tampered[len(tampered)-1] ^= 0xff

	wrongVersion := append([]byte(nil), raw...)
	wrongVersion[0] = 9

	tests := []struct {
		name  string
		input string
		want  error
	}{
		{name: "not base64", input: "%%%not-base64%%%", want: ErrMalformed},
		{name: "too short", input: base64.StdEncoding.EncodeToString([]byte{version, 1, 2}), want: ErrMalformed},
		{name: "unknown version", input: base64.StdEncoding.EncodeToString(wrongVersion), want: ErrMalformed},
		{name: "tampered body", input: base64.StdEncoding.EncodeToString(tampered), want: ErrDecrypt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decrypt(tt.input)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}
}

// legacyRecord was produced by
// `openssl enc -aes-256-cbc -md md5 -salt -pass pass:test-hash-secret -a`,
// which writes the same envelope CryptoJS.AES.encrypt does with a passphrase.
const legacyRecord = "U2FsdGVkX1/OVgVcioU2mUXxhr/X+2cKhv+HwAQAADzb/yhIKH/BNfnaKeQ4ST+M"

func TestDecrypt_LegacyEnvelope(t *testing.T) {
	got, err := newTestCodec(t, "test-hash-secret").Decrypt(legacyRecord)

	require.NoError(t, err)
	assert.Equal(t, "aGVsbG8gd29ybGQ=", got)
}

func TestDecrypt_LegacyEnvelopeErrors(t *testing.T) {
	raw, err := base64.StdEncoding.DecodeString(legacyRecord)
	require.NoError(t, err)

	tests := []struct {
		name   string
		secret string
		input  string
		want   error
	}{
		{
			name:   "wrong secret",
			secret: "other-secret",
			input:  legacyRecord,
			want:   ErrDecrypt,
		},
		{
			name:   "salt only",
			secret: "test-hash-secret",
			input:  base64.StdEncoding.EncodeToString(raw[:16]),
			want:   ErrMalformed,
		},
		{
			name:   "ciphertext not block aligned",
			secret: "test-hash-secret",
			input:  base64.StdEncoding.EncodeToString(raw[:len(raw)-3]),
			want:   ErrMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestCodec(t, tt.secret).Decrypt(tt.input)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}
}

func TestEvpBytesToKey_MatchesOpenSSL(t *testing.T) {
	// Values printed by `openssl enc -d ... -P` for legacyRecord.
	salt, _ := hex.DecodeString("CE56055C8A853699")

	key, iv := evpBytesToKey([]byte("test-hash-secret"), salt, 32, 16)

	assert.Equal(t, "AD1155851C2E685A5871BC466C8FE131D5FC450B00C3617F3A25C4E40E67E03E", strings.ToUpper(hex.EncodeToString(key)))
	assert.Equal(t, "ECB6F63452EA6D31F38581CDFA53ABEB", strings.ToUpper(hex.EncodeToString(iv)))
}
