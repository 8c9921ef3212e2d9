package codec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"fmt"
	"unicode/utf8"
)

// Records written before the current wire format hold an OpenSSL "Salted__"
// envelope (the CryptoJS passphrase default):
//
//	"Salted__" | salt (8 bytes) | AES-256-CBC ciphertext, PKCS#7 padded
//
// Key and IV come from EVP_BytesToKey with MD5 and one iteration. These
// records are only read; Encrypt always writes the current format, so a
// legacy record is replaced the next time the avatar is refilled.
var legacyMagic = []byte("Salted__")

const legacySaltSize = 8

func isLegacy(raw []byte) bool {
	return bytes.HasPrefix(raw, legacyMagic)
}

func (c *Codec) decryptLegacy(raw []byte) (string, error) {
	body := raw[len(legacyMagic):]
	if len(body) < legacySaltSize+aes.BlockSize || (len(body)-legacySaltSize)%aes.BlockSize != 0 {
		return "", ErrMalformed
	}
	salt, ciphertext := body[:legacySaltSize], body[legacySaltSize:]

	key, iv := evpBytesToKey(c.secret, salt, 32, aes.BlockSize)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("codec: creating legacy cipher: %w", err)
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)

	plain, ok := unpad(plain)
	if !ok || !utf8.Valid(plain) {
		return "", ErrDecrypt
	}
	return string(plain), nil
}

// evpBytesToKey is OpenSSL's EVP_BytesToKey with MD5 and count 1.
func evpBytesToKey(secret, salt []byte, keyLen, ivLen int) (key, iv []byte) {
	var out, prev []byte
	for len(out) < keyLen+ivLen {
		h := md5.New()
		h.Write(prev)
		h.Write(secret)
		h.Write(salt)
		prev = h.Sum(nil)
		out = append(out, prev...)
	}
	return out[:keyLen], out[keyLen : keyLen+ivLen]
}

func unpad(b []byte) ([]byte, bool) {
	if len(b) == 0 {
		return nil, false
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, false
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, false
		}
	}
	return b[:len(b)-n], true
}
