package utils

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// GenerateCode returns an uppercase hex string of 2*n characters from
// crypto/rand. Used for ticket codes and gateway reference labels.
func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)

	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// Hmac256 generates a hex-encoded HMAC-SHA256 over body with key.
func Hmac256(body, key []byte) string {
	hash := hmac.New(sha256.New, key)
	hash.Write(body)
	return hex.EncodeToString(hash.Sum(nil))
}

// VerifyHmac256 compares a received hex HMAC against the expected value in
// constant time.
func VerifyHmac256(body, key []byte, received string) bool {
	expected := Hmac256(body, key)
	return hmac.Equal([]byte(received), []byte(expected))
}
