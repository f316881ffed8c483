// Package security holds the hashing used to keep phone numbers out of audit trails and logs.
package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// PhoneHasher derives the audit identifier of a normalized phone number. With a key it is an
// HMAC-SHA256, otherwise a bare SHA-256; both hex-encoded.
type PhoneHasher struct {
	key []byte
}

// NewPhoneHasher returns a hasher keyed with key. An empty key is allowed.
func NewPhoneHasher(key string) PhoneHasher {
	if key == "" {
		return PhoneHasher{}
	}
	return PhoneHasher{key: []byte(key)}
}

// Hash returns the hex digest of phone, or "" for an empty phone.
func (h PhoneHasher) Hash(phone string) string {
	if phone == "" {
		return ""
	}
	if len(h.key) == 0 {
		sum := sha256.Sum256([]byte(phone))
		return hex.EncodeToString(sum[:])
	}
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(phone))
	return hex.EncodeToString(mac.Sum(nil))
}
