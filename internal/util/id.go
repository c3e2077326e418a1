package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// NewClientID returns the UUID form used for comment and reply ids. These
// stay stable across edits and are independent of storage-assigned ids, so a
// client can reference a comment before the aggregate round-trips to storage.
func NewClientID() string {
	return uuid.NewString()
}
