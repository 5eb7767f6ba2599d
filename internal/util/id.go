// Package util holds tiny helpers with no better home.
package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NewID returns a random identifier like "file_3f2a...". Attachment
// object keys are built from it, so a collision would overwrite
// another upload; 16 random bytes rule that out.
func NewID(prefix string) string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("util: read random bytes: %v", err))
	}
	id := hex.EncodeToString(b)
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
