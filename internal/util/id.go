package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// NewCode builds a human-readable proposal code like GF-2026-3FA2.
func NewCode() string {
	bytes := make([]byte, 2)
	_, _ = rand.Read(bytes)
	return fmt.Sprintf("GF-%d-%X", time.Now().Year(), bytes)
}
