package util

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	idLength   = 16
)

// NewID returns a URL-safe random identifier for jobs and uploads.
func NewID() string {
	id, err := gonanoid.Generate(idAlphabet, idLength)
	if err != nil {
		// only fails when the system random source is broken
		return gonanoid.Must()
	}
	return id
}

// IsID reports whether s has the shape of an identifier produced by NewID.
func IsID(s string) bool {
	if len(s) != idLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'z') {
			return false
		}
	}
	return true
}
