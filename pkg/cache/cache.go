// Package cache stores finished generation results under a fingerprint of
// the request that produced them.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/OFFIS-RIT/testcase-agent/internal/util"
)

// ErrCacheMiss indicates a cache miss.
var ErrCacheMiss = errors.New("cache miss")

const DefaultTTL = 24 * time.Hour

// Entry is a cached result. Entries are immutable once written.
type Entry struct {
	Result string          `json:"result"`
	Meta   json.RawMessage `json:"meta,omitempty"`
}

// Cache defines the result cache interface. Get returns ErrCacheMiss when no
// live entry exists for key. Set overwrites, last writer wins.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, error)
	Set(ctx context.Context, key string, entry Entry) error
}

// Fingerprint derives a cache key from the documents of a request and the
// configuration that affects its output. Line endings are normalized and map
// keys are sorted, so equivalent requests share a key.
func Fingerprint(fields map[string]string, config map[string]any) string {
	normalized := make(map[string]string, len(fields))
	for k, v := range fields {
		normalized[k] = util.NormalizeNewlines(v)
	}
	if config == nil {
		config = map[string]any{}
	}

	// json.Marshal sorts map keys
	src, err := json.Marshal(struct {
		Fields map[string]string `json:"fields"`
		Config map[string]any    `json:"config"`
	}{normalized, config})
	if err != nil {
		// config values are plain scalars; fall back to the fields alone
		src, _ = json.Marshal(normalized)
	}

	sum := sha256.Sum256(src)
	return hex.EncodeToString(sum[:])
}
