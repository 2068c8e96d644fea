// Package cache holds generated text keyed by a digest of the normalized
// prompt and generation options. The default in-process implementation is
// Memory.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Cache defines the interface for response caching.
type Cache interface {
	Get(key string) (string, bool)
	Set(key, value string)
	SetWithTTL(key, value string, ttl time.Duration)
	Has(key string) bool
	Delete(key string) bool
	Len() int
	Clear()
	Stats() Stats
	Close() error
}

// Stats is a point-in-time view of cache counters. Hits and Misses are reset
// only by Clear.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Size      int     `json:"size"`
	MaxSize   int     `json:"max_size"`
	HitRate   float64 `json:"hit_rate"`
}

// Entry is a diagnostic snapshot of one cached value.
type Entry struct {
	Key       string        `json:"key"`
	Value     string        `json:"value"`
	Timestamp time.Time     `json:"timestamp"`
	TTL       time.Duration `json:"ttl"`
	Hits      int64         `json:"hits"`
}

// Key derives the cache key for prompt and options. The prompt is trimmed and
// lower-cased; options are serialized as JSON, so map keys are ordered and two
// logically identical option sets always hash the same. A nil options value
// is treated as an empty object.
func Key(prompt string, options any) (string, error) {
	serialized := []byte("{}")
	if options != nil {
		b, err := json.Marshal(options)
		if err != nil {
			return "", fmt.Errorf("serializing cache options: %w", err)
		}
		if string(b) != "null" {
			serialized = b
		}
	}

	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(prompt))))
	h.Write([]byte{0})
	h.Write(serialized)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hitRate(hits, misses int64) float64 {
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}
