package kv

import (
	"context"
	"errors"
	"strings"
	"time"
)

var ErrNotFound = errors.New("key not found")

const Separator = "/"

// Store holds JSON documents addressed by string keys. Keys are
// Separator-delimited paths so that related documents can be listed by
// prefix.
type Store interface {
	// Get returns ErrNotFound if the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put overwrites the value at key. A zero ttl never expires.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete reports whether a live key was removed.
	Delete(ctx context.Context, key string) (bool, error)
	// Keys lists live keys beginning with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Join builds a key from path segments.
func Join(parts ...string) string {
	return strings.Join(parts, Separator)
}

// ValidSegment reports whether s can be used as a single key segment.
func ValidSegment(s string) bool {
	return s != "" && !strings.Contains(s, Separator)
}

// Base returns the last segment of key.
func Base(key string) string {
	if i := strings.LastIndex(key, Separator); i >= 0 {
		return key[i+1:]
	}
	return key
}

// Reaper is implemented by stores that keep expired entries until they are
// explicitly removed.
type Reaper interface {
	Reap(ctx context.Context) (int64, error)
}
