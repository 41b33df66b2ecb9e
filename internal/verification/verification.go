// Package verification issues one-time email verification codes and keeps
// them in the shared key-value store until they are consumed or expire.
package verification

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/npezzotti/go-mediashare/internal/kv"
	"github.com/npezzotti/go-mediashare/internal/types"
)

const (
	keyRoot    = "verification"
	codeDigits = 6

	DefaultTTL = 10 * time.Minute

	// Entries stay in the store for this many TTLs so that a late Consume
	// reports ErrExpired rather than ErrNotFound. Sweep removes them sooner.
	retentionFactor = 2
)

var (
	ErrNotFound = errors.New("verification code not found")
	ErrMismatch = errors.New("verification code does not match")
	ErrExpired  = errors.New("verification code expired")
)

// Entry is a pending signup waiting for its code.
type Entry struct {
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

func (e Entry) expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.Timestamp) > ttl
}

type Cache struct {
	store kv.Store
	ttl   time.Duration
	log   *log.Logger
	now   func() time.Time

	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	running atomic.Bool
}

func NewCache(store kv.Store, ttl time.Duration, logger *log.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Cache{
		store: store,
		ttl:   ttl,
		log:   logger,
		now:   time.Now,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (c *Cache) TTL() time.Duration {
	return c.ttl
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func entryKey(email string) string {
	return kv.Join(keyRoot, email)
}

func generateCode() (string, error) {
	var sb strings.Builder
	for i := 0; i < codeDigits; i++ {
		span, lo := int64(10), int64(0)
		if i == 0 {
			span, lo = 9, 1
		}
		n, err := rand.Int(rand.Reader, big.NewInt(span))
		if err != nil {
			return "", err
		}
		sb.WriteByte(byte('0' + n.Int64() + lo))
	}
	return sb.String(), nil
}

// Issue creates a fresh code for email, replacing any pending one.
func (c *Cache) Issue(ctx context.Context, email, name string) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", types.Required("email")
	}
	if !kv.ValidSegment(email) {
		return "", types.Invalid("email", "is malformed")
	}
	if name == "" {
		return "", types.Required("name")
	}

	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	b, err := json.Marshal(Entry{
		Email:     email,
		Code:      code,
		Name:      name,
		Timestamp: c.now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("encode entry: %w", err)
	}
	if err := c.store.Put(ctx, entryKey(email), b, retentionFactor*c.ttl); err != nil {
		return "", fmt.Errorf("store entry: %w", err)
	}

	return code, nil
}

func (c *Cache) get(ctx context.Context, key string) (Entry, error) {
	b, err := c.store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get entry: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return Entry{}, fmt.Errorf("decode entry: %w", err)
	}
	return e, nil
}

// Consume checks code against the pending entry for email and removes the
// entry on success. An entry can be consumed at most once even when several
// instances race for it.
func (c *Cache) Consume(ctx context.Context, email, code string) (Entry, error) {
	email = normalizeEmail(email)
	if email == "" {
		return Entry{}, types.Required("email")
	}
	if !kv.ValidSegment(email) {
		return Entry{}, ErrNotFound
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return Entry{}, types.Required("code")
	}

	key := entryKey(email)
	e, err := c.get(ctx, key)
	if err != nil {
		return Entry{}, err
	}
	if e.Code != code {
		return Entry{}, ErrMismatch
	}
	if e.expired(c.now(), c.ttl) {
		if _, err := c.store.Delete(ctx, key); err != nil {
			c.log.Printf("verification: delete expired entry %q: %v", email, err)
		}
		return Entry{}, ErrExpired
	}

	removed, err := c.store.Delete(ctx, key)
	if err != nil {
		return Entry{}, fmt.Errorf("delete entry: %w", err)
	}
	if !removed {
		return Entry{}, ErrNotFound
	}

	return e, nil
}

// Restore puts back an entry returned by Consume when the signup it was
// consumed for could not be completed. A code issued for the same email in
// the meantime is kept.
func (c *Cache) Restore(ctx context.Context, e Entry) error {
	remaining := retentionFactor*c.ttl - c.now().Sub(e.Timestamp)
	if remaining <= 0 {
		return nil
	}

	key := entryKey(e.Email)
	_, err := c.get(ctx, key)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}

	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	if err := c.store.Put(ctx, key, b, remaining); err != nil {
		return fmt.Errorf("store entry: %w", err)
	}
	return nil
}

// Sweep deletes every expired entry and returns how many were removed.
func (c *Cache) Sweep(ctx context.Context) (int, error) {
	keys, err := c.store.Keys(ctx, keyRoot+kv.Separator)
	if err != nil {
		return 0, fmt.Errorf("list entries: %w", err)
	}

	now := c.now()
	removed := 0
	for _, key := range keys {
		e, err := c.get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			c.log.Printf("verification sweep: skipping %q: %v", key, err)
			continue
		}
		if !e.expired(now, c.ttl) {
			continue
		}
		ok, err := c.store.Delete(ctx, key)
		if err != nil {
			c.log.Printf("verification sweep: delete %q: %v", key, err)
			continue
		}
		if ok {
			removed++
		}
	}

	if r, ok := c.store.(kv.Reaper); ok {
		n, err := r.Reap(ctx)
		if err != nil {
			return removed, fmt.Errorf("reap store: %w", err)
		}
		if n > 0 {
			c.log.Printf("verification sweep: reaped %d expired documents", n)
		}
	}

	return removed, nil
}

// Run starts a goroutine that sweeps every interval until Stop is called.
func (c *Cache) Run(interval time.Duration) {
	if !c.running.CompareAndSwap(false, true) {
		return
	}

	go func() {
		defer close(c.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				if n, err := c.Sweep(ctx); err != nil {
					c.log.Printf("verification sweep: %v", err)
				} else if n > 0 {
					c.log.Printf("verification sweep: removed %d expired codes", n)
				}
				cancel()
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop ends the sweeper started by Run and waits for it to exit.
func (c *Cache) Stop() {
	c.once.Do(func() {
		close(c.stop)
	})
	if c.running.Load() {
		<-c.done
	}
}
