// Package engagement keeps the like and comment records of media items.
// Counts are always derived from the records themselves.
package engagement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/npezzotti/go-mediashare/internal/kv"
	"github.com/npezzotti/go-mediashare/internal/stats"
	"github.com/npezzotti/go-mediashare/internal/types"
)

const (
	commentsRoot = "comments"
	likesRoot    = "likes"

	CommentsMetric = "comments"
	LikesMetric    = "likes"
)

type Options struct {
	// CountCacheSize is the number of per-media counts kept in memory. Zero
	// disables caching.
	CountCacheSize int
	CountCacheTTL  time.Duration
}

type Ledger struct {
	store  kv.Store
	log    *log.Logger
	stats  stats.StatsProvider
	counts *expirable.LRU[string, int]
	now    func() time.Time

	// writes is bumped by every invalidation. A count read only populates
	// the cache when no write happened while it was reading.
	countsLock sync.Mutex
	writes     uint64
}

func NewLedger(store kv.Store, logger *log.Logger, sp stats.StatsProvider, opts Options) *Ledger {
	sp.RegisterMetric(CommentsMetric)
	sp.RegisterMetric(LikesMetric)

	l := &Ledger{
		store: store,
		log:   logger,
		stats: sp,
		now:   func() time.Time { return time.Now().UTC() },
	}
	if opts.CountCacheSize > 0 {
		l.counts = expirable.NewLRU[string, int](opts.CountCacheSize, nil, opts.CountCacheTTL)
	}

	return l
}

func commentsPrefix(mediaId string) string {
	return kv.Join(commentsRoot, mediaId) + kv.Separator
}

func likesPrefix(mediaId string) string {
	return kv.Join(likesRoot, mediaId) + kv.Separator
}

func likeKey(mediaId, userId string) string {
	return kv.Join(likesRoot, mediaId, userId)
}

func checkSegment(field, value string) error {
	if value == "" {
		return types.Required(field)
	}
	if !kv.ValidSegment(value) {
		return types.Invalid(field, "is malformed")
	}
	return nil
}

// AddComment stores a new comment on mediaId. Content is trimmed and must
// not be empty.
func (l *Ledger) AddComment(ctx context.Context, mediaId, userId, userName, content string) (types.Comment, error) {
	if err := checkSegment("mediaId", mediaId); err != nil {
		return types.Comment{}, err
	}
	if userId == "" {
		return types.Comment{}, types.Required("userId")
	}
	if userName == "" {
		return types.Comment{}, types.Required("userName")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return types.Comment{}, types.Required("content")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return types.Comment{}, fmt.Errorf("generate comment id: %w", err)
	}

	comment := types.Comment{
		Id:        id.String(),
		MediaId:   mediaId,
		UserId:    userId,
		UserName:  userName,
		Content:   content,
		CreatedAt: l.now(),
	}

	b, err := json.Marshal(comment)
	if err != nil {
		return types.Comment{}, fmt.Errorf("encode comment: %w", err)
	}
	if err := l.store.Put(ctx, commentsPrefix(mediaId)+comment.Id, b, 0); err != nil {
		return types.Comment{}, fmt.Errorf("store comment: %w", err)
	}

	l.invalidate(commentsPrefix(mediaId))
	l.stats.Incr(CommentsMetric)

	return comment, nil
}

// ListComments returns the comments on mediaId, newest first.
func (l *Ledger) ListComments(ctx context.Context, mediaId string) ([]types.Comment, error) {
	if err := checkSegment("mediaId", mediaId); err != nil {
		return nil, err
	}

	keys, err := l.store.Keys(ctx, commentsPrefix(mediaId))
	if err != nil {
		return nil, fmt.Errorf("list comment keys: %w", err)
	}

	comments := make([]types.Comment, 0, len(keys))
	for _, key := range keys {
		var c types.Comment
		if err := l.load(ctx, key, &c); err != nil {
			l.log.Printf("list comments: skipping %q: %v", key, err)
			continue
		}
		comments = append(comments, c)
	}

	slices.SortStableFunc(comments, func(a, b types.Comment) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.Id, a.Id)
	})

	return comments, nil
}

func (l *Ledger) CommentCount(ctx context.Context, mediaId string) (int, error) {
	if err := checkSegment("mediaId", mediaId); err != nil {
		return 0, err
	}
	return l.count(ctx, commentsPrefix(mediaId))
}

// SetLike records or removes the like of userId on mediaId. Both directions
// are idempotent.
func (l *Ledger) SetLike(ctx context.Context, mediaId, userId, userName string, liked bool) error {
	if err := checkSegment("mediaId", mediaId); err != nil {
		return err
	}
	if err := checkSegment("userId", userId); err != nil {
		return err
	}

	key := likeKey(mediaId, userId)

	if !liked {
		removed, err := l.store.Delete(ctx, key)
		if err != nil {
			return fmt.Errorf("delete like: %w", err)
		}
		if removed {
			l.invalidate(likesPrefix(mediaId))
			l.stats.Decr(LikesMetric)
		}
		return nil
	}

	if userName == "" {
		return types.Required("userName")
	}

	exists, err := l.HasUserLiked(ctx, mediaId, userId)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	b, err := json.Marshal(types.Like{
		MediaId:   mediaId,
		UserId:    userId,
		UserName:  userName,
		CreatedAt: l.now(),
	})
	if err != nil {
		return fmt.Errorf("encode like: %w", err)
	}
	if err := l.store.Put(ctx, key, b, 0); err != nil {
		return fmt.Errorf("store like: %w", err)
	}

	l.invalidate(likesPrefix(mediaId))
	l.stats.Incr(LikesMetric)

	return nil
}

func (l *Ledger) HasUserLiked(ctx context.Context, mediaId, userId string) (bool, error) {
	if err := checkSegment("mediaId", mediaId); err != nil {
		return false, err
	}
	if err := checkSegment("userId", userId); err != nil {
		return false, err
	}

	_, err := l.store.Get(ctx, likeKey(mediaId, userId))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, kv.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("get like: %w", err)
	}
}

func (l *Ledger) LikeCount(ctx context.Context, mediaId string) (int, error) {
	if err := checkSegment("mediaId", mediaId); err != nil {
		return 0, err
	}
	return l.count(ctx, likesPrefix(mediaId))
}

// Likes returns the like records of mediaId, oldest first.
func (l *Ledger) Likes(ctx context.Context, mediaId string) ([]types.Like, error) {
	if err := checkSegment("mediaId", mediaId); err != nil {
		return nil, err
	}

	keys, err := l.store.Keys(ctx, likesPrefix(mediaId))
	if err != nil {
		return nil, fmt.Errorf("list like keys: %w", err)
	}

	likes := make([]types.Like, 0, len(keys))
	for _, key := range keys {
		var like types.Like
		if err := l.load(ctx, key, &like); err != nil {
			l.log.Printf("list likes: skipping %q: %v", key, err)
			continue
		}
		likes = append(likes, like)
	}

	slices.SortStableFunc(likes, func(a, b types.Like) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return likes, nil
}

// Purge removes every like and comment recorded for mediaId.
func (l *Ledger) Purge(ctx context.Context, mediaId string) error {
	if err := checkSegment("mediaId", mediaId); err != nil {
		return err
	}

	var errs []error
	for _, prefix := range []string{likesPrefix(mediaId), commentsPrefix(mediaId)} {
		keys, err := l.store.Keys(ctx, prefix)
		if err != nil {
			errs = append(errs, fmt.Errorf("list %s: %w", prefix, err))
			continue
		}
		metric := LikesMetric
		if prefix == commentsPrefix(mediaId) {
			metric = CommentsMetric
		}
		for _, key := range keys {
			removed, err := l.store.Delete(ctx, key)
			if err != nil {
				errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
				continue
			}
			if removed {
				l.stats.Decr(metric)
			}
		}
		l.invalidate(prefix)
	}

	return errors.Join(errs...)
}

func (l *Ledger) count(ctx context.Context, prefix string) (int, error) {
	if l.counts == nil {
		keys, err := l.store.Keys(ctx, prefix)
		if err != nil {
			return 0, fmt.Errorf("count %s: %w", prefix, err)
		}
		return len(keys), nil
	}

	if n, ok := l.counts.Get(prefix); ok {
		return n, nil
	}

	l.countsLock.Lock()
	seen := l.writes
	l.countsLock.Unlock()

	keys, err := l.store.Keys(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", prefix, err)
	}

	n := len(keys)
	l.countsLock.Lock()
	if l.writes == seen {
		l.counts.Add(prefix, n)
	}
	l.countsLock.Unlock()

	return n, nil
}

func (l *Ledger) invalidate(prefix string) {
	if l.counts == nil {
		return
	}

	l.countsLock.Lock()
	l.writes++
	l.counts.Remove(prefix)
	l.countsLock.Unlock()
}

func (l *Ledger) load(ctx context.Context, key string, v any) error {
	b, err := l.store.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
