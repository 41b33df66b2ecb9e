// Package media keeps the catalog of uploaded images and videos.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/go-mediashare/internal/kv"
	"github.com/npezzotti/go-mediashare/internal/objectstore"
	"github.com/npezzotti/go-mediashare/internal/stats"
	"github.com/npezzotti/go-mediashare/internal/types"
)

const (
	keyRoot    = "media"
	viewsRoot  = "views"
	objectRoot = "media"

	MediaMetric = "media"
)

var ErrNotFound = errors.New("media not found")

// Engagement supplies the derived counters of a media item and removes its
// records when the item is deleted.
type Engagement interface {
	LikeCount(ctx context.Context, mediaId string) (int, error)
	CommentCount(ctx context.Context, mediaId string) (int, error)
	Purge(ctx context.Context, mediaId string) error
}

type UploadParams struct {
	Filename    string
	ContentType string
	Size        int64
	UploadedBy  string
}

type Filter struct {
	Tag        string
	Query      string
	UploadedBy string
}

// record is the persisted form of a media item. Counters are not stored on
// it: views are kept as separate records under views/<id>/.
type record struct {
	Id         string    `json:"id"`
	Filename   string    `json:"filename"`
	ObjectKey  string    `json:"objectKey"`
	Url        string    `json:"url"`
	Type       string    `json:"type"`
	Size       int64     `json:"size"`
	UploadedBy string    `json:"uploadedBy"`
	Tags       []string  `json:"tags"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type Catalog struct {
	store      kv.Store
	objects    objectstore.Store
	engagement Engagement
	log        *log.Logger
	stats      stats.StatsProvider
	now        func() time.Time
}

func NewCatalog(store kv.Store, objects objectstore.Store, engagement Engagement, logger *log.Logger, sp stats.StatsProvider) *Catalog {
	sp.RegisterMetric(MediaMetric)

	return &Catalog{
		store:      store,
		objects:    objects,
		engagement: engagement,
		log:        logger,
		stats:      sp,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func recordKey(id string) string {
	return kv.Join(keyRoot, id)
}

func viewsPrefix(id string) string {
	return kv.Join(viewsRoot, id) + kv.Separator
}

type view struct {
	ViewedAt time.Time `json:"viewedAt"`
}

// KindOf maps a content type to "image" or "video". Other types are not
// accepted.
func KindOf(contentType string) (string, bool) {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return "image", true
	case strings.HasPrefix(contentType, "video/"):
		return "video", true
	default:
		return "", false
	}
}

// NormalizeTags trims and lower-cases tags, dropping empty ones and
// duplicates. The result is sorted.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Upload stores the object and creates its catalog record.
func (c *Catalog) Upload(ctx context.Context, p UploadParams, body io.Reader) (types.MediaItem, error) {
	filename := path.Base(strings.ReplaceAll(strings.TrimSpace(p.Filename), "\\", "/"))
	if filename == "" || filename == "." || filename == "/" {
		return types.MediaItem{}, types.Required("file")
	}
	if p.UploadedBy == "" {
		return types.MediaItem{}, types.Required("userId")
	}
	kind, ok := KindOf(p.ContentType)
	if !ok {
		return types.MediaItem{}, types.Invalid("file", "must be an image or video")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return types.MediaItem{}, fmt.Errorf("generate media id: %w", err)
	}

	now := c.now()
	objectKey := fmt.Sprintf("%s/%04d/%02d/%s%s", objectRoot, now.Year(), now.Month(), id, strings.ToLower(path.Ext(filename)))

	url, err := c.objects.Put(ctx, objectKey, p.ContentType, body, p.Size)
	if err != nil {
		return types.MediaItem{}, fmt.Errorf("store object: %w", err)
	}

	rec := record{
		Id:         id.String(),
		Filename:   filename,
		ObjectKey:  objectKey,
		Url:        url,
		Type:       kind,
		Size:       p.Size,
		UploadedBy: p.UploadedBy,
		Tags:       []string{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := c.put(ctx, rec); err != nil {
		if derr := c.objects.Delete(ctx, objectKey); derr != nil {
			c.log.Printf("upload: remove orphaned object %q: %v", objectKey, derr)
		}
		return types.MediaItem{}, err
	}

	c.stats.Incr(MediaMetric)

	return rec.item(), nil
}

func (c *Catalog) Get(ctx context.Context, id string) (types.MediaItem, error) {
	rec, err := c.get(ctx, id)
	if err != nil {
		return types.MediaItem{}, err
	}
	return c.withCounts(ctx, rec)
}

// List returns the items matching f, newest first.
func (c *Catalog) List(ctx context.Context, f Filter) ([]types.MediaItem, error) {
	keys, err := c.store.Keys(ctx, keyRoot+kv.Separator)
	if err != nil {
		return nil, fmt.Errorf("list media keys: %w", err)
	}

	tag := strings.ToLower(strings.TrimSpace(f.Tag))
	query := strings.ToLower(strings.TrimSpace(f.Query))

	items := make([]types.MediaItem, 0, len(keys))
	for _, key := range keys {
		rec, err := c.load(ctx, key)
		if err != nil {
			c.log.Printf("list media: skipping %q: %v", key, err)
			continue
		}
		if !rec.matches(tag, query, f.UploadedBy) {
			continue
		}

		item, err := c.withCounts(ctx, rec)
		if err != nil {
			c.log.Printf("list media: skipping %q: %v", key, err)
			continue
		}
		items = append(items, item)
	}

	slices.SortStableFunc(items, func(a, b types.MediaItem) int {
		if n := b.CreatedAt.Compare(a.CreatedAt); n != 0 {
			return n
		}
		return strings.Compare(b.Id, a.Id)
	})

	return items, nil
}

func (c *Catalog) UpdateTags(ctx context.Context, id string, tags []string) (types.MediaItem, error) {
	rec, err := c.get(ctx, id)
	if err != nil {
		return types.MediaItem{}, err
	}

	rec.Tags = NormalizeTags(tags)
	rec.UpdatedAt = c.now()
	if err := c.put(ctx, rec); err != nil {
		return types.MediaItem{}, err
	}

	return c.withCounts(ctx, rec)
}

// RecordView adds one view of id. The media record itself is not rewritten.
func (c *Catalog) RecordView(ctx context.Context, id string) (types.MediaItem, error) {
	rec, err := c.get(ctx, id)
	if err != nil {
		return types.MediaItem{}, err
	}

	viewId, err := uuid.NewV7()
	if err != nil {
		return types.MediaItem{}, fmt.Errorf("generate view id: %w", err)
	}
	b, err := json.Marshal(view{ViewedAt: c.now()})
	if err != nil {
		return types.MediaItem{}, fmt.Errorf("encode view: %w", err)
	}
	if err := c.store.Put(ctx, viewsPrefix(rec.Id)+viewId.String(), b, 0); err != nil {
		return types.MediaItem{}, fmt.Errorf("store view: %w", err)
	}

	return c.withCounts(ctx, rec)
}

// Delete removes the record, the stored object and every view, like and
// comment on the item.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	rec, err := c.get(ctx, id)
	if err != nil {
		return err
	}

	if _, err := c.store.Delete(ctx, recordKey(rec.Id)); err != nil {
		return fmt.Errorf("delete media record: %w", err)
	}
	c.stats.Decr(MediaMetric)

	var errs []error
	if err := c.objects.Delete(ctx, rec.ObjectKey); err != nil {
		errs = append(errs, fmt.Errorf("delete object: %w", err))
	}
	if err := c.engagement.Purge(ctx, rec.Id); err != nil {
		errs = append(errs, fmt.Errorf("purge engagement: %w", err))
	}
	if err := c.purgeViews(ctx, rec.Id); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (c *Catalog) purgeViews(ctx context.Context, id string) error {
	keys, err := c.store.Keys(ctx, viewsPrefix(id))
	if err != nil {
		return fmt.Errorf("list views: %w", err)
	}

	var errs []error
	for _, key := range keys {
		if _, err := c.store.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("delete view %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Catalog) get(ctx context.Context, id string) (record, error) {
	if id == "" {
		return record{}, types.Required("mediaId")
	}
	if !kv.ValidSegment(id) {
		return record{}, ErrNotFound
	}

	rec, err := c.load(ctx, recordKey(id))
	if errors.Is(err, kv.ErrNotFound) {
		return record{}, ErrNotFound
	}
	return rec, err
}

func (c *Catalog) load(ctx context.Context, key string) (record, error) {
	b, err := c.store.Get(ctx, key)
	if err != nil {
		return record{}, err
	}

	var rec record
	if err := json.Unmarshal(b, &rec); err != nil {
		return record{}, fmt.Errorf("decode media record: %w", err)
	}
	return rec, nil
}

func (c *Catalog) put(ctx context.Context, rec record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode media record: %w", err)
	}
	if err := c.store.Put(ctx, recordKey(rec.Id), b, 0); err != nil {
		return fmt.Errorf("store media record: %w", err)
	}
	return nil
}

func (c *Catalog) withCounts(ctx context.Context, rec record) (types.MediaItem, error) {
	item := rec.item()

	likes, err := c.engagement.LikeCount(ctx, rec.Id)
	if err != nil {
		return types.MediaItem{}, err
	}
	comments, err := c.engagement.CommentCount(ctx, rec.Id)
	if err != nil {
		return types.MediaItem{}, err
	}
	views, err := c.store.Keys(ctx, viewsPrefix(rec.Id))
	if err != nil {
		return types.MediaItem{}, fmt.Errorf("count views: %w", err)
	}

	item.LikesCount = likes
	item.CommentsCount = comments
	item.ViewsCount = len(views)

	return item, nil
}

func (r record) item() types.MediaItem {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}

	return types.MediaItem{
		Id:         r.Id,
		Filename:   r.Filename,
		Url:        r.Url,
		Type:       r.Type,
		Size:       r.Size,
		UploadedBy: r.UploadedBy,
		Tags:       tags,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func (r record) matches(tag, query, uploadedBy string) bool {
	if uploadedBy != "" && r.UploadedBy != uploadedBy {
		return false
	}
	if tag != "" && !slices.Contains(r.Tags, tag) {
		return false
	}
	if query == "" {
		return true
	}
	if strings.Contains(strings.ToLower(r.Filename), query) {
		return true
	}
	return slices.ContainsFunc(r.Tags, func(t string) bool {
		return strings.Contains(t, query)
	})
}
