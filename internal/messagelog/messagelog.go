// Package messagelog stores chat messages append-only, grouped by
// conversation scope.
package messagelog

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/go-mediashare/internal/conversation"
	"github.com/npezzotti/go-mediashare/internal/kv"
	"github.com/npezzotti/go-mediashare/internal/stats"
	"github.com/npezzotti/go-mediashare/internal/types"
)

const (
	keyRoot = "messages"

	MessagesMetric = "messages"
)

// Notifier receives every message after it has been stored.
type Notifier interface {
	Publish(scope conversation.Scope, msg types.Message)
}

type Log struct {
	store    kv.Store
	log      *log.Logger
	stats    stats.StatsProvider
	notifier Notifier
	now      func() time.Time
}

func NewLog(store kv.Store, logger *log.Logger, sp stats.StatsProvider, notifier Notifier) *Log {
	sp.RegisterMetric(MessagesMetric)

	return &Log{
		store:    store,
		log:      logger,
		stats:    sp,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ScopeOf returns the scope a message belongs to. Exactly one of ReceiverId
// and RoomName must be set.
func ScopeOf(msg types.Message) (conversation.Scope, error) {
	switch {
	case msg.ReceiverId != "" && msg.RoomName != "":
		return conversation.Scope{}, types.Invalid("receiverId", "cannot be combined with roomName")
	case msg.ReceiverId != "":
		return conversation.Private(msg.SenderId, msg.ReceiverId)
	case msg.RoomName != "":
		return conversation.Public(msg.RoomName)
	default:
		return conversation.Scope{}, types.Required("receiverId or roomName")
	}
}

func validate(msg types.Message) error {
	if msg.SenderId == "" {
		return types.Required("senderId")
	}
	if msg.SenderName == "" {
		return types.Required("senderName")
	}
	if msg.ReceiverId != "" && msg.ReceiverName == "" {
		return types.Required("receiverName")
	}

	switch msg.Type {
	case types.MessageTypeText:
		if strings.TrimSpace(msg.Content) == "" {
			return types.Required("content")
		}
	case types.MessageTypeVoice:
		if msg.VoiceUrl == "" {
			return types.Required("voiceUrl")
		}
	default:
		return types.Invalid("type", fmt.Sprintf("must be %q or %q", types.MessageTypeText, types.MessageTypeVoice))
	}

	return nil
}

func scopePrefix(scope conversation.Scope) string {
	return kv.Join(keyRoot, scope.Key()) + kv.Separator
}

// Append validates and stores msg, assigning an id and timestamp when they
// are missing. Ids are UUIDv7 so they sort in insertion order.
func (l *Log) Append(ctx context.Context, msg types.Message) (types.Message, error) {
	if msg.Type == "" {
		msg.Type = types.MessageTypeText
	}
	if err := validate(msg); err != nil {
		return types.Message{}, err
	}

	scope, err := ScopeOf(msg)
	if err != nil {
		return types.Message{}, err
	}

	if msg.Id == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return types.Message{}, fmt.Errorf("generate message id: %w", err)
		}
		msg.Id = id.String()
	} else if !kv.ValidSegment(msg.Id) {
		return types.Message{}, types.Invalid("id", "is malformed")
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = l.now()
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return types.Message{}, fmt.Errorf("encode message: %w", err)
	}

	if err := l.store.Put(ctx, scopePrefix(scope)+msg.Id, b, 0); err != nil {
		return types.Message{}, fmt.Errorf("store message: %w", err)
	}

	l.stats.Incr(MessagesMetric)
	if l.notifier != nil {
		l.notifier.Publish(scope, msg)
	}

	return msg, nil
}

// List returns every message in scope ordered by creation time, oldest
// first. Records that cannot be read are skipped.
func (l *Log) List(ctx context.Context, scope conversation.Scope) ([]types.Message, error) {
	keys, err := l.store.Keys(ctx, scopePrefix(scope))
	if err != nil {
		return nil, fmt.Errorf("list message keys: %w", err)
	}

	messages := make([]types.Message, 0, len(keys))
	for _, key := range keys {
		b, err := l.store.Get(ctx, key)
		if err != nil {
			l.log.Printf("list messages: skipping %q: %v", key, err)
			continue
		}

		var msg types.Message
		if err := json.Unmarshal(b, &msg); err != nil {
			l.log.Printf("list messages: skipping %q: %v", key, err)
			continue
		}

		messages = append(messages, msg)
	}

	slices.SortStableFunc(messages, func(a, b types.Message) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Id, b.Id)
	})

	return messages, nil
}
