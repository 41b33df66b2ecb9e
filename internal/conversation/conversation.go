// Package conversation maps chat participants and room names to the storage
// namespaces that group their messages.
package conversation

import (
	"errors"
	"strings"

	"github.com/npezzotti/go-mediashare/internal/kv"
)

// IdSeparator joins the two participant ids of a private conversation. Ids
// containing it are rejected so that distinct pairs never share an id.
const IdSeparator = ":"

const DefaultRoom = "general"

var (
	ErrInvalidId        = errors.New("invalid conversation participant")
	ErrSelfConversation = errors.New("cannot start a private conversation with yourself")
)

type Kind string

const (
	KindPrivate Kind = "private"
	KindPublic  Kind = "public"
)

// Scope identifies the set of messages belonging to one conversation or
// room.
type Scope struct {
	Kind Kind
	Id   string
}

// Key is the storage prefix for the scope. Private and public scopes live
// under different roots so a room name can never equal a conversation id.
func (s Scope) Key() string {
	return kv.Join(string(s.Kind), s.Id)
}

func (s Scope) String() string {
	return s.Key()
}

// PrivateConversationId returns the same id regardless of argument order.
func PrivateConversationId(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}

	return userA + IdSeparator + userB
}

func PublicRoomId(roomName string) string {
	return roomName
}

func Private(userA, userB string) (Scope, error) {
	if !validParticipant(userA) || !validParticipant(userB) {
		return Scope{}, ErrInvalidId
	}
	if userA == userB {
		return Scope{}, ErrSelfConversation
	}

	return Scope{Kind: KindPrivate, Id: PrivateConversationId(userA, userB)}, nil
}

func Public(roomName string) (Scope, error) {
	if !kv.ValidSegment(roomName) {
		return Scope{}, ErrInvalidId
	}

	return Scope{Kind: KindPublic, Id: PublicRoomId(roomName)}, nil
}

func validParticipant(id string) bool {
	return kv.ValidSegment(id) && !strings.Contains(id, IdSeparator)
}
