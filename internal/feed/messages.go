package feed

import (
	"time"

	"github.com/npezzotti/go-mediashare/internal/types"
)

// ServerMessage is a frame pushed to feed subscribers.
type ServerMessage struct {
	Timestamp time.Time      `json:"timestamp"`
	Scope     string         `json:"scope,omitempty"`
	Message   *types.Message `json:"message,omitempty"`
	Closing   bool           `json:"closing,omitempty"`
}

func newMessageFrame(scope string, msg types.Message) *ServerMessage {
	return &ServerMessage{
		Timestamp: Now(),
		Scope:     scope,
		Message:   &msg,
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
