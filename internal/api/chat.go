package api

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-mediashare/internal/conversation"
	"github.com/npezzotti/go-mediashare/internal/feed"
	"github.com/npezzotti/go-mediashare/internal/messagelog"
	"github.com/npezzotti/go-mediashare/internal/types"
	"github.com/teris-io/shortid"
)

const (
	maxVoiceSize     = 10 << 20
	voiceFormField   = "audio"
	voiceContentType = "audio/webm"
)

type PostMessageRequest struct {
	Content      string            `json:"content"`
	SenderId     string            `json:"senderId"`
	SenderName   string            `json:"senderName"`
	ReceiverId   string            `json:"receiverId"`
	ReceiverName string            `json:"receiverName"`
	Room         string            `json:"room"`
	Type         types.MessageType `json:"type"`
}

type MessagesResponse struct {
	Messages []types.Message `json:"messages"`
}

type MessageResponse struct {
	Message types.Message `json:"message"`
}

func roomOrDefault(room string) string {
	if room == "" {
		return conversation.DefaultRoom
	}
	return room
}

func (s *MediaShareApp) listMessages(w http.ResponseWriter, r *http.Request, scope conversation.Scope) {
	messages, err := s.messages.List(r.Context(), scope)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, MessagesResponse{Messages: messages})
}

func (s *MediaShareApp) getPublicMessages(w http.ResponseWriter, r *http.Request) {
	scope, err := conversation.Public(roomOrDefault(query(r, "room")))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.listMessages(w, r, scope)
}

func (s *MediaShareApp) getPrivateMessages(w http.ResponseWriter, r *http.Request) {
	user1Id, user2Id := query(r, "user1Id"), query(r, "user2Id")
	if user1Id == "" || user2Id == "" {
		s.writeError(w, NewInvalidRequestError("user1Id and user2Id are required"))
		return
	}

	scope, err := conversation.Private(user1Id, user2Id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.listMessages(w, r, scope)
}

func (s *MediaShareApp) appendMessage(w http.ResponseWriter, r *http.Request, msg types.Message) {
	stored, err := s.messages.Append(r.Context(), msg)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, MessageResponse{Message: stored})
}

func (s *MediaShareApp) postPublicMessage(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if err := s.decodeJson(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	trim(&req.Content, &req.SenderId, &req.SenderName, &req.Room)

	room := req.Room
	if room == "" {
		room = query(r, "room")
	}

	s.appendMessage(w, r, types.Message{
		SenderId:   req.SenderId,
		SenderName: req.SenderName,
		RoomName:   roomOrDefault(room),
		Type:       req.Type,
		Content:    req.Content,
	})
}

func (s *MediaShareApp) postPrivateMessage(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if err := s.decodeJson(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	trim(&req.Content, &req.SenderId, &req.SenderName, &req.ReceiverId, &req.ReceiverName)

	if req.ReceiverId == "" {
		s.writeError(w, types.Required("receiverId"))
		return
	}

	s.appendMessage(w, r, types.Message{
		SenderId:     req.SenderId,
		SenderName:   req.SenderName,
		ReceiverId:   req.ReceiverId,
		ReceiverName: req.ReceiverName,
		Type:         req.Type,
		Content:      req.Content,
	})
}

func (s *MediaShareApp) postPublicVoice(w http.ResponseWriter, r *http.Request) {
	s.postVoice(w, r, false)
}

func (s *MediaShareApp) postPrivateVoice(w http.ResponseWriter, r *http.Request) {
	s.postVoice(w, r, true)
}

// postVoice stores the uploaded recording and appends a voice message that
// links to it. The recording is removed again if the message is rejected.
func (s *MediaShareApp) postVoice(w http.ResponseWriter, r *http.Request, private bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxVoiceSize)
	if err := r.ParseMultipartForm(maxVoiceSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, NewRequestTooLargeError())
			return
		}
		s.writeError(w, NewInvalidRequestError("multipart form required"))
		return
	}

	msg := types.Message{
		SenderId:   formValue(r, "senderId"),
		SenderName: formValue(r, "senderName"),
		Type:       types.MessageTypeVoice,
	}
	required := map[string]string{"senderId": msg.SenderId, "senderName": msg.SenderName}
	if private {
		msg.ReceiverId = formValue(r, "receiverId")
		msg.ReceiverName = formValue(r, "receiverName")
		required["receiverId"] = msg.ReceiverId
		required["receiverName"] = msg.ReceiverName
	} else {
		msg.RoomName = roomOrDefault(formValue(r, "room"))
	}
	for _, field := range []string{"senderId", "senderName", "receiverId", "receiverName"} {
		if v, ok := required[field]; ok && v == "" {
			s.writeError(w, types.Required(field))
			return
		}
	}

	scope, err := messagelog.ScopeOf(msg)
	if err != nil {
		s.writeError(w, err)
		return
	}

	file, header, err := r.FormFile(voiceFormField)
	if err != nil {
		s.writeError(w, types.Required(voiceFormField))
		return
	}
	defer file.Close()

	id, err := shortid.Generate()
	if err != nil {
		s.writeError(w, fmt.Errorf("generate voice id: %w", err))
		return
	}
	key := path.Join("voice", string(scope.Kind), fmt.Sprintf("voice-%d-%s.webm", time.Now().UnixMilli(), id))

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = voiceContentType
	}

	url, err := s.objects.Put(r.Context(), key, contentType, file, header.Size)
	if err != nil {
		s.writeError(w, fmt.Errorf("store voice note: %w", err))
		return
	}
	msg.VoiceUrl = url

	stored, err := s.messages.Append(r.Context(), msg)
	if err != nil {
		if derr := s.objects.Delete(r.Context(), key); derr != nil {
			s.log.Printf("voice: remove orphaned object %q: %v", key, derr)
		}
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, MessageResponse{Message: stored})
}

func formValue(r *http.Request, key string) string {
	v := r.FormValue(key)
	trim(&v)
	return v
}

// feedScope resolves the scope a feed subscriber asked for.
func feedScope(r *http.Request) (conversation.Scope, error) {
	user1Id, user2Id := query(r, "user1Id"), query(r, "user2Id")
	if user1Id != "" || user2Id != "" {
		if user1Id == "" || user2Id == "" {
			return conversation.Scope{}, NewInvalidRequestError("user1Id and user2Id are required")
		}
		return conversation.Private(user1Id, user2Id)
	}

	return conversation.Public(roomOrDefault(query(r, "room")))
}

func (s *MediaShareApp) serveFeed(w http.ResponseWriter, r *http.Request) {
	scope, err := feedScope(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := feed.NewClient(scope, conn, s.hub, s.log)
	if !s.hub.RegisterClient(client) {
		conn.Close()
		return
	}
	go client.Write()
	go client.Read()
}
