package types

import (
	"time"
)

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeVoice MessageType = "voice"
)

type User struct {
	Id        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	AvatarUrl string    `json:"avatarUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Message is a chat message in either a private conversation or a public
// room. Exactly one of ReceiverId and RoomName is set.
type Message struct {
	Id           string      `json:"id"`
	SenderId     string      `json:"senderId"`
	SenderName   string      `json:"senderName"`
	ReceiverId   string      `json:"receiverId,omitempty"`
	ReceiverName string      `json:"receiverName,omitempty"`
	RoomName     string      `json:"roomName,omitempty"`
	Type         MessageType `json:"type"`
	Content      string      `json:"content,omitempty"`
	VoiceUrl     string      `json:"voiceUrl,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
}

type Comment struct {
	Id        string    `json:"id"`
	MediaId   string    `json:"mediaId"`
	UserId    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type Like struct {
	MediaId   string    `json:"mediaId"`
	UserId    string    `json:"userId"`
	UserName  string    `json:"userName"`
	CreatedAt time.Time `json:"createdAt"`
}

// MediaItem is an uploaded image or video. LikesCount and CommentsCount are
// computed from the engagement ledger whenever the item is read.
type MediaItem struct {
	Id            string    `json:"id"`
	Filename      string    `json:"filename"`
	Url           string    `json:"url"`
	Type          string    `json:"type"`
	Size          int64     `json:"size"`
	UploadedBy    string    `json:"uploadedBy"`
	Tags          []string  `json:"tags"`
	LikesCount    int       `json:"likesCount"`
	CommentsCount int       `json:"commentsCount"`
	ViewsCount    int       `json:"viewsCount"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
