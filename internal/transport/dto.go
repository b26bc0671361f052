package transport

import (
	"encoding/json"

	"github.com/ReilBleem13/ChatSync/internal/domain"
)

// Event is the envelope every push-channel payload arrives in.
type Event struct {
	Type domain.EventType `json:"type"`
	Data json.RawMessage  `json:"data,omitempty"`
}

type NewMessageEvent struct {
	Message domain.Message `json:"message"`
}

type DeleteMessageEvent struct {
	RoomID    int64 `json:"room_id"`
	MessageID int64 `json:"message_id"`
}

type TypingEvent struct {
	RoomID      int64  `json:"room_id"`
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	IsTyping    bool   `json:"is_typing"`
}

type PresenceEvent struct {
	UserID int64                 `json:"user_id"`
	Status domain.PresenceStatus `json:"status"`
}

type MemberEvent struct {
	RoomID int64 `json:"room_id"`
	UserID int64 `json:"user_id"`
}

// control frames sent over the websocket channel
type subscribeFrame struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

// request/response bodies for the REST client
type sendMessageBody struct {
	Content   string             `json:"content"`
	Type      domain.MessageType `json:"type"`
	ReplyToID *int64             `json:"reply_to_id,omitempty"`
	FileName  string             `json:"file_name,omitempty"`
	FileSize  int64              `json:"file_size,omitempty"`
}

type createRoomBody struct {
	Name      string          `json:"name"`
	Kind      domain.RoomKind `json:"kind"`
	IsPrivate bool            `json:"is_private"`
	MemberIDs []int64         `json:"member_ids,omitempty"`
}

type addMemberBody struct {
	UserID int64             `json:"user_id"`
	Role   domain.MemberRole `json:"role,omitempty"`
}

type typingBody struct {
	IsTyping bool `json:"is_typing"`
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
