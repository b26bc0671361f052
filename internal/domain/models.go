package domain

import "time"

type Room struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name,omitempty"`
	Kind           RoomKind        `json:"kind"`
	IsPrivate      bool            `json:"is_private"`
	MemberCount    int             `json:"member_count"`
	CreatorID      int64           `json:"creator_id"`
	ModeratorIDs   []int64         `json:"moderator_ids,omitempty"`
	Members        []Member        `json:"members,omitempty"`
	LastMessage    *MessageSummary `json:"last_message,omitempty"`
	LastActivityAt time.Time       `json:"last_activity_at,omitempty"`
}

// Member returns the member entry for userID. A false result may mean
// "not a member" or "members not populated on this record" - callers
// that care about the difference must check len(r.Members) themselves.
func (r *Room) Member(userID int64) (Member, bool) {
	for _, m := range r.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return Member{}, false
}

type Member struct {
	UserID      int64      `json:"user_id"`
	DisplayName string     `json:"display_name"`
	Role        MemberRole `json:"role"`
	JoinedAt    time.Time  `json:"joined_at"`
	IsOnline    *bool      `json:"is_online,omitempty"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
}

type Message struct {
	ID         int64       `json:"id"`
	RoomID     int64       `json:"room_id"`
	SenderID   int64       `json:"sender_id"`
	SenderName string      `json:"sender_name,omitempty"`
	Content    string      `json:"content,omitempty"`
	Type       MessageType `json:"type"`
	ReplyToID  *int64      `json:"reply_to_id,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  *time.Time  `json:"updated_at,omitempty"`
}

type MessageSummary struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"sender_id"`
	SenderName string    `json:"sender_name,omitempty"`
	Content    string    `json:"content,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type PresenceSnapshot struct {
	UserID      int64          `json:"user_id"`
	Status      PresenceStatus `json:"status"`
	CurrentGame string         `json:"current_game,omitempty"`
	LastSeenAt  time.Time      `json:"last_seen_at"`
	CapturedAt  time.Time      `json:"captured_at"`
}

type (
	RoomKind string

	MemberRole string

	MessageType string

	PresenceStatus string

	EventType string
)

const (
	GroupRoom  RoomKind = "GROUP"
	DirectRoom RoomKind = "DIRECT"

	RoleAdmin     MemberRole = "ADMIN"
	RoleModerator MemberRole = "MODERATOR"
	RoleMember    MemberRole = "MEMBER"

	TextMessage   MessageType = "TEXT"
	ImageMessage  MessageType = "IMAGE"
	VideoMessage  MessageType = "VIDEO"
	AudioMessage  MessageType = "AUDIO"
	FileMessage   MessageType = "FILE"
	SystemMessage MessageType = "SYSTEM"

	StatusOnline  PresenceStatus = "ONLINE"
	StatusAway    PresenceStatus = "AWAY"
	StatusOffline PresenceStatus = "OFFLINE"

	// events
	NewMessageType     EventType = "new_message"
	DeleteMessageType  EventType = "delete_message"
	TypingType         EventType = "typing"
	PresenceChangeType EventType = "presence_change"
	NewMemberType      EventType = "new_member"
	LeftMemberType     EventType = "left_member"
	RoomUpdatedType    EventType = "room_updated"
)
