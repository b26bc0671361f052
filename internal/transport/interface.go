package transport

import (
	"context"

	"github.com/ReilBleem13/ChatSync/internal/domain"
)

// Cursor selects one of the three message-page request modes. Exactly
// one mode applies: BeforeID wins over AfterID wins over Page/Size.
type Cursor struct {
	Page     int
	Size     int
	BeforeID int64
	AfterID  int64
}

type SendRequest struct {
	RoomID    int64
	Content   string
	Type      domain.MessageType
	ReplyToID *int64
	FileName  string
	FileSize  int64
}

type CreateRoomRequest struct {
	Name      string
	Kind      domain.RoomKind
	IsPrivate bool
	MemberIDs []int64
}

// API is the REST collaborator surface. The server owns all payload
// shapes and storage; this client only moves them.
type API interface {
	Rooms(ctx context.Context, page, size int) ([]domain.Room, error)

	// MessagePage returns messages in reverse-chronological order for
	// the default (page/size) mode and for BeforeID mode.
	MessagePage(ctx context.Context, roomID int64, cur Cursor) ([]domain.Message, error)

	Send(ctx context.Context, in SendRequest) (domain.Message, error)
	Delete(ctx context.Context, messageID int64) error

	CreateRoom(ctx context.Context, in CreateRoomRequest) (domain.Room, error)
	Join(ctx context.Context, roomID int64) error
	Leave(ctx context.Context, roomID int64) error
	AddMember(ctx context.Context, roomID, userID int64, role domain.MemberRole) error
	RemoveMember(ctx context.Context, roomID, userID int64) error

	OnlineUsers(ctx context.Context) ([]domain.PresenceSnapshot, error)

	// Typing is fire-and-forget on the server side; callers are
	// expected to ignore its error.
	Typing(ctx context.Context, roomID int64, isTyping bool) error
}

type State string

const (
	Disconnected State = "DISCONNECTED"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
)

// Channel is one push-channel transport connection. Connect may be
// called again after a drop; Subscribe/Unsubscribe are only valid
// while the channel is connected (the subscription manager replays
// them on every reconnect).
type Channel interface {
	Connect(ctx context.Context, token string) error
	SendSubscribe(topic string) error
	SendUnsubscribe(topic string) error

	// Events delivers pushed events. Events for topics the transport
	// was never told to subscribe to are silently dropped server-side,
	// never errored.
	Events() <-chan Event

	// Lifecycle emits Connected once the server acks the connection
	// and Disconnected when it drops. Connect itself only covers the
	// dial.
	Lifecycle() <-chan State

	Close() error
}
