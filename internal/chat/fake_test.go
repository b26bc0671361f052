package chat

import (
	"context"
	"sync"

	"github.com/ReilBleem13/ChatSync/internal/domain"
	"github.com/ReilBleem13/ChatSync/internal/transport"
)

// fakeAPI is a scriptable transport.API: set the function fields a
// test needs, everything else succeeds with zero values.
type fakeAPI struct {
	roomsFn       func(ctx context.Context, page, size int) ([]domain.Room, error)
	messagePageFn func(ctx context.Context, roomID int64, cur transport.Cursor) ([]domain.Message, error)
	sendFn        func(ctx context.Context, in transport.SendRequest) (domain.Message, error)
	deleteFn      func(ctx context.Context, messageID int64) error
	onlineFn      func(ctx context.Context) ([]domain.PresenceSnapshot, error)
	typingFn      func(ctx context.Context, roomID int64, isTyping bool) error
	removeFn      func(ctx context.Context, roomID, userID int64) error
}

var _ transport.API = (*fakeAPI)(nil)

func (f *fakeAPI) Rooms(ctx context.Context, page, size int) ([]domain.Room, error) {
	if f.roomsFn != nil {
		return f.roomsFn(ctx, page, size)
	}
	return nil, nil
}

func (f *fakeAPI) MessagePage(ctx context.Context, roomID int64, cur transport.Cursor) ([]domain.Message, error) {
	if f.messagePageFn != nil {
		return f.messagePageFn(ctx, roomID, cur)
	}
	return nil, nil
}

func (f *fakeAPI) Send(ctx context.Context, in transport.SendRequest) (domain.Message, error) {
	if f.sendFn != nil {
		return f.sendFn(ctx, in)
	}
	return domain.Message{}, nil
}

func (f *fakeAPI) Delete(ctx context.Context, messageID int64) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, messageID)
	}
	return nil
}

func (f *fakeAPI) CreateRoom(ctx context.Context, in transport.CreateRoomRequest) (domain.Room, error) {
	return domain.Room{ID: 1, Name: in.Name, Kind: in.Kind}, nil
}

func (f *fakeAPI) Join(ctx context.Context, roomID int64) error  { return nil }
func (f *fakeAPI) Leave(ctx context.Context, roomID int64) error { return nil }

func (f *fakeAPI) AddMember(ctx context.Context, roomID, userID int64, role domain.MemberRole) error {
	return nil
}

func (f *fakeAPI) RemoveMember(ctx context.Context, roomID, userID int64) error {
	if f.removeFn != nil {
		return f.removeFn(ctx, roomID, userID)
	}
	return nil
}

func (f *fakeAPI) OnlineUsers(ctx context.Context) ([]domain.PresenceSnapshot, error) {
	if f.onlineFn != nil {
		return f.onlineFn(ctx)
	}
	return nil, nil
}

func (f *fakeAPI) Typing(ctx context.Context, roomID int64, isTyping bool) error {
	if f.typingFn != nil {
		return f.typingFn(ctx, roomID, isTyping)
	}
	return nil
}

// fakeChannel scripts the push-channel transport. Tests drive the
// lifecycle stream directly and inspect the recorded subscribe sends.
type fakeChannel struct {
	mu          sync.Mutex
	connects    int
	subscribes  []string
	unsubscribe []string

	events    chan transport.Event
	lifecycle chan transport.State
}

var _ transport.Channel = (*fakeChannel)(nil)

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		events:    make(chan transport.Event, 16),
		lifecycle: make(chan transport.State, 16),
	}
}

func (c *fakeChannel) Connect(ctx context.Context, token string) error {
	c.mu.Lock()
	c.connects++
	c.mu.Unlock()
	c.lifecycle <- transport.Connected
	return nil
}

func (c *fakeChannel) SendSubscribe(topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribes = append(c.subscribes, topic)
	return nil
}

func (c *fakeChannel) SendUnsubscribe(topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribe = append(c.unsubscribe, topic)
	return nil
}

func (c *fakeChannel) Events() <-chan transport.Event    { return c.events }
func (c *fakeChannel) Lifecycle() <-chan transport.State { return c.lifecycle }
func (c *fakeChannel) Close() error                      { return nil }

func (c *fakeChannel) sentSubscribes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.subscribes))
	copy(out, c.subscribes)
	return out
}

func (c *fakeChannel) drop() {
	c.lifecycle <- transport.Disconnected
}
