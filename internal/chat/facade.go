package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/ReilBleem13/ChatSync/internal/domain"
	"github.com/ReilBleem13/ChatSync/internal/transport"
	"github.com/google/uuid"
)

// PendingMessage is an optimistic send awaiting server confirmation.
type PendingMessage struct {
	TempID    string
	RoomID    int64
	Content   string
	Type      domain.MessageType
	CreatedAt time.Time
}

type FacadeConfig struct {
	SelfID         int64
	PageSize       int
	TypingTTL      time.Duration
	MaxContentSize int
	MaxFileSize    int64
}

// Facade composes the merger cache, per-room windows, presence,
// typing, and the subscription manager into the operations the UI
// layer calls. It is the composition root: every component below it
// is constructed and owned here, with a lifetime tied to the chat
// session, not the process.
type Facade struct {
	api      transport.API
	subs     *SubscriptionManager
	presence *PresenceTracker
	typing   *TypingAggregator
	cfg      FacadeConfig

	mu      sync.Mutex
	rooms   map[int64]domain.Room
	windows map[int64]*Window
	pending map[string]PendingMessage
	unread  map[int64]int
	active  int64

	updates chan struct{}
}

func NewFacade(api transport.API, subs *SubscriptionManager, presence *PresenceTracker, cfg FacadeConfig) *Facade {
	return &Facade{
		api:      api,
		subs:     subs,
		presence: presence,
		typing:   NewTypingAggregator(),
		cfg:      cfg,
		rooms:    make(map[int64]domain.Room),
		windows:  make(map[int64]*Window),
		pending:  make(map[string]PendingMessage),
		unread:   make(map[int64]int),
		updates:  make(chan struct{}, 1),
	}
}

// Run starts the push channel, presence polling, and event routing.
// Returns immediately; everything stops when ctx is cancelled.
func (f *Facade) Run(ctx context.Context) {
	f.subs.OnStateChange(func(state transport.State) {
		// Connectivity changes are state, never errors: the UI only
		// needs to know whether live-derived views are trustworthy.
		f.notify()
	})
	f.subs.Subscribe(userTopic(f.cfg.SelfID))
	f.subs.Run(ctx)

	f.presence.Start(ctx)

	go f.routeEvents(ctx)
}

// RefreshRooms fetches the full room listing page by page and merges
// it into the cache. Incoming records never regress completeness of
// what is already cached.
func (f *Facade) RefreshRooms(ctx context.Context) error {
	var fetched []domain.Room
	for page := 1; ; page++ {
		batch, err := f.api.Rooms(ctx, page, f.cfg.PageSize)
		if err != nil {
			return fmt.Errorf("fetch room list page %d: %w", page, err)
		}
		fetched = append(fetched, batch...)
		if len(batch) < f.cfg.PageSize {
			break
		}
	}

	merged := MergeAll(fetched)

	f.mu.Lock()
	for id, incoming := range merged {
		if existing, ok := f.rooms[id]; ok {
			f.rooms[id] = Merge(&existing, incoming)
		} else {
			f.rooms[id] = incoming
		}
		f.subs.Subscribe(roomTopic(id))
	}
	f.mu.Unlock()

	f.notify()
	return nil
}

// Rooms returns the cached rooms, most recently active first.
func (f *Facade) Rooms() []domain.Room {
	f.mu.Lock()
	defer f.mu.Unlock()

	result := make([]domain.Room, 0, len(f.rooms))
	for _, room := range f.rooms {
		result = append(result, room)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LastActivityAt.After(result[j].LastActivityAt)
	})
	return result
}

func (f *Facade) GroupConversations() []domain.Room {
	return GroupRooms(f.Rooms())
}

func (f *Facade) DirectConversations() []domain.Room {
	return DirectRooms(f.Rooms())
}

// RoomTitle resolves the display title, falling through the DM
// precedence for unnamed direct rooms.
func (f *Facade) RoomTitle(roomID int64) string {
	f.mu.Lock()
	room, ok := f.rooms[roomID]
	f.mu.Unlock()

	if !ok {
		return ""
	}
	if room.Kind == domain.DirectRoom {
		return DirectTitle(room, f.cfg.SelfID)
	}
	return room.Name
}

// SelectRoom makes roomID the active room and loads its initial page.
// Windows persist across switches; only leave or cache invalidation
// evicts them.
func (f *Facade) SelectRoom(ctx context.Context, roomID int64) error {
	f.mu.Lock()
	if _, ok := f.rooms[roomID]; !ok {
		f.mu.Unlock()
		return domain.ErrNotFound.WithMessage(fmt.Sprintf("room %d is not in the cache", roomID))
	}

	window, ok := f.windows[roomID]
	if !ok {
		window = NewWindow(roomID, f.cfg.PageSize, f.api)
		f.windows[roomID] = window
	}
	f.active = roomID
	f.unread[roomID] = 0
	f.mu.Unlock()

	f.notify()

	if len(window.Messages()) > 0 {
		return nil
	}
	if err := window.LoadInitial(ctx); err != nil {
		return err
	}
	f.notify()
	return nil
}

// ActiveWindow returns the selected room's window, or nil.
func (f *Facade) ActiveWindow() *Window {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active == 0 {
		return nil
	}
	return f.windows[f.active]
}

// LoadOlder pages the active room backwards. No-op when nothing is
// selected, a load is in flight, or history is exhausted.
func (f *Facade) LoadOlder(ctx context.Context) (bool, error) {
	window := f.ActiveWindow()
	if window == nil {
		return false, nil
	}
	loaded, err := window.LoadOlder(ctx)
	if loaded {
		f.notify()
	}
	return loaded, err
}

// Send validates, inserts an optimistic pending message, and
// reconciles it against the server-confirmed record. The confirmed
// message and its push-delivered copy deduplicate through the
// window's id check. On failure the pending message is rolled back
// and the error surfaces for a user-visible retry.
func (f *Facade) Send(ctx context.Context, in transport.SendRequest) (domain.Message, error) {
	if err := f.validateSend(in); err != nil {
		return domain.Message{}, err
	}

	tempID := uuid.NewString()
	f.mu.Lock()
	f.pending[tempID] = PendingMessage{
		TempID:    tempID,
		RoomID:    in.RoomID,
		Content:   in.Content,
		Type:      in.Type,
		CreatedAt: time.Now(),
	}
	f.mu.Unlock()
	f.notify()

	confirmed, err := f.api.Send(ctx, in)

	f.mu.Lock()
	delete(f.pending, tempID)
	window := f.windows[in.RoomID]
	f.mu.Unlock()

	if err != nil {
		f.notify()
		return domain.Message{}, fmt.Errorf("send message to room %d: %w", in.RoomID, err)
	}

	if window != nil {
		window.ApplyLive(confirmed)
	}
	f.touchRoom(confirmed)
	f.notify()
	return confirmed, nil
}

func (f *Facade) validateSend(in transport.SendRequest) error {
	isFile := in.Type == domain.ImageMessage || in.Type == domain.VideoMessage ||
		in.Type == domain.AudioMessage || in.Type == domain.FileMessage

	if !isFile && in.Content == "" {
		return domain.ErrValidation.WithMessage("message content is empty")
	}
	if len(in.Content) > f.cfg.MaxContentSize {
		return domain.ErrValidation.WithMessage("message content is too large")
	}
	if isFile && in.FileSize > f.cfg.MaxFileSize {
		return domain.ErrValidation.WithMessage("file is too large")
	}
	return nil
}

// Pending returns the optimistic messages for a room, oldest first.
func (f *Facade) Pending(roomID int64) []PendingMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []PendingMessage
	for _, p := range f.pending {
		if p.RoomID == roomID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Delete removes a message after the moderation check. A conflict
// from the server (already deleted) counts as success.
func (f *Facade) Delete(ctx context.Context, roomID, messageID int64) error {
	f.mu.Lock()
	room, ok := f.rooms[roomID]
	window := f.windows[roomID]
	f.mu.Unlock()

	if !ok {
		return domain.ErrNotFound.WithMessage(fmt.Sprintf("room %d is not in the cache", roomID))
	}

	// The sender is unknown when the message is outside the loaded
	// window, so the local gate cannot run; the delete is forwarded and
	// the server's own authorization decides.
	sender, found := findSender(window, messageID)
	if found && !CanDelete(domain.Message{SenderID: sender}, room, f.cfg.SelfID) {
		return domain.ErrForbidden.WithMessage("only the sender or a moderator can delete a message")
	}

	if err := f.api.Delete(ctx, messageID); err != nil && !isConflict(err) {
		return fmt.Errorf("delete message %d: %w", messageID, err)
	}

	if window != nil {
		window.Remove(messageID)
	}
	f.notify()
	return nil
}

func (f *Facade) CreateRoom(ctx context.Context, in transport.CreateRoomRequest) (domain.Room, error) {
	room, err := f.api.CreateRoom(ctx, in)
	if err != nil {
		return domain.Room{}, fmt.Errorf("create room: %w", err)
	}

	f.mu.Lock()
	f.rooms[room.ID] = room
	f.mu.Unlock()

	f.subs.Subscribe(roomTopic(room.ID))
	f.notify()
	return room, nil
}

func (f *Facade) Join(ctx context.Context, roomID int64) error {
	if err := f.api.Join(ctx, roomID); err != nil && !isConflict(err) {
		return fmt.Errorf("join room %d: %w", roomID, err)
	}
	f.subs.Subscribe(roomTopic(roomID))
	return nil
}

// Leave exits the room and evicts its cached record and window. This
// is the only self-removal path; it is never routed through member
// removal.
func (f *Facade) Leave(ctx context.Context, roomID int64) error {
	if err := f.api.Leave(ctx, roomID); err != nil && !isConflict(err) {
		return fmt.Errorf("leave room %d: %w", roomID, err)
	}

	f.mu.Lock()
	delete(f.rooms, roomID)
	delete(f.unread, roomID)
	if window, ok := f.windows[roomID]; ok {
		window.Close()
		delete(f.windows, roomID)
	}
	if f.active == roomID {
		f.active = 0
	}
	f.mu.Unlock()

	f.subs.Unsubscribe(roomTopic(roomID))
	f.notify()
	return nil
}

func (f *Facade) Invite(ctx context.Context, roomID, userID int64, role domain.MemberRole) error {
	if err := f.api.AddMember(ctx, roomID, userID, role); err != nil && !isConflict(err) {
		return fmt.Errorf("invite user %d to room %d: %w", userID, roomID, err)
	}
	return nil
}

func (f *Facade) RemoveMember(ctx context.Context, roomID, targetID int64) error {
	f.mu.Lock()
	room, ok := f.rooms[roomID]
	f.mu.Unlock()

	if !ok {
		return domain.ErrNotFound.WithMessage(fmt.Sprintf("room %d is not in the cache", roomID))
	}
	if !CanRemoveMember(room, f.cfg.SelfID, targetID) {
		return domain.ErrForbidden.WithMessage("member removal requires moderator authority")
	}

	if err := f.api.RemoveMember(ctx, roomID, targetID); err != nil && !isConflict(err) {
		return fmt.Errorf("remove member %d from room %d: %w", targetID, roomID, err)
	}
	return nil
}

// SetTyping notifies the server that the viewer is typing in the
// active room. Best effort: failures are logged and swallowed.
func (f *Facade) SetTyping(ctx context.Context, isTyping bool) {
	f.mu.Lock()
	roomID := f.active
	f.mu.Unlock()

	if roomID == 0 {
		return
	}
	if err := f.api.Typing(ctx, roomID, isTyping); err != nil {
		slog.Debug("Typing notification failed", "room_id", roomID, "error", err)
	}
}

func (f *Facade) TypingLabel(roomID int64) string {
	return f.typing.Label(roomID)
}

func (f *Facade) OnlineUsers() []domain.PresenceSnapshot {
	return f.presence.Online(f.cfg.SelfID)
}

func (f *Facade) ConnState() transport.State {
	return f.subs.State()
}

func (f *Facade) Unread(roomID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread[roomID]
}

// Suggestions returns up to n public group rooms the viewer is not a
// member of, in random order.
func (f *Facade) Suggestions(n int) []domain.Room {
	f.mu.Lock()
	var candidates []domain.Room
	for _, room := range f.rooms {
		if room.Kind != domain.GroupRoom || room.IsPrivate {
			continue
		}
		if _, ok := room.Member(f.cfg.SelfID); ok {
			continue
		}
		candidates = append(candidates, room)
	}
	f.mu.Unlock()

	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}

// Updates is a coalescing change signal: the UI drains it and re-reads
// whatever state it renders. The exact notification mechanism beyond
// this is the UI layer's concern.
func (f *Facade) Updates() <-chan struct{} {
	return f.updates
}

func (f *Facade) notify() {
	select {
	case f.updates <- struct{}{}:
	default:
	}
}

func (f *Facade) routeEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-f.subs.Events():
			if !ok {
				return
			}
			f.handleEvent(ctx, event)
		}
	}
}

func (f *Facade) handleEvent(ctx context.Context, event transport.Event) {
	switch event.Type {
	case domain.NewMessageType:
		var payload transport.NewMessageEvent
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			slog.Error("Failed to unmarshal new_message event", "error", err)
			return
		}
		f.applyNewMessage(payload.Message)

	case domain.DeleteMessageType:
		var payload transport.DeleteMessageEvent
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			slog.Error("Failed to unmarshal delete_message event", "error", err)
			return
		}
		f.mu.Lock()
		window := f.windows[payload.RoomID]
		f.mu.Unlock()
		if window != nil && window.Remove(payload.MessageID) {
			f.notify()
		}

	case domain.TypingType:
		var payload transport.TypingEvent
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			slog.Error("Failed to unmarshal typing event", "error", err)
			return
		}
		if payload.UserID == f.cfg.SelfID {
			return
		}
		if payload.IsTyping {
			f.typing.SetTyping(payload.RoomID, payload.UserID, payload.DisplayName, f.cfg.TypingTTL)
		} else {
			f.typing.ClearTyping(payload.RoomID, payload.UserID)
		}
		f.notify()

	case domain.PresenceChangeType:
		// The tracker is a full-refresh feed; the event is only a
		// hint to refresh early instead of waiting for the tick.
		go func() {
			if err := f.presence.Refresh(ctx); err != nil {
				slog.Debug("Presence refresh after push hint failed", "error", err)
			}
			f.notify()
		}()

	case domain.NewMemberType, domain.LeftMemberType, domain.RoomUpdatedType:
		f.notify()

	default:
		slog.Debug("Ignoring unknown push event", "type", event.Type)
	}
}

func (f *Facade) applyNewMessage(msg domain.Message) {
	f.mu.Lock()
	window := f.windows[msg.RoomID]
	isActive := f.active == msg.RoomID
	if !isActive {
		if _, ok := f.rooms[msg.RoomID]; ok {
			f.unread[msg.RoomID]++
		}
	}
	f.mu.Unlock()

	// No window means the room was never selected; the message will
	// come back on the initial page load.
	if window != nil {
		window.ApplyLive(msg)
	}
	f.touchRoom(msg)
	f.notify()
}

// touchRoom updates the cached room's last-message summary and
// activity timestamp without regressing record completeness.
func (f *Facade) touchRoom(msg domain.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()

	room, ok := f.rooms[msg.RoomID]
	if !ok {
		return
	}
	if room.LastMessage == nil || msg.ID > room.LastMessage.ID {
		room.LastMessage = &domain.MessageSummary{
			ID:         msg.ID,
			SenderID:   msg.SenderID,
			SenderName: msg.SenderName,
			Content:    msg.Content,
			CreatedAt:  msg.CreatedAt,
		}
		if msg.CreatedAt.After(room.LastActivityAt) {
			room.LastActivityAt = msg.CreatedAt
		}
		f.rooms[msg.RoomID] = room
	}
}

func findSender(window *Window, messageID int64) (int64, bool) {
	if window == nil {
		return 0, false
	}
	for _, msg := range window.Messages() {
		if msg.ID == messageID {
			return msg.SenderID, true
		}
	}
	return 0, false
}

func isConflict(err error) bool {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return appErr.Code == domain.ErrConflict.Code
	}
	return false
}

func roomTopic(roomID int64) string {
	return fmt.Sprintf("room:%d", roomID)
}

func userTopic(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}
