package chat

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ReilBleem13/ChatSync/internal/domain"
	"github.com/ReilBleem13/ChatSync/internal/transport"
)

const selfID = 10

func newTestFacade(t *testing.T, api *fakeAPI) *Facade {
	t.Helper()
	subs := NewSubscriptionManager(newFakeChannel(), "token", time.Millisecond)
	presence := NewPresenceTracker(api, time.Second, 2*time.Second)
	return NewFacade(api, subs, presence, FacadeConfig{
		SelfID:         selfID,
		PageSize:       50,
		TypingTTL:      4 * time.Second,
		MaxContentSize: 1024,
		MaxFileSize:    2048,
	})
}

func seedRoom(f *Facade, room domain.Room) {
	f.mu.Lock()
	f.rooms[room.ID] = room
	f.mu.Unlock()
}

func seedWindow(f *Facade, roomID int64, messages ...domain.Message) *Window {
	w := NewWindow(roomID, 50, f.api)
	w.messages = messages
	if len(messages) > 0 {
		w.oldestLoadedID = messages[0].ID
		w.newestLoadedID = messages[len(messages)-1].ID
	}
	f.mu.Lock()
	f.windows[roomID] = w
	f.mu.Unlock()
	return w
}

func TestSendValidation(t *testing.T) {
	calls := 0
	api := &fakeAPI{
		sendFn: func(ctx context.Context, in transport.SendRequest) (domain.Message, error) {
			calls++
			return domain.Message{ID: 1}, nil
		},
	}
	f := newTestFacade(t, api)

	cases := []struct {
		name string
		in   transport.SendRequest
	}{
		{"empty content", transport.SendRequest{RoomID: 1, Type: domain.TextMessage}},
		{"oversized content", transport.SendRequest{RoomID: 1, Type: domain.TextMessage, Content: string(make([]byte, 2000))}},
		{"oversized file", transport.SendRequest{RoomID: 1, Type: domain.FileMessage, FileName: "a.bin", FileSize: 1 << 20}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.Send(context.Background(), tc.in)
			var appErr *domain.AppError
			if !errors.As(err, &appErr) || appErr.Code != domain.ErrValidation.Code {
				t.Errorf("Send error = %v, want validation error", err)
			}
		})
	}

	// Rejected before any network call.
	if calls != 0 {
		t.Errorf("transport Send called %d times for invalid input", calls)
	}
}

func TestSendOptimisticReconcile(t *testing.T) {
	var f *Facade
	var pendingDuringSend int
	api := &fakeAPI{
		sendFn: func(ctx context.Context, in transport.SendRequest) (domain.Message, error) {
			pendingDuringSend = len(f.Pending(1))
			return msg(104), nil
		},
	}
	f = newTestFacade(t, api)
	seedRoom(f, domain.Room{ID: 1, Kind: domain.GroupRoom})
	w := seedWindow(f, 1, msg(101), msg(102), msg(103))

	confirmed, err := f.Send(context.Background(), transport.SendRequest{
		RoomID: 1, Content: "hi", Type: domain.TextMessage,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if pendingDuringSend != 1 {
		t.Errorf("pending during send = %d, want 1", pendingDuringSend)
	}
	if got := f.Pending(1); len(got) != 0 {
		t.Errorf("pending after confirm = %v, want empty", got)
	}

	assertIDs(t, w, 101, 102, 103, 104)

	// The push copy of the confirmed message is a duplicate.
	w.ApplyLive(confirmed)
	assertIDs(t, w, 101, 102, 103, 104)
}

func TestSendFailureRollsBack(t *testing.T) {
	api := &fakeAPI{
		sendFn: func(ctx context.Context, in transport.SendRequest) (domain.Message, error) {
			return domain.Message{}, domain.ErrTransport
		},
	}
	f := newTestFacade(t, api)
	seedRoom(f, domain.Room{ID: 1, Kind: domain.GroupRoom})
	w := seedWindow(f, 1, msg(101))

	_, err := f.Send(context.Background(), transport.SendRequest{
		RoomID: 1, Content: "hi", Type: domain.TextMessage,
	})
	if err == nil {
		t.Fatal("expected send failure")
	}
	if got := f.Pending(1); len(got) != 0 {
		t.Errorf("pending after failure = %v, want rolled back", got)
	}
	assertIDs(t, w, 101)
}

func TestDelete(t *testing.T) {
	t.Run("forbidden for bystander", func(t *testing.T) {
		called := false
		api := &fakeAPI{
			deleteFn: func(ctx context.Context, messageID int64) error {
				called = true
				return nil
			},
		}
		f := newTestFacade(t, api)
		seedRoom(f, domain.Room{ID: 1, CreatorID: 99})
		seedWindow(f, 1, msg(101)) // sender 201, not selfID

		err := f.Delete(context.Background(), 1, 101)
		var appErr *domain.AppError
		if !errors.As(err, &appErr) || appErr.Code != domain.ErrForbidden.Code {
			t.Errorf("Delete error = %v, want forbidden", err)
		}
		if called {
			t.Error("forbidden delete reached the transport")
		}
	})

	t.Run("conflict treated as success", func(t *testing.T) {
		api := &fakeAPI{
			deleteFn: func(ctx context.Context, messageID int64) error {
				return domain.ErrConflict
			},
		}
		f := newTestFacade(t, api)
		seedRoom(f, domain.Room{ID: 1, CreatorID: selfID})
		w := seedWindow(f, 1, msg(101), msg(102))

		if err := f.Delete(context.Background(), 1, 101); err != nil {
			t.Fatalf("Delete on conflict = %v, want nil", err)
		}
		assertIDs(t, w, 102)
	})

	t.Run("unloaded message defers to the server", func(t *testing.T) {
		called := false
		api := &fakeAPI{
			deleteFn: func(ctx context.Context, messageID int64) error {
				called = true
				return domain.ErrForbidden
			},
		}
		f := newTestFacade(t, api)
		seedRoom(f, domain.Room{ID: 1, CreatorID: 99})
		seedWindow(f, 1, msg(101))

		// Message 500 is not in the window, so the sender is unknown
		// client-side and the server's authorization decides.
		err := f.Delete(context.Background(), 1, 500)
		if !called {
			t.Fatal("delete for an unloaded message never reached the transport")
		}
		var appErr *domain.AppError
		if !errors.As(err, &appErr) || appErr.Code != domain.ErrForbidden.Code {
			t.Errorf("Delete error = %v, want the server's forbidden", err)
		}
	})

	t.Run("moderator deletes another's message", func(t *testing.T) {
		f := newTestFacade(t, &fakeAPI{})
		seedRoom(f, domain.Room{ID: 1, CreatorID: selfID})
		w := seedWindow(f, 1, msg(101))

		if err := f.Delete(context.Background(), 1, 101); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		assertIDs(t, w)
	})
}

func TestRemoveMember(t *testing.T) {
	called := false
	api := &fakeAPI{
		removeFn: func(ctx context.Context, roomID, userID int64) error {
			called = true
			return nil
		},
	}
	f := newTestFacade(t, api)
	seedRoom(f, domain.Room{ID: 1, CreatorID: 99})

	err := f.RemoveMember(context.Background(), 1, 40)
	var appErr *domain.AppError
	if !errors.As(err, &appErr) || appErr.Code != domain.ErrForbidden.Code {
		t.Errorf("RemoveMember error = %v, want forbidden", err)
	}
	if called {
		t.Error("forbidden removal reached the transport")
	}

	seedRoom(f, domain.Room{ID: 2, CreatorID: selfID})
	if err := f.RemoveMember(context.Background(), 2, 40); err != nil {
		t.Fatalf("RemoveMember as creator: %v", err)
	}
	if !called {
		t.Error("authorized removal never reached the transport")
	}
}

func TestRefreshRoomsMergesWithoutRegression(t *testing.T) {
	complete := domain.Room{
		ID:          7,
		Kind:        domain.GroupRoom,
		Members:     []domain.Member{{UserID: 2}},
		LastMessage: summary(5, "ann"),
	}
	listing := []domain.Room{complete}
	api := &fakeAPI{
		roomsFn: func(ctx context.Context, page, size int) ([]domain.Room, error) {
			if page == 1 {
				return listing, nil
			}
			return nil, nil
		},
	}
	f := newTestFacade(t, api)

	if err := f.RefreshRooms(context.Background()); err != nil {
		t.Fatalf("RefreshRooms: %v", err)
	}
	if len(f.Rooms()[0].Members) == 0 {
		t.Fatal("complete record not cached")
	}

	// A later fetch returning only a shell must not regress the
	// cached record's completeness.
	listing = []domain.Room{{ID: 7, Kind: domain.GroupRoom, Name: "Lobby"}}
	if err := f.RefreshRooms(context.Background()); err != nil {
		t.Fatalf("RefreshRooms: %v", err)
	}
	if len(f.Rooms()[0].Members) == 0 {
		t.Error("room list refresh regressed completeness")
	}
}

func TestHandleNewMessageEvent(t *testing.T) {
	f := newTestFacade(t, &fakeAPI{})
	seedRoom(f, domain.Room{ID: 1, Kind: domain.GroupRoom})
	seedRoom(f, domain.Room{ID: 2, Kind: domain.GroupRoom})
	w := seedWindow(f, 1, msg(101))

	f.mu.Lock()
	f.active = 1
	f.mu.Unlock()

	deliver := func(m domain.Message) {
		data, _ := json.Marshal(transport.NewMessageEvent{Message: m})
		f.handleEvent(context.Background(), transport.Event{Type: domain.NewMessageType, Data: data})
	}

	// Active room: applied to the window, no unread bump.
	deliver(msg(102))
	assertIDs(t, w, 101, 102)
	if f.Unread(1) != 0 {
		t.Errorf("active room unread = %d, want 0", f.Unread(1))
	}

	// Unselected room: counted unread, no window exists yet.
	other := msg(5)
	other.RoomID = 2
	deliver(other)
	if f.Unread(2) != 1 {
		t.Errorf("unselected room unread = %d, want 1", f.Unread(2))
	}

	// Room activity reflected in the cache.
	rooms := f.Rooms()
	if rooms[0].ID != 1 || rooms[0].LastMessage == nil || rooms[0].LastMessage.ID != 102 {
		t.Errorf("room cache not touched by live message: %+v", rooms[0])
	}
}

func TestLeaveEvictsWindow(t *testing.T) {
	f := newTestFacade(t, &fakeAPI{})
	seedRoom(f, domain.Room{ID: 1, Kind: domain.GroupRoom})
	w := seedWindow(f, 1, msg(101))

	f.mu.Lock()
	f.active = 1
	f.mu.Unlock()

	if err := f.Leave(context.Background(), 1); err != nil {
		t.Fatalf("Leave: %v", err)
	}

	if f.ActiveWindow() != nil {
		t.Error("active window survived leave")
	}
	// A late completion for the evicted window must be discarded.
	if w.ApplyLive(msg(102)) {
		t.Error("evicted window accepted a late live message")
	}
}

func TestSuggestions(t *testing.T) {
	f := newTestFacade(t, &fakeAPI{})
	seedRoom(f, domain.Room{ID: 1, Kind: domain.GroupRoom, Members: []domain.Member{{UserID: selfID}}})
	seedRoom(f, domain.Room{ID: 2, Kind: domain.GroupRoom, IsPrivate: true})
	seedRoom(f, domain.Room{ID: 3, Kind: domain.GroupRoom})
	seedRoom(f, domain.Room{ID: 4, Kind: domain.GroupRoom})
	seedRoom(f, domain.Room{ID: 5, Kind: domain.DirectRoom})

	got := f.Suggestions(10)
	if len(got) != 2 {
		t.Fatalf("Suggestions = %d rooms, want 2 (only public non-member groups)", len(got))
	}
	seen := map[int64]bool{}
	for _, room := range got {
		if room.ID != 3 && room.ID != 4 {
			t.Errorf("unexpected suggestion %d", room.ID)
		}
		if seen[room.ID] {
			t.Errorf("duplicate suggestion %d", room.ID)
		}
		seen[room.ID] = true
	}

	if got := f.Suggestions(1); len(got) != 1 {
		t.Errorf("Suggestions(1) = %d rooms, want 1", len(got))
	}
}

func TestTypingEventRouting(t *testing.T) {
	f := newTestFacade(t, &fakeAPI{})

	deliver := func(userID int64, name string, isTyping bool) {
		data, _ := json.Marshal(transport.TypingEvent{RoomID: 1, UserID: userID, DisplayName: name, IsTyping: isTyping})
		f.handleEvent(context.Background(), transport.Event{Type: domain.TypingType, Data: data})
	}

	deliver(20, "Ann", true)
	if got := f.TypingLabel(1); got != "Ann is typing" {
		t.Errorf("TypingLabel = %q", got)
	}

	// The viewer's own typing echo is ignored.
	deliver(selfID, "Me", true)
	if got := f.TypingLabel(1); got != "Ann is typing" {
		t.Errorf("self echo changed label to %q", got)
	}

	deliver(20, "Ann", false)
	if got := f.TypingLabel(1); got != "" {
		t.Errorf("label after stop = %q, want empty", got)
	}
}
