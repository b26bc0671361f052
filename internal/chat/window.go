package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ReilBleem13/ChatSync/internal/domain"
	"github.com/ReilBleem13/ChatSync/internal/transport"
)

// Window is one room's in-memory message buffer. Messages are kept
// strictly ascending by id with no duplicates; that invariant is what
// lets the REST pagination path and the push delivery path write into
// the same buffer without coordinating beyond this mutex.
//
// No lock is held across a network call: loads fetch first, then take
// the lock to splice, re-checking the bounds and the closed flag. The
// oldest/newest loaded ids are the synchronization points.
type Window struct {
	roomID   int64
	pageSize int
	api      transport.API

	mu             sync.Mutex
	messages       []domain.Message
	hasMoreOlder   bool
	loading        bool
	closed         bool
	oldestLoadedID int64
	newestLoadedID int64
}

func NewWindow(roomID int64, pageSize int, api transport.API) *Window {
	return &Window{
		roomID:   roomID,
		pageSize: pageSize,
		api:      api,
	}
}

func (w *Window) RoomID() int64 {
	return w.roomID
}

// LoadInitial fetches the most recent page and replaces the buffer.
// The transport returns reverse-chronological order; storage is
// ascending. A failed load leaves the window untouched.
func (w *Window) LoadInitial(ctx context.Context) error {
	w.mu.Lock()
	if w.loading {
		w.mu.Unlock()
		return fmt.Errorf("room %d: load already in flight", w.roomID)
	}
	w.loading = true
	w.mu.Unlock()

	page, err := w.api.MessagePage(ctx, w.roomID, transport.Cursor{Size: w.pageSize})

	w.mu.Lock()
	defer w.mu.Unlock()
	w.loading = false

	if err != nil {
		return fmt.Errorf("load initial page for room %d: %w", w.roomID, err)
	}
	if w.closed {
		return nil
	}

	ascending := reversed(page)

	// A live message pushed while the fetch was in flight may already
	// sit in the buffer beyond the page's newest id. Keep it.
	if len(ascending) == 0 {
		w.hasMoreOlder = false
		return nil
	}
	newest := ascending[len(ascending)-1].ID
	for _, msg := range w.messages {
		if msg.ID > newest {
			ascending = append(ascending, msg)
		}
	}

	w.messages = ascending
	w.hasMoreOlder = len(page) == w.pageSize
	w.oldestLoadedID = ascending[0].ID
	w.newestLoadedID = ascending[len(ascending)-1].ID
	return nil
}

// LoadOlder fetches the page strictly before the oldest loaded id and
// prepends it. It is a no-op (false, nil) when a load is already in
// flight, when the server has no more history, or when the window is
// empty. A second concurrent call is rejected, not queued, so a page
// can never be prepended twice.
func (w *Window) LoadOlder(ctx context.Context) (bool, error) {
	w.mu.Lock()
	if w.loading || !w.hasMoreOlder || len(w.messages) == 0 {
		w.mu.Unlock()
		return false, nil
	}
	w.loading = true
	beforeID := w.oldestLoadedID
	w.mu.Unlock()

	page, err := w.api.MessagePage(ctx, w.roomID, transport.Cursor{BeforeID: beforeID, Size: w.pageSize})

	w.mu.Lock()
	defer w.mu.Unlock()
	w.loading = false

	if err != nil {
		return false, fmt.Errorf("load older page for room %d: %w", w.roomID, err)
	}
	if w.closed {
		return false, nil
	}

	if len(page) == 0 {
		// The server has no more history. Pinned for this window's
		// lifetime.
		w.hasMoreOlder = false
		return true, nil
	}

	ascending := reversed(page)

	// The fetch ran unlocked, so re-check against the current bound:
	// only messages still strictly older than everything loaded are
	// prepended.
	older := ascending[:0]
	for _, msg := range ascending {
		if msg.ID < w.oldestLoadedID {
			older = append(older, msg)
		}
	}
	if len(older) > 0 {
		w.messages = append(older, w.messages...)
		w.oldestLoadedID = older[0].ID
	}
	return true, nil
}

// ApplyLive merges one pushed (or send-confirmed) message. Idempotent
// by id: the optimistic send's REST response and the simultaneous push
// event may both deliver the same message. A live message with an id
// below the newest loaded bound is a stale retry and is dropped -
// strict ascending order is an invariant, not a best effort.
func (w *Window) ApplyLive(msg domain.Message) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return false
	}
	if w.contains(msg.ID) {
		return false
	}
	if msg.ID < w.newestLoadedID {
		return false
	}

	w.messages = append(w.messages, msg)
	w.newestLoadedID = msg.ID
	if len(w.messages) == 1 {
		w.oldestLoadedID = msg.ID
	}
	return true
}

// Remove deletes a message by id. Absent ids are a no-op: the delete
// may race an eviction or arrive twice (push event plus REST confirm).
func (w *Window) Remove(id int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	i := sort.Search(len(w.messages), func(i int) bool {
		return w.messages[i].ID >= id
	})
	if i >= len(w.messages) || w.messages[i].ID != id {
		return false
	}
	w.messages = append(w.messages[:i], w.messages[i+1:]...)
	return true
}

func (w *Window) Messages() []domain.Message {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]domain.Message, len(w.messages))
	copy(out, w.messages)
	return out
}

func (w *Window) HasMoreOlder() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.hasMoreOlder
}

func (w *Window) Bounds() (oldest, newest int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.oldestLoadedID, w.newestLoadedID
}

// Close marks the window evicted. Late-arriving load or push
// completions for a closed window are discarded instead of mutating
// state that no longer belongs to any room.
func (w *Window) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

// contains assumes w.mu is held.
func (w *Window) contains(id int64) bool {
	i := sort.Search(len(w.messages), func(i int) bool {
		return w.messages[i].ID >= id
	})
	return i < len(w.messages) && w.messages[i].ID == id
}

func reversed(page []domain.Message) []domain.Message {
	out := make([]domain.Message, len(page))
	for i, msg := range page {
		out[len(page)-1-i] = msg
	}
	return out
}
