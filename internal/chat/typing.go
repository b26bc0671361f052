package chat

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

type typingEntry struct {
	displayName string
	expiresAt   time.Time
}

// TypingAggregator keeps a short-lived per-room set of typing users.
// Expiry is lazy: expired entries are purged on read, there is no
// background timer. The render layer polls Label at its own cadence.
type TypingAggregator struct {
	mu    sync.Mutex
	rooms map[int64]map[int64]typingEntry

	now func() time.Time
}

func NewTypingAggregator() *TypingAggregator {
	return &TypingAggregator{
		rooms: make(map[int64]map[int64]typingEntry),
		now:   time.Now,
	}
}

func (t *TypingAggregator) SetTyping(roomID, userID int64, displayName string, ttl time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries, ok := t.rooms[roomID]
	if !ok {
		entries = make(map[int64]typingEntry)
		t.rooms[roomID] = entries
	}
	entries[userID] = typingEntry{
		displayName: displayName,
		expiresAt:   t.now().Add(ttl),
	}
}

func (t *TypingAggregator) ClearTyping(roomID, userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entries, ok := t.rooms[roomID]; ok {
		delete(entries, userID)
		if len(entries) == 0 {
			delete(t.rooms, roomID)
		}
	}
}

// Active returns the users still typing in the room, purging expired
// entries as a side effect. State is room-scoped: nothing here leaks
// across rooms.
func (t *TypingAggregator) Active(roomID int64) []int64 {
	_, ids := t.active(roomID)
	return ids
}

// Label formats the typing indicator for a room. Never enumerates
// more than two names.
func (t *TypingAggregator) Label(roomID int64) string {
	names, _ := t.active(roomID)
	switch len(names) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%s is typing", names[0])
	case 2:
		return fmt.Sprintf("%s and %s are typing", names[0], names[1])
	default:
		return fmt.Sprintf("%d users are typing", len(names))
	}
}

func (t *TypingAggregator) active(roomID int64) ([]string, []int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries, ok := t.rooms[roomID]
	if !ok {
		return nil, nil
	}

	now := t.now()
	for userID, entry := range entries {
		if !entry.expiresAt.After(now) {
			delete(entries, userID)
		}
	}
	if len(entries) == 0 {
		delete(t.rooms, roomID)
		return nil, nil
	}

	ids := make([]int64, 0, len(entries))
	for userID := range entries {
		ids = append(ids, userID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	names := make([]string, len(ids))
	for i, userID := range ids {
		names[i] = entries[userID].displayName
	}
	return names, ids
}
