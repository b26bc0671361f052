package chat

import "github.com/ReilBleem13/ChatSync/internal/domain"

// The room list endpoint may return several records for the same room,
// each with a different subset of fields populated. Completeness
// scoring picks the most informative record; a lower-scoring record
// never overwrites a higher-scoring one.

func Score(room domain.Room) int {
	score := 0
	if len(room.Members) > 0 {
		score += 4
	}
	if room.LastMessage != nil {
		score += 2
	}
	if room.Name != "" {
		score++
	}
	if !room.LastActivityAt.IsZero() {
		score++
	}
	return score
}

// Merge returns the more complete of the two records. Equal scores are
// resolved by record content, never by arrival order, so folding a
// listing yields the same mapping for any permutation of it.
func Merge(existing *domain.Room, incoming domain.Room) domain.Room {
	if existing == nil {
		return incoming
	}
	existingScore, incomingScore := Score(*existing), Score(incoming)
	if incomingScore > existingScore {
		return incoming
	}
	if incomingScore == existingScore && recordLess(*existing, incoming) {
		return incoming
	}
	return *existing
}

// recordLess orders equal-score records by their scored fields: later
// activity, then newer last message, then larger roster, then name.
// Records equal under this order carry the same scored content and are
// interchangeable in the fold.
func recordLess(a, b domain.Room) bool {
	if !a.LastActivityAt.Equal(b.LastActivityAt) {
		return a.LastActivityAt.Before(b.LastActivityAt)
	}
	if aID, bID := summaryID(a.LastMessage), summaryID(b.LastMessage); aID != bID {
		return aID < bID
	}
	if len(a.Members) != len(b.Members) {
		return len(a.Members) < len(b.Members)
	}
	return a.Name < b.Name
}

func summaryID(s *domain.MessageSummary) int64 {
	if s == nil {
		return 0
	}
	return s.ID
}

// MergeAll folds Merge over the records keyed by room id. Exactly one
// record survives per id regardless of input order or duplication.
func MergeAll(records []domain.Room) map[int64]domain.Room {
	merged := make(map[int64]domain.Room, len(records))
	for _, record := range records {
		if existing, ok := merged[record.ID]; ok {
			merged[record.ID] = Merge(&existing, record)
		} else {
			merged[record.ID] = record
		}
	}
	return merged
}

// DirectRooms filters for the direct-message view. A DM shell with no
// message yet is not a conversation from the user's perspective, so it
// is excluded until its first message exists.
func DirectRooms(rooms []domain.Room) []domain.Room {
	result := make([]domain.Room, 0, len(rooms))
	for _, room := range rooms {
		if room.Kind == domain.DirectRoom && room.LastMessage != nil {
			result = append(result, room)
		}
	}
	return result
}

func GroupRooms(rooms []domain.Room) []domain.Room {
	result := make([]domain.Room, 0, len(rooms))
	for _, room := range rooms {
		if room.Kind == domain.GroupRoom {
			result = append(result, room)
		}
	}
	return result
}

const directPlaceholder = "Direct message"

// DirectTitle resolves a human-readable title for an unnamed DM:
// the other member's display name, else the last message's sender
// name, else a placeholder. This precedence is what gives a DM a
// title before any message exists.
func DirectTitle(room domain.Room, selfID int64) string {
	if room.Name != "" {
		return room.Name
	}
	for _, member := range room.Members {
		if member.UserID != selfID && member.DisplayName != "" {
			return member.DisplayName
		}
	}
	if room.LastMessage != nil && room.LastMessage.SenderName != "" {
		return room.LastMessage.SenderName
	}
	return directPlaceholder
}
