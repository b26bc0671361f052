package chat

import (
	"github.com/ReilBleem13/ChatSync/internal/domain"
)

// IsModerator consults all three authority sources on the in-hand
// record: creator, the moderator id set, and the member roster's role.
// ModeratorIDs and Members can disagree when one payload is stale, so
// no single source is treated as canonical.
func IsModerator(room domain.Room, userID int64) bool {
	if userID == room.CreatorID {
		return true
	}
	for _, id := range room.ModeratorIDs {
		if id == userID {
			return true
		}
	}
	if member, ok := room.Member(userID); ok {
		return member.Role == domain.RoleAdmin || member.Role == domain.RoleModerator
	}
	return false
}

func CanDelete(msg domain.Message, room domain.Room, viewerID int64) bool {
	return viewerID == msg.SenderID || IsModerator(room, viewerID)
}

// CanRemoveMember never authorizes self-removal: leaving a room is a
// distinct operation, not a member removal.
func CanRemoveMember(room domain.Room, viewerID, targetID int64) bool {
	return targetID != viewerID && IsModerator(room, viewerID)
}
