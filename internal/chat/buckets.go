package chat

import (
	"time"

	"github.com/ReilBleem13/ChatSync/internal/domain"
)

// DayBucket is a contiguous run of messages sharing one calendar day
// in the viewer's location.
type DayBucket struct {
	Label    string
	Day      time.Time
	Messages []domain.Message
}

// Buckets groups the current window into calendar-day runs. Computed
// fresh on every call and never cached against the window: prepending
// older history can change bucket boundaries retroactively, and the
// Today/Yesterday labels shift with the wall clock, not with the
// messages.
func (w *Window) Buckets(now time.Time, loc *time.Location) []DayBucket {
	messages := w.Messages()
	if len(messages) == 0 {
		return nil
	}

	var buckets []DayBucket
	for _, msg := range messages {
		day := startOfDay(msg.CreatedAt.In(loc))
		if len(buckets) == 0 || !buckets[len(buckets)-1].Day.Equal(day) {
			buckets = append(buckets, DayBucket{
				Label: dayLabel(day, now.In(loc)),
				Day:   day,
			})
		}
		last := len(buckets) - 1
		buckets[last].Messages = append(buckets[last].Messages, msg)
	}
	return buckets
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func dayLabel(day, now time.Time) string {
	today := startOfDay(now)
	switch {
	case day.Equal(today):
		return "Today"
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	default:
		return day.Format("January 2, 2006")
	}
}
