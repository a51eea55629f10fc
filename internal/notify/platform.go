package notify

import (
	"context"
	"strconv"
	"time"
)

// Handle identifies a scheduled notification so it can be replaced or
// cancelled later.
type Handle string

const DailyReminderKey Handle = "daily-reminder"

func NextDayKey(date string) Handle {
	return Handle("next-day:" + date)
}

func FollowUpKey(appointmentID int64) Handle {
	return Handle("follow-up:" + strconv.FormatInt(appointmentID, 10))
}

type Notification struct {
	// Key is the handle to schedule under. Scheduling again with the same key
	// replaces the pending notification. Empty means the platform picks one.
	Key    Handle
	Title  string
	Body   string
	FireAt time.Time
	Data   map[string]string
}

// Platform schedules local notifications. Every call may fail; callers treat
// failures as best effort.
type Platform interface {
	ScheduleOneTime(ctx context.Context, n Notification) (Handle, error)
	// ScheduleRecurringDaily fires n every day at hour:minute local time.
	// FireAt is ignored.
	ScheduleRecurringDaily(ctx context.Context, n Notification, hour, minute int) (Handle, error)
	Cancel(ctx context.Context, h Handle) error
}
