package store

import (
	"context"
	"time"

	"dalau/agenda/internal/domain"
)

type NotificationRepository interface {
	// Upsert stores n as pending, replacing any notification with the same handle.
	Upsert(ctx context.Context, n domain.ScheduledNotification) (domain.ScheduledNotification, error)
	// Cancel marks the pending notification with handle cancelled. It reports
	// whether anything was pending.
	Cancel(ctx context.Context, handle string) (bool, error)
	FetchDue(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledNotification, error)
	// MarkSent and MarkFailed update n only while it is still the row FetchDue
	// returned. A row replaced by Upsert in the meantime is left pending.
	MarkSent(ctx context.Context, n domain.ScheduledNotification) (bool, error)
	MarkFailed(ctx context.Context, n domain.ScheduledNotification, attempts int, nextRunAt time.Time, lastError string) error
}
