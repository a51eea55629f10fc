package domain

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

type NotificationStatus string

const (
	NotificationStatusPending   NotificationStatus = "pending"
	NotificationStatusSent      NotificationStatus = "sent"
	NotificationStatusFailed    NotificationStatus = "failed"
	NotificationStatusCancelled NotificationStatus = "cancelled"
)

// ScheduledNotification is a one-time local reminder waiting to be delivered.
// Handle is unique; scheduling again under the same handle replaces it.
type ScheduledNotification struct {
	bun.BaseModel `bun:"table:scheduled_notifications"`

	ID          int64              `bun:"id,pk,autoincrement"`
	Handle      string             `bun:"handle,notnull,unique"`
	Title       string             `bun:"title,notnull"`
	Body        string             `bun:"body,notnull"`
	Data        map[string]string  `bun:"data"`
	FireAt      time.Time          `bun:"fire_at,notnull"`
	Status      NotificationStatus `bun:"status,notnull"`
	Attempts    int                `bun:"attempts,notnull"`
	MaxAttempts int                `bun:"max_attempts,notnull"`
	NextRunAt   time.Time          `bun:"next_run_at,notnull"`
	LastError   string             `bun:"last_error,notnull"`
	CreatedAt   time.Time          `bun:"created_at,notnull"`
	UpdatedAt   time.Time          `bun:"updated_at,notnull"`
}

func (n *ScheduledNotification) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC().Truncate(time.Second)
	switch query.(type) {
	case *bun.InsertQuery:
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}
		n.UpdatedAt = now
	case *bun.UpdateQuery:
		n.UpdatedAt = now
	}
	return nil
}
