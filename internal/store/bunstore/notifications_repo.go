package bunstore

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"dalau/agenda/internal/domain"
)

type NotificationRepo struct {
	db *bun.DB
}

func NewNotificationRepo(db *bun.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

func (r *NotificationRepo) Upsert(ctx context.Context, n domain.ScheduledNotification) (domain.ScheduledNotification, error) {
	fireAt := n.FireAt.UTC().Truncate(time.Second)
	m := domain.ScheduledNotification{
		Handle:      n.Handle,
		Title:       n.Title,
		Body:        n.Body,
		Data:        n.Data,
		FireAt:      fireAt,
		Status:      domain.NotificationStatusPending,
		MaxAttempts: n.MaxAttempts,
		NextRunAt:   fireAt,
	}
	if m.MaxAttempts <= 0 {
		m.MaxAttempts = 5
	}

	_, err := r.db.NewInsert().
		Model(&m).
		On("CONFLICT (handle) DO UPDATE").
		Set("title = EXCLUDED.title").
		Set("body = EXCLUDED.body").
		Set("data = EXCLUDED.data").
		Set("fire_at = EXCLUDED.fire_at").
		Set("status = EXCLUDED.status").
		Set("attempts = 0").
		Set("max_attempts = EXCLUDED.max_attempts").
		Set("next_run_at = EXCLUDED.next_run_at").
		Set("last_error = ''").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("id").
		Exec(ctx)
	if err != nil {
		return domain.ScheduledNotification{}, err
	}
	return m, nil
}

func (r *NotificationRepo) Cancel(ctx context.Context, handle string) (bool, error) {
	res, err := r.db.NewUpdate().
		Model((*domain.ScheduledNotification)(nil)).
		Set("status = ?", domain.NotificationStatusCancelled).
		Set("updated_at = ?", time.Now().UTC().Truncate(time.Second)).
		Where("handle = ?", handle).
		Where("status = ?", domain.NotificationStatusPending).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *NotificationRepo) FetchDue(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledNotification, error) {
	rows := make([]domain.ScheduledNotification, 0)
	err := r.db.NewSelect().
		Model(&rows).
		Where("status = ?", domain.NotificationStatusPending).
		Where("next_run_at <= ?", now.UTC().Truncate(time.Second)).
		OrderExpr("next_run_at ASC, id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *NotificationRepo) MarkSent(ctx context.Context, n domain.ScheduledNotification) (bool, error) {
	q := r.db.NewUpdate().
		Model((*domain.ScheduledNotification)(nil)).
		Set("status = ?", domain.NotificationStatusSent).
		Set("updated_at = ?", time.Now().UTC().Truncate(time.Second))
	res, err := unchangedSince(q, n).Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *NotificationRepo) MarkFailed(ctx context.Context, n domain.ScheduledNotification, attempts int, nextRunAt time.Time, lastError string) error {
	q := r.db.NewUpdate().
		Model((*domain.ScheduledNotification)(nil)).
		Set("attempts = ?", attempts).
		Set("status = CASE WHEN ? >= max_attempts THEN ? ELSE ? END",
			attempts, domain.NotificationStatusFailed, domain.NotificationStatusPending).
		Set("next_run_at = ?", nextRunAt.UTC().Truncate(time.Second)).
		Set("last_error = ?", lastError).
		Set("updated_at = ?", time.Now().UTC().Truncate(time.Second))
	_, err := unchangedSince(q, n).Exec(ctx)
	return err
}

// unchangedSince matches n only while it is pending with the content and
// timestamps it was fetched with.
func unchangedSince(q *bun.UpdateQuery, n domain.ScheduledNotification) *bun.UpdateQuery {
	return q.
		Where("id = ?", n.ID).
		Where("status = ?", domain.NotificationStatusPending).
		Where("next_run_at = ?", n.NextRunAt.UTC()).
		Where("updated_at = ?", n.UpdatedAt.UTC()).
		Where("title = ?", n.Title).
		Where("body = ?", n.Body)
}
