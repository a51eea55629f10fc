// Package dispatch is the local notification platform. One-time reminders
// are rows in the scheduled_notifications table polled by a worker loop, so
// they survive restarts. Daily reminders run on an in-process cron and are
// registered again on every start.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"dalau/agenda/internal/domain"
	"dalau/agenda/internal/notify"
	"dalau/agenda/internal/notify/sender"
	"dalau/agenda/internal/store"
)

type Config struct {
	Location    *time.Location
	Interval    time.Duration
	BatchSize   int
	Backoff     time.Duration
	MaxAttempts int
}

type Dispatcher struct {
	repo   store.NotificationRepository
	sender sender.Sender
	cron   *cron.Cron
	log    *slog.Logger
	loc    *time.Location
	now    func() time.Time

	interval    time.Duration
	batchSize   int
	backoff     time.Duration
	maxAttempts int

	mu        sync.Mutex
	recurring map[notify.Handle]cron.EntryID
}

func New(repo store.NotificationRepository, snd sender.Sender, cfg Config, log *slog.Logger) *Dispatcher {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		repo:        repo,
		sender:      snd,
		cron:        cron.New(cron.WithLocation(cfg.Location)),
		log:         log.With(slog.String("component", "notify.dispatch"), slog.String("provider", snd.ProviderID())),
		loc:         cfg.Location,
		now:         time.Now,
		interval:    cfg.Interval,
		batchSize:   cfg.BatchSize,
		backoff:     cfg.Backoff,
		maxAttempts: cfg.MaxAttempts,
		recurring:   make(map[notify.Handle]cron.EntryID),
	}
}

func (d *Dispatcher) ScheduleOneTime(ctx context.Context, n notify.Notification) (notify.Handle, error) {
	if n.FireAt.IsZero() {
		return "", errors.New("dispatch: fire time is required")
	}
	h := handleFor(n)

	_, err := d.repo.Upsert(ctx, domain.ScheduledNotification{
		Handle:      string(h),
		Title:       n.Title,
		Body:        n.Body,
		Data:        n.Data,
		FireAt:      n.FireAt,
		MaxAttempts: d.maxAttempts,
	})
	if err != nil {
		return "", fmt.Errorf("dispatch: store notification %s: %w", h, err)
	}
	return h, nil
}

// ScheduleRecurringDaily registers n on the cron. A previous registration
// under the same key is replaced.
func (d *Dispatcher) ScheduleRecurringDaily(ctx context.Context, n notify.Notification, hour, minute int) (notify.Handle, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return "", fmt.Errorf("dispatch: invalid daily time %02d:%02d", hour, minute)
	}
	h := handleFor(n)
	msg := sender.Message{Title: n.Title, Body: n.Body, Data: n.Data}

	id, err := d.cron.AddFunc(fmt.Sprintf("%d %d * * *", minute, hour), func() {
		d.fireRecurring(h, msg)
	})
	if err != nil {
		return "", fmt.Errorf("dispatch: register daily %s: %w", h, err)
	}

	d.mu.Lock()
	if prev, ok := d.recurring[h]; ok {
		d.cron.Remove(prev)
	}
	d.recurring[h] = id
	d.mu.Unlock()

	return h, nil
}

// Cancel drops a daily registration or marks a pending one-time notification
// cancelled. Cancelling an unknown handle is not an error.
func (d *Dispatcher) Cancel(ctx context.Context, h notify.Handle) error {
	d.mu.Lock()
	id, ok := d.recurring[h]
	if ok {
		d.cron.Remove(id)
		delete(d.recurring, h)
	}
	d.mu.Unlock()
	if ok {
		return nil
	}

	cancelled, err := d.repo.Cancel(ctx, string(h))
	if err != nil {
		return fmt.Errorf("dispatch: cancel %s: %w", h, err)
	}
	if !cancelled {
		d.log.Debug("nothing pending to cancel", slog.String("handle", string(h)))
	}
	return nil
}

// Run delivers due notifications until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	d.cron.Start()
	defer func() {
		<-d.cron.Stop().Done()
	}()

	if err := d.processBatch(ctx); err != nil {
		d.log.Error("dispatch batch failed", slog.Any("err", err))
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.processBatch(ctx); err != nil {
				d.log.Error("dispatch batch failed", slog.Any("err", err))
			}
		}
	}
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	now := d.now().UTC()
	due, err := d.repo.FetchDue(ctx, now, d.batchSize)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	for _, n := range due {
		err := d.sender.Send(ctx, sender.Message{ID: deliveryID(n), Title: n.Title, Body: n.Body, Data: n.Data})
		if err == nil {
			// Marked one by one so a later storage error cannot resend it.
			marked, err := d.repo.MarkSent(ctx, n)
			if err != nil {
				return fmt.Errorf("mark %s sent: %w", n.Handle, err)
			}
			if !marked {
				d.log.Info("notification replaced during delivery", slog.String("handle", n.Handle))
				continue
			}
			d.log.Info("notification delivered", slog.String("handle", n.Handle))
			continue
		}

		attempts := n.Attempts + 1
		nextRunAt := now.Add(d.backoff * time.Duration(attempts))
		if err := d.repo.MarkFailed(ctx, n, attempts, nextRunAt, err.Error()); err != nil {
			return fmt.Errorf("mark %s failed: %w", n.Handle, err)
		}
		if attempts >= n.MaxAttempts {
			d.log.Error("notification dropped after max attempts", slog.String("handle", n.Handle), slog.Int("attempts", attempts), slog.Any("err", err))
			continue
		}
		d.log.Warn("notification delivery failed", slog.String("handle", n.Handle), slog.Int("attempts", attempts), slog.Time("next_run_at", nextRunAt), slog.Any("err", err))
	}
	return nil
}

func (d *Dispatcher) fireRecurring(h notify.Handle, msg sender.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.interval)
	defer cancel()

	msg.ID = dailyDeliveryID(h, d.now().In(d.loc))

	if err := d.sender.Send(ctx, msg); err != nil {
		d.log.Warn("daily notification failed", slog.String("handle", string(h)), slog.Any("err", err))
		return
	}
	d.log.Info("daily notification delivered", slog.String("handle", string(h)))
}

// deliveryID is stable for a given handle and content, so a retried reminder
// reaches the sender with the same id and receivers can drop the duplicate.
func deliveryID(n domain.ScheduledNotification) string {
	name := n.Handle + "|" + n.FireAt.UTC().Format(time.RFC3339) + "|" + n.Title + "|" + n.Body
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("agenda:"+name)).String()
}

func dailyDeliveryID(h notify.Handle, at time.Time) string {
	name := string(h) + "|" + at.Format(domain.DateLayout)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("agenda:"+name)).String()
}

func handleFor(n notify.Notification) notify.Handle {
	if n.Key != "" {
		return n.Key
	}
	return notify.Handle(uuid.NewString())
}
