package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"dalau/agenda/internal/domain"
)

// Appointments is the slice of the appointment store the scheduler reads.
type Appointments interface {
	List(ctx context.Context) ([]domain.Appointment, error)
	ListByDate(ctx context.Context, date string) ([]domain.Appointment, error)
	MarkNotificationScheduled(ctx context.Context, id int64) error
}

type Config struct {
	Location *time.Location

	NextDayHour   int
	NextDayMinute int

	DailyHour   int
	DailyMinute int

	FollowUpDays int
	FollowUpHour int

	// CountryCode prefixes client phones in WhatsApp links.
	CountryCode string
}

func DefaultConfig() Config {
	return Config{
		Location:     time.Local,
		NextDayHour:  21,
		DailyHour:    20,
		FollowUpDays: 28,
		FollowUpHour: 9,
		CountryCode:  "57",
	}
}

type Scheduler struct {
	appts    Appointments
	platform Platform
	cfg      Config
	now      func() time.Time
	log      *slog.Logger
}

func NewScheduler(appts Appointments, platform Platform, cfg Config, log *slog.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.FollowUpDays <= 0 {
		cfg.FollowUpDays = 28
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		appts:    appts,
		platform: platform,
		cfg:      cfg,
		now:      time.Now,
		log:      log.With(slog.String("component", "notify.scheduler")),
	}
}

// ScheduleNextDayReminder counts tomorrow's appointments and, when there are
// any, schedules tonight's reminder. The reminder is keyed by tomorrow's date
// so saving several appointments in one day keeps a single pending reminder
// with the latest count. Past the reminder hour it fires right away.
func (s *Scheduler) ScheduleNextDayReminder(ctx context.Context) error {
	now := s.now().In(s.cfg.Location)
	tomorrow := now.AddDate(0, 0, 1).Format(domain.DateLayout)

	appts, err := s.appts.ListByDate(ctx, tomorrow)
	if err != nil {
		return fmt.Errorf("list appointments for %s: %w", tomorrow, err)
	}
	if len(appts) == 0 {
		s.log.Debug("no appointments tomorrow", slog.String("date", tomorrow))
		return nil
	}

	fireAt := time.Date(now.Year(), now.Month(), now.Day(), s.cfg.NextDayHour, s.cfg.NextDayMinute, 0, 0, s.cfg.Location)
	if fireAt.Before(now) {
		fireAt = now
	}

	h, err := s.platform.ScheduleOneTime(ctx, Notification{
		Key:    NextDayKey(tomorrow),
		Title:  "Recordatorio de citas",
		Body:   fmt.Sprintf("Hay %d cita(s) programada(s) para mañana.", len(appts)),
		FireAt: fireAt,
		Data: map[string]string{
			"kind":  "next-day",
			"date":  tomorrow,
			"count": strconv.Itoa(len(appts)),
		},
	})
	if err != nil {
		return fmt.Errorf("schedule next-day reminder: %w", err)
	}

	s.log.Info(
		"next-day reminder scheduled",
		slog.String("handle", string(h)),
		slog.String("date", tomorrow),
		slog.Int("count", len(appts)),
		slog.Time("fire_at", fireAt),
	)
	return nil
}

// ScheduleFollowUp schedules the retention reminder for appt unless one was
// already scheduled. The flag is set only after the platform accepted it.
func (s *Scheduler) ScheduleFollowUp(ctx context.Context, appt domain.Appointment) error {
	if appt.NotificationScheduled {
		return nil
	}

	date, err := domain.DateAfter(appt.Date, s.cfg.FollowUpDays)
	if err != nil {
		return fmt.Errorf("follow-up date for appointment %d: %w", appt.ID, err)
	}
	day, err := domain.ParseDate(date, s.cfg.Location)
	if err != nil {
		return fmt.Errorf("follow-up date for appointment %d: %w", appt.ID, err)
	}
	fireAt := time.Date(day.Year(), day.Month(), day.Day(), s.cfg.FollowUpHour, 0, 0, 0, s.cfg.Location)

	h, err := s.platform.ScheduleOneTime(ctx, Notification{
		Key:    FollowUpKey(appt.ID),
		Title:  "Recordatorio de seguimiento",
		Body:   fmt.Sprintf("%s tuvo cita hace %d días.", appt.ClientName, s.cfg.FollowUpDays),
		FireAt: fireAt,
		Data: map[string]string{
			"kind":           "follow-up",
			"appointment_id": strconv.FormatInt(appt.ID, 10),
			"client_name":    appt.ClientName,
			"whatsapp_url":   appt.WhatsAppURL(s.cfg.CountryCode),
		},
	})
	if err != nil {
		return fmt.Errorf("schedule follow-up for appointment %d: %w", appt.ID, err)
	}

	if err := s.appts.MarkNotificationScheduled(ctx, appt.ID); err != nil {
		return fmt.Errorf("mark follow-up scheduled for appointment %d: %w", appt.ID, err)
	}

	s.log.Info(
		"follow-up scheduled",
		slog.String("handle", string(h)),
		slog.Int64("appointment_id", appt.ID),
		slog.Time("fire_at", fireAt),
	)
	return nil
}

// ScheduleFollowUps scans every appointment and schedules the follow-ups that
// are still missing. One failure does not stop the scan.
func (s *Scheduler) ScheduleFollowUps(ctx context.Context) error {
	appts, err := s.appts.List(ctx)
	if err != nil {
		return fmt.Errorf("list appointments: %w", err)
	}

	var errs []error
	for _, appt := range appts {
		if err := s.ScheduleFollowUp(ctx, appt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) ScheduleDailyReminder(ctx context.Context) error {
	h, err := s.platform.ScheduleRecurringDaily(ctx, Notification{
		Key:   DailyReminderKey,
		Title: "Recordatorio diario",
		Body:  "Recuerda revisar tus citas para mañana.",
		Data:  map[string]string{"kind": "daily"},
	}, s.cfg.DailyHour, s.cfg.DailyMinute)
	if err != nil {
		return fmt.Errorf("schedule daily reminder: %w", err)
	}

	s.log.Info(
		"daily reminder scheduled",
		slog.String("handle", string(h)),
		slog.Int("hour", s.cfg.DailyHour),
		slog.Int("minute", s.cfg.DailyMinute),
	)
	return nil
}

// Start runs once per process start.
func (s *Scheduler) Start(ctx context.Context) {
	if err := s.ScheduleFollowUps(ctx); err != nil {
		s.log.Warn("follow-up scan incomplete", slog.Any("err", err))
	}
	if err := s.ScheduleDailyReminder(ctx); err != nil {
		s.log.Warn("daily reminder not scheduled", slog.Any("err", err))
	}
}

func (s *Scheduler) AppointmentCreated(ctx context.Context, appt domain.Appointment) {
	if err := s.ScheduleNextDayReminder(ctx); err != nil {
		s.log.Warn("next-day reminder not scheduled", slog.Int64("appointment_id", appt.ID), slog.Any("err", err))
	}
	if err := s.ScheduleFollowUp(ctx, appt); err != nil {
		s.log.Warn("follow-up not scheduled", slog.Int64("appointment_id", appt.ID), slog.Any("err", err))
	}
}

// AppointmentDeleted cancels the follow-up keyed by id. A stale reminder is
// tolerated when cancelling fails.
func (s *Scheduler) AppointmentDeleted(ctx context.Context, id int64) {
	h := FollowUpKey(id)
	if err := s.platform.Cancel(ctx, h); err != nil {
		s.log.Warn("follow-up not cancelled", slog.Int64("appointment_id", id), slog.String("handle", string(h)), slog.Any("err", err))
		return
	}
	s.log.Info("follow-up cancelled", slog.Int64("appointment_id", id), slog.String("handle", string(h)))
}
