// Package app assembles the agenda from configuration.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/uptrace/bun"

	"dalau/agenda/internal/calexport"
	"dalau/agenda/internal/config"
	"dalau/agenda/internal/notify"
	"dalau/agenda/internal/notify/dispatch"
	"dalau/agenda/internal/notify/sender"
	"dalau/agenda/internal/service/appointments"
	"dalau/agenda/internal/store/bunstore"
)

type App struct {
	DB         *bun.DB
	Service    *appointments.Service
	Scheduler  *notify.Scheduler
	Dispatcher *dispatch.Dispatcher

	cfg config.Config
	log *slog.Logger
}

func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	snd, err := newSender(cfg, log)
	if err != nil {
		return nil, err
	}

	db, err := bunstore.Open(cfg.DatabaseURL, bunstore.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := bunstore.Migrate(ctx, db); err != nil {
		_ = bunstore.Close(db)
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	disp := dispatch.New(bunstore.NewNotificationRepo(db), snd, dispatch.Config{
		Location:    cfg.Location,
		Interval:    cfg.DispatchInterval,
		BatchSize:   cfg.DispatchBatchSize,
		Backoff:     cfg.DispatchBackoff,
		MaxAttempts: cfg.DispatchMaxAttempts,
	}, log)

	repo := bunstore.NewAppointmentRepo(db)
	sched := notify.NewScheduler(repo, disp, notify.Config{
		Location:      cfg.Location,
		NextDayHour:   cfg.NextDayHour,
		NextDayMinute: cfg.NextDayMinute,
		DailyHour:     cfg.DailyHour,
		DailyMinute:   cfg.DailyMinute,
		FollowUpDays:  cfg.FollowUpDays,
		FollowUpHour:  cfg.FollowUpHour,
		CountryCode:   cfg.CountryCode,
	}, log)

	return &App{
		DB:         db,
		Service:    appointments.NewService(repo, sched, cfg.Catalog, log),
		Scheduler:  sched,
		Dispatcher: disp,
		cfg:        cfg,
		log:        log,
	}, nil
}

// Run performs the process-start reminder pass and then delivers
// notifications until ctx is done.
func (a *App) Run(ctx context.Context) {
	a.Scheduler.Start(ctx)
	a.Dispatcher.Run(ctx)
}

func (a *App) ExportICS(ctx context.Context, w io.Writer) error {
	appts, err := a.Service.List(ctx)
	if err != nil {
		return fmt.Errorf("list appointments: %w", err)
	}
	return calexport.Write(w, appts, calexport.Options{
		Location:    a.cfg.Location,
		CountryCode: a.cfg.CountryCode,
	})
}

func (a *App) Close() error {
	return bunstore.Close(a.DB)
}

func newSender(cfg config.Config, log *slog.Logger) (sender.Sender, error) {
	switch cfg.NotifyChannel {
	case config.ChannelExpo:
		s, err := sender.NewExpoSender(cfg.ExpoTokens)
		if err != nil {
			return nil, fmt.Errorf("expo sender: %w", err)
		}
		return s, nil
	case config.ChannelEmail:
		s, err := sender.NewMailSender(sender.MailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			To:       cfg.MailTo,
		})
		if err != nil {
			return nil, fmt.Errorf("mail sender: %w", err)
		}
		return s, nil
	case config.ChannelLog, "":
		return sender.NewLogSender(log), nil
	default:
		return nil, fmt.Errorf("unknown notify channel %q", cfg.NotifyChannel)
	}
}
