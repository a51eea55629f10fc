package main

import (
	"context"
	"flag"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"dalau/agenda/internal/app"
	"dalau/agenda/internal/config"
	"dalau/agenda/internal/store/bunstore"
)

func main() {
	exportICS := flag.String("export-ics", "", "write the agenda as an iCalendar file to this path (- for stdout) and exit")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", "agenda"),
	)
	slog.SetDefault(log)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn("dotenv load failed", slog.Any("err", err))
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", "agenda"),
	)
	slog.SetDefault(log)

	log.Info(
		"starting",
		slog.String("log_level", cfg.LogLevel),
		slog.String("timezone", cfg.Timezone),
		slog.String("notify_channel", cfg.NotifyChannel),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("opening database", databaseLogArgs(cfg.DatabaseURL)...)
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("startup failed", args...)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}()

	if *exportICS != "" {
		if err := export(ctx, a, *exportICS); err != nil {
			log.Error("ics export failed", slog.Any("err", err), slog.String("path", *exportICS))
			os.Exit(1)
		}
		log.Info("ics exported", slog.String("path", *exportICS))
		return
	}

	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	log.Info("notification dispatcher started")

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdown(log, done, cfg.ShutdownTimeout)
}

func export(ctx context.Context, a *app.App, path string) error {
	if path == "-" {
		return a.ExportICS(ctx, os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := a.ExportICS(ctx, f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func shutdown(log *slog.Logger, done <-chan struct{}, timeout time.Duration) {
	log.Info("stopping dispatcher", slog.Duration("timeout", timeout))

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		log.Info("dispatcher stopped")
	case <-timer.C:
		log.Warn("dispatcher shutdown timed out")
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	if !bunstore.IsPostgresDSN(databaseURL) {
		path := strings.TrimPrefix(databaseURL, "file:")
		if i := strings.IndexByte(path, '?'); i >= 0 {
			path = path[:i]
		}
		return []any{
			slog.String("db_driver", "sqlite"),
			slog.String("db_path", path),
		}
	}

	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_driver", "postgres"),
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
