// Package sender delivers due notifications to the studio owner.
package sender

import (
	"context"
	"log/slog"
)

type Message struct {
	// ID is the same for every attempt at one delivery.
	ID    string
	Title string
	Body  string
	Data  map[string]string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
	ProviderID() string
}

// LogSender writes notifications to the log. It is the default when no push
// or mail channel is configured.
type LogSender struct {
	log *slog.Logger
}

func NewLogSender(log *slog.Logger) *LogSender {
	if log == nil {
		log = slog.Default()
	}
	return &LogSender{log: log.With(slog.String("component", "notify.sender"))}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	attrs := []any{
		slog.String("delivery_id", msg.ID),
		slog.String("title", msg.Title),
		slog.String("body", msg.Body),
	}
	for k, v := range msg.Data {
		attrs = append(attrs, slog.String("data."+k, v))
	}
	s.log.InfoContext(ctx, "notification", attrs...)
	return nil
}

func (s *LogSender) ProviderID() string {
	return "log"
}
