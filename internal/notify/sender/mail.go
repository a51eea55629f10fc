package sender

import (
	"context"
	"errors"
	"sort"
	"strings"

	"gopkg.in/gomail.v2"
)

type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// MailSender emails notifications over SMTP.
type MailSender struct {
	cfg  MailConfig
	send func(m *gomail.Message) error
}

func NewMailSender(cfg MailConfig) (*MailSender, error) {
	if cfg.Host == "" {
		return nil, errors.New("mail: smtp host is required")
	}
	if len(cfg.To) == 0 {
		return nil, errors.New("mail: at least one recipient is required")
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &MailSender{
		cfg:  cfg,
		send: func(m *gomail.Message) error { return d.DialAndSend(m) },
	}, nil
}

func (s *MailSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.send(s.message(msg))
}

func (s *MailSender) message(msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", s.cfg.To...)
	m.SetHeader("Subject", msg.Title)
	if msg.ID != "" {
		m.SetHeader("Message-ID", "<"+msg.ID+"@agenda>")
	}
	m.SetBody("text/plain", mailBody(msg))
	return m
}

func mailBody(msg Message) string {
	var b strings.Builder
	b.WriteString(msg.Body)
	if link := msg.Data["whatsapp_url"]; link != "" {
		b.WriteString("\n\nWhatsApp: ")
		b.WriteString(link)
	}

	keys := make([]string, 0, len(msg.Data))
	for k := range msg.Data {
		if k != "whatsapp_url" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if len(keys) > 0 {
		b.WriteString("\n")
	}
	for _, k := range keys {
		b.WriteString("\n")
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(msg.Data[k])
	}
	return b.String()
}

func (s *MailSender) ProviderID() string {
	return "email"
}
