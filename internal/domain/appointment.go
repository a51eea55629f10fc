package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID                    int64     `bun:"id,pk,autoincrement"`
	Date                  string    `bun:"date,notnull"`
	StartTime             string    `bun:"start_time,notnull"`
	EndTime               string    `bun:"end_time,notnull"`
	ClientName            string    `bun:"client_name,notnull"`
	ClientPhone           string    `bun:"client_phone,notnull"`
	Service               string    `bun:"service,notnull"`
	NotificationScheduled bool      `bun:"notification_scheduled,notnull"`
	CreatedAt             time.Time `bun:"created_at,notnull"`
	UpdatedAt             time.Time `bun:"updated_at,notnull"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

// StartsAt resolves the appointment's wall-clock start in loc.
func (a Appointment) StartsAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(DateLayout+" "+ClockLayout, a.Date+" "+a.StartTime, loc)
}

func (a Appointment) EndsAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(DateLayout+" "+ClockLayout, a.Date+" "+a.EndTime, loc)
}

// WhatsAppURL builds the chat deep link for the client's phone. Only the
// digits of the stored phone are kept; countryCode may carry a leading '+'.
func (a Appointment) WhatsAppURL(countryCode string) string {
	cc := strings.TrimPrefix(strings.TrimSpace(countryCode), "+")
	var b strings.Builder
	for _, r := range a.ClientPhone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return "https://wa.me/+" + cc + b.String()
}

// ParseDate parses a YYYY-MM-DD calendar date in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	if len(s) != len(DateLayout) {
		return time.Time{}, errors.New("date must be YYYY-MM-DD")
	}
	return time.ParseInLocation(DateLayout, s, loc)
}

// ValidClock reports whether s is a zero-padded 24h HH:MM time. The fixed
// width is what makes plain string comparison order times correctly.
func ValidClock(s string) bool {
	if len(s) != 5 || s[2] != ':' {
		return false
	}
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	hh := int(s[0]-'0')*10 + int(s[1]-'0')
	mm := int(s[3]-'0')*10 + int(s[4]-'0')
	return hh < 24 && mm < 60
}

// DateAfter returns the calendar date days after date, formatted YYYY-MM-DD.
func DateAfter(date string, days int) (string, error) {
	d, err := ParseDate(date, time.UTC)
	if err != nil {
		return "", err
	}
	return d.AddDate(0, 0, days).Format(DateLayout), nil
}
