// Package calexport renders the agenda as an iCalendar feed that phone
// calendars can import.
package calexport

import (
	"fmt"
	"io"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"dalau/agenda/internal/domain"
)

type Options struct {
	Location     *time.Location
	CalendarName string
	// CountryCode is used for the WhatsApp link in each event description.
	CountryCode string
}

func Write(w io.Writer, appts []domain.Appointment, opts Options) error {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.CalendarName == "" {
		opts.CalendarName = "Agenda"
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//dalau//agenda//ES")
	cal.SetXWRCalName(opts.CalendarName)
	cal.SetXWRTimezone(opts.Location.String())

	for _, a := range appts {
		start, err := a.StartsAt(opts.Location)
		if err != nil {
			return fmt.Errorf("appointment %d start: %w", a.ID, err)
		}
		end, err := a.EndsAt(opts.Location)
		if err != nil {
			return fmt.Errorf("appointment %d end: %w", a.ID, err)
		}

		stamp := a.UpdatedAt
		if stamp.IsZero() {
			stamp = time.Now()
		}

		ev := cal.AddEvent(EventUID(a.ID))
		ev.SetDtStampTime(stamp)
		ev.SetStartAt(start)
		ev.SetEndAt(end)
		ev.SetSummary(a.Service + " - " + a.ClientName)
		ev.SetDescription(description(a, opts.CountryCode))
		if !a.CreatedAt.IsZero() {
			ev.SetCreatedTime(a.CreatedAt)
		}
	}

	return cal.SerializeTo(w)
}

func EventUID(id int64) string {
	return fmt.Sprintf("appointment-%d@agenda", id)
}

func description(a domain.Appointment, countryCode string) string {
	lines := []string{
		"Cliente: " + a.ClientName,
		"Teléfono: " + a.ClientPhone,
		"Servicio: " + a.Service,
	}
	if countryCode != "" && a.ClientPhone != "" {
		lines = append(lines, "WhatsApp: "+a.WhatsAppURL(countryCode))
	}
	return strings.Join(lines, "\n")
}
