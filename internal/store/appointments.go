package store

import (
	"context"

	"dalau/agenda/internal/domain"
)

// AppointmentRepository is the only path to the appointments table.
type AppointmentRepository interface {
	Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	Get(ctx context.Context, id int64) (domain.Appointment, error)
	List(ctx context.Context) ([]domain.Appointment, error)
	ListByDate(ctx context.Context, date string) ([]domain.Appointment, error)
	ListDates(ctx context.Context) ([]string, error)
	// Update rewrites client info, service and times. Date and the
	// notification flag are left untouched.
	Update(ctx context.Context, appt domain.Appointment) error
	Delete(ctx context.Context, id int64) error
	MarkNotificationScheduled(ctx context.Context, id int64) error
}
