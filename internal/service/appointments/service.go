package appointments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"dalau/agenda/internal/domain"
	"dalau/agenda/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// ConflictError reports the existing appointment a candidate slot overlaps.
type ConflictError struct {
	Existing domain.Appointment
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf(
		"an appointment already exists in that slot: client %s, service %s, %s-%s",
		e.Existing.ClientName, e.Existing.Service, e.Existing.StartTime, e.Existing.EndTime,
	)
}

func (e *ConflictError) Unwrap() error {
	return store.ErrConflict
}

// Notifier is told about lifecycle changes so reminders follow the
// appointments. Implementations handle their own failures.
type Notifier interface {
	AppointmentCreated(ctx context.Context, appt domain.Appointment)
	AppointmentDeleted(ctx context.Context, id int64)
}

type noopNotifier struct{}

func (noopNotifier) AppointmentCreated(context.Context, domain.Appointment) {}
func (noopNotifier) AppointmentDeleted(context.Context, int64)              {}

type Service struct {
	repo     store.AppointmentRepository
	notifier Notifier
	validate *validator.Validate
	log      *slog.Logger
}

func NewService(repo store.AppointmentRepository, notifier Notifier, catalog domain.Catalog, log *slog.Logger) *Service {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if len(catalog) == 0 {
		catalog = domain.DefaultCatalog
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		validate: newValidator(catalog),
		log:      log.With(slog.String("component", "service.appointments")),
	}
}

func newValidator(catalog domain.Catalog) *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("digits", func(fl validator.FieldLevel) bool {
		for _, r := range fl.Field().String() {
			if r < '0' || r > '9' {
				return false
			}
		}
		return true
	})
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		return domain.ValidClock(fl.Field().String())
	})
	_ = v.RegisterValidation("offered", func(fl validator.FieldLevel) bool {
		return catalog.Offers(fl.Field().String())
	})
	return v
}

type CreateInput struct {
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime   string `json:"start_time" validate:"required,clock"`
	EndTime     string `json:"end_time" validate:"required,clock"`
	ClientName  string `json:"client_name" validate:"required"`
	ClientPhone string `json:"client_phone" validate:"required,len=10,digits"`
	Service     string `json:"service" validate:"required,offered"`
}

// UpdateInput carries the editable fields. The date of an appointment is
// fixed once booked.
type UpdateInput struct {
	StartTime   string `json:"start_time" validate:"required,clock"`
	EndTime     string `json:"end_time" validate:"required,clock"`
	ClientName  string `json:"client_name" validate:"required"`
	ClientPhone string `json:"client_phone" validate:"required,len=10,digits"`
	Service     string `json:"service" validate:"required,offered"`
}

func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Appointment, error) {
	in.Date = strings.TrimSpace(in.Date)
	in.StartTime = strings.TrimSpace(in.StartTime)
	in.EndTime = strings.TrimSpace(in.EndTime)
	in.ClientName = strings.TrimSpace(in.ClientName)
	in.ClientPhone = strings.TrimSpace(in.ClientPhone)
	in.Service = strings.TrimSpace(in.Service)

	if err := s.check(in); err != nil {
		return domain.Appointment{}, err
	}
	if err := checkRange(in.StartTime, in.EndTime); err != nil {
		return domain.Appointment{}, err
	}
	if err := s.ensureFree(ctx, in.Date, in.StartTime, in.EndTime, 0); err != nil {
		return domain.Appointment{}, err
	}

	appt, err := s.repo.Create(ctx, domain.Appointment{
		Date:        in.Date,
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		ClientName:  in.ClientName,
		ClientPhone: in.ClientPhone,
		Service:     in.Service,
	})
	if err != nil {
		return domain.Appointment{}, err
	}

	s.log.Info(
		"appointment created",
		slog.Int64("appointment_id", appt.ID),
		slog.String("date", appt.Date),
		slog.String("start_time", appt.StartTime),
		slog.String("end_time", appt.EndTime),
	)

	s.notifier.AppointmentCreated(ctx, appt)
	return appt, nil
}

func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (domain.Appointment, error) {
	if id <= 0 {
		return domain.Appointment{}, validationError("id is required")
	}
	in.StartTime = strings.TrimSpace(in.StartTime)
	in.EndTime = strings.TrimSpace(in.EndTime)
	in.ClientName = strings.TrimSpace(in.ClientName)
	in.ClientPhone = strings.TrimSpace(in.ClientPhone)
	in.Service = strings.TrimSpace(in.Service)

	if err := s.check(in); err != nil {
		return domain.Appointment{}, err
	}
	if err := checkRange(in.StartTime, in.EndTime); err != nil {
		return domain.Appointment{}, err
	}

	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if err := s.ensureFree(ctx, appt.Date, in.StartTime, in.EndTime, id); err != nil {
		return domain.Appointment{}, err
	}

	appt.StartTime = in.StartTime
	appt.EndTime = in.EndTime
	appt.ClientName = in.ClientName
	appt.ClientPhone = in.ClientPhone
	appt.Service = in.Service
	if err := s.repo.Update(ctx, appt); err != nil {
		return domain.Appointment{}, err
	}
	if appt, err = s.repo.Get(ctx, id); err != nil {
		return domain.Appointment{}, err
	}

	s.log.Info(
		"appointment updated",
		slog.Int64("appointment_id", appt.ID),
		slog.String("date", appt.Date),
		slog.String("start_time", appt.StartTime),
		slog.String("end_time", appt.EndTime),
	)
	return appt, nil
}

// checkRange needs no storage, so a reversed range is reported as a
// validation error even when the store is down.
func checkRange(start, end string) error {
	if start >= end {
		return validationError(domain.ErrInvalidRange.Error())
	}
	return nil
}

// Delete removes the appointment and cancels its follow-up reminder.
// Deleting an id that no longer exists is not an error.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return validationError("id is required")
	}
	err := s.repo.Delete(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.log.Debug("appointment already deleted", slog.Int64("appointment_id", id))
	case err != nil:
		return err
	default:
		s.log.Info("appointment deleted", slog.Int64("appointment_id", id))
	}

	s.notifier.AppointmentDeleted(ctx, id)
	return nil
}

// Get returns store.ErrNotFound when no appointment has the id.
func (s *Service) Get(ctx context.Context, id int64) (domain.Appointment, error) {
	if id <= 0 {
		return domain.Appointment{}, store.ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]domain.Appointment, error) {
	return s.repo.List(ctx)
}

func (s *Service) ListByDate(ctx context.Context, date string) ([]domain.Appointment, error) {
	date = strings.TrimSpace(date)
	if err := s.validate.Var(date, "required,datetime=2006-01-02"); err != nil {
		return nil, validationError("date must be a YYYY-MM-DD date")
	}
	return s.repo.ListByDate(ctx, date)
}

// ListDates returns every date holding at least one appointment, for
// marking a calendar.
func (s *Service) ListDates(ctx context.Context) ([]string, error) {
	return s.repo.ListDates(ctx)
}

// ensureFree re-reads the date's appointments right before the write so the
// check never runs against a stale snapshot.
func (s *Service) ensureFree(ctx context.Context, date, start, end string, excludeID int64) error {
	sameDate, err := s.repo.ListByDate(ctx, date)
	if err != nil {
		return err
	}
	existing, conflict, err := domain.FindConflict(start, end, sameDate, excludeID)
	if err != nil {
		return validationError(err.Error())
	}
	if conflict {
		s.log.Info(
			"appointment conflict",
			slog.String("date", date),
			slog.String("start_time", start),
			slog.String("end_time", end),
			slog.Int64("conflicting_id", existing.ID),
		)
		return &ConflictError{Existing: existing}
	}
	return nil
}

func (s *Service) check(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	return validationError(fieldMessage(fieldErrs[0]))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "datetime":
		return fe.Field() + " must be a YYYY-MM-DD date"
	case "clock":
		return fe.Field() + " must be a HH:MM time"
	case "len", "digits":
		return fe.Field() + " must be exactly 10 digits"
	case "offered":
		return fe.Field() + " is not an offered service"
	default:
		return fe.Field() + " is invalid"
	}
}
