package appointments

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"dalau/agenda/internal/domain"
	"dalau/agenda/internal/store"
)

type fakeRepo struct {
	createFn     func(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	getFn        func(ctx context.Context, id int64) (domain.Appointment, error)
	listFn       func(ctx context.Context) ([]domain.Appointment, error)
	listByDateFn func(ctx context.Context, date string) ([]domain.Appointment, error)
	listDatesFn  func(ctx context.Context) ([]string, error)
	updateFn     func(ctx context.Context, appt domain.Appointment) error
	deleteFn     func(ctx context.Context, id int64) error
	markFn       func(ctx context.Context, id int64) error
}

func (f *fakeRepo) Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if f.createFn == nil {
		panic("Create not configured")
	}
	return f.createFn(ctx, appt)
}

func (f *fakeRepo) Get(ctx context.Context, id int64) (domain.Appointment, error) {
	if f.getFn == nil {
		panic("Get not configured")
	}
	return f.getFn(ctx, id)
}

func (f *fakeRepo) List(ctx context.Context) ([]domain.Appointment, error) {
	if f.listFn == nil {
		panic("List not configured")
	}
	return f.listFn(ctx)
}

func (f *fakeRepo) ListByDate(ctx context.Context, date string) ([]domain.Appointment, error) {
	if f.listByDateFn == nil {
		panic("ListByDate not configured")
	}
	return f.listByDateFn(ctx, date)
}

func (f *fakeRepo) ListDates(ctx context.Context) ([]string, error) {
	if f.listDatesFn == nil {
		panic("ListDates not configured")
	}
	return f.listDatesFn(ctx)
}

func (f *fakeRepo) Update(ctx context.Context, appt domain.Appointment) error {
	if f.updateFn == nil {
		panic("Update not configured")
	}
	return f.updateFn(ctx, appt)
}

func (f *fakeRepo) Delete(ctx context.Context, id int64) error {
	if f.deleteFn == nil {
		panic("Delete not configured")
	}
	return f.deleteFn(ctx, id)
}

func (f *fakeRepo) MarkNotificationScheduled(ctx context.Context, id int64) error {
	if f.markFn == nil {
		panic("MarkNotificationScheduled not configured")
	}
	return f.markFn(ctx, id)
}

// memRepo wires a fakeRepo to an in-memory table.
func memRepo() (*fakeRepo, *[]domain.Appointment) {
	rows := &[]domain.Appointment{}
	var nextID int64
	find := func(id int64) int {
		for i, a := range *rows {
			if a.ID == id {
				return i
			}
		}
		return -1
	}
	return &fakeRepo{
		createFn: func(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
			nextID++
			appt.ID = nextID
			*rows = append(*rows, appt)
			return appt, nil
		},
		getFn: func(ctx context.Context, id int64) (domain.Appointment, error) {
			if i := find(id); i >= 0 {
				return (*rows)[i], nil
			}
			return domain.Appointment{}, store.ErrNotFound
		},
		listByDateFn: func(ctx context.Context, date string) ([]domain.Appointment, error) {
			var out []domain.Appointment
			for _, a := range *rows {
				if a.Date == date {
					out = append(out, a)
				}
			}
			return out, nil
		},
		updateFn: func(ctx context.Context, appt domain.Appointment) error {
			i := find(appt.ID)
			if i < 0 {
				return store.ErrNotFound
			}
			(*rows)[i] = appt
			return nil
		},
		deleteFn: func(ctx context.Context, id int64) error {
			i := find(id)
			if i < 0 {
				return store.ErrNotFound
			}
			*rows = append((*rows)[:i], (*rows)[i+1:]...)
			return nil
		},
	}, rows
}

type recordingNotifier struct {
	created []int64
	deleted []int64
}

func (n *recordingNotifier) AppointmentCreated(ctx context.Context, appt domain.Appointment) {
	n.created = append(n.created, appt.ID)
}

func (n *recordingNotifier) AppointmentDeleted(ctx context.Context, id int64) {
	n.deleted = append(n.deleted, id)
}

func validCreate(date, start, end string) CreateInput {
	return CreateInput{
		Date:        date,
		StartTime:   start,
		EndTime:     end,
		ClientName:  "Ana",
		ClientPhone: "3001234567",
		Service:     "Tradicional",
	}
}

func TestServiceCreate_ValidationErrorType(t *testing.T) {
	repo, _ := memRepo()
	svc := NewService(repo, nil, nil, nil)

	in := validCreate("2024-06-10", "08:00", "09:00")
	in.ClientName = "   "
	_, err := svc.Create(context.Background(), in)
	if err == nil {
		t.Fatalf("expected error")
	}
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
	if vErr.Error() != "client_name is required" {
		t.Fatalf("error = %q, want %q", vErr.Error(), "client_name is required")
	}
}

func TestServiceCreate_PhoneMustBeTenDigits(t *testing.T) {
	cases := []struct {
		phone   string
		wantErr bool
	}{
		{phone: "12345", wantErr: true},
		{phone: "123456789a", wantErr: true},
		{phone: "12345678901", wantErr: true},
		{phone: "1234567890", wantErr: false},
	}

	for _, c := range cases {
		t.Run(c.phone, func(t *testing.T) {
			repo, _ := memRepo()
			svc := NewService(repo, nil, nil, nil)

			in := validCreate("2024-06-10", "08:00", "09:00")
			in.ClientPhone = c.phone
			_, err := svc.Create(context.Background(), in)
			if !c.wantErr {
				if err != nil {
					t.Fatalf("Create error: %v", err)
				}
				return
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("error = %v, want *ValidationError", err)
			}
			if !strings.HasPrefix(vErr.Error(), "client_phone") {
				t.Fatalf("error = %q, want client_phone message", vErr.Error())
			}
		})
	}
}

func TestServiceCreate_RejectsBadFields(t *testing.T) {
	cases := []struct {
		name string
		edit func(in *CreateInput)
		want string
	}{
		{name: "date format", edit: func(in *CreateInput) { in.Date = "10/06/2024" }, want: "date must be a YYYY-MM-DD date"},
		{name: "start clock", edit: func(in *CreateInput) { in.StartTime = "8:00" }, want: "start_time must be a HH:MM time"},
		{name: "end clock", edit: func(in *CreateInput) { in.EndTime = "24:00" }, want: "end_time must be a HH:MM time"},
		{name: "service", edit: func(in *CreateInput) { in.Service = "Masaje" }, want: "service is not an offered service"},
		{name: "missing service", edit: func(in *CreateInput) { in.Service = "" }, want: "service is required"},
		{name: "reversed range", edit: func(in *CreateInput) { in.StartTime, in.EndTime = "14:00", "13:00" }, want: domain.ErrInvalidRange.Error()},
		{name: "empty range", edit: func(in *CreateInput) { in.EndTime = in.StartTime }, want: domain.ErrInvalidRange.Error()},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			repo, rows := memRepo()
			svc := NewService(repo, nil, nil, nil)

			in := validCreate("2024-06-10", "08:00", "09:00")
			c.edit(&in)
			_, err := svc.Create(context.Background(), in)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("error = %v, want *ValidationError", err)
			}
			if vErr.Error() != c.want {
				t.Fatalf("error = %q, want %q", vErr.Error(), c.want)
			}
			if len(*rows) != 0 {
				t.Fatalf("rows = %d, want nothing persisted", len(*rows))
			}
		})
	}
}

func TestServiceCreate_CustomCatalog(t *testing.T) {
	repo, _ := memRepo()
	svc := NewService(repo, nil, domain.Catalog{"Masaje"}, nil)

	in := validCreate("2024-06-10", "08:00", "09:00")
	in.Service = "Masaje"
	if _, err := svc.Create(context.Background(), in); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	in = validCreate("2024-06-10", "09:00", "10:00")
	var vErr *ValidationError
	if _, err := svc.Create(context.Background(), in); !errors.As(err, &vErr) {
		t.Fatalf("error = %v, want *ValidationError for service outside catalog", err)
	}
}

func TestServiceCreate_ConflictScenario(t *testing.T) {
	ctx := context.Background()
	repo, rows := memRepo()
	notifier := &recordingNotifier{}
	svc := NewService(repo, notifier, nil, nil)

	first, err := svc.Create(ctx, validCreate("2024-06-10", "08:00", "09:00"))
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	if _, err := svc.Create(ctx, validCreate("2024-06-10", "09:00", "10:00")); err != nil {
		t.Fatalf("back-to-back Create error: %v", err)
	}

	_, err = svc.Create(ctx, validCreate("2024-06-10", "08:30", "09:30"))
	var cErr *ConflictError
	if !errors.As(err, &cErr) {
		t.Fatalf("error = %v, want *ConflictError", err)
	}
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("errors.Is(err, ErrConflict) = false")
	}
	if cErr.Existing.ID != first.ID {
		t.Fatalf("conflicting id = %d, want %d", cErr.Existing.ID, first.ID)
	}
	if !strings.Contains(cErr.Error(), "08:00-09:00") || !strings.Contains(cErr.Error(), "Ana") {
		t.Fatalf("conflict message %q does not describe the existing appointment", cErr.Error())
	}

	if _, err := svc.Create(ctx, validCreate("2024-06-11", "08:30", "09:30")); err != nil {
		t.Fatalf("Create on another date error: %v", err)
	}

	if len(*rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(*rows))
	}
	if len(notifier.created) != 3 {
		t.Fatalf("created notifications = %v, want 3", notifier.created)
	}
}

func TestServiceCreate_ChecksAgainstFreshRows(t *testing.T) {
	ctx := context.Background()
	repo, rows := memRepo()
	lists := 0
	inner := repo.listByDateFn
	repo.listByDateFn = func(ctx context.Context, date string) ([]domain.Appointment, error) {
		lists++
		return inner(ctx, date)
	}
	svc := NewService(repo, nil, nil, nil)

	if _, err := svc.Create(ctx, validCreate("2024-06-10", "08:00", "09:00")); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	// A row written behind the service's back must still be seen.
	*rows = append(*rows, domain.Appointment{ID: 99, Date: "2024-06-10", StartTime: "10:00", EndTime: "11:00"})

	_, err := svc.Create(ctx, validCreate("2024-06-10", "10:30", "11:30"))
	var cErr *ConflictError
	if !errors.As(err, &cErr) || cErr.Existing.ID != 99 {
		t.Fatalf("error = %v, want conflict with id 99", err)
	}
	if lists != 2 {
		t.Fatalf("ListByDate calls = %d, want 2", lists)
	}
}

func TestServiceCreate_PropagatesStoreErrors(t *testing.T) {
	wantErr := errors.New("disk full")
	repo, _ := memRepo()
	repo.createFn = func(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
		return domain.Appointment{}, wantErr
	}
	notifier := &recordingNotifier{}
	svc := NewService(repo, notifier, nil, nil)

	_, err := svc.Create(context.Background(), validCreate("2024-06-10", "08:00", "09:00"))
	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
	if len(notifier.created) != 0 {
		t.Fatalf("notifier called after failed create")
	}
}

func TestService_ReversedRangeNeedsNoStorage(t *testing.T) {
	ctx := context.Background()
	storeDown := errors.New("database is locked")
	repo := &fakeRepo{
		getFn: func(ctx context.Context, id int64) (domain.Appointment, error) {
			return domain.Appointment{}, storeDown
		},
		listByDateFn: func(ctx context.Context, date string) ([]domain.Appointment, error) {
			return nil, storeDown
		},
	}
	svc := NewService(repo, nil, nil, nil)

	var vErr *ValidationError
	_, err := svc.Create(ctx, validCreate("2024-06-10", "14:00", "13:00"))
	if !errors.As(err, &vErr) || vErr.Error() != domain.ErrInvalidRange.Error() {
		t.Fatalf("Create error = %v, want range *ValidationError", err)
	}

	_, err = svc.Update(ctx, 4, UpdateInput{
		StartTime:   "10:00",
		EndTime:     "10:00",
		ClientName:  "Ana",
		ClientPhone: "3001234567",
		Service:     "Pies",
	})
	if !errors.As(err, &vErr) || vErr.Error() != domain.ErrInvalidRange.Error() {
		t.Fatalf("Update error = %v, want range *ValidationError", err)
	}
}

func TestServiceUpdate_ReturnsStoredRow(t *testing.T) {
	ctx := context.Background()
	repo, rows := memRepo()
	stamped := time.Date(2024, 6, 10, 15, 4, 5, 0, time.UTC)
	inner := repo.updateFn
	repo.updateFn = func(ctx context.Context, appt domain.Appointment) error {
		appt.UpdatedAt = stamped
		return inner(ctx, appt)
	}
	*rows = append(*rows, domain.Appointment{
		ID:          5,
		Date:        "2024-06-10",
		StartTime:   "08:00",
		EndTime:     "09:00",
		ClientName:  "Ana",
		ClientPhone: "3001234567",
		Service:     "Pies",
		UpdatedAt:   stamped.Add(-time.Hour),
	})
	svc := NewService(repo, nil, nil, nil)

	updated, err := svc.Update(ctx, 5, UpdateInput{
		StartTime:   "08:00",
		EndTime:     "09:30",
		ClientName:  "Ana",
		ClientPhone: "3001234567",
		Service:     "Pies",
	})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if !updated.UpdatedAt.Equal(stamped) {
		t.Fatalf("UpdatedAt = %v, want %v", updated.UpdatedAt, stamped)
	}
	if updated.EndTime != "09:30" {
		t.Fatalf("EndTime = %q, want %q", updated.EndTime, "09:30")
	}
}

func TestServiceUpdate_ExcludesItself(t *testing.T) {
	ctx := context.Background()
	repo, _ := memRepo()
	svc := NewService(repo, nil, nil, nil)

	a, err := svc.Create(ctx, validCreate("2024-06-10", "08:00", "09:00"))
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	b, err := svc.Create(ctx, validCreate("2024-06-10", "10:00", "11:00"))
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	updated, err := svc.Update(ctx, a.ID, UpdateInput{
		StartTime:   "08:00",
		EndTime:     "09:30",
		ClientName:  "Ana María",
		ClientPhone: "3001234567",
		Service:     "Acrílico",
	})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if updated.EndTime != "09:30" || updated.Service != "Acrílico" || updated.Date != "2024-06-10" {
		t.Fatalf("updated = %+v", updated)
	}

	_, err = svc.Update(ctx, a.ID, UpdateInput{
		StartTime:   "09:30",
		EndTime:     "10:30",
		ClientName:  "Ana",
		ClientPhone: "3001234567",
		Service:     "Tradicional",
	})
	var cErr *ConflictError
	if !errors.As(err, &cErr) || cErr.Existing.ID != b.ID {
		t.Fatalf("error = %v, want conflict with id %d", err, b.ID)
	}
}

func TestServiceUpdate_NotFound(t *testing.T) {
	repo, _ := memRepo()
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.Update(context.Background(), 12, UpdateInput{
		StartTime:   "08:00",
		EndTime:     "09:00",
		ClientName:  "Ana",
		ClientPhone: "3001234567",
		Service:     "Pies",
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("error = %v, want %v", err, store.ErrNotFound)
	}
}

func TestServiceDelete_CancelsFollowUpAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo, rows := memRepo()
	*rows = append(*rows, domain.Appointment{ID: 7, Date: "2024-06-10", StartTime: "08:00", EndTime: "09:00"})
	notifier := &recordingNotifier{}
	svc := NewService(repo, notifier, nil, nil)

	if err := svc.Delete(ctx, 7); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if err := svc.Delete(ctx, 7); err != nil {
		t.Fatalf("second Delete error: %v", err)
	}
	if len(*rows) != 0 {
		t.Fatalf("rows = %d, want 0", len(*rows))
	}
	if len(notifier.deleted) != 2 || notifier.deleted[0] != 7 {
		t.Fatalf("deleted notifications = %v, want [7 7]", notifier.deleted)
	}

	if _, err := svc.Get(ctx, 7); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get after delete error = %v, want %v", err, store.ErrNotFound)
	}
}

func TestServiceDelete_StoreFailureSkipsCancel(t *testing.T) {
	wantErr := errors.New("locked")
	notifier := &recordingNotifier{}
	svc := NewService(&fakeRepo{
		deleteFn: func(ctx context.Context, id int64) error {
			return wantErr
		},
	}, notifier, nil, nil)

	if err := svc.Delete(context.Background(), 3); !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
	if len(notifier.deleted) != 0 {
		t.Fatalf("notifier called after failed delete")
	}
}

func TestServiceListByDate_ValidatesDate(t *testing.T) {
	repo, _ := memRepo()
	svc := NewService(repo, nil, nil, nil)

	var vErr *ValidationError
	if _, err := svc.ListByDate(context.Background(), "2024-6-1"); !errors.As(err, &vErr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}

	got, err := svc.ListByDate(context.Background(), "2024-06-10")
	if err != nil {
		t.Fatalf("ListByDate error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d appointments, want 0", len(got))
	}
}
