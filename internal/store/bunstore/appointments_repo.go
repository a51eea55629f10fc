package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"dalau/agenda/internal/domain"
	"dalau/agenda/internal/store"
)

type AppointmentRepo struct {
	db *bun.DB
}

func NewAppointmentRepo(db *bun.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

func (r *AppointmentRepo) Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := domain.Appointment{
		Date:        appt.Date,
		StartTime:   appt.StartTime,
		EndTime:     appt.EndTime,
		ClientName:  appt.ClientName,
		ClientPhone: appt.ClientPhone,
		Service:     appt.Service,
	}

	_, err := r.db.NewInsert().
		Model(&m).
		Returning("id").
		Exec(ctx)
	if err != nil {
		return domain.Appointment{}, err
	}
	return m, nil
}

func (r *AppointmentRepo) Get(ctx context.Context, id int64) (domain.Appointment, error) {
	var appt domain.Appointment
	err := r.db.NewSelect().
		Model(&appt).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, store.ErrNotFound
		}
		return domain.Appointment{}, err
	}
	return appt, nil
}

func (r *AppointmentRepo) List(ctx context.Context) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		OrderExpr(`"date" ASC, start_time ASC, id ASC`).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) ListByDate(ctx context.Context, date string) ([]domain.Appointment, error) {
	rows := make([]domain.Appointment, 0)
	err := r.db.NewSelect().
		Model(&rows).
		Where(`"date" = ?`, date).
		OrderExpr("start_time ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) ListDates(ctx context.Context) ([]string, error) {
	dates := make([]string, 0)
	err := r.db.NewSelect().
		Model((*domain.Appointment)(nil)).
		ColumnExpr(`DISTINCT "date"`).
		OrderExpr(`"date" ASC`).
		Scan(ctx, &dates)
	if err != nil {
		return nil, err
	}
	return dates, nil
}

func (r *AppointmentRepo) Update(ctx context.Context, appt domain.Appointment) error {
	m := domain.Appointment{
		ID:          appt.ID,
		StartTime:   appt.StartTime,
		EndTime:     appt.EndTime,
		ClientName:  appt.ClientName,
		ClientPhone: appt.ClientPhone,
		Service:     appt.Service,
	}

	res, err := r.db.NewUpdate().
		Model(&m).
		Column("client_name", "client_phone", "service", "start_time", "end_time", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *AppointmentRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.NewDelete().
		Model((*domain.Appointment)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *AppointmentRepo) MarkNotificationScheduled(ctx context.Context, id int64) error {
	res, err := r.db.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("notification_scheduled = ?", true).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
