package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkbook/inkbook/internal/platform/apperr"
	"github.com/inkbook/inkbook/internal/platform/db"
)

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const apptCols = `id, client_id, provider_id, start_time, end_time, intervention_type,
	price, is_published, is_paid, is_deleted, created_at, updated_at, version`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.ClientID, &a.ProviderID, &a.StartTime, &a.EndTime, &a.InterventionType,
		&a.Price, &a.IsPublished, &a.IsPaid, &a.IsDeleted, &a.CreatedAt, &a.UpdatedAt, &a.Version)
	return &a, err
}

func collect(rows pgx.Rows) ([]*Appointment, error) {
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, client_id, provider_id, start_time, end_time,
			intervention_type, price, is_published, is_paid)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at, version`,
		a.ID, a.ClientID, a.ProviderID, a.StartTime, a.EndTime,
		a.InterventionType, a.Price, a.IsPublished, a.IsPaid,
	).Scan(&a.CreatedAt, &a.UpdatedAt, &a.Version)
	return apperr.FromPG("create appointment", err)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
	if err != nil {
		return nil, apperr.FromPG("get appointment", err)
	}
	return a, nil
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment SET client_id=$2, provider_id=$3, start_time=$4, end_time=$5,
			intervention_type=$6, price=$7, is_published=$8, is_paid=$9, is_deleted=$10,
			version = version + 1, updated_at=NOW()
		WHERE id = $1 AND version = $11
		RETURNING updated_at, version`,
		a.ID, a.ClientID, a.ProviderID, a.StartTime, a.EndTime,
		a.InterventionType, a.Price, a.IsPublished, a.IsPaid, a.IsDeleted, a.Version,
	).Scan(&a.UpdatedAt, &a.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		// Rows are never hard-deleted, so a miss means the version moved.
		return apperr.Conflict("appointment was modified concurrently, reload and retry")
	}
	return apperr.FromPG("update appointment", err)
}

func (r *appointmentRepoPG) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointment SET is_deleted = TRUE, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND NOT is_deleted`, id)
	if err != nil {
		return apperr.FromPG("delete appointment", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appointment not found")
	}
	return nil
}

func (r *appointmentRepoPG) Search(ctx context.Context, q Query) ([]*Appointment, error) {
	var where []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if q.ClientID != nil {
		add("client_id = $%d", *q.ClientID)
	}
	if q.ProviderID != nil {
		add("provider_id = $%d", *q.ProviderID)
	}
	if q.From != nil {
		add("end_time >= $%d", *q.From)
	}
	if q.To != nil {
		add("start_time <= $%d", *q.To)
	}
	if q.InterventionType != nil {
		add("intervention_type = $%d", string(*q.InterventionType))
	}

	sql := `SELECT ` + apptCols + ` FROM active_appointment`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY start_time ASC, id ASC`

	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, apperr.FromPG("search appointments", err)
	}
	items, err := collect(rows)
	if err != nil {
		return nil, apperr.FromPG("search appointments", err)
	}
	return items, nil
}

func (r *appointmentRepoPG) ActiveByProviderBetween(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+apptCols+` FROM active_appointment
		WHERE provider_id = $1 AND start_time < $3 AND $2 < end_time
		ORDER BY start_time ASC`,
		providerID, from, to)
	if err != nil {
		return nil, apperr.FromPG("find overlapping appointments", err)
	}
	items, err := collect(rows)
	if err != nil {
		return nil, apperr.FromPG("find overlapping appointments", err)
	}
	return items, nil
}
