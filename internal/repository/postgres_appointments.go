package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/petcare-system/internal/events"
	"github.com/mmeshcher/petcare-system/internal/model"
)

const activeSlotIndex = "appointments_active_slot_uq"

const appointmentColumns = `id, customer_id, customer_name, customer_phone, pet_id, service_type,
	appointment_date, time_slot, price, status, notes, staff_notes, cancel_reason, is_paid,
	history, version, created_at, updated_at, confirmed_at, started_at, completed_at, cancelled_at`

// InsertAppointment атомарно резервирует слот и сохраняет запись.
// Частичный уникальный индекс по активным статусам превращает конкурентную двойную запись в ErrSlotUnavailable.
func (r *PostgresRepository) InsertAppointment(ctx context.Context, a *model.Appointment, evs ...events.Event) error {
	history, err := marshalJSON(a.History)
	if err != nil {
		return err
	}

	err = r.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO appointments (`+appointmentColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
			a.ID, a.CustomerID, a.CustomerName, a.CustomerPhone, a.PetID, string(a.ServiceType),
			a.Date, string(a.TimeSlot), a.Price, string(a.Status), a.Notes, a.StaffNotes, a.CancelReason, a.IsPaid,
			history, a.Version, a.CreatedAt, a.UpdatedAt, a.ConfirmedAt, a.StartedAt, a.CompletedAt, a.CancelledAt,
		)
		if err != nil {
			if isUniqueViolation(err, activeSlotIndex) {
				return fmt.Errorf("%w: %s", model.ErrSlotUnavailable, a.SlotKey())
			}
			return fmt.Errorf("insert appointment: %w", err)
		}
		return insertEvents(ctx, tx, evs)
	})
	return err
}

// GetAppointment возвращает запись по идентификатору.
func (r *PostgresRepository) GetAppointment(ctx context.Context, id string) (*model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)

	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: appointment %s", model.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

// UpdateAppointment сохраняет запись, если её версия в БД равна expectedVersion, и увеличивает версию.
// Освобождение слота происходит в этой же записи: завершённая или отменённая строка выпадает из частичного индекса.
func (r *PostgresRepository) UpdateAppointment(ctx context.Context, a *model.Appointment, expectedVersion int64, evs ...events.Event) error {
	history, err := marshalJSON(a.History)
	if err != nil {
		return err
	}

	err = r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE appointments
			 SET status = $3, notes = $4, staff_notes = $5, cancel_reason = $6, is_paid = $7, history = $8,
			     version = version + 1, updated_at = $9,
			     confirmed_at = $10, started_at = $11, completed_at = $12, cancelled_at = $13
			 WHERE id = $1 AND version = $2`,
			a.ID, expectedVersion, string(a.Status), a.Notes, a.StaffNotes, a.CancelReason, a.IsPaid, history,
			a.UpdatedAt, a.ConfirmedAt, a.StartedAt, a.CompletedAt, a.CancelledAt,
		)
		if err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return r.missingOrStale(ctx, tx, "appointments", a.ID)
		}
		return insertEvents(ctx, tx, evs)
	})
	if err != nil {
		return err
	}

	a.Version = expectedVersion + 1
	return nil
}

func (r *PostgresRepository) missingOrStale(ctx context.Context, tx pgx.Tx, table, id string) error {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check %s exists: %w", table, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s %s", model.ErrNotFound, table, id)
	}
	return fmt.Errorf("%w: %s %s", model.ErrConflict, table, id)
}

// ListAppointments возвращает записи по фильтру, новые сверху.
func (r *PostgresRepository) ListAppointments(ctx context.Context, f AppointmentFilter) ([]model.Appointment, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.CustomerID != "" {
		add("customer_id = $%d", f.CustomerID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.ServiceType != "" {
		add("service_type = $%d", string(f.ServiceType))
	}
	if f.Date != nil {
		add("appointment_date = $%d", *f.Date)
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, normalizeLimit(f.Limit))
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select appointments: %w", err)
	}
	defer rows.Close()

	var res []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		res = append(res, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// TakenSlots возвращает слоты даты, занятые активными записями на вид услуги.
func (r *PostgresRepository) TakenSlots(ctx context.Context, date time.Time, serviceType model.ServiceType) ([]model.TimeSlot, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT time_slot
		 FROM appointments
		 WHERE appointment_date = $1 AND service_type = $2 AND status = ANY($3)
		 ORDER BY time_slot`,
		date, string(serviceType), activeStatuses(),
	)
	if err != nil {
		return nil, fmt.Errorf("select taken slots: %w", err)
	}
	defer rows.Close()

	var res []model.TimeSlot
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		res = append(res, model.TimeSlot(s))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func scanAppointment(row pgx.Row) (*model.Appointment, error) {
	var (
		a           model.Appointment
		serviceType string
		timeSlot    string
		status      string
		history     []byte
	)

	err := row.Scan(
		&a.ID, &a.CustomerID, &a.CustomerName, &a.CustomerPhone, &a.PetID, &serviceType,
		&a.Date, &timeSlot, &a.Price, &status, &a.Notes, &a.StaffNotes, &a.CancelReason, &a.IsPaid,
		&history, &a.Version, &a.CreatedAt, &a.UpdatedAt, &a.ConfirmedAt, &a.StartedAt, &a.CompletedAt, &a.CancelledAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(history, &a.History); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}

	a.ServiceType = model.ServiceType(serviceType)
	a.TimeSlot = model.TimeSlot(timeSlot)
	a.Status = model.AppointmentStatus(status)
	a.Date = time.Date(a.Date.Year(), a.Date.Month(), a.Date.Day(), 0, 0, 0, 0, time.UTC)

	return &a, nil
}

func activeStatuses() []string {
	res := make([]string, 0, len(model.ActiveAppointmentStatuses))
	for _, s := range model.ActiveAppointmentStatuses {
		res = append(res, string(s))
	}
	return res
}
