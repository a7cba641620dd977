package consultation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/hospital-capacity-scheduling/internal/db"
	"github.com/hackgods/hospital-capacity-scheduling/internal/retry"
)

const seriesAnchorConstraint = "consultations_series_anchor_key"

var dialect = goqu.Dialect("postgres")

var consultationColumns = []any{
	"id", "hospital_id", "hospital_name", "doctor_id", "doctor_name", "specialty",
	"anchor_time", "end_time", "slot_duration_minutes", "recurring",
	"recurrence_paused", "recurrence_frequency", "next_occurrence",
	"series_id", "version", "created_at", "updated_at",
}

var slotColumns = []any{
	"consultation_id", "slot_index", "start_time", "end_time",
	"notified", "elapsed", "online_count", "users", "version",
}

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanConsultation(row pgx.Row) (*Consultation, error) {
	var c Consultation
	var paused *bool
	var frequency *string
	var next *time.Time

	err := row.Scan(
		&c.ID,
		&c.HospitalID,
		&c.HospitalName,
		&c.DoctorID,
		&c.DoctorName,
		&c.Specialty,
		&c.AnchorTime,
		&c.EndTime,
		&c.SlotDuration,
		&c.Recurring,
		&paused,
		&frequency,
		&next,
		&c.SeriesID,
		&c.Version,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConsultationNotFound
		}
		return nil, err
	}

	if c.Recurring && frequency != nil && next != nil {
		c.Recurrence = &Recurrence{
			Paused:         paused != nil && *paused,
			Frequency:      Frequency(*frequency),
			NextOccurrence: next.UTC(),
		}
	}
	c.AnchorTime = c.AnchorTime.UTC()
	c.EndTime = c.EndTime.UTC()

	return &c, nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	var users []byte

	err := row.Scan(
		&s.ConsultationID,
		&s.Index,
		&s.StartTime,
		&s.EndTime,
		&s.Notified,
		&s.Elapsed,
		&s.OnlineCount,
		&users,
		&s.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	if len(users) > 0 {
		if err := json.Unmarshal(users, &s.Users); err != nil {
			return nil, fmt.Errorf("decode slot users: %w", err)
		}
	}
	s.StartTime = s.StartTime.UTC()
	s.EndTime = s.EndTime.UTC()

	return &s, nil
}

func encodeUsers(users []SlotUser) (string, error) {
	if users == nil {
		users = []SlotUser{}
	}
	data, err := json.Marshal(users)
	if err != nil {
		return "", fmt.Errorf("encode slot users: %w", err)
	}
	return string(data), nil
}

func collectSlots(rows pgx.Rows) ([]Slot, error) {
	defer rows.Close()

	var out []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func collectConsultations(rows pgx.Rows) ([]Consultation, error) {
	defer rows.Close()

	var out []Consultation
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func recurrenceArgs(c *Consultation) (paused *bool, frequency *string, next *time.Time) {
	if c.Recurrence == nil {
		return nil, nil, nil
	}
	p := c.Recurrence.Paused
	f := string(c.Recurrence.Frequency)
	n := c.Recurrence.NextOccurrence
	return &p, &f, &n
}

// Interface methods

func (r *PgRepository) CreateConsultation(ctx context.Context, c *Consultation) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create consultation: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	paused, frequency, next := recurrenceArgs(c)

	err = tx.QueryRow(ctx, `
		INSERT INTO consultations (
			id, hospital_id, hospital_name, doctor_id, doctor_name, specialty,
			anchor_time, end_time, slot_duration_minutes, recurring,
			recurrence_paused, recurrence_frequency, next_occurrence,
			series_id, version, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, false), $12, $13, $14, 0, now(), now())
		RETURNING created_at, updated_at
	`,
		c.ID, c.HospitalID, c.HospitalName, c.DoctorID, c.DoctorName, c.Specialty,
		c.AnchorTime, c.EndTime, c.SlotDuration, c.Recurring,
		paused, frequency, next, c.SeriesID,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, seriesAnchorConstraint) {
			return ErrOccurrenceExists
		}
		return fmt.Errorf("insert consultation: %w", err)
	}

	batch := &pgx.Batch{}
	for i := range c.Slots {
		s := &c.Slots[i]
		s.ConsultationID = c.ID
		users, err := encodeUsers(s.Users)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO consultation_slots (
				consultation_id, slot_index, start_time, end_time,
				notified, elapsed, online_count, users, version
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, 0)
		`, s.ConsultationID, s.Index, s.StartTime, s.EndTime, s.Notified, s.Elapsed, s.OnlineCount, users)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert slots: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit consultation: %w", err)
	}
	c.Version = 0
	return nil
}

func (r *PgRepository) GetConsultation(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	sql, args, err := dialect.From("consultations").
		Select(consultationColumns...).
		Where(goqu.C("id").Eq(id.String())).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build consultation query: %w", err)
	}

	c, err := scanConsultation(r.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, err
	}

	slots, err := r.slotsFor(ctx, []uuid.UUID{c.ID})
	if err != nil {
		return nil, err
	}
	c.Slots = slots[c.ID]
	return c, nil
}

func (r *PgRepository) GetSlot(ctx context.Context, consultationID uuid.UUID, index int) (*Slot, error) {
	s, err := scanSlot(r.pool.QueryRow(ctx, `
		SELECT consultation_id, slot_index, start_time, end_time, notified, elapsed, online_count, users, version
		FROM consultation_slots
		WHERE consultation_id = $1 AND slot_index = $2
	`, consultationID, index))
	if errors.Is(err, ErrSlotNotFound) {
		if exists, existsErr := r.consultationExists(ctx, consultationID); existsErr == nil && !exists {
			return nil, ErrConsultationNotFound
		}
	}
	return s, err
}

func (r *PgRepository) UpdateSlot(ctx context.Context, s *Slot) error {
	users, err := encodeUsers(s.Users)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE consultation_slots
		SET notified = $3,
		    elapsed = $4,
		    online_count = $5,
		    users = $6::jsonb,
		    version = version + 1
		WHERE consultation_id = $1
		  AND slot_index = $2
		  AND version = $7
	`, s.ConsultationID, s.Index, s.Notified, s.Elapsed, s.OnlineCount, users, s.Version)
	if err != nil {
		return fmt.Errorf("update slot: %w", err)
	}

	if tag.RowsAffected() == 0 {
		if _, err := r.GetSlot(ctx, s.ConsultationID, s.Index); err != nil {
			return err
		}
		return retry.ErrConflict
	}

	s.Version++
	return nil
}

func (r *PgRepository) UpdateRecurrence(ctx context.Context, c *Consultation) error {
	paused, frequency, next := recurrenceArgs(c)

	tag, err := r.pool.Exec(ctx, `
		UPDATE consultations
		SET recurrence_paused = COALESCE($2, false),
		    recurrence_frequency = $3,
		    next_occurrence = $4,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND version = $5
	`, c.ID, paused, frequency, next, c.Version)
	if err != nil {
		return fmt.Errorf("update recurrence: %w", err)
	}

	if tag.RowsAffected() == 0 {
		exists, err := r.consultationExists(ctx, c.ID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrConsultationNotFound
		}
		return retry.ErrConflict
	}

	c.Version++
	return nil
}

func (r *PgRepository) ListConsultations(ctx context.Context, f ListFilter) ([]Consultation, error) {
	ds := dialect.From(goqu.T("consultations").As("c")).
		Select(qualified("c", consultationColumns)...).
		Order(goqu.I("c.anchor_time").Asc(), goqu.I("c.id").Asc())

	if f.DoctorID != nil {
		ds = ds.Where(goqu.I("c.doctor_id").Eq(f.DoctorID.String()))
	}
	if f.HospitalID != nil {
		ds = ds.Where(goqu.I("c.hospital_id").Eq(f.HospitalID.String()))
	}
	if f.PatientID != nil {
		needle, err := json.Marshal([]map[string]string{{"patient_id": f.PatientID.String()}})
		if err != nil {
			return nil, err
		}
		ds = ds.Where(goqu.L(
			"EXISTS (SELECT 1 FROM consultation_slots s WHERE s.consultation_id = c.id AND s.users @> ?::jsonb)",
			string(needle),
		))
	}

	sql, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build consultation list query: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list consultations: %w", err)
	}
	list, err := collectConsultations(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, len(list))
	for i := range list {
		ids[i] = list[i].ID
	}
	slots, err := r.slotsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].Slots = slots[list[i].ID]
	}

	return list, nil
}

func (r *PgRepository) ListSlotsForRefresh(ctx context.Context, now time.Time, window time.Duration) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT consultation_id, slot_index, start_time, end_time, notified, elapsed, online_count, users, version
		FROM consultation_slots
		WHERE NOT elapsed
		  AND (
		        end_time <= $1
		     OR (NOT notified AND start_time > $1 AND start_time <= $2)
		  )
		ORDER BY start_time
	`, now, now.Add(window))
	if err != nil {
		return nil, fmt.Errorf("list slots for refresh: %w", err)
	}
	return collectSlots(rows)
}

func (r *PgRepository) ListDueRecurrences(ctx context.Context, now time.Time) ([]Consultation, error) {
	sql, args, err := dialect.From("consultations").
		Select(consultationColumns...).
		Where(
			goqu.C("recurring").IsTrue(),
			goqu.C("recurrence_paused").IsFalse(),
			goqu.C("next_occurrence").Lte(now),
		).
		Order(goqu.C("next_occurrence").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build due recurrence query: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list due recurrences: %w", err)
	}
	return collectConsultations(rows)
}

func (r *PgRepository) slotsFor(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]Slot, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	sql, args, err := dialect.From("consultation_slots").
		Select(slotColumns...).
		Where(goqu.C("consultation_id").In(keys)).
		Order(goqu.C("consultation_id").Asc(), goqu.C("slot_index").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build slot query: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	slots, err := collectSlots(rows)
	if err != nil {
		return nil, err
	}

	out := make(map[uuid.UUID][]Slot, len(ids))
	for _, s := range slots {
		out[s.ConsultationID] = append(out[s.ConsultationID], s)
	}
	return out, nil
}

func (r *PgRepository) consultationExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM consultations WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check consultation: %w", err)
	}
	return exists, nil
}

func qualified(table string, cols []any) []any {
	out := make([]any, len(cols))
	for i, c := range cols {
		out[i] = goqu.I(table + "." + c.(string))
	}
	return out
}
