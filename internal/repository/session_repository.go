package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/driveschool-api/internal/models"
)

// SessionRepository handles persistence of physical-training sessions
// and the monotonic counter used to mint their identifiers.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionCounterName = "physical_training"

const sessionColumns = `id, session_date, session_time, location, vehicle_id, instructor_id, max_count, current_count, status, qualification, created_at, updated_at`

// NextSessionID mints the next human-readable session identifier from
// the counter row. Increment-and-read is a single statement so two
// concurrent creates can never observe the same value.
func (r *SessionRepository) NextSessionID(ctx context.Context) (string, error) {
	const query = `INSERT INTO counters (name, value) VALUES ($1, 1)
        ON CONFLICT (name) DO UPDATE SET value = counters.value + 1
        RETURNING value`
	var value int64
	if err := r.db.GetContext(ctx, &value, query, sessionCounterName); err != nil {
		return "", fmt.Errorf("next session id: %w", err)
	}
	return fmt.Sprintf("PT%04d", value), nil
}

// FindByID returns a session by identifier.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.TrainingSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM training_sessions WHERE id = $1 LIMIT 1`, sessionColumns)
	var session models.TrainingSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find session by id: %w", err)
	}
	return &session, nil
}

// FindDetailByID returns a session enriched with vehicle and instructor info.
func (r *SessionRepository) FindDetailByID(ctx context.Context, id string) (*models.SessionDetail, error) {
	const query = `SELECT s.id, s.session_date, s.session_time, s.location, s.vehicle_id, s.instructor_id,
        s.max_count, s.current_count, s.status, s.qualification, s.created_at, s.updated_at,
        v.plate_number AS plate_number, i.full_name AS instructor_name
        FROM training_sessions s
        LEFT JOIN vehicles v ON v.id = s.vehicle_id
        LEFT JOIN instructors i ON i.id = s.instructor_id
        WHERE s.id = $1`
	var detail models.SessionDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns sessions filtered by the provided criteria.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.SessionDetail, int, error) {
	base := `FROM training_sessions s
LEFT JOIN vehicles v ON v.id = s.vehicle_id
LEFT JOIN instructors i ON i.id = s.instructor_id`
	var conditions []string
	var args []interface{}

	if filter.InstructorID != "" {
		conditions = append(conditions, fmt.Sprintf("s.instructor_id = $%d", len(args)+1))
		args = append(args, filter.InstructorID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("s.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("s.session_date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("s.session_date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	if filter.AvailableOnly {
		conditions = append(conditions, fmt.Sprintf("s.status = $%d AND s.current_count < s.max_count", len(args)+1))
		args = append(args, models.SessionStatusPending)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"session_date": "s.session_date",
		"location":     "s.location",
		"created_at":   "s.created_at",
		"id":           "s.id",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "s.session_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT s.id, s.session_date, s.session_time, s.location, s.vehicle_id, s.instructor_id,
        s.max_count, s.current_count, s.status, s.qualification, s.created_at, s.updated_at,
        v.plate_number AS plate_number, i.full_name AS instructor_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var sessions []models.SessionDetail
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}
	return sessions, total, nil
}

// Create persists a new session record.
func (r *SessionRepository) Create(ctx context.Context, session *models.TrainingSession) error {
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	const query = `INSERT INTO training_sessions (id, session_date, session_time, location, vehicle_id, instructor_id,
        max_count, current_count, status, qualification, created_at, updated_at)
        VALUES (:id, :session_date, :session_time, :location, :vehicle_id, :instructor_id,
        :max_count, :current_count, :status, :qualification, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of a session. The capacity
// counter is deliberately excluded; it moves only through the
// enrollment ledger's guarded updates.
func (r *SessionRepository) Update(ctx context.Context, session *models.TrainingSession) error {
	session.UpdatedAt = time.Now().UTC()
	const query = `UPDATE training_sessions SET session_date = :session_date, session_time = :session_time,
        location = :location, vehicle_id = :vehicle_id, instructor_id = :instructor_id,
        max_count = :max_count, status = :status, qualification = :qualification, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// UpdateStatus sets the session status only.
func (r *SessionRepository) UpdateStatus(ctx context.Context, id string, status models.SessionStatus) error {
	const query = `UPDATE training_sessions SET status = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session status rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteIfEmpty removes a session only while no enrollment holds a
// slot. Returns (deleted, found) so the caller can distinguish a
// missing session from one still carrying enrollments.
func (r *SessionRepository) DeleteIfEmpty(ctx context.Context, id string) (bool, bool, error) {
	const query = `DELETE FROM training_sessions WHERE id = $1 AND current_count = 0`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, false, fmt.Errorf("delete session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, false, fmt.Errorf("delete session rows affected: %w", err)
	}
	if affected > 0 {
		return true, true, nil
	}

	var exists int
	if err := r.db.GetContext(ctx, &exists, `SELECT 1 FROM training_sessions WHERE id = $1 LIMIT 1`, id); err != nil {
		if err == sql.ErrNoRows {
			return false, false, nil
		}
		return false, false, fmt.Errorf("check session existence: %w", err)
	}
	return false, true, nil
}
