package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/driveschool-api/internal/models"
)

// EnrollmentRepository handles persistence of session enrollments. It
// is the only component allowed to move a session's capacity counter,
// and does so through guarded single-statement updates so concurrent
// enrollments on the last slot can never overshoot max_count.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `id, user_id, session_id, status, enrolled_at`

// incrementIfCapacity is the conditional capacity claim: it applies
// only while the session is pending and a slot remains, and reports
// through rows-affected whether it did.
const incrementIfCapacityQuery = `UPDATE training_sessions
        SET current_count = current_count + 1, updated_at = $2
        WHERE id = $1 AND status = $3 AND current_count < max_count`

const decrementCountQuery = `UPDATE training_sessions
        SET current_count = current_count - 1, updated_at = $2
        WHERE id = $1 AND current_count > 0`

// CreateWithCapacity inserts the enrollment row and claims a capacity
// slot in one transaction. Returns false without error when the
// capacity claim did not apply (session full or no longer pending);
// the row insert is rolled back in that case.
func (r *EnrollmentRepository) CreateWithCapacity(ctx context.Context, enrollment *models.Enrollment) (bool, error) {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusPending
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin enrollment tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const insertQuery = `INSERT INTO session_enrollments (id, user_id, session_id, status, enrolled_at)
        VALUES (:id, :user_id, :session_id, :status, :enrolled_at)`
	if _, err := tx.NamedExecContext(ctx, insertQuery, enrollment); err != nil {
		if IsUniqueViolation(err) {
			return false, err
		}
		return false, fmt.Errorf("create enrollment: %w", err)
	}

	result, err := tx.ExecContext(ctx, incrementIfCapacityQuery, enrollment.SessionID, time.Now().UTC(), models.SessionStatusPending)
	if err != nil {
		return false, fmt.Errorf("claim session capacity: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim session capacity rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit enrollment tx: %w", err)
	}
	return true, nil
}

// DeleteWithCapacity removes the enrollment row and releases its
// capacity slot in one transaction. A session that no longer exists is
// tolerated: the row is still removed and no counter moves.
func (r *EnrollmentRepository) DeleteWithCapacity(ctx context.Context, id, sessionID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cancel tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `DELETE FROM session_enrollments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete enrollment rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	if _, err := tx.ExecContext(ctx, decrementCountQuery, sessionID, time.Now().UTC()); err != nil {
		return fmt.Errorf("release session capacity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cancel tx: %w", err)
	}
	return nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM session_enrollments WHERE id = $1`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with the session snapshot.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.user_id, e.session_id, e.status, e.enrolled_at,
        s.session_date AS session_date, s.session_time AS session_time, s.location AS session_location,
        s.status AS session_status, s.current_count AS current_count, s.max_count AS max_count
        FROM session_enrollments e
        LEFT JOIN training_sessions s ON s.id = e.session_id
        WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Exists checks whether the user already enrolled in the session.
func (r *EnrollmentRepository) Exists(ctx context.Context, userID, sessionID string) (bool, error) {
	const query = `SELECT 1 FROM session_enrollments WHERE user_id = $1 AND session_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, userID, sessionID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// List returns enrollments with the session snapshot attached.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM session_enrollments e
LEFT JOIN training_sessions s ON s.id = e.session_id`
	var conditions []string
	var args []interface{}

	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("e.user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.SessionID != "" {
		conditions = append(conditions, fmt.Sprintf("e.session_id = $%d", len(args)+1))
		args = append(args, filter.SessionID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrolled_at":  "e.enrolled_at",
		"session_date": "s.session_date",
		"status":       "e.status",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.enrolled_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf(`SELECT e.id, e.user_id, e.session_id, e.status, e.enrolled_at,
        s.session_date AS session_date, s.session_time AS session_time, s.location AS session_location,
        s.status AS session_status, s.current_count AS current_count, s.max_count AS max_count
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// ListBySession returns the roster of a session with user public fields.
func (r *EnrollmentRepository) ListBySession(ctx context.Context, sessionID string) ([]models.EnrollmentRosterEntry, error) {
	const query = `SELECT e.id, e.user_id, e.session_id, e.status, e.enrolled_at,
        COALESCE(u.first_name || ' ' || u.last_name, '') AS user_name, COALESCE(u.email, '') AS user_email
        FROM session_enrollments e
        LEFT JOIN users u ON u.id = e.user_id
        WHERE e.session_id = $1
        ORDER BY e.enrolled_at ASC`
	var roster []models.EnrollmentRosterEntry
	if err := r.db.SelectContext(ctx, &roster, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session roster: %w", err)
	}
	return roster, nil
}

// UpdateStatus sets the attendance status of an enrollment.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	const query = `UPDATE session_enrollments SET status = $2 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update enrollment status rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountByStatus aggregates enrollment counts per status value.
func (r *EnrollmentRepository) CountByStatus(ctx context.Context) (map[models.EnrollmentStatus]int, error) {
	const query = `SELECT status, COUNT(*) AS count FROM session_enrollments GROUP BY status`
	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count enrollments by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.EnrollmentStatus]int)
	for rows.Next() {
		var status models.EnrollmentStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan enrollment count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrollment counts: %w", err)
	}
	return counts, nil
}
