package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/driveschool-api/internal/models"
	"github.com/noah-isme/driveschool-api/internal/repository"
	appErrors "github.com/noah-isme/driveschool-api/pkg/errors"
	"github.com/noah-isme/driveschool-api/pkg/export"
)

type enrollmentRepository interface {
	CreateWithCapacity(ctx context.Context, enrollment *models.Enrollment) (bool, error)
	DeleteWithCapacity(ctx context.Context, id, sessionID string) error
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	Exists(ctx context.Context, userID, sessionID string) (bool, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.EnrollmentRosterEntry, error)
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error
	CountByStatus(ctx context.Context) (map[models.EnrollmentStatus]int, error)
}

type enrollmentSessionReader interface {
	FindByID(ctx context.Context, id string) (*models.TrainingSession, error)
}

type enrollmentUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// EnrollRequest describes a session enrollment payload.
type EnrollRequest struct {
	UserID    string `json:"user_id" validate:"required"`
	SessionID string `json:"session_id" validate:"required"`
}

// UpdateEnrollmentStatusRequest sets the attendance outcome.
type UpdateEnrollmentStatusRequest struct {
	Status models.EnrollmentStatus `json:"status" validate:"required"`
}

// RosterExport carries rendered roster bytes with transfer metadata.
type RosterExport struct {
	FileName    string
	ContentType string
	Content     []byte
}

// EnrollmentService owns the enrollment ledger and everything that
// moves a session's capacity counter.
type EnrollmentService struct {
	repo      enrollmentRepository
	sessions  enrollmentSessionReader
	users     enrollmentUserReader
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, sessions enrollmentSessionReader, users enrollmentUserReader, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:      repo,
		sessions:  sessions,
		users:     users,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		validator: validate,
		logger:    logger,
	}
}

// Enroll registers a student into a session. Capacity is claimed with
// a guarded update inside the ledger transaction, so two students
// racing for the last slot cannot both win.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	if _, err := s.users.FindByID(ctx, req.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	session, err := s.sessions.FindByID(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session.Status != models.SessionStatusPending {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session is no longer open for enrollment")
	}
	if session.CurrentCount >= session.MaxCount {
		return nil, appErrors.Clone(appErrors.ErrSessionFull, "session is full")
	}

	exists, err := s.repo.Exists(ctx, req.UserID, req.SessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "user is already enrolled in this session")
	}

	enrollment := &models.Enrollment{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Status:    models.EnrollmentStatusPending,
	}
	applied, err := s.repo.CreateWithCapacity(ctx, enrollment)
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "user is already enrolled in this session")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	if !applied {
		// The pre-checks passed but another enrollment claimed the
		// last slot first, or the session was closed meanwhile.
		return nil, appErrors.Clone(appErrors.ErrSessionFull, "session is full")
	}

	s.logger.Info("student enrolled",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("user_id", req.UserID),
		zap.String("session_id", req.SessionID))

	return s.GetByID(ctx, enrollment.ID)
}

// Cancel withdraws an enrollment and releases its capacity slot. Only
// the enrolled student or staff may cancel, and a completed session is
// locked against cancellation.
func (s *EnrollmentService) Cancel(ctx context.Context, id string, actor models.JWTClaims) error {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	if enrollment.UserID != actor.UserID && actor.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "cannot cancel another student's enrollment")
	}

	// A session that was deleted out from under the enrollment is
	// tolerated; the ledger row is still removed.
	session, err := s.sessions.FindByID(ctx, enrollment.SessionID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session != nil && session.Status == models.SessionStatusCompleted {
		return appErrors.Clone(appErrors.ErrValidation, "cannot cancel an enrollment in a completed session")
	}

	if err := s.repo.DeleteWithCapacity(ctx, id, enrollment.SessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel enrollment")
	}

	s.logger.Info("enrollment cancelled",
		zap.String("enrollment_id", id),
		zap.String("session_id", enrollment.SessionID),
		zap.String("cancelled_by", actor.UserID))
	return nil
}

// GetByID returns an enrollment with its session snapshot. Students
// may only read their own enrollments.
func (s *EnrollmentService) GetByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// GetByIDFor applies the owner-or-staff read scope before returning.
func (s *EnrollmentService) GetByIDFor(ctx context.Context, id string, actor models.JWTClaims) (*models.EnrollmentDetail, error) {
	detail, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if detail.UserID != actor.UserID && actor.Role == models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot view another student's enrollment")
	}
	return detail, nil
}

// List returns enrollments across all sessions for staff dashboards.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, paginationFor(filter.Page, filter.PageSize, total), nil
}

// ListByUser returns a user's enrollments. Students may only list
// their own.
func (s *EnrollmentService) ListByUser(ctx context.Context, userID string, actor models.JWTClaims, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	if userID != actor.UserID && actor.Role == models.RoleStudent {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "cannot view another student's enrollments")
	}

	filter.UserID = userID
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, paginationFor(filter.Page, filter.PageSize, total), nil
}

// ListBySession returns the full roster of a session.
func (s *EnrollmentService) ListBySession(ctx context.Context, sessionID string) ([]models.EnrollmentRosterEntry, error) {
	if _, err := s.sessions.FindByID(ctx, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	roster, err := s.repo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list session roster")
	}
	return roster, nil
}

// UpdateStatus records the attendance outcome of an enrollment.
func (s *EnrollmentService) UpdateStatus(ctx context.Context, id string, req UpdateEnrollmentStatusRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	if !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be PENDING, COMPLETED or ABSENT")
	}

	if err := s.repo.UpdateStatus(ctx, id, req.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment status")
	}
	return s.GetByID(ctx, id)
}

// Stats aggregates enrollment counts per status. Statuses without any
// rows report zero.
func (s *EnrollmentService) Stats(ctx context.Context) (*models.EnrollmentStats, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate enrollment stats")
	}

	stats := &models.EnrollmentStats{
		Pending:   counts[models.EnrollmentStatusPending],
		Completed: counts[models.EnrollmentStatusCompleted],
		Absent:    counts[models.EnrollmentStatusAbsent],
	}
	stats.Total = stats.Pending + stats.Completed + stats.Absent
	return stats, nil
}

// ExportRoster renders a session roster as CSV or PDF.
func (s *EnrollmentService) ExportRoster(ctx context.Context, sessionID, format string) (*RosterExport, error) {
	roster, err := s.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Headers: []string{"Name", "Email", "Status", "Enrolled At"},
	}
	for _, entry := range roster {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Name":        entry.UserName,
			"Email":       entry.UserEmail,
			"Status":      string(entry.Status),
			"Enrolled At": entry.EnrolledAt.Format(time.RFC3339),
		})
	}

	switch format {
	case "csv", "":
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv roster")
		}
		return &RosterExport{
			FileName:    fmt.Sprintf("roster-%s.csv", sessionID),
			ContentType: "text/csv",
			Content:     content,
		}, nil
	case "pdf":
		content, err := s.pdf.Render(dataset, fmt.Sprintf("Session %s Roster", sessionID))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf roster")
		}
		return &RosterExport{
			FileName:    fmt.Sprintf("roster-%s.pdf", sessionID),
			ContentType: "application/pdf",
			Content:     content,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}
