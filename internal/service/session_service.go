package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/driveschool-api/internal/models"
	appErrors "github.com/noah-isme/driveschool-api/pkg/errors"
)

type sessionRepository interface {
	NextSessionID(ctx context.Context) (string, error)
	FindByID(ctx context.Context, id string) (*models.TrainingSession, error)
	FindDetailByID(ctx context.Context, id string) (*models.SessionDetail, error)
	List(ctx context.Context, filter models.SessionFilter) ([]models.SessionDetail, int, error)
	Create(ctx context.Context, session *models.TrainingSession) error
	Update(ctx context.Context, session *models.TrainingSession) error
	UpdateStatus(ctx context.Context, id string, status models.SessionStatus) error
	DeleteIfEmpty(ctx context.Context, id string) (bool, bool, error)
}

type vehicleReader interface {
	FindByID(ctx context.Context, id string) (*models.Vehicle, error)
}

type instructorReader interface {
	FindByID(ctx context.Context, id string) (*models.Instructor, error)
}

// CreateSessionRequest describes session creation payload.
type CreateSessionRequest struct {
	SessionDate   string `json:"session_date" validate:"required"`
	SessionTime   string `json:"session_time" validate:"required"`
	Location      string `json:"location" validate:"required"`
	VehicleID     string `json:"vehicle_id" validate:"required"`
	InstructorID  string `json:"instructor_id" validate:"required"`
	MaxCount      int    `json:"max_count" validate:"required,gt=0"`
	Qualification string `json:"qualification"`
}

// UpdateSessionRequest describes a partial session update. A supplied
// current_count is validated against capacity but never lets client
// input drive the counter past max_count.
type UpdateSessionRequest struct {
	SessionDate   *string               `json:"session_date,omitempty"`
	SessionTime   *string               `json:"session_time,omitempty"`
	Location      *string               `json:"location,omitempty"`
	VehicleID     *string               `json:"vehicle_id,omitempty"`
	InstructorID  *string               `json:"instructor_id,omitempty"`
	MaxCount      *int                  `json:"max_count,omitempty" validate:"omitempty,gt=0"`
	CurrentCount  *int                  `json:"current_count,omitempty" validate:"omitempty,gte=0"`
	Status        *models.SessionStatus `json:"status,omitempty"`
	Qualification *string               `json:"qualification,omitempty"`
}

// UpdateSessionStatusRequest sets only the session status.
type UpdateSessionStatusRequest struct {
	Status models.SessionStatus `json:"status" validate:"required"`
}

const sessionDateLayout = "2006-01-02"

// SessionService orchestrates physical-training session workflows.
type SessionService struct {
	repo        sessionRepository
	vehicles    vehicleReader
	instructors instructorReader
	cache       listingCache
	cacheTTL    time.Duration
	validator   *validator.Validate
	logger      *zap.Logger
}

const sessionCachePrefix = "sessions:"

// NewSessionService constructs SessionService. cache may be nil.
func NewSessionService(repo sessionRepository, vehicles vehicleReader, instructors instructorReader, cache listingCache, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{repo: repo, vehicles: vehicles, instructors: instructors, cache: cache, cacheTTL: cacheTTL, validator: validate, logger: logger}
}

// List returns sessions with pagination metadata.
func (s *SessionService) List(ctx context.Context, filter models.SessionFilter) ([]models.SessionDetail, *models.Pagination, error) {
	sessions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return sessions, paginationFor(filter.Page, filter.PageSize, total), nil
}

// ListAvailable returns pending sessions with remaining capacity,
// served from cache when warm.
func (s *SessionService) ListAvailable(ctx context.Context) ([]models.SessionDetail, error) {
	const cacheKey = sessionCachePrefix + "available"
	if s.cache != nil {
		var cached []models.SessionDetail
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	sessions, _, err := s.repo.List(ctx, models.SessionFilter{AvailableOnly: true, PageSize: 100})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list available sessions")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, sessions, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache available sessions", zap.Error(err))
		}
	}
	return sessions, nil
}

// GetByID returns a session enriched with vehicle and instructor info.
func (s *SessionService) GetByID(ctx context.Context, id string) (*models.SessionDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return detail, nil
}

// Create schedules a new training session with a counter-minted id.
func (s *SessionService) Create(ctx context.Context, req CreateSessionRequest) (*models.SessionDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}

	sessionDate, err := time.Parse(sessionDateLayout, req.SessionDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session_date must be formatted YYYY-MM-DD")
	}

	if _, err := s.vehicles.FindByID(ctx, req.VehicleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "vehicle not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load vehicle")
	}
	if _, err := s.instructors.FindByID(ctx, req.InstructorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "instructor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor")
	}

	id, err := s.repo.NextSessionID(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mint session id")
	}

	session := &models.TrainingSession{
		ID:            id,
		SessionDate:   sessionDate,
		SessionTime:   req.SessionTime,
		Location:      req.Location,
		VehicleID:     req.VehicleID,
		InstructorID:  req.InstructorID,
		MaxCount:      req.MaxCount,
		CurrentCount:  0,
		Status:        models.SessionStatusPending,
		Qualification: req.Qualification,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}
	s.invalidateCache(ctx)
	return s.GetByID(ctx, session.ID)
}

// Update applies a partial update to a session, re-validating any
// replaced vehicle or instructor reference.
func (s *SessionService) Update(ctx context.Context, id string, req UpdateSessionRequest) (*models.SessionDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}

	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	if req.Status != nil && !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be PENDING or COMPLETED")
	}

	if req.SessionDate != nil {
		parsed, err := time.Parse(sessionDateLayout, *req.SessionDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "session_date must be formatted YYYY-MM-DD")
		}
		session.SessionDate = parsed
	}
	if req.VehicleID != nil && *req.VehicleID != session.VehicleID {
		if _, err := s.vehicles.FindByID(ctx, *req.VehicleID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "vehicle not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load vehicle")
		}
		session.VehicleID = *req.VehicleID
	}
	if req.InstructorID != nil && *req.InstructorID != session.InstructorID {
		if _, err := s.instructors.FindByID(ctx, *req.InstructorID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "instructor not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor")
		}
		session.InstructorID = *req.InstructorID
	}
	if req.SessionTime != nil {
		session.SessionTime = *req.SessionTime
	}
	if req.Location != nil {
		session.Location = *req.Location
	}
	if req.MaxCount != nil {
		session.MaxCount = *req.MaxCount
	}
	if req.Status != nil {
		session.Status = *req.Status
	}
	if req.Qualification != nil {
		session.Qualification = *req.Qualification
	}

	// A client-supplied count may not exceed the (possibly updated)
	// capacity. The stored counter still moves only through the
	// enrollment ledger.
	effectiveCount := session.CurrentCount
	if req.CurrentCount != nil {
		effectiveCount = *req.CurrentCount
	}
	if effectiveCount > session.MaxCount {
		return nil, appErrors.Clone(appErrors.ErrValidation, "current_count cannot exceed max_count")
	}

	if err := s.repo.Update(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session")
	}
	s.invalidateCache(ctx)
	return s.GetByID(ctx, id)
}

// UpdateStatus sets the session status. Transitions are deliberately
// unrestricted; completed sessions may be reopened by staff.
func (s *SessionService) UpdateStatus(ctx context.Context, id string, req UpdateSessionStatusRequest) (*models.SessionDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	if !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be PENDING or COMPLETED")
	}

	if err := s.repo.UpdateStatus(ctx, id, req.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session status")
	}
	s.invalidateCache(ctx)
	return s.GetByID(ctx, id)
}

// Delete removes a session. Sessions still holding enrollments are
// protected so ledger rows are never orphaned.
func (s *SessionService) Delete(ctx context.Context, id string) error {
	deleted, found, err := s.repo.DeleteIfEmpty(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete session")
	}
	if !found {
		return appErrors.Clone(appErrors.ErrNotFound, "session not found")
	}
	if !deleted {
		return appErrors.Clone(appErrors.ErrConflict, "session has active enrollments")
	}
	s.invalidateCache(ctx)
	return nil
}

func (s *SessionService) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, sessionCachePrefix+"*"); err != nil {
		s.logger.Warn("failed to invalidate session cache", zap.Error(err))
	}
}
