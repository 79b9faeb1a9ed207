package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/enrollhub/enrollment-service/internal/models"
	"github.com/enrollhub/enrollment-service/internal/repository"
	appErrors "github.com/enrollhub/enrollment-service/pkg/errors"
	"github.com/enrollhub/enrollment-service/pkg/middleware/requestid"
	"github.com/enrollhub/enrollment-service/pkg/queue"
	"github.com/enrollhub/enrollment-service/pkg/validation"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	CountByStatus(ctx context.Context, cpf, owner string, statuses ...models.EnrollmentStatus) (int, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	Delete(ctx context.Context, id, owner string) error
}

// CreateEnrollmentRequest is the payload for a new enrollment.
type CreateEnrollmentRequest struct {
	Name string `json:"name" validate:"required,max=255"`
	CPF  string `json:"cpf" validate:"required,cpf"`
	Age  *int   `json:"age" validate:"required,min=0,max=150"`
}

// EnrollmentService handles the request-facing enrollment workflows.
type EnrollmentService struct {
	repo      enrollmentRepository
	publisher queue.Publisher
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, publisher queue.Publisher, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, publisher: publisher, validator: validate, metrics: metrics, logger: logger}
}

// Create validates the request, persists it as pending and publishes it for
// processing. A record whose publish fails is removed again.
func (s *EnrollmentService) Create(ctx context.Context, owner string, req CreateEnrollmentRequest) (*models.Enrollment, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	cpf := validation.NormalizeCPF(req.CPF)

	open, err := s.repo.CountByStatus(ctx, cpf, owner, models.EnrollmentStatusPending, models.EnrollmentStatusApproved)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollments")
	}
	if open > 0 {
		return nil, appErrors.Clone(appErrors.ErrEnrollmentOpen, "")
	}
	rejected, err := s.repo.CountByStatus(ctx, cpf, owner, models.EnrollmentStatusRejected)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollments")
	}
	if rejected >= models.MaxRejections {
		return nil, appErrors.Clone(appErrors.ErrTooManyRejections, "")
	}

	enrollment := &models.Enrollment{
		Name:   req.Name,
		CPF:    cpf,
		Age:    *req.Age,
		Owner:  owner,
		Status: models.EnrollmentStatusPending,
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrEnrollmentOpen, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	if err := s.publisher.Publish(ctx, enrollment.ID); err != nil {
		s.metrics.RecordPublish(false)
		s.requestLogger(ctx).Error("publish enrollment failed", zap.String("enrollment_id", enrollment.ID), zap.Error(err))
		if derr := s.repo.Delete(context.WithoutCancel(ctx), enrollment.ID, owner); derr != nil {
			s.requestLogger(ctx).Error("remove unpublished enrollment failed", zap.String("enrollment_id", enrollment.ID), zap.Error(derr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "enrollment queue unavailable")
	}
	s.metrics.RecordPublish(true)
	s.requestLogger(ctx).Info("enrollment queued", zap.String("enrollment_id", enrollment.ID), zap.String("owner", owner))
	return enrollment, nil
}

// List returns the owner's enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, owner string, filter models.EnrollmentFilter) ([]models.Enrollment, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown status filter")
	}
	if filter.CPF != "" {
		filter.CPF = validation.NormalizeCPF(filter.CPF)
	}
	filter.Owner = owner

	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	if enrollments == nil {
		enrollments = []models.Enrollment{}
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one of the owner's enrollments. Records owned by someone else
// are reported as not found.
func (s *EnrollmentService) Get(ctx context.Context, owner, id string) (*models.Enrollment, error) {
	if !isEnrollmentID(id) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	}
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Owner != owner {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	}
	return enrollment, nil
}

// Delete removes one of the owner's enrollments. A queued message for it is
// later skipped by the processor.
func (s *EnrollmentService) Delete(ctx context.Context, owner, id string) error {
	if !isEnrollmentID(id) {
		return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	}
	if err := s.repo.Delete(ctx, id, owner); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
	}
	s.requestLogger(ctx).Info("enrollment deleted", zap.String("enrollment_id", id), zap.String("owner", owner))
	return nil
}

// requestLogger tags entries with the request id carried by ctx.
func (s *EnrollmentService) requestLogger(ctx context.Context) *zap.Logger {
	if id := requestid.FromContext(ctx); id != "" {
		return s.logger.With(zap.String("request_id", id))
	}
	return s.logger
}

func isEnrollmentID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
