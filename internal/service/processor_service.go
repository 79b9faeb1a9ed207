package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/enrollhub/enrollment-service/internal/models"
	"github.com/enrollhub/enrollment-service/internal/repository"
	"github.com/enrollhub/enrollment-service/pkg/config"
	"github.com/enrollhub/enrollment-service/pkg/queue"
	"github.com/enrollhub/enrollment-service/pkg/retry"
)

type processorStore interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	CountByStatus(ctx context.Context, cpf, owner string, statuses ...models.EnrollmentStatus) (int, error)
	UpdateStatus(ctx context.Context, id string, update models.StatusUpdate) error
}

type ageGroupSource interface {
	Fetch(ctx context.Context) ([]models.AgeGroup, error)
}

type identityLocker interface {
	Acquire(ctx context.Context, key string, ttl, wait time.Duration) (repository.ReleaseFunc, error)
}

// ProcessorService decides one enrollment per delivery and settles the
// delivery with the broker.
type ProcessorService struct {
	store   processorStore
	fetcher ageGroupSource
	locker  identityLocker
	cfg     config.ProcessorConfig
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewProcessorService constructs the processor. locker may be nil.
func NewProcessorService(store processorStore, fetcher ageGroupSource, locker identityLocker, cfg config.ProcessorConfig, metrics *MetricsService, logger *zap.Logger) *ProcessorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProcessorService{
		store:   store,
		fetcher: fetcher,
		locker:  locker,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		sleep:   retry.Sleep,
	}
}

// Handle processes one delivery. Business outcomes are always settled here;
// the returned error is non-nil only when settling with the broker failed or
// ctx ended mid-flight.
func (p *ProcessorService) Handle(ctx context.Context, d queue.Delivery, ack queue.Acknowledger) error {
	started := time.Now()
	defer func() { p.metrics.ObserveProcessing(time.Since(started)) }()

	id := strings.TrimSpace(string(d.Body))
	log := p.logger.With(
		zap.String("enrollment_id", id),
		zap.Uint64("delivery_tag", d.Tag),
		zap.Int64("retry_count", d.DeathCount),
		zap.Bool("redelivered", d.Redelivered),
	)

	if _, err := uuid.Parse(id); err != nil {
		log.Warn("discarding message without a valid enrollment id")
		return p.ack(ack, d.Tag, DeliveryDropped)
	}

	enrollment, err := p.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Info("enrollment no longer exists, skipping")
			return p.ack(ack, d.Tag, DeliveryDropped)
		}
		log.Error("load enrollment failed", zap.Error(err))
		return p.nack(ack, d.Tag, false)
	}
	if !enrollment.Status.IsProcessable() {
		log.Info("enrollment not processable, skipping",
			zap.String("status", string(enrollment.Status)),
			zap.Bool("terminal", enrollment.Status.IsTerminal()),
		)
		return p.ack(ack, d.Tag, DeliveryDropped)
	}

	if err := p.sleep(ctx, p.cfg.Delay); err != nil {
		return p.abandon(ack, d.Tag, err)
	}

	groups, err := p.fetcher.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return p.abandon(ack, d.Tag, ctx.Err())
		}
		p.markFailed(ctx, log, enrollment.ID)
		return p.nack(ack, d.Tag, false)
	}

	release, err := p.lock(ctx, enrollment)
	if err != nil {
		if ctx.Err() != nil {
			return p.abandon(ack, d.Tag, ctx.Err())
		}
		log.Warn("identity lock unavailable, deferring", zap.Error(err))
		return p.nack(ack, d.Tag, false)
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			log.Warn("release identity lock failed", zap.Error(err))
		}
	}()

	decision, err := p.decide(ctx, enrollment, groups)
	if err != nil {
		if ctx.Err() != nil {
			return p.abandon(ack, d.Tag, ctx.Err())
		}
		log.Error("count enrollments failed", zap.Error(err))
		return p.nack(ack, d.Tag, false)
	}

	if err := p.record(ctx, log, enrollment, decision); err != nil {
		log.Error("write decision failed", zap.Error(err))
		return p.nack(ack, d.Tag, false)
	}
	return p.ack(ack, d.Tag, DeliveryAcked)
}

func (p *ProcessorService) decide(ctx context.Context, e *models.Enrollment, groups []models.AgeGroup) (Decision, error) {
	rejected, err := p.store.CountByStatus(ctx, e.CPF, e.Owner, models.EnrollmentStatusRejected)
	if err != nil {
		return Decision{}, fmt.Errorf("count rejected: %w", err)
	}
	approved, err := p.store.CountByStatus(ctx, e.CPF, e.Owner, models.EnrollmentStatusApproved)
	if err != nil {
		return Decision{}, fmt.Errorf("count approved: %w", err)
	}
	return Evaluate(EvaluationInput{
		Enrollment:    *e,
		Groups:        groups,
		RejectedCount: rejected,
		ApprovedCount: approved,
	}), nil
}

// record writes the decision. Lost races (record gone or already decided)
// are logged and treated as done; an approval blocked by the open-enrollment
// index becomes a rejection naming the record that holds the index.
func (p *ProcessorService) record(ctx context.Context, log *zap.Logger, e *models.Enrollment, decision Decision) error {
	err := p.store.UpdateStatus(ctx, e.ID, p.statusUpdate(decision))
	if errors.Is(err, repository.ErrDuplicate) && decision.Approved() {
		decision, err = p.blockedApproval(ctx, e)
		if err != nil {
			return err
		}
		err = p.store.UpdateStatus(ctx, e.ID, p.statusUpdate(decision))
	}
	switch {
	case err == nil:
		p.metrics.RecordDecision(decision.Status, decision.Rule)
		log.Info("enrollment decided",
			zap.String("status", string(decision.Status)),
			zap.String("rule", decision.Rule),
			zap.String("reason", decision.Reason),
		)
		return nil
	case errors.Is(err, repository.ErrStaleStatus):
		log.Warn("enrollment decided elsewhere, keeping existing decision")
		return nil
	case errors.Is(err, repository.ErrNotFound):
		log.Info("enrollment deleted during processing")
		return nil
	default:
		return err
	}
}

// blockedApproval explains why the unique index refused an approval: either
// an approved record exists or another record for the same cpf is pending.
func (p *ProcessorService) blockedApproval(ctx context.Context, e *models.Enrollment) (Decision, error) {
	approved, err := p.store.CountByStatus(ctx, e.CPF, e.Owner, models.EnrollmentStatusApproved)
	if err != nil {
		return Decision{}, fmt.Errorf("count approved: %w", err)
	}
	if approved > 0 {
		return reject(RuleAlreadyApproved, ReasonAlreadyApproved), nil
	}
	return reject(RuleOpenEnrollment, ReasonOpenEnrollment), nil
}

func (p *ProcessorService) markFailed(ctx context.Context, log *zap.Logger, id string) {
	err := p.store.UpdateStatus(ctx, id, models.StatusUpdate{
		Status:      models.EnrollmentStatusFailed,
		ProcessedAt: p.now(),
	})
	switch {
	case err == nil:
		p.metrics.RecordDecision(models.EnrollmentStatusFailed, RuleFetchFailed)
		log.Warn("age groups unavailable, enrollment marked failed and dead-lettered")
	case errors.Is(err, repository.ErrStaleStatus), errors.Is(err, repository.ErrNotFound):
		log.Info("enrollment changed while fetching age groups", zap.Error(err))
	default:
		log.Error("mark enrollment failed", zap.Error(err))
	}
}

func (p *ProcessorService) statusUpdate(decision Decision) models.StatusUpdate {
	update := models.StatusUpdate{Status: decision.Status, ProcessedAt: p.now()}
	if decision.Reason != "" {
		reason := decision.Reason
		update.RejectionReason = &reason
	}
	return update
}

func (p *ProcessorService) lock(ctx context.Context, e *models.Enrollment) (repository.ReleaseFunc, error) {
	if p.locker == nil {
		return func(context.Context) error { return nil }, nil
	}
	return p.locker.Acquire(ctx, e.Owner+":"+e.CPF, p.cfg.LockTTL, p.cfg.LockWait)
}

func (p *ProcessorService) ack(ack queue.Acknowledger, tag uint64, outcome string) error {
	p.metrics.RecordDelivery(outcome)
	if err := ack.Ack(tag); err != nil {
		return fmt.Errorf("ack delivery %d: %w", tag, err)
	}
	return nil
}

func (p *ProcessorService) nack(ack queue.Acknowledger, tag uint64, requeue bool) error {
	p.metrics.RecordDelivery(DeliveryNacked)
	if err := ack.Nack(tag, requeue); err != nil {
		return fmt.Errorf("nack delivery %d: %w", tag, err)
	}
	return nil
}

// abandon hands an unfinished delivery straight back to the queue on
// shutdown.
func (p *ProcessorService) abandon(ack queue.Acknowledger, tag uint64, cause error) error {
	if err := p.nack(ack, tag, true); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}
