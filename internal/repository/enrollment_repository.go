package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/enrollhub/enrollment-service/internal/models"
)

const enrollmentColumns = `id, name, cpf, age, owner, status, rejection_reason, created_at, processed_at`

// EnrollmentRepository is the PostgreSQL enrollment store.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Ping checks database reachability.
func (r *EnrollmentRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &enrollment, nil
}

// List returns enrollments filtered by the provided criteria, newest first.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Owner != "" {
		conditions = append(conditions, fmt.Sprintf("owner = $%d", len(args)+1))
		args = append(args, filter.Owner)
	}
	if filter.CPF != "" {
		conditions = append(conditions, fmt.Sprintf("cpf = $%d", len(args)+1))
		args = append(args, filter.CPF)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page, size := normalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM enrollments%s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		enrollmentColumns, clause, size, offset)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM enrollments"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// CountByStatus counts the owner's enrollments for cpf in any of statuses.
func (r *EnrollmentRepository) CountByStatus(ctx context.Context, cpf, owner string, statuses ...models.EnrollmentStatus) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	const query = `SELECT COUNT(*) FROM enrollments WHERE cpf = $1 AND owner = $2 AND status = ANY($3)`
	var count int
	if err := r.db.GetContext(ctx, &count, query, cpf, owner, pq.Array(values)); err != nil {
		return 0, fmt.Errorf("count enrollments by status: %w", err)
	}
	return count, nil
}

// Create persists a new enrollment, assigning id, status and creation time
// when unset.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusPending
	}
	const query = `INSERT INTO enrollments (id, name, cpf, age, owner, status, rejection_reason, created_at, processed_at)
        VALUES (:id, :name, :cpf, :age, :owner, :status, :rejection_reason, :created_at, :processed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Delete removes the owner's enrollment.
func (r *EnrollmentRepository) Delete(ctx context.Context, id, owner string) error {
	const query = `DELETE FROM enrollments WHERE id = $1 AND owner = $2`
	res, err := r.db.ExecContext(ctx, query, id, owner)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete enrollment rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus records a processing decision. The write only applies while
// the record is pending or failed; otherwise ErrStaleStatus is returned.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, update models.StatusUpdate) error {
	const query = `UPDATE enrollments SET status = $2, rejection_reason = $3, processed_at = $4
        WHERE id = $1 AND status = ANY($5)`
	processable := pq.Array([]string{string(models.EnrollmentStatusPending), string(models.EnrollmentStatusFailed)})
	res, err := r.db.ExecContext(ctx, query, id, update.Status, update.RejectionReason, update.ProcessedAt, processable)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("update enrollment status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update enrollment status rows: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM enrollments WHERE id = $1)`, id); err != nil {
		return fmt.Errorf("check enrollment: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStaleStatus
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
