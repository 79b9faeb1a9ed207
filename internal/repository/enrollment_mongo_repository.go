package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/enrollhub/enrollment-service/internal/models"
)

const enrollmentCollection = "enrollments"

// EnrollmentMongoRepository is the MongoDB enrollment store.
type EnrollmentMongoRepository struct {
	db         *mongo.Database
	collection *mongo.Collection
}

// NewEnrollmentMongoRepository constructs the repository.
func NewEnrollmentMongoRepository(db *mongo.Database) *EnrollmentMongoRepository {
	return &EnrollmentMongoRepository{db: db, collection: db.Collection(enrollmentCollection)}
}

// EnsureIndexes creates the lookup index and the partial unique index that
// allows one open enrollment per cpf and owner.
func (r *EnrollmentMongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "cpf", Value: 1}, {Key: "owner", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("cpf_owner_status"),
		},
		{
			Keys: bson.D{{Key: "cpf", Value: 1}, {Key: "owner", Value: 1}},
			Options: options.Index().
				SetName("open_cpf_owner_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": bson.M{"$in": bson.A{
					string(models.EnrollmentStatusPending), string(models.EnrollmentStatusApproved),
				}}}),
		},
	})
	if err != nil {
		return fmt.Errorf("ensure enrollment indexes: %w", err)
	}
	return nil
}

// Ping checks database reachability.
func (r *EnrollmentMongoRepository) Ping(ctx context.Context) error {
	return r.db.Client().Ping(ctx, nil)
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentMongoRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&enrollment); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &enrollment, nil
}

// List returns enrollments filtered by the provided criteria, newest first.
func (r *EnrollmentMongoRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	query := bson.M{}
	if filter.Owner != "" {
		query["owner"] = filter.Owner
	}
	if filter.CPF != "" {
		query["cpf"] = filter.CPF
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}

	page, size := normalizePage(filter.Page, filter.PageSize)
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((page - 1) * size)).
		SetLimit(int64(size))

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}
	var enrollments []models.Enrollment
	if err := cursor.All(ctx, &enrollments); err != nil {
		return nil, 0, fmt.Errorf("decode enrollments: %w", err)
	}

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, int(total), nil
}

// CountByStatus counts the owner's enrollments for cpf in any of statuses.
func (r *EnrollmentMongoRepository) CountByStatus(ctx context.Context, cpf, owner string, statuses ...models.EnrollmentStatus) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	values := make(bson.A, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	count, err := r.collection.CountDocuments(ctx, bson.M{
		"cpf":    cpf,
		"owner":  owner,
		"status": bson.M{"$in": values},
	})
	if err != nil {
		return 0, fmt.Errorf("count enrollments by status: %w", err)
	}
	return int(count), nil
}

// Create persists a new enrollment, assigning id, status and creation time
// when unset.
func (r *EnrollmentMongoRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusPending
	}
	if _, err := r.collection.InsertOne(ctx, enrollment); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Delete removes the owner's enrollment.
func (r *EnrollmentMongoRepository) Delete(ctx context.Context, id, owner string) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id, "owner": owner})
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus records a processing decision. The write only applies while
// the record is pending or failed; otherwise ErrStaleStatus is returned.
func (r *EnrollmentMongoRepository) UpdateStatus(ctx context.Context, id string, update models.StatusUpdate) error {
	filter := bson.M{
		"_id": id,
		"status": bson.M{"$in": bson.A{
			string(models.EnrollmentStatusPending), string(models.EnrollmentStatusFailed),
		}},
	}
	set := bson.M{"$set": bson.M{
		"status":           update.Status,
		"rejection_reason": update.RejectionReason,
		"processed_at":     update.ProcessedAt,
	}}
	res, err := r.collection.UpdateOne(ctx, filter, set)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("update enrollment status: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	exists, err := r.collection.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("check enrollment: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrStaleStatus
}
