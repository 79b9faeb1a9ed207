package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/enrollhub/enrollment-service/internal/models"
	"github.com/enrollhub/enrollment-service/pkg/config"
	"github.com/enrollhub/enrollment-service/pkg/database"
	"github.com/enrollhub/enrollment-service/pkg/database/migrations"
)

// EnrollmentStore is implemented by both the Postgres and the Mongo backend.
type EnrollmentStore interface {
	Ping(ctx context.Context) error
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error)
	CountByStatus(ctx context.Context, cpf, owner string, statuses ...models.EnrollmentStatus) (int, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	Delete(ctx context.Context, id, owner string) error
	UpdateStatus(ctx context.Context, id string, update models.StatusUpdate) error
}

var (
	_ EnrollmentStore = (*EnrollmentRepository)(nil)
	_ EnrollmentStore = (*EnrollmentMongoRepository)(nil)
)

// OpenStore connects the backend selected by cfg.StoreDriver and prepares its
// schema. The returned close function releases the connection.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (EnrollmentStore, func(context.Context) error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.StoreDriver {
	case config.StoreDriverMongo:
		client, db, err := database.NewMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, nil, err
		}
		repo := NewEnrollmentMongoRepository(db)
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		logger.Info("enrollment store ready", zap.String("driver", cfg.StoreDriver), zap.String("database", cfg.Mongo.Database))
		return repo, client.Disconnect, nil

	case config.StoreDriverPostgres:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Database.AutoMigrate {
			if err := migrations.Apply(ctx, db); err != nil {
				_ = db.Close()
				return nil, nil, err
			}
		}
		logger.Info("enrollment store ready", zap.String("driver", cfg.StoreDriver), zap.String("database", cfg.Database.Name))
		return NewEnrollmentRepository(db), func(context.Context) error { return db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}
