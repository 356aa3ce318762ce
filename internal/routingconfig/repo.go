package routingconfig

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/speedy-van/dispatch/internal/repo"
	"github.com/speedy-van/dispatch/pkg/db/models"
)

// Repository reads and writes the singleton routing config row.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context) (*models.RoutingConfig, error)
	Save(ctx context.Context, cfg *models.RoutingConfig) error
}

type repository struct {
	repo.Base
}

// NewRepository builds a routing config repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(tx)}
}

// Get returns the singleton row, seeding defaults when it is missing.
func (r *repository) Get(ctx context.Context) (*models.RoutingConfig, error) {
	var cfg models.RoutingConfig
	err := r.DB(ctx).First(&cfg, models.RoutingConfigID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		seeded := models.DefaultRoutingConfig()
		if err := r.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&seeded).Error; err != nil {
			return nil, err
		}
		if err := r.DB(ctx).First(&cfg, models.RoutingConfigID).Error; err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save persists the full row.
func (r *repository) Save(ctx context.Context, cfg *models.RoutingConfig) error {
	return r.DB(ctx).Save(cfg).Error
}
