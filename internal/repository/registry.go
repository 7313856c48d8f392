package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/qrtrack/qr-track/internal/model"
)

// Registry handles database operations for associations, stats and
// impressions. Every mutating operation runs inside a single transaction
// so that either all of its writes land or none do.
type Registry struct {
	db *gorm.DB
}

// NewRegistry creates a new registry backed by MySQL. TranslateError is
// enabled so a losing concurrent insert on the unique key index surfaces
// as gorm.ErrDuplicatedKey rather than a driver-specific error.
func NewRegistry(dsn string, maxIdleConns, maxOpenConns int) (*Registry, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetMaxOpenConns(maxOpenConns)

	// Auto-migrate tables
	if err := db.AutoMigrate(&model.Association{}, &model.Stats{}, &model.Impression{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Registry{db: db}, nil
}

// CreatePair persists an Association and its Stats record as one
// transaction. A duplicate key is reported as model.ErrKeyConflict; the
// caller decides whether that means retry (generated key) or a user-facing
// conflict (explicit key).
func (r *Registry) CreatePair(ctx context.Context, assoc *model.Association, stats *model.Stats) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(assoc).Error; err != nil {
			return err
		}
		stats.AssociationID = assoc.ID
		return tx.Create(stats).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return model.ErrKeyConflict
		}
		return fmt.Errorf("failed to create association pair: %w", err)
	}
	return nil
}

// KeyExists reports whether any Association holds the key.
func (r *Registry) KeyExists(ctx context.Context, key string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Association{}).
		Where("`key` = ?", key).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check key existence: %w", err)
	}
	return count > 0, nil
}

// FindAssociation retrieves an Association by key.
func (r *Registry) FindAssociation(ctx context.Context, key string) (*model.Association, error) {
	var assoc model.Association
	if err := r.db.WithContext(ctx).Where("`key` = ?", key).First(&assoc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get association: %w", err)
	}
	return &assoc, nil
}

// FindStats retrieves the Stats record for a key.
func (r *Registry) FindStats(ctx context.Context, key string) (*model.Stats, error) {
	var stats model.Stats
	if err := r.db.WithContext(ctx).Where("`key` = ?", key).First(&stats).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return &stats, nil
}

// ResolveAndRecord looks up the Association for a key and appends one
// Impression in the same transaction, so the recorded impression and the
// returned URL come from the same snapshot. Unknown keys produce no write.
// An Association without its Stats sibling yields model.ErrIntegrity.
func (r *Registry) ResolveAndRecord(ctx context.Context, key string, impressionID int64, at time.Time) (*model.Association, error) {
	var assoc model.Association
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("`key` = ?", key).First(&assoc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.ErrNotFound
			}
			return err
		}
		var stats model.Stats
		if err := tx.Where("association_id = ?", assoc.ID).First(&stats).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.ErrIntegrity
			}
			return err
		}
		impression := model.Impression{
			ID:       impressionID,
			StatsID:  stats.ID,
			Datetime: at,
		}
		return tx.Create(&impression).Error
	})
	if err != nil {
		if errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrIntegrity) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to record impression: %w", err)
	}
	return &assoc, nil
}

// Impressions returns the impressions under a Stats record ordered by
// recording time.
func (r *Registry) Impressions(ctx context.Context, statsID int64) ([]model.Impression, error) {
	var impressions []model.Impression
	if err := r.db.WithContext(ctx).
		Where("stats_id = ?", statsID).
		Order("datetime asc").
		Find(&impressions).Error; err != nil {
		return nil, fmt.Errorf("failed to list impressions: %w", err)
	}
	return impressions, nil
}

// UpdateStyleConfig replaces the stored style blob for a key.
func (r *Registry) UpdateStyleConfig(ctx context.Context, key string, blob *string) error {
	result := r.db.WithContext(ctx).Model(&model.Association{}).
		Where("`key` = ?", key).
		Update("qr_style_config", blob)
	if result.Error != nil {
		return fmt.Errorf("failed to update style config: %w", result.Error)
	}
	// RowsAffected counts matched rows here because the DSN sets
	// clientFoundRows; a no-op rewrite of the same blob still counts.
	if result.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

// ResetImpressions deletes every Impression owned by the key's Stats
// record, leaving Association and Stats intact.
func (r *Registry) ResetImpressions(ctx context.Context, key string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stats model.Stats
		if err := tx.Where("`key` = ?", key).First(&stats).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.ErrNotFound
			}
			return err
		}
		return tx.Where("stats_id = ?", stats.ID).Delete(&model.Impression{}).Error
	})
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to reset impressions: %w", err)
	}
	return nil
}

// DeleteCascade removes the Association, its Stats and all Impressions in
// one transaction, children before parents. A partial cascade is never
// committed.
func (r *Registry) DeleteCascade(ctx context.Context, key string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var assoc model.Association
		if err := tx.Where("`key` = ?", key).First(&assoc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.ErrNotFound
			}
			return err
		}
		var stats model.Stats
		err := tx.Where("association_id = ?", assoc.ID).First(&stats).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			// Stats already missing; still remove the association.
		case err != nil:
			return err
		default:
			if err := tx.Where("stats_id = ?", stats.ID).Delete(&model.Impression{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&stats).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&assoc).Error
	})
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete association: %w", err)
	}
	return nil
}

// AllKeys retrieves every association key, used to warm the key filter at
// startup.
func (r *Registry) AllKeys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := r.db.WithContext(ctx).Model(&model.Association{}).
		Pluck("`key`", &keys).Error; err != nil {
		return nil, fmt.Errorf("failed to get all keys: %w", err)
	}
	return keys, nil
}

// Close closes the database connection
func (r *Registry) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
