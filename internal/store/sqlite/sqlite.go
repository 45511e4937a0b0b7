// Package sqlite stores activity rows in a local SQLite file through gorm.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/vpriesta/mds-form/internal/store"
)

type activity struct {
	ActivityID string         `gorm:"column:activity_id;primaryKey"`
	UserID     string         `gorm:"column:user_id;not null;index:idx_activities_user"`
	Status     string         `gorm:"column:status;not null;index:idx_activities_status"`
	Data       datatypes.JSON `gorm:"column:data"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime:false;index"`
}

func (activity) TableName() string { return "activities" }

// Backend implements store.Backend on a gorm SQLite connection.
type Backend struct {
	db *gorm.DB
}

// Open opens (or creates) the database file at path and migrates the table.
func Open(path string) (*Backend, error) {
	gormLog := gormLogger.New(
		log.New(os.Stderr, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&activity{}); err != nil {
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return &Backend{db: db}, nil
}

// Close releases the underlying connection pool.
func (b *Backend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Name implements store.Backend.
func (b *Backend) Name() string { return "sqlite" }

// Upsert implements store.Backend.
func (b *Backend) Upsert(ctx context.Context, row store.Row) (store.Row, error) {
	data := row.Data
	if data == "" {
		data = "{}"
	}
	row.UpdatedAt = row.UpdatedAt.UTC()

	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing activity
		err := tx.Where("activity_id = ?", row.ActivityID).Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&activity{
				ActivityID: row.ActivityID,
				UserID:     row.UserID,
				Status:     row.Status,
				Data:       datatypes.JSON(data),
				UpdatedAt:  row.UpdatedAt,
			}).Error
		case err != nil:
			return err
		}

		row.UserID = existing.UserID
		row.UpdatedAt = store.Clamp(existing.UpdatedAt.UTC(), row.UpdatedAt)
		return tx.Model(&activity{}).
			Where("activity_id = ?", row.ActivityID).
			Updates(map[string]interface{}{
				"status":     row.Status,
				"data":       datatypes.JSON(data),
				"updated_at": row.UpdatedAt,
			}).Error
	})
	if err != nil {
		return store.Row{}, fmt.Errorf("sqlite: upsert %s: %w", row.ActivityID, err)
	}
	row.Data = data
	return row, nil
}

// Get implements store.Backend.
func (b *Backend) Get(ctx context.Context, activityID string) (*store.Row, error) {
	var rec activity
	err := b.db.WithContext(ctx).Where("activity_id = ?", activityID).Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: get %s: %w", activityID, err)
	}
	row := toRow(rec)
	return &row, nil
}

// List implements store.Backend. Rows are ordered newest-updated first.
func (b *Backend) List(ctx context.Context, f store.Filter) ([]store.Row, error) {
	q := b.db.WithContext(ctx).Model(&activity{})
	if owner := strings.TrimSpace(f.Owner); owner != "" {
		q = q.Where("trim(user_id) = ?", owner)
	}
	if status := strings.TrimSpace(f.Status); status != "" {
		q = q.Where("lower(trim(status)) = ?", strings.ToLower(status))
	}
	q = q.Order("updated_at DESC").Order("activity_id DESC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var recs []activity
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("sqlite: list: %w", err)
	}
	rows := make([]store.Row, len(recs))
	for i, rec := range recs {
		rows[i] = toRow(rec)
	}
	return rows, nil
}

// UpdateStatus implements store.Backend.
func (b *Backend) UpdateStatus(ctx context.Context, activityID, status string, at time.Time) (bool, error) {
	found := false
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing activity
		err := tx.Where("activity_id = ?", activityID).Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return tx.Model(&activity{}).
			Where("activity_id = ?", activityID).
			Updates(map[string]interface{}{
				"status":     status,
				"updated_at": store.Clamp(existing.UpdatedAt.UTC(), at.UTC()),
			}).Error
	})
	if err != nil {
		return false, fmt.Errorf("sqlite: update status %s: %w", activityID, err)
	}
	return found, nil
}

// Delete implements store.Backend.
func (b *Backend) Delete(ctx context.Context, activityID string) (bool, error) {
	res := b.db.WithContext(ctx).Where("activity_id = ?", activityID).Delete(&activity{})
	if res.Error != nil {
		return false, fmt.Errorf("sqlite: delete %s: %w", activityID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func toRow(rec activity) store.Row {
	return store.Row{
		ActivityID: rec.ActivityID,
		UserID:     rec.UserID,
		Status:     rec.Status,
		Data:       string(rec.Data),
		UpdatedAt:  rec.UpdatedAt.UTC(),
	}
}
