package waitlist

import (
	"context"
	"errors"

	"github.com/loppilove/waitlist-api/internal/models"
	apperrors "github.com/loppilove/waitlist-api/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:generate mockgen -source=repository.go -destination=mock_repository.go -package=waitlist

type WaitlistRepository interface {
	// ExistsByEmail reports whether an entry with the normalized email exists.
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	// CreateIfAbsent inserts the entry unless one with the same email exists.
	// created is false when another writer got there first; the stored entry
	// is left untouched.
	CreateIfAbsent(ctx context.Context, entry *models.WaitlistEntry) (created bool, err error)
	// CountEntries returns the number of stored entries.
	CountEntries(ctx context.Context) (int64, error)
	// ListEntries returns up to limit entries following afterEmail ("" for
	// the first page). The SQL store orders by email; other stores use their
	// native scan order.
	ListEntries(ctx context.Context, afterEmail string, limit int) ([]*models.WaitlistEntry, error)
	Ping(ctx context.Context) error
}

type waitlistRepository struct {
	db *gorm.DB
}

func NewWaitlistRepository(db *gorm.DB) WaitlistRepository {
	return &waitlistRepository{db: db}
}

func (wr *waitlistRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64

	err := wr.db.WithContext(ctx).
		Model(&models.WaitlistEntry{}).
		Where("email = ?", email).
		Count(&count).Error
	if err != nil {
		return false, apperrors.NewDatabaseError("unable to look up waitlist entry", err)
	}

	return count > 0, nil
}

func (wr *waitlistRepository) CreateIfAbsent(ctx context.Context, entry *models.WaitlistEntry) (bool, error) {
	result := wr.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}},
			DoNothing: true,
		}).
		Create(entry)

	if result.Error != nil {
		if isDuplicateKey(result.Error) {
			return false, nil
		}
		return false, apperrors.NewDatabaseError("unable to create waitlist entry", result.Error)
	}

	return result.RowsAffected > 0, nil
}

func (wr *waitlistRepository) CountEntries(ctx context.Context) (int64, error) {
	var count int64

	if err := wr.db.WithContext(ctx).Model(&models.WaitlistEntry{}).Count(&count).Error; err != nil {
		return 0, apperrors.NewDatabaseError("unable to count waitlist entries", err)
	}

	return count, nil
}

func (wr *waitlistRepository) ListEntries(ctx context.Context, afterEmail string, limit int) ([]*models.WaitlistEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := wr.db.WithContext(ctx).Order("email ASC").Limit(limit)
	if afterEmail != "" {
		query = query.Where("email > ?", afterEmail)
	}

	var entries []*models.WaitlistEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, apperrors.NewDatabaseError("unable to list waitlist entries", err)
	}

	return entries, nil
}

func (wr *waitlistRepository) Ping(ctx context.Context) error {
	sqlDB, err := wr.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func isDuplicateKey(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || apperrors.IsDuplicateKeyError(err)
}
