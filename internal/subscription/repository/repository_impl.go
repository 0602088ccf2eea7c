package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/subdesklabs/subdesk/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := db.WithContext(ctx).First(&sub, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repo) FindActiveForProfile(ctx context.Context, db *gorm.DB, userID, serviceID snowflake.ID, profileID *snowflake.ID) (*domain.Subscription, error) {
	query := db.WithContext(ctx).
		Where("user_id = ? AND service_id = ? AND status = ?", userID, serviceID, domain.StatusActive)
	if profileID == nil {
		query = query.Where("field_profile_id IS NULL")
	} else {
		query = query.Where("field_profile_id = ?", *profileID)
	}

	var sub domain.Subscription
	err := query.Order("updated_at DESC").First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	if err := db.WithContext(ctx).Where("status = ?", domain.StatusActive).Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repo) ListSubscriberUserIDs(ctx context.Context, db *gorm.DB, serviceID snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("service_id = ? AND status = ?", serviceID, domain.StatusActive).
		Distinct().
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	return db.WithContext(ctx).Create(sub).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	return db.WithContext(ctx).Save(sub).Error
}
