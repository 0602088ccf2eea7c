package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/subdesklabs/subdesk/internal/discount/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.DiscountCode, error) {
	var dc domain.DiscountCode
	err := db.WithContext(ctx).First(&dc, "code = ?", domain.NormalizeCode(code)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dc, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.DiscountCode, error) {
	var dc domain.DiscountCode
	err := db.WithContext(ctx).First(&dc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dc, nil
}

func (r *repo) ScopeServiceIDs(ctx context.Context, db *gorm.DB, codeID snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).
		Model(&domain.DiscountCodeService{}).
		Where("discount_code_id = ?", codeID).
		Pluck("service_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) ReplaceScope(ctx context.Context, db *gorm.DB, codeID snowflake.ID, serviceIDs []snowflake.ID) error {
	if err := db.WithContext(ctx).
		Where("discount_code_id = ?", codeID).
		Delete(&domain.DiscountCodeService{}).Error; err != nil {
		return err
	}
	for _, serviceID := range serviceIDs {
		link := domain.DiscountCodeService{DiscountCodeID: codeID, ServiceID: serviceID}
		if err := db.WithContext(ctx).Create(&link).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) UsageCounts(ctx context.Context, db *gorm.DB, codeID, userID snowflake.ID) (domain.UsageCounts, error) {
	var total, perUser int64

	err := db.WithContext(ctx).
		Model(&domain.DiscountRedemption{}).
		Where("discount_code_id = ?", codeID).
		Count(&total).Error
	if err != nil {
		return domain.UsageCounts{}, err
	}

	err = db.WithContext(ctx).
		Model(&domain.DiscountRedemption{}).
		Where("discount_code_id = ? AND user_id = ?", codeID, userID).
		Count(&perUser).Error
	if err != nil {
		return domain.UsageCounts{}, err
	}

	return domain.UsageCounts{Total: int(total), PerUser: int(perUser)}, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, code *domain.DiscountCode) error {
	return db.WithContext(ctx).Create(code).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, code *domain.DiscountCode) error {
	return db.WithContext(ctx).Save(code).Error
}

func (r *repo) InsertRedemption(ctx context.Context, db *gorm.DB, redemption *domain.DiscountRedemption) error {
	return db.WithContext(ctx).Create(redemption).Error
}
