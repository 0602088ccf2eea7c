package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/subdesklabs/subdesk/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Service, error) {
	var svc domain.Service
	err := db.WithContext(ctx).First(&svc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &svc, nil
}

func (r *repo) FindActiveByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Service, error) {
	var svc domain.Service
	err := db.WithContext(ctx).First(&svc, "id = ? AND active", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &svc, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]domain.Service, error) {
	var items []domain.Service
	if err := db.WithContext(ctx).Where("active").Order("created_at ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, svc *domain.Service) error {
	return db.WithContext(ctx).Create(svc).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, svc *domain.Service) error {
	return db.WithContext(ctx).Save(svc).Error
}
