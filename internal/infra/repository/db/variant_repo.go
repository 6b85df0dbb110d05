package db

import (
	"context"
	"errors"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"gorm.io/gorm"
)

type VariantRepo struct {
	db *DbDao
}

func NewVariantRepo(db *DbDao) *VariantRepo {
	return &VariantRepo{db: db}
}

// Create - 建立 variant
func (s *VariantRepo) CreateVariant(ctx context.Context, variant *model.Variant) error {
	return s.db.WithContext(ctx).Create(variant).Error
}

// Read - 根據ID查詢 variant
func (s *VariantRepo) GetVariantByID(ctx context.Context, id int64) (*model.Variant, error) {
	var variant model.Variant
	err := s.db.WithContext(ctx).First(&variant, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVariantNotFound
		}
		return nil, err
	}
	return &variant, nil
}

// Read - 查詢庫存
func (s *VariantRepo) GetVariantStock(ctx context.Context, id int64) (int, error) {
	variant, err := s.GetVariantByID(ctx, id)
	if err != nil {
		return 0, err
	}
	return variant.Stock, nil
}
