package db

import (
	"context"
	"errors"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"gorm.io/gorm"
)

// 訂單只由 FulfillmentRepo 建立，這裡只提供查詢
type OrderRepo struct {
	db *DbDao
}

func NewOrderRepo(db *DbDao) *OrderRepo {
	return &OrderRepo{db: db}
}

// Read - 根據訂單編號查詢訂單，含明細
func (s *OrderRepo) GetOrderByCode(ctx context.Context, code string) (*model.Order, error) {
	var order model.Order
	err := s.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&order, "code = ?", code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// Read - 根據 submission id 查詢訂單
func (s *OrderRepo) GetOrderBySubmissionID(ctx context.Context, submissionID string) (*model.Order, error) {
	var order model.Order
	err := s.db.WithContext(ctx).Preload("Lines").First(&order, "submission_id = ?", submissionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// 分頁查詢所有訂單，新到舊
func (s *OrderRepo) ListOrders(ctx context.Context, page, pageSize int) ([]model.Order, int64, error) {
	return s.listOrders(ctx, s.db.WithContext(ctx).Model(&model.Order{}), page, pageSize)
}

// 分頁查詢用戶訂單，新到舊
func (s *OrderRepo) ListOrdersByUserID(ctx context.Context, userID int64, page, pageSize int) ([]model.Order, int64, error) {
	query := s.db.WithContext(ctx).Model(&model.Order{}).Where("user_id = ?", userID)
	return s.listOrders(ctx, query, page, pageSize)
}

func (s *OrderRepo) listOrders(ctx context.Context, query *gorm.DB, page, pageSize int) ([]model.Order, int64, error) {
	var orders []model.Order
	var total int64

	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize

	// 計算總數
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 分頁查詢
	err := query.Session(&gorm.Session{}).
		Preload("Lines").
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&orders).Error

	return orders, total, err
}
