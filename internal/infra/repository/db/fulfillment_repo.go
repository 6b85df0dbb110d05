package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PlaceOrderParams struct {
	// 已帶入 code、金額與明細；UserID 為 nil 表示 guest 或待建立帳號
	Order *model.Order
	// guest 要求建立帳號時才有值
	NewAccount *model.User
}

/*
FulfillmentRepo 下單 transaction
順序：
 1. 寫入 idempotency ledger（衝突即重複投遞，包含已被拒絕的 submission）
 2. 確認/建立下單用戶
 3. 依 variant id 由小到大逐筆 SELECT ... FOR UPDATE 並檢查庫存
 4. 寫入訂單與明細，逐筆扣庫存

任何一步失敗整個 transaction rollback，不會留下部分訂單或部分扣庫存
*/
type FulfillmentRepo struct {
	db *DbDao
}

func NewFulfillmentRepo(db *DbDao) *FulfillmentRepo {
	return &FulfillmentRepo{db: db}
}

func (s *FulfillmentRepo) PlaceOrder(ctx context.Context, params PlaceOrderParams) (*model.Order, error) {
	order := params.Order
	if order == nil || len(order.Lines) == 0 {
		return nil, fmt.Errorf("place order: %w", gorm.ErrInvalidData)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := insertLedgerRecord(tx, order); err != nil {
			return err
		}

		userID, err := resolveCustomer(tx, order.UserID, params.NewAccount)
		if err != nil {
			return err
		}
		order.UserID = userID

		if err := lockAndCheckStock(tx, order.Lines); err != nil {
			return err
		}

		if err := tx.Create(order).Error; err != nil {
			return translateWriteError(err)
		}

		return deductStock(tx, order.Lines)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func insertLedgerRecord(tx *gorm.DB, order *model.Order) error {
	// 並發的重複投遞會卡在主鍵上，等前一個 transaction 結束後拿到 0 rows
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.IdempotencyRecord{
		SubmissionID: order.SubmissionID,
		Outcome:      model.LedgerOutcomePlaced,
		OrderCode:    &order.Code,
		ProcessedAt:  time.Now().UTC(),
	})
	if res.Error != nil {
		return translateWriteError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDuplicateSubmission
	}
	return nil
}

func resolveCustomer(tx *gorm.DB, userID *int64, newAccount *model.User) (*int64, error) {
	if userID != nil {
		var count int64
		if err := tx.Model(&model.User{}).Where("id = ?", *userID).Count(&count).Error; err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, fmt.Errorf("user %d: %w", *userID, ErrUserNotFound)
		}
		return userID, nil
	}

	if newAccount == nil {
		return nil, nil
	}

	newAccount.Email = strings.ToLower(strings.TrimSpace(newAccount.Email))
	var count int64
	if err := tx.Model(&model.User{}).Where("email = ?", newAccount.Email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrDuplicateEmail
	}

	if newAccount.Role == "" {
		newAccount.Role = model.UserRoleCustomer
	}
	if err := tx.Create(newAccount).Error; err != nil {
		return nil, translateWriteError(err)
	}
	return &newAccount.ID, nil
}

// lockAndCheckStock 固定由小到大鎖定，避免兩筆訂單交錯鎖定同一批 variant 造成 deadlock
func lockAndCheckStock(tx *gorm.DB, lines []model.OrderLine) error {
	requested := make(map[int64]int, len(lines))
	productOf := make(map[int64]int64, len(lines))
	for _, line := range lines {
		if pid, ok := productOf[line.VariantID]; ok && pid != line.ProductID {
			return fmt.Errorf("variant %d listed under products %d and %d: %w", line.VariantID, pid, line.ProductID, ErrVariantNotFound)
		}
		productOf[line.VariantID] = line.ProductID
		requested[line.VariantID] += line.Quantity
	}

	ids := make([]int64, 0, len(requested))
	for id := range requested {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		var variant model.Variant
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			Take(&variant).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("variant %d: %w", id, ErrVariantNotFound)
			}
			return err
		}

		if variant.ProductID != productOf[id] {
			return fmt.Errorf("variant %d does not belong to product %d: %w", id, productOf[id], ErrVariantNotFound)
		}

		if !variant.CanReserve(requested[id]) {
			return &OutOfStockError{VariantID: id, Requested: requested[id], Available: variant.Stock}
		}
	}
	return nil
}

// deductStock 每個明細扣一次，數量即明細數量
func deductStock(tx *gorm.DB, lines []model.OrderLine) error {
	for _, line := range lines {
		res := tx.Model(&model.Variant{}).
			Where("id = ? AND stock >= ?", line.VariantID, line.Quantity).
			Updates(map[string]interface{}{
				"stock":      gorm.Expr("stock - ?", line.Quantity),
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &OutOfStockError{VariantID: line.VariantID, Requested: line.Quantity}
		}
	}
	return nil
}
