package db

import (
	"context"
	"errors"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerRepo idempotency ledger
// placed 紀錄只在 FulfillmentRepo.PlaceOrder 的 transaction 內寫入
type LedgerRepo struct {
	db *DbDao
}

func NewLedgerRepo(db *DbDao) *LedgerRepo {
	return &LedgerRepo{db: db}
}

// GetLedgerRecord 沒有紀錄時回傳 nil, nil
func (s *LedgerRepo) GetLedgerRecord(ctx context.Context, submissionID string) (*model.IdempotencyRecord, error) {
	var record model.IdempotencyRecord
	err := s.db.WithContext(ctx).First(&record, "submission_id = ?", submissionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// RecordRejection 記錄業務拒絕，之後的重新投遞視為重複
// 已有紀錄 (其他投遞已下單或已拒絕) 回傳 false
func (s *LedgerRepo) RecordRejection(ctx context.Context, submissionID, reason string) (bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model.IdempotencyRecord{
		SubmissionID: submissionID,
		Outcome:      model.LedgerOutcomeRejected,
		Reason:       reason,
		ProcessedAt:  time.Now().UTC(),
	})
	if res.Error != nil {
		return false, translateWriteError(res.Error)
	}
	return res.RowsAffected > 0, nil
}
