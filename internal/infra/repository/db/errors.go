package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrOutOfStock 庫存不足，整筆訂單不成立
	ErrOutOfStock = errors.New("variant stock not enough")
	// ErrVariantNotFound variant 不存在或不屬於該商品
	ErrVariantNotFound = errors.New("variant not found")
	// ErrUserNotFound 下單使用者不存在
	ErrUserNotFound = errors.New("user not found")
	// ErrDuplicateEmail 建立帳號時 email 已被使用
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrDuplicateSubmission submission 已處理過
	ErrDuplicateSubmission = errors.New("submission already processed")
	// ErrOrderNotFound 訂單不存在
	ErrOrderNotFound = errors.New("order not found")
)

const (
	pgUniqueViolation = "23505"

	constraintUsersEmail        = "uq_users_email"
	constraintOrdersSubmission  = "uq_orders_submission_id"
	constraintIdempotencyRecord = "idempotency_records_pkey"
)

// OutOfStockError 帶有不足的 variant 資訊
type OutOfStockError struct {
	VariantID int64
	Requested int
	Available int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("variant %d stock not enough: requested %d, available %d", e.VariantID, e.Requested, e.Available)
}

func (e *OutOfStockError) Is(target error) bool {
	return target == ErrOutOfStock
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgUniqueViolation && (constraint == "" || pgErr.ConstraintName == constraint)
}

// translateWriteError 把 unique 衝突轉成業務錯誤
func translateWriteError(err error) error {
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err, constraintUsersEmail):
		return ErrDuplicateEmail
	case isUniqueViolation(err, constraintOrdersSubmission), isUniqueViolation(err, constraintIdempotencyRecord):
		return ErrDuplicateSubmission
	default:
		return err
	}
}
