package handler

import (
	"errors"

	"github.com/RoyceAzure/lab/storefront/internal/infra/consumer"
	"github.com/RoyceAzure/lab/storefront/internal/infra/repository/db"
)

// Outcome 處理結果對應 consumer 的動作
type Outcome int

const (
	// OutcomeAck 完成或重複投遞，commit offset
	OutcomeAck Outcome = iota
	// OutcomeReject 業務拒絕，通知下單者後 commit
	OutcomeReject
	// OutcomeDeadLetter 無法解析的訊息，直接送 DLQ
	OutcomeDeadLetter
	// OutcomeRetry 暫時性錯誤，交給 consumer 重試
	OutcomeRetry
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAck:
		return "ack"
	case OutcomeReject:
		return "reject"
	case OutcomeDeadLetter:
		return "dead_letter"
	default:
		return "retry"
	}
}

func Classify(err error) Outcome {
	switch {
	case err == nil, errors.Is(err, db.ErrDuplicateSubmission):
		return OutcomeAck
	case errors.Is(err, db.ErrOutOfStock),
		errors.Is(err, db.ErrDuplicateEmail),
		errors.Is(err, db.ErrVariantNotFound),
		errors.Is(err, db.ErrUserNotFound):
		return OutcomeReject
	case errors.Is(err, consumer.ErrPoisonMessage):
		return OutcomeDeadLetter
	default:
		return OutcomeRetry
	}
}

// rejectReason 給下單者看的失敗原因
func rejectReason(err error) string {
	switch {
	case errors.Is(err, db.ErrOutOfStock):
		return "Some items in your order are out of stock"
	case errors.Is(err, db.ErrDuplicateEmail):
		return "An account with this email already exists, please sign in and try again"
	case errors.Is(err, db.ErrVariantNotFound):
		return "Some items in your order are no longer available"
	case errors.Is(err, db.ErrUserNotFound):
		return "Your account could not be found"
	default:
		return "Your order could not be placed"
	}
}
