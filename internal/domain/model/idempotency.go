package model

import "time"

type LedgerOutcome string

const (
	LedgerOutcomePlaced   LedgerOutcome = "placed"
	LedgerOutcomeRejected LedgerOutcome = "rejected"
)

// IdempotencyRecord 已處理過的 submission，submission_id 為主鍵
// placed 與訂單在同一個 transaction 寫入；rejected 在業務拒絕後單獨寫入，order_code 為 NULL
// 任一種紀錄存在，重新投遞的 submission 都不會再被處理
type IdempotencyRecord struct {
	SubmissionID string        `gorm:"primaryKey;type:varchar(64)" json:"submission_id"`
	Outcome      LedgerOutcome `gorm:"not null;type:varchar(16);default:'placed'" json:"outcome"`
	OrderCode    *string       `gorm:"type:varchar(32)" json:"order_code,omitempty"`
	Reason       string        `gorm:"type:text" json:"reason,omitempty"`
	ProcessedAt  time.Time     `gorm:"not null" json:"processed_at"`
}

func (r *IdempotencyRecord) IsRejected() bool {
	return r.Outcome == LedgerOutcomeRejected
}
