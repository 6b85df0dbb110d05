package command

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/shopspring/decimal"
)

var (
	ErrEmptyLines      = errors.New("order submission has no lines")
	ErrInvalidQuantity = errors.New("line quantity must be greater than 0")
	ErrInvalidLineRef  = errors.New("line must reference a product and a variant")
	ErrNegativePrice   = errors.New("unit price cannot be negative")
	ErrNegativeAmount  = errors.New("declared amount cannot be negative")
	ErrMissingCustomer = errors.New("customer must be an existing user or a guest with email")
	ErrMissingAddress  = errors.New("shipping address is incomplete")
)

// GuestInfo 未登入的下單者
type GuestInfo struct {
	FullName      string `json:"full_name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	CreateAccount bool   `json:"create_account"`
}

type CustomerInfo struct {
	UserID *int64     `json:"user_id,omitempty"`
	Guest  *GuestInfo `json:"guest,omitempty"`
}

func (c CustomerInfo) IsGuest() bool {
	return c.UserID == nil && c.Guest != nil
}

type SubmissionLine struct {
	ProductID int64           `json:"product_id"`
	VariantID int64           `json:"variant_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderSubmission 結帳送出的訂單，經 kafka 交給 fulfillment worker
// submission_id 為冪等鍵
type OrderSubmission struct {
	SubmissionID    string                `json:"submission_id"`
	Customer        CustomerInfo          `json:"customer"`
	ShippingAddress model.ShippingAddress `json:"shipping_address"`
	Lines           []SubmissionLine      `json:"lines"`
	Subtotal        decimal.Decimal       `json:"subtotal"`
	DiscountTotal   decimal.Decimal       `json:"discount_total"`
	ShippingFee     decimal.Decimal       `json:"shipping_fee"`
	Total           decimal.Decimal       `json:"total"`
	VoucherCode     string                `json:"voucher_code,omitempty"`
	Notes           string                `json:"notes,omitempty"`
	SubmittedAt     time.Time             `json:"submitted_at"`
}

func (s *OrderSubmission) Type() CommandType {
	return OrderSubmittedCommandName
}

func (s *OrderSubmission) GetID() string {
	return s.SubmissionID
}

// Validate 檢查格式，不檢查庫存與金額是否正確
func (s *OrderSubmission) Validate() error {
	if len(s.Lines) == 0 {
		return ErrEmptyLines
	}
	for i, line := range s.Lines {
		if line.Quantity <= 0 {
			return fmt.Errorf("line %d: %w", i, ErrInvalidQuantity)
		}
		if line.ProductID <= 0 || line.VariantID <= 0 {
			return fmt.Errorf("line %d: %w", i, ErrInvalidLineRef)
		}
		if line.UnitPrice.IsNegative() {
			return fmt.Errorf("line %d: %w", i, ErrNegativePrice)
		}
	}

	for _, amount := range []decimal.Decimal{s.Subtotal, s.DiscountTotal, s.ShippingFee, s.Total} {
		if amount.IsNegative() {
			return ErrNegativeAmount
		}
	}

	switch {
	case s.Customer.UserID != nil:
		if *s.Customer.UserID <= 0 {
			return ErrMissingCustomer
		}
	case s.Customer.Guest != nil:
		if strings.TrimSpace(s.Customer.Guest.Email) == "" {
			return ErrMissingCustomer
		}
	default:
		return ErrMissingCustomer
	}

	addr := s.ShippingAddress
	if strings.TrimSpace(addr.Recipient) == "" || strings.TrimSpace(addr.Line1) == "" || strings.TrimSpace(addr.City) == "" {
		return ErrMissingAddress
	}
	return nil
}

// ToOrder 依 submission 建立訂單，金額照呼叫端宣告寫入
func (s *OrderSubmission) ToOrder(code string) *model.Order {
	lines := make([]model.OrderLine, 0, len(s.Lines))
	for _, l := range s.Lines {
		lines = append(lines, model.OrderLine{
			ProductID: l.ProductID,
			VariantID: l.VariantID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			LineTotal: l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))),
		})
	}

	return &model.Order{
		Code:            code,
		SubmissionID:    s.SubmissionID,
		UserID:          s.Customer.UserID,
		Status:          model.OrderStatusOrdered,
		Subtotal:        s.Subtotal,
		DiscountTotal:   s.DiscountTotal,
		ShippingFee:     s.ShippingFee,
		GrandTotal:      s.Total,
		ShippingAddress: s.ShippingAddress,
		VoucherCode:     s.VoucherCode,
		Notes:           s.Notes,
		Lines:           lines,
	}
}
