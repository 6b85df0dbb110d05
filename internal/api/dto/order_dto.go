package dto

import (
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/shopspring/decimal"
)

// SubmitResponse 結帳送出後立即回傳，下單結果以通知告知
type SubmitResponse struct {
	SubmissionID string `json:"submission_id"`
	Status       string `json:"status"`
}

type OrderLineDTO struct {
	ProductID int64           `json:"product_id"`
	VariantID int64           `json:"variant_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type OrderDTO struct {
	Code            string                `json:"code"`
	UserID          *int64                `json:"user_id"`
	Status          model.OrderStatus     `json:"status"`
	Subtotal        decimal.Decimal       `json:"subtotal"`
	DiscountTotal   decimal.Decimal       `json:"discount_total"`
	ShippingFee     decimal.Decimal       `json:"shipping_fee"`
	GrandTotal      decimal.Decimal       `json:"grand_total"`
	ShippingAddress model.ShippingAddress `json:"shipping_address"`
	VoucherCode     string                `json:"voucher_code,omitempty"`
	Notes           string                `json:"notes,omitempty"`
	Lines           []OrderLineDTO        `json:"lines"`
	CreatedAt       time.Time             `json:"created_at"`
}

type PaymentDTO struct {
	Method string `json:"method"`
	Status string `json:"status"`
}

type OrderActivityDTO struct {
	At          time.Time         `json:"at"`
	Status      model.OrderStatus `json:"status"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
}

type OrderDetailDTO struct {
	OrderDTO
	Payment    PaymentDTO         `json:"payment"`
	Activities []OrderActivityDTO `json:"activities"`
}

type OrderListDTO struct {
	Orders   []OrderDTO `json:"orders"`
	Total    int64      `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
}

func ToOrderDTO(o *model.Order) OrderDTO {
	lines := make([]OrderLineDTO, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, OrderLineDTO{
			ProductID: l.ProductID,
			VariantID: l.VariantID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			LineTotal: l.LineTotal,
		})
	}
	return OrderDTO{
		Code:            o.Code,
		UserID:          o.UserID,
		Status:          o.Status,
		Subtotal:        o.Subtotal,
		DiscountTotal:   o.DiscountTotal,
		ShippingFee:     o.ShippingFee,
		GrandTotal:      o.GrandTotal,
		ShippingAddress: o.ShippingAddress,
		VoucherCode:     o.VoucherCode,
		Notes:           o.Notes,
		Lines:           lines,
		CreatedAt:       o.CreatedAt,
	}
}

func ToOrderActivityDTOs(activities []model.OrderActivity) []OrderActivityDTO {
	res := make([]OrderActivityDTO, 0, len(activities))
	for _, a := range activities {
		res = append(res, OrderActivityDTO(a))
	}
	return res
}
