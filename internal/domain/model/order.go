package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

// 訂單狀態，依流程先後排列
const (
	OrderStatusOrdered             OrderStatus = "Ordered"
	OrderStatusAwaitingFulfillment OrderStatus = "AwaitingFulfillment"
	OrderStatusShipped             OrderStatus = "Shipped"
	OrderStatusDelivered           OrderStatus = "Delivered"
	OrderStatusCancelled           OrderStatus = "Cancelled"
	OrderStatusRefunded            OrderStatus = "Refunded"
)

var orderStatusSeq = map[OrderStatus]int{
	OrderStatusOrdered:             0,
	OrderStatusAwaitingFulfillment: 1,
	OrderStatusShipped:             2,
	OrderStatusDelivered:           3,
	OrderStatusCancelled:           4,
	OrderStatusRefunded:            5,
}

func (s OrderStatus) IsValid() bool {
	_, ok := orderStatusSeq[s]
	return ok
}

type ShippingAddress struct {
	Recipient  string `gorm:"type:varchar(255)" json:"recipient"`
	Phone      string `gorm:"type:varchar(32)" json:"phone"`
	Line1      string `gorm:"type:varchar(255)" json:"line1"`
	Line2      string `gorm:"type:varchar(255)" json:"line2,omitempty"`
	Ward       string `gorm:"type:varchar(128)" json:"ward,omitempty"`
	District   string `gorm:"type:varchar(128)" json:"district,omitempty"`
	City       string `gorm:"type:varchar(128)" json:"city"`
	Country    string `gorm:"type:varchar(64)" json:"country"`
	PostalCode string `gorm:"type:varchar(16)" json:"postal_code,omitempty"`
}

type Order struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Code            string          `gorm:"not null;uniqueIndex;type:varchar(32)" json:"code"`
	SubmissionID    string          `gorm:"not null;uniqueIndex;type:varchar(64)" json:"submission_id"`
	UserID          *int64          `gorm:"index" json:"user_id"` // guest 下單時為 nil
	Status          OrderStatus     `gorm:"not null;type:varchar(32);default:'Ordered'" json:"status"`
	Subtotal        decimal.Decimal `gorm:"not null;type:decimal(14,2)" json:"subtotal"`
	DiscountTotal   decimal.Decimal `gorm:"not null;type:decimal(14,2);default:0" json:"discount_total"`
	ShippingFee     decimal.Decimal `gorm:"not null;type:decimal(14,2);default:0" json:"shipping_fee"`
	GrandTotal      decimal.Decimal `gorm:"not null;type:decimal(14,2)" json:"grand_total"`
	ShippingAddress ShippingAddress `gorm:"embedded;embeddedPrefix:ship_" json:"shipping_address"`
	VoucherCode     string          `gorm:"type:varchar(64)" json:"voucher_code,omitempty"`
	Notes           string          `gorm:"type:text" json:"notes,omitempty"`
	Lines           []OrderLine     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"lines"` // 一對多，級聯刪除
	BaseModel
}

// TotalsBalanced 檢查 grand_total = subtotal - discount_total + shipping_fee
// 金額以呼叫端宣告為準，這裡只做比對，不會修正
func (o *Order) TotalsBalanced() bool {
	return o.GrandTotal.Equal(o.Subtotal.Sub(o.DiscountTotal).Add(o.ShippingFee))
}

func (o *Order) IsOwnedBy(userID int64) bool {
	return o.UserID != nil && *o.UserID == userID
}

type OrderLine struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   int64           `gorm:"not null;index" json:"order_id"` // 外鍵，關聯到 Order
	ProductID int64           `gorm:"not null" json:"product_id"`
	VariantID int64           `gorm:"not null;index" json:"variant_id"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"not null;type:decimal(14,2)" json:"unit_price"`
	LineTotal decimal.Decimal `gorm:"not null;type:decimal(14,2)" json:"line_total"`
	BaseModel
}

// OrderActivity 訂單歷程，讀取用
type OrderActivity struct {
	At          time.Time   `json:"at"`
	Status      OrderStatus `json:"status"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
}
