package model

import "github.com/shopspring/decimal"

// Variant 商品規格，持有庫存
// 庫存只會在 fulfillment transaction 內、持有 row lock 時扣除
type Variant struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID int64           `gorm:"not null;index" json:"product_id"`
	SKU       string          `gorm:"not null;uniqueIndex;type:varchar(64)" json:"sku"`
	Name      string          `gorm:"type:varchar(255)" json:"name"`
	Stock     int             `gorm:"not null;default:0;check:stock >= 0" json:"stock"`
	Price     decimal.Decimal `gorm:"not null;type:decimal(14,2)" json:"price"`
	BaseModel
}

func (v *Variant) CanReserve(quantity int) bool {
	return quantity > 0 && v.Stock >= quantity
}
