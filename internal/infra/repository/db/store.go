package db

import (
	"context"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"gorm.io/gorm"
)

// IStore 統一的資料庫介面
type IStore interface {
	GetDB() *gorm.DB
	IVariantRepository
	IOrderRepository
	IUserRepository
	ILedgerRepository
	INotificationRepository
	IFulfillmentRepository
}

type IVariantRepository interface {
	CreateVariant(ctx context.Context, variant *model.Variant) error
	GetVariantByID(ctx context.Context, id int64) (*model.Variant, error)
	GetVariantStock(ctx context.Context, id int64) (int, error)
}

type IOrderRepository interface {
	GetOrderByCode(ctx context.Context, code string) (*model.Order, error)
	GetOrderBySubmissionID(ctx context.Context, submissionID string) (*model.Order, error)
	ListOrders(ctx context.Context, page, pageSize int) ([]model.Order, int64, error)
	ListOrdersByUserID(ctx context.Context, userID int64, page, pageSize int) ([]model.Order, int64, error)
}

type IUserRepository interface {
	CreateUser(ctx context.Context, user *model.User) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	ListAdminUserIDs(ctx context.Context) ([]int64, error)
}

type ILedgerRepository interface {
	GetLedgerRecord(ctx context.Context, submissionID string) (*model.IdempotencyRecord, error)
	RecordRejection(ctx context.Context, submissionID, reason string) (bool, error)
}

type INotificationRepository interface {
	CreateNotification(ctx context.Context, notification *model.Notification) error
	ListNotificationsByUserID(ctx context.Context, userID int64, limit int) ([]model.Notification, error)
}

type IFulfillmentRepository interface {
	PlaceOrder(ctx context.Context, params PlaceOrderParams) (*model.Order, error)
}

type Store struct {
	db *gorm.DB
	*VariantRepo
	*OrderRepo
	*UserRepo
	*LedgerRepo
	*NotificationRepo
	*FulfillmentRepo
}

func NewStore(db *gorm.DB) *Store {
	dbDao := NewDbDao(db)
	return &Store{
		db:               db,
		VariantRepo:      NewVariantRepo(dbDao),
		OrderRepo:        NewOrderRepo(dbDao),
		UserRepo:         NewUserRepo(dbDao),
		LedgerRepo:       NewLedgerRepo(dbDao),
		NotificationRepo: NewNotificationRepo(dbDao),
		FulfillmentRepo:  NewFulfillmentRepo(dbDao),
	}
}

func (s *Store) GetDB() *gorm.DB {
	return s.db
}

var (
	_ IStore                  = (*Store)(nil)
	_ IVariantRepository      = (*VariantRepo)(nil)
	_ IOrderRepository        = (*OrderRepo)(nil)
	_ IUserRepository         = (*UserRepo)(nil)
	_ ILedgerRepository       = (*LedgerRepo)(nil)
	_ INotificationRepository = (*NotificationRepo)(nil)
	_ IFulfillmentRepository  = (*FulfillmentRepo)(nil)
)
