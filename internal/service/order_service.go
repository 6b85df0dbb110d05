package service

import (
	"context"
	"errors"

	"github.com/RoyceAzure/lab/storefront/internal/constants"
	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/RoyceAzure/lab/storefront/internal/infra/repository/db"
	"github.com/RoyceAzure/lab/storefront/internal/pkg/util"
	er "github.com/RoyceAzure/rj/util/rj_error"
	"github.com/rs/zerolog"
)

// 付款狀態，由訂單狀態推導
const (
	PaymentStatusPending  = "Pending"
	PaymentStatusPaid     = "Paid"
	PaymentStatusVoided   = "Voided"
	PaymentStatusRefunded = "Refunded"
)

type PaymentInfo struct {
	Method string
	Status string
}

type OrderDetail struct {
	Order      *model.Order
	Payment    PaymentInfo
	Activities []model.OrderActivity
}

type OrderPage struct {
	Orders   []model.Order
	Total    int64
	Page     int
	PageSize int
}

// IActivityReader 訂單歷程讀取
type IActivityReader interface {
	ListActivities(ctx context.Context, orderCode string) ([]model.OrderActivity, error)
}

type IOrderService interface {
	// ListOrders 管理員看全部，其他人只看自己的訂單，新到舊
	//
	// 錯誤:
	//   - er.UnauthenticatedCode: 未登入
	ListOrders(ctx context.Context, page, pageSize int) (*OrderPage, error)
	// GetOrder 訂單明細、付款資訊與歷程
	//
	// 錯誤:
	//   - er.UnauthenticatedCode: 未登入
	//   - er.NotFoundCode: 訂單不存在，或不是自己的訂單
	GetOrder(ctx context.Context, code string) (*OrderDetail, error)
}

type OrderService struct {
	orderRepo db.IOrderRepository
	activity  IActivityReader
	logger    *zerolog.Logger
}

// activity 可為 nil，此時歷程由訂單本身推導
func NewOrderService(orderRepo db.IOrderRepository, activity IActivityReader, logger *zerolog.Logger) *OrderService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &OrderService{orderRepo: orderRepo, activity: activity, logger: logger}
}

func (o *OrderService) ListOrders(ctx context.Context, page, pageSize int) (*OrderPage, error) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		return nil, er.New(er.UnauthenticatedCode, "unauthenticated")
	}

	page, pageSize = normalizePaging(page, pageSize)

	var (
		orders []model.Order
		total  int64
		err    error
	)
	if user.IsAdmin() {
		orders, total, err = o.orderRepo.ListOrders(ctx, page, pageSize)
	} else {
		orders, total, err = o.orderRepo.ListOrdersByUserID(ctx, user.ID, page, pageSize)
	}
	if err != nil {
		return nil, er.New(er.InternalErrorCode, err.Error())
	}

	return &OrderPage{Orders: orders, Total: total, Page: page, PageSize: pageSize}, nil
}

func (o *OrderService) GetOrder(ctx context.Context, code string) (*OrderDetail, error) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		return nil, er.New(er.UnauthenticatedCode, "unauthenticated")
	}

	order, err := o.orderRepo.GetOrderByCode(ctx, code)
	if err != nil {
		if errors.Is(err, db.ErrOrderNotFound) {
			return nil, er.New(er.NotFoundCode, "order not found")
		}
		return nil, er.New(er.InternalErrorCode, err.Error())
	}
	// 不透露別人的訂單是否存在
	if !user.IsAdmin() && !order.IsOwnedBy(user.ID) {
		return nil, er.New(er.NotFoundCode, "order not found")
	}

	return &OrderDetail{
		Order:      order,
		Payment:    PaymentInfo{Method: constants.PaymentMethodCOD, Status: PaymentStatusOf(order.Status)},
		Activities: o.activities(ctx, order),
	}, nil
}

// activities 歷程讀不到時以訂單建立時間與目前狀態補一筆
func (o *OrderService) activities(ctx context.Context, order *model.Order) []model.OrderActivity {
	if o.activity != nil {
		res, err := o.activity.ListActivities(ctx, order.Code)
		if err != nil {
			o.logger.Warn().Err(err).Str("order_code", order.Code).Msg("read order activity failed")
		} else if len(res) > 0 {
			return res
		}
	}
	return []model.OrderActivity{{
		At:     order.CreatedAt,
		Status: order.Status,
		Title:  "Order placed",
	}}
}

// PaymentStatusOf 貨到付款，送達才算付款完成
func PaymentStatusOf(status model.OrderStatus) string {
	switch status {
	case model.OrderStatusDelivered:
		return PaymentStatusPaid
	case model.OrderStatusCancelled:
		return PaymentStatusVoided
	case model.OrderStatusRefunded:
		return PaymentStatusRefunded
	default:
		return PaymentStatusPending
	}
}

func normalizePaging(page, pageSize int) (int, int) {
	if page < 1 {
		page = constants.DefaultPaging
	}
	if pageSize < 1 {
		pageSize = constants.DefaultPagingSize
	}
	if pageSize > constants.MaxPagingSize {
		pageSize = constants.MaxPagingSize
	}
	return page, pageSize
}

var _ IOrderService = (*OrderService)(nil)
