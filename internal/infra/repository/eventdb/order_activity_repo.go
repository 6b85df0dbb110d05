package eventdb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
)

// 訂單歷程事件類型
const (
	OrderPlacedEvent = "OrderPlaced"
)

type IOrderActivityRepository interface {
	AppendActivity(ctx context.Context, orderCode, eventType string, activity model.OrderActivity) error
	ListActivities(ctx context.Context, orderCode string) ([]model.OrderActivity, error)
}

// OrderActivityRepo 每張訂單一個 stream: order-{code}
type OrderActivityRepo struct {
	dao *EventDao
}

func NewOrderActivityRepo(dao *EventDao) *OrderActivityRepo {
	return &OrderActivityRepo{dao: dao}
}

func GenerateOrderStreamID(orderCode string) string {
	return fmt.Sprintf("order-%s", orderCode)
}

func (r *OrderActivityRepo) AppendActivity(ctx context.Context, orderCode, eventType string, activity model.OrderActivity) error {
	return r.dao.AppendEvent(ctx, GenerateOrderStreamID(orderCode), eventType, activity)
}

func (r *OrderActivityRepo) ListActivities(ctx context.Context, orderCode string) ([]model.OrderActivity, error) {
	events, err := r.dao.ReadEvents(ctx, GenerateOrderStreamID(orderCode))
	if err != nil {
		return nil, err
	}

	res := make([]model.OrderActivity, 0, len(events))
	for _, e := range events {
		if e == nil || e.Event == nil {
			continue
		}
		var activity model.OrderActivity
		if err := json.Unmarshal(e.Event.Data, &activity); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrEventFormat, e.Event.EventType)
		}
		res = append(res, activity)
	}
	return res, nil
}

var _ IOrderActivityRepository = (*OrderActivityRepo)(nil)
