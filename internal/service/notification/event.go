package notification

import (
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/constants"
	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
)

type RelatedEntity struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Event 推送給前端的通知內容
type Event struct {
	ID            int64                  `json:"id"`
	Title         string                 `json:"title"`
	Message       string                 `json:"message"`
	Type          model.NotificationType `json:"type"`
	DeepLink      string                 `json:"deep_link,omitempty"`
	RelatedEntity *RelatedEntity         `json:"related_entity,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// Envelope websocket frame 格式 {type, payload}
type Envelope struct {
	Type    string `json:"type"`
	Payload Event  `json:"payload"`
}

func NewEnvelope(ev Event) Envelope {
	return Envelope{Type: constants.EventNotificationCreated, Payload: ev}
}

func EventFromNotification(n *model.Notification) Event {
	ev := Event{
		ID:        n.ID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      n.Type,
		DeepLink:  n.DeepLink,
		CreatedAt: n.CreatedAt,
	}
	if n.RelatedEntityType != "" {
		ev.RelatedEntity = &RelatedEntity{Type: n.RelatedEntityType, ID: n.RelatedEntityID}
	}
	return ev
}

// OrderPlacedNotification 下單成功，送給下單者與所有管理員
func OrderPlacedNotification(order *model.Order, now time.Time) *model.Notification {
	return &model.Notification{
		Title:             "Order placed",
		Message:           "Order " + order.Code + " has been placed, total " + order.GrandTotal.StringFixed(2),
		Type:              model.NotificationTypeOrderPlaced,
		DeepLink:          "/orders/" + order.Code,
		RelatedEntityType: model.RelatedEntityOrder,
		RelatedEntityID:   order.Code,
		CreatedAt:         now,
	}
}

// OrderFailedNotification 下單失敗，只送給下單者
func OrderFailedNotification(submissionID, reason string, now time.Time) *model.Notification {
	return &model.Notification{
		Title:             "Order failed",
		Message:           reason,
		Type:              model.NotificationTypeOrderFailed,
		RelatedEntityType: "submission",
		RelatedEntityID:   submissionID,
		CreatedAt:         now,
	}
}
