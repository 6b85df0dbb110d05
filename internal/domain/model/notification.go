package model

import "time"

type NotificationType string

const (
	NotificationTypeOrderPlaced NotificationType = "OrderPlaced"
	NotificationTypeOrderFailed NotificationType = "OrderFailed"
)

const RelatedEntityOrder = "order"

type Notification struct {
	ID                int64                   `gorm:"primaryKey;autoIncrement" json:"id"`
	Title             string                  `gorm:"not null;type:varchar(255)" json:"title"`
	Message           string                  `gorm:"not null;type:text" json:"message"`
	Type              NotificationType        `gorm:"not null;type:varchar(32)" json:"type"`
	DeepLink          string                  `gorm:"type:varchar(255)" json:"deep_link,omitempty"`
	RelatedEntityType string                  `gorm:"type:varchar(32)" json:"related_entity_type,omitempty"`
	RelatedEntityID   string                  `gorm:"type:varchar(64)" json:"related_entity_id,omitempty"`
	CreatedAt         time.Time               `gorm:"not null;default:now()" json:"created_at"`
	Recipients        []NotificationRecipient `gorm:"foreignKey:NotificationID;constraint:OnDelete:CASCADE" json:"recipients"`
}

type NotificationRecipient struct {
	NotificationID int64 `gorm:"primaryKey" json:"notification_id"`
	UserID         int64 `gorm:"primaryKey" json:"user_id"`
	IsRead         bool  `gorm:"not null;default:false" json:"is_read"`
}

// AddRecipients 加入收件人，重複或非法的 user id 會被忽略
func (n *Notification) AddRecipients(userIDs ...int64) {
	seen := make(map[int64]struct{}, len(n.Recipients)+len(userIDs))
	for _, r := range n.Recipients {
		seen[r.UserID] = struct{}{}
	}
	for _, id := range userIDs {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		n.Recipients = append(n.Recipients, NotificationRecipient{UserID: id})
	}
}

func (n *Notification) RecipientIDs() []int64 {
	ids := make([]int64, 0, len(n.Recipients))
	for _, r := range n.Recipients {
		ids = append(ids, r.UserID)
	}
	return ids
}
