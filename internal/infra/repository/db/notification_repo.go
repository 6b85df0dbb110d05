package db

import (
	"context"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
)

type NotificationRepo struct {
	db *DbDao
}

func NewNotificationRepo(db *DbDao) *NotificationRepo {
	return &NotificationRepo{db: db}
}

// Create - 建立通知與收件人，獨立於訂單 transaction
func (s *NotificationRepo) CreateNotification(ctx context.Context, notification *model.Notification) error {
	return s.db.WithContext(ctx).Create(notification).Error
}

// Read - 用戶最近的通知
func (s *NotificationRepo) ListNotificationsByUserID(ctx context.Context, userID int64, limit int) ([]model.Notification, error) {
	var notifications []model.Notification
	err := s.db.WithContext(ctx).
		Joins("JOIN notification_recipients nr ON nr.notification_id = notifications.id").
		Where("nr.user_id = ?", userID).
		Order("notifications.created_at DESC").
		Limit(limit).
		Find(&notifications).Error
	return notifications, err
}
