package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/rs/zerolog"
)

// INotificationStore 通知落地與管理員名單
type INotificationStore interface {
	CreateNotification(ctx context.Context, notification *model.Notification) error
	ListAdminUserIDs(ctx context.Context) ([]int64, error)
}

type INotificationService interface {
	NotifyOrderPlaced(ctx context.Context, order *model.Order) (FanOutResult, error)
	NotifyOrderFailed(ctx context.Context, userID int64, submissionID, reason string) (FanOutResult, error)
}

// Service 先寫入通知再推送；寫入失敗就不推送
type Service struct {
	store     INotificationStore
	publisher IPublisher
	logger    *zerolog.Logger
	now       func() time.Time
}

func NewService(store INotificationStore, publisher IPublisher, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) NotifyOrderPlaced(ctx context.Context, order *model.Order) (FanOutResult, error) {
	admins, err := s.store.ListAdminUserIDs(ctx)
	if err != nil {
		// 管理員名單取不到仍通知下單者
		s.logger.Warn().Err(err).Str("order_code", order.Code).Msg("list admin users failed")
	}

	n := OrderPlacedNotification(order, s.now())
	if order.UserID != nil {
		n.AddRecipients(*order.UserID)
	}
	n.AddRecipients(admins...)

	return s.dispatch(ctx, n)
}

func (s *Service) NotifyOrderFailed(ctx context.Context, userID int64, submissionID, reason string) (FanOutResult, error) {
	n := OrderFailedNotification(submissionID, reason, s.now())
	n.AddRecipients(userID)
	return s.dispatch(ctx, n)
}

func (s *Service) dispatch(ctx context.Context, n *model.Notification) (FanOutResult, error) {
	if len(n.Recipients) == 0 {
		return FanOutResult{}, nil
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return FanOutResult{}, fmt.Errorf("create notification: %w", err)
	}
	return s.publisher.FanOut(ctx, EventFromNotification(n), n.RecipientIDs()), nil
}

var _ INotificationService = (*Service)(nil)
