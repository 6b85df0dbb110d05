package pubsub

import (
	"context"
	"errors"
	"fmt"
)

var ErrSubscriptionClosed = errors.New("subscription closed")

// Broker 使用者群組的訊息通道，api 與 worker 跨 process 共用
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

type Subscription interface {
	// C 訂閱關閉後 channel 會被關閉
	C() <-chan []byte
	Close() error
}

// UserChannel 每個使用者一個群組
func UserChannel(userID int64) string {
	return fmt.Sprintf("notify:user:%d", userID)
}
