package util

import (
	"context"

	"github.com/RoyceAzure/lab/storefront/internal/constants"
	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
)

// GetUserFromContext 取得 auth middleware 驗證後的本地使用者，未登入回傳 nil
func GetUserFromContext(ctx context.Context) *model.User {
	if v := ctx.Value(constants.AuthorizationUserKey); v != nil {
		if user, ok := v.(*model.User); ok {
			return user
		}
	}
	return nil
}

func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, constants.AuthorizationUserKey, user)
}

func GetRequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(constants.RequestIDKey).(string); ok {
		return v
	}
	return ""
}
