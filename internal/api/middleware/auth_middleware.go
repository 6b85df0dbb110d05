package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/RoyceAzure/lab/storefront/internal/constants"
	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/RoyceAzure/lab/storefront/internal/infra/auth/google_auth"
	"github.com/RoyceAzure/lab/storefront/internal/infra/repository/db"
	"github.com/RoyceAzure/lab/storefront/internal/pkg/util"
	"github.com/RoyceAzure/rj/api"
	er "github.com/RoyceAzure/rj/util/rj_error"
	"github.com/rs/zerolog"
)

// IUserResolver 由驗證後的 email 找到本地使用者，不存在時建立一般會員
type IUserResolver interface {
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	CreateUser(ctx context.Context, user *model.User) (*model.User, error)
}

// Authenticator 驗證 id token 並對應到本地使用者
type Authenticator struct {
	verifier google_auth.IAuthVerifier
	users    IUserResolver
	logger   *zerolog.Logger
}

func NewAuthenticator(verifier google_auth.IAuthVerifier, users IUserResolver, logger *zerolog.Logger) *Authenticator {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Authenticator{verifier: verifier, users: users, logger: logger}
}

func (a *Authenticator) Authenticate(ctx context.Context, idToken string) (*model.User, error) {
	info, err := a.verifier.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}

	user, err := a.users.GetUserByEmail(ctx, info.Email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, db.ErrUserNotFound) {
		return nil, err
	}

	user, err = a.users.CreateUser(ctx, &model.User{
		Email:    info.Email,
		FullName: info.Name,
		Role:     model.UserRoleCustomer,
	})
	if errors.Is(err, db.ErrDuplicateEmail) {
		// 同時有其他 request 建立了同一個帳號
		return a.users.GetUserByEmail(ctx, info.Email)
	}
	return user, err
}

// BearerToken 優先取 Authorization header，websocket 無法帶 header 時改用 query token
func BearerToken(r *http.Request) string {
	if header := r.Header.Get(string(constants.AuthorizationHeaderKey)); header != "" {
		fields := strings.Fields(header)
		if len(fields) == 2 && strings.ToLower(fields[0]) == string(constants.AuthorizationTypeBearer) {
			return fields[1]
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// 驗證token 但若token以任何錯誤 都不會中斷，這裡僅做解析，驗證失敗則不會設置context
func AuthPayloadMiddleware(auth *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				auth.logger.Debug().Err(err).Str("request_id", getRequestID(r)).Msg("authenticate failed")
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(util.WithUser(r.Context(), user)))
		})
	}
}

// 驗證ctx是否有登入使用者
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if util.GetUserFromContext(r.Context()) == nil {
			api.ErrorJSON(w, int(er.UnauthenticatedCode), er.New(er.UnauthenticatedCode, "unauthenticated"), er.ErrStrMap[er.UnauthenticatedCode])
			return
		}
		next.ServeHTTP(w, r)
	})
}
