package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/RoyceAzure/lab/storefront/internal/infra/auth/google_auth"
	"github.com/RoyceAzure/lab/storefront/internal/infra/repository/db"
	"github.com/RoyceAzure/lab/storefront/internal/pkg/util"
	er "github.com/RoyceAzure/rj/util/rj_error"
	"github.com/stretchr/testify/require"
)

type fakeVerifier struct {
	tokens map[string]*google_auth.UserInfo
}

func (f *fakeVerifier) VerifyIDToken(ctx context.Context, idToken string) (*google_auth.UserInfo, error) {
	if info, ok := f.tokens[idToken]; ok {
		return info, nil
	}
	return nil, google_auth.ErrInvalidToken
}

type fakeUsers struct {
	byEmail map[string]*model.User
	nextID  int64
	created int
}

func (f *fakeUsers) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, db.ErrUserNotFound
}

func (f *fakeUsers) CreateUser(ctx context.Context, user *model.User) (*model.User, error) {
	if _, ok := f.byEmail[user.Email]; ok {
		return nil, db.ErrDuplicateEmail
	}
	f.nextID++
	f.created++
	user.ID = f.nextID
	f.byEmail[user.Email] = user
	return user, nil
}

func newAuthenticator() (*Authenticator, *fakeUsers) {
	users := &fakeUsers{
		byEmail: map[string]*model.User{
			"buyer@example.com": {ID: 42, Email: "buyer@example.com", Role: model.UserRoleCustomer},
		},
		nextID: 100,
	}
	verifier := &fakeVerifier{tokens: map[string]*google_auth.UserInfo{
		"good":     {ID: "g-1", Email: "buyer@example.com", VerifiedEmail: true},
		"newcomer": {ID: "g-2", Email: "new@example.com", Name: "New", VerifiedEmail: true},
	}}
	return NewAuthenticator(verifier, users, nil), users
}

func TestBearerToken(t *testing.T) {
	testCases := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{name: "header", header: "Bearer abc", want: "abc"},
		{name: "header case insensitive", header: "bearer abc", want: "abc"},
		{name: "query", query: "?token=xyz", want: "xyz"},
		{name: "header wins", header: "Bearer abc", query: "?token=xyz", want: "abc"},
		{name: "wrong scheme", header: "Basic abc", want: ""},
		{name: "none", want: ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws"+tc.query, nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			require.Equal(t, tc.want, BearerToken(r))
		})
	}
}

func TestAuthPayloadMiddleware(t *testing.T) {
	auth, users := newAuthenticator()

	testCases := []struct {
		name   string
		token  string
		wantID int64
	}{
		{name: "existing user", token: "good", wantID: 42},
		{name: "provision new customer", token: "newcomer", wantID: 101},
		{name: "invalid token passes through", token: "bad", wantID: 0},
		{name: "anonymous", token: "", wantID: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var got *model.User
			h := AuthPayloadMiddleware(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = util.GetUserFromContext(r.Context())
			}))

			r := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
			if tc.token != "" {
				r.Header.Set("Authorization", "Bearer "+tc.token)
			}
			h.ServeHTTP(httptest.NewRecorder(), r)

			if tc.wantID == 0 {
				require.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			require.Equal(t, tc.wantID, got.ID)
		})
	}
	require.Equal(t, 1, users.created)
}

func TestAuthMiddleware(t *testing.T) {
	called := false
	h := AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	require.False(t, called)
	require.Equal(t, int(er.UnauthenticatedCode), rec.Code)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	r = r.WithContext(util.WithUser(r.Context(), &model.User{ID: 42}))
	h.ServeHTTP(httptest.NewRecorder(), r)
	require.True(t, called)
}

func TestRequestIdMiddleware(t *testing.T) {
	var got string
	h := RequestIdMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = util.GetRequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, got)
	require.Equal(t, got, rec.Header().Get(RequestIDHeader))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "req-1")
	h.ServeHTTP(httptest.NewRecorder(), r)
	require.Equal(t, "req-1", got)
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("boom"))
	}))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	require.Equal(t, int(er.InternalErrorCode), rec.Code)
}

func TestStatusRecoder(t *testing.T) {
	rec := &StatusRecoder{ResponseWriter: httptest.NewRecorder()}
	require.Equal(t, http.StatusOK, rec.Status())
	rec.WriteHeader(http.StatusAccepted)
	require.Equal(t, http.StatusAccepted, rec.Status())
}

type stubLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (s *stubLimiter) Allow(ctx context.Context, key string) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allow, s.err
}

func TestRateLimitMiddleware(t *testing.T) {
	testCases := []struct {
		name       string
		limiter    *stubLimiter
		user       *model.User
		wantStatus int
		wantKey    string
	}{
		{name: "allowed guest", limiter: &stubLimiter{allow: true}, wantStatus: http.StatusOK, wantKey: "ip:192.0.2.1"},
		{name: "allowed user", limiter: &stubLimiter{allow: true}, user: &model.User{ID: 42}, wantStatus: http.StatusOK, wantKey: "user:42"},
		{name: "limited", limiter: &stubLimiter{allow: false}, wantStatus: http.StatusTooManyRequests, wantKey: "ip:192.0.2.1"},
		{name: "limiter down fails open", limiter: &stubLimiter{err: errors.New("redis down")}, wantStatus: http.StatusOK, wantKey: "ip:192.0.2.1"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := RateLimitMiddleware(tc.limiter, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			// httptest 預設 RemoteAddr 為 192.0.2.1:1234
			r := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
			if tc.user != nil {
				r = r.WithContext(util.WithUser(r.Context(), tc.user))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)

			require.Equal(t, tc.wantStatus, rec.Code)
			require.Equal(t, []string{tc.wantKey}, tc.limiter.keys)
		})
	}
}
