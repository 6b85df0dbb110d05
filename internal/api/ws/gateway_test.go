package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/api/middleware"
	"github.com/RoyceAzure/lab/storefront/internal/constants"
	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/RoyceAzure/lab/storefront/internal/infra/auth/google_auth"
	"github.com/RoyceAzure/lab/storefront/internal/infra/presence"
	"github.com/RoyceAzure/lab/storefront/internal/infra/pubsub"
	"github.com/RoyceAzure/lab/storefront/internal/infra/repository/db"
	"github.com/RoyceAzure/lab/storefront/internal/service/notification"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/net/websocket"
)

type fakeVerifier struct{}

func (fakeVerifier) VerifyIDToken(ctx context.Context, idToken string) (*google_auth.UserInfo, error) {
	if idToken == "good" {
		return &google_auth.UserInfo{ID: "g-1", Email: "buyer@example.com", VerifiedEmail: true}, nil
	}
	return nil, google_auth.ErrInvalidToken
}

type fakeUsers struct{}

func (fakeUsers) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	if email == "buyer@example.com" {
		return &model.User{ID: 42, Email: email, Role: model.UserRoleCustomer}, nil
	}
	return nil, db.ErrUserNotFound
}

func (fakeUsers) CreateUser(ctx context.Context, user *model.User) (*model.User, error) {
	return nil, db.ErrDuplicateEmail
}

type GatewayTestSuite struct {
	suite.Suite
	broker   *pubsub.MemoryBroker
	presence *presence.MemoryStore
	gateway  *Gateway
	srv      *httptest.Server
}

func TestGatewayTestSuite(t *testing.T) {
	suite.Run(t, new(GatewayTestSuite))
}

func (s *GatewayTestSuite) SetupTest() {
	s.broker = pubsub.NewMemoryBroker()
	s.presence = presence.NewMemoryStore()
	auth := middleware.NewAuthenticator(fakeVerifier{}, fakeUsers{}, nil)
	s.gateway = NewGateway(auth, s.presence, s.broker, WithHeartbeat(20*time.Millisecond))

	mux := http.NewServeMux()
	mux.Handle("/ws", s.gateway)
	s.srv = httptest.NewServer(mux)
}

func (s *GatewayTestSuite) TearDownTest() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.gateway.Shutdown(ctx)
	s.srv.Close()
}

func (s *GatewayTestSuite) dial(path, authorization string) (*websocket.Conn, error) {
	wsURL := "ws" + strings.TrimPrefix(s.srv.URL, "http") + path
	cfg, err := websocket.NewConfig(wsURL, s.srv.URL)
	if err != nil {
		return nil, err
	}
	if authorization != "" {
		cfg.Header = make(http.Header)
		cfg.Header.Set("Authorization", authorization)
	}
	return websocket.DialConfig(cfg)
}

func (s *GatewayTestSuite) waitOnline(userID int64, want bool) {
	require.Eventually(s.T(), func() bool {
		online, err := s.presence.IsOnline(context.Background(), userID)
		return err == nil && online == want
	}, 2*time.Second, 10*time.Millisecond)
}

func readEnvelope(t *testing.T, conn *websocket.Conn) notification.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var raw string
	require.NoError(t, websocket.Message.Receive(conn, &raw))
	var env notification.Envelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	return env
}

func (s *GatewayTestSuite) TestRequiresToken() {
	_, err := s.dial("/ws", "")
	require.Error(s.T(), err)
	require.Contains(s.T(), err.Error(), "bad status")

	_, err = s.dial("/ws", "Bearer bad")
	require.Error(s.T(), err)

	online, err := s.presence.IsOnline(context.Background(), 42)
	require.NoError(s.T(), err)
	require.False(s.T(), online)
}

func (s *GatewayTestSuite) TestDeliversNotification() {
	conn, err := s.dial("/ws", "Bearer good")
	require.NoError(s.T(), err)
	defer conn.Close()
	s.waitOnline(42, true)

	publisher := notification.NewPublisher(s.broker, s.presence)
	ev := notification.Event{
		ID:        9,
		Title:     "Order placed",
		Message:   "Order ORD-20260301-AAAAAA has been placed",
		Type:      model.NotificationTypeOrderPlaced,
		DeepLink:  "/orders/ORD-20260301-AAAAAA",
		CreatedAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	res := publisher.FanOut(context.Background(), ev, []int64{42, 1})
	require.Equal(s.T(), notification.FanOutResult{Delivered: 1, Skipped: 1}, res)

	env := readEnvelope(s.T(), conn)
	require.Equal(s.T(), constants.EventNotificationCreated, env.Type)
	require.Equal(s.T(), int64(9), env.Payload.ID)
	require.Equal(s.T(), "/orders/ORD-20260301-AAAAAA", env.Payload.DeepLink)
}

func (s *GatewayTestSuite) TestQueryToken() {
	conn, err := s.dial("/ws?token=good", "")
	require.NoError(s.T(), err)
	defer conn.Close()
	s.waitOnline(42, true)
}

func (s *GatewayTestSuite) TestMultipleConnections() {
	first, err := s.dial("/ws", "Bearer good")
	require.NoError(s.T(), err)
	defer first.Close()
	second, err := s.dial("/ws", "Bearer good")
	require.NoError(s.T(), err)
	defer second.Close()

	require.Eventually(s.T(), func() bool {
		conns, err := s.presence.Connections(context.Background(), 42)
		return err == nil && len(conns) == 2
	}, 2*time.Second, 10*time.Millisecond)

	payload, err := json.Marshal(notification.NewEnvelope(notification.Event{ID: 1, Title: "hi"}))
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.broker.Publish(context.Background(), pubsub.UserChannel(42), payload))

	require.Equal(s.T(), int64(1), readEnvelope(s.T(), first).Payload.ID)
	require.Equal(s.T(), int64(1), readEnvelope(s.T(), second).Payload.ID)
}

func (s *GatewayTestSuite) TestUnregisterOnClose() {
	conn, err := s.dial("/ws", "Bearer good")
	require.NoError(s.T(), err)
	s.waitOnline(42, true)
	require.Equal(s.T(), 1, s.broker.Subscribers(pubsub.UserChannel(42)))

	require.NoError(s.T(), conn.Close())
	s.waitOnline(42, false)
	require.Eventually(s.T(), func() bool {
		return s.broker.Subscribers(pubsub.UserChannel(42)) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func (s *GatewayTestSuite) TestShutdownClosesConnections() {
	conn, err := s.dial("/ws", "Bearer good")
	require.NoError(s.T(), err)
	defer conn.Close()
	s.waitOnline(42, true)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(s.T(), s.gateway.Shutdown(ctx))

	online, err := s.presence.IsOnline(context.Background(), 42)
	require.NoError(s.T(), err)
	require.False(s.T(), online)
}

func TestGatewayUserFromContext(t *testing.T) {
	g := NewGateway(nil, presence.NewMemoryStore(), pubsub.NewMemoryBroker())

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	require.Nil(t, g.authenticate(r))

	user := &model.User{ID: 7}
	r = r.WithContext(context.WithValue(r.Context(), constants.AuthorizationUserKey, user))
	require.Equal(t, user, g.authenticate(r))
}

func TestGatewayRejectsPost(t *testing.T) {
	g := NewGateway(nil, presence.NewMemoryStore(), pubsub.NewMemoryBroker())
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ws", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
