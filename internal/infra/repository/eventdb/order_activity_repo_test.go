package eventdb

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestGenerateOrderStreamID(t *testing.T) {
	require.Equal(t, "order-ORD-20250101-ABC123", GenerateOrderStreamID("ORD-20250101-ABC123"))
}

type OrderActivityRepoTestSuite struct {
	suite.Suite
	dao  *EventDao
	repo *OrderActivityRepo
}

func TestOrderActivityRepoTestSuite(t *testing.T) {
	if os.Getenv("STOREFRONT_INTEGRATION") == "" {
		t.Skip("STOREFRONT_INTEGRATION 未設置，跳過 eventstore 整合測試")
	}
	suite.Run(t, new(OrderActivityRepoTestSuite))
}

func (s *OrderActivityRepoTestSuite) SetupSuite() {
	client, err := NewClient("esdb://localhost:2113?tls=false")
	s.Require().NoError(err)
	s.dao = NewEventDao(client)
	s.repo = NewOrderActivityRepo(s.dao)
}

func (s *OrderActivityRepoTestSuite) TearDownSuite() {
	s.dao.Close()
}

func (s *OrderActivityRepoTestSuite) TestAppendAndList() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	code := "ORD-TEST-" + uuid.NewString()[:8]
	at := time.Now().UTC().Truncate(time.Second)

	err := s.repo.AppendActivity(ctx, code, OrderPlacedEvent, model.OrderActivity{
		At:     at,
		Status: model.OrderStatusOrdered,
		Title:  "Order placed",
	})
	s.Require().NoError(err)

	activities, err := s.repo.ListActivities(ctx, code)
	s.Require().NoError(err)
	s.Require().Len(activities, 1)
	s.Equal(model.OrderStatusOrdered, activities[0].Status)
	s.True(at.Equal(activities[0].At))

	s.Require().NoError(s.dao.DeleteStream(ctx, GenerateOrderStreamID(code)))
}

func (s *OrderActivityRepoTestSuite) TestMissingStream() {
	activities, err := s.repo.ListActivities(context.Background(), "ORD-NOT-EXIST-"+uuid.NewString()[:8])
	s.Require().NoError(err)
	s.Empty(activities)
}
