package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/RoyceAzure/lab/storefront/internal/domain/model/command"
	"github.com/RoyceAzure/lab/storefront/internal/infra/producer"
	mock_producer "github.com/RoyceAzure/lab/storefront/internal/infra/producer/mock"
	"github.com/RoyceAzure/lab/storefront/internal/pkg/util"
	er "github.com/RoyceAzure/rj/util/rj_error"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func checkoutSubmission() *command.OrderSubmission {
	return &command.OrderSubmission{
		Customer: command.CustomerInfo{Guest: &command.GuestInfo{
			FullName: "Guest",
			Email:    "guest@example.com",
		}},
		ShippingAddress: model.ShippingAddress{
			Recipient: "Guest",
			Line1:     "1 Main St",
			City:      "Taipei",
		},
		Lines: []command.SubmissionLine{
			{ProductID: 3, VariantID: 7, Quantity: 2, UnitPrice: decimal.NewFromInt(100000)},
		},
		Subtotal:    decimal.NewFromInt(200000),
		ShippingFee: decimal.NewFromInt(20000),
		Total:       decimal.NewFromInt(220000),
	}
}

func requireAnaCode(t *testing.T, err error, code int) {
	t.Helper()
	var anaErr *er.AnaError
	require.True(t, errors.As(err, &anaErr), "expected *er.AnaError, got %v", err)
	require.Equal(t, code, int(anaErr.Code))
}

func TestCheckoutSubmit(t *testing.T) {
	existingID := uuid.NewString()

	testCases := []struct {
		name          string
		ctx           func() context.Context
		submission    func() *command.OrderSubmission
		setUpMock     func(w *mock_producer.MockWriter)
		checkResponse func(t *testing.T, res *SubmitResult, err error)
	}{
		{
			name:       "guest checkout generates submission id",
			ctx:        context.Background,
			submission: checkoutSubmission,
			setUpMock: func(w *mock_producer.MockWriter) {
				w.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).
					DoAndReturn(func(ctx context.Context, msgs ...kafka.Message) error {
						require.Len(t, msgs, 1)
						var sub command.OrderSubmission
						require.NoError(t, json.Unmarshal(msgs[0].Value, &sub))
						require.Equal(t, string(msgs[0].Key), sub.SubmissionID)
						require.False(t, sub.SubmittedAt.IsZero())
						return nil
					}).Times(1)
			},
			checkResponse: func(t *testing.T, res *SubmitResult, err error) {
				require.NoError(t, err)
				require.Equal(t, SubmissionStatusProcessing, res.Status)
				_, parseErr := uuid.Parse(res.SubmissionID)
				require.NoError(t, parseErr)
			},
		},
		{
			name: "keeps caller submission id",
			ctx:  context.Background,
			submission: func() *command.OrderSubmission {
				sub := checkoutSubmission()
				sub.SubmissionID = existingID
				return sub
			},
			setUpMock: func(w *mock_producer.MockWriter) {
				w.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).Return(nil).Times(1)
			},
			checkResponse: func(t *testing.T, res *SubmitResult, err error) {
				require.NoError(t, err)
				require.Equal(t, existingID, res.SubmissionID)
			},
		},
		{
			name: "authenticated user overrides customer",
			ctx: func() context.Context {
				return util.WithUser(context.Background(), &model.User{ID: 42, Role: model.UserRoleCustomer})
			},
			submission: checkoutSubmission,
			setUpMock: func(w *mock_producer.MockWriter) {
				w.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).
					DoAndReturn(func(ctx context.Context, msgs ...kafka.Message) error {
						var sub command.OrderSubmission
						require.NoError(t, json.Unmarshal(msgs[0].Value, &sub))
						require.NotNil(t, sub.Customer.UserID)
						require.Equal(t, int64(42), *sub.Customer.UserID)
						require.Nil(t, sub.Customer.Guest)
						return nil
					}).Times(1)
			},
			checkResponse: func(t *testing.T, res *SubmitResult, err error) {
				require.NoError(t, err)
			},
		},
		{
			name: "invalid submission never enqueued",
			ctx:  context.Background,
			submission: func() *command.OrderSubmission {
				sub := checkoutSubmission()
				sub.Lines = nil
				return sub
			},
			setUpMock: func(w *mock_producer.MockWriter) {
				w.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(t *testing.T, res *SubmitResult, err error) {
				require.Nil(t, res)
				requireAnaCode(t, err, int(er.BadRequestCode))
			},
		},
		{
			name: "submission id not uuid",
			ctx:  context.Background,
			submission: func() *command.OrderSubmission {
				sub := checkoutSubmission()
				sub.SubmissionID = "abc"
				return sub
			},
			setUpMock: func(w *mock_producer.MockWriter) {
				w.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(t *testing.T, res *SubmitResult, err error) {
				requireAnaCode(t, err, int(er.BadRequestCode))
			},
		},
		{
			name:       "queue unavailable",
			ctx:        context.Background,
			submission: checkoutSubmission,
			setUpMock: func(w *mock_producer.MockWriter) {
				w.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).
					Return(errors.New("kafka: leader not available")).Times(1)
			},
			checkResponse: func(t *testing.T, res *SubmitResult, err error) {
				require.Nil(t, res)
				requireAnaCode(t, err, int(er.InternalErrorCode))
			},
		},
		{
			name:       "nil submission",
			ctx:        context.Background,
			submission: func() *command.OrderSubmission { return nil },
			setUpMock: func(w *mock_producer.MockWriter) {
				w.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(t *testing.T, res *SubmitResult, err error) {
				requireAnaCode(t, err, int(er.BadRequestCode))
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			w := mock_producer.NewMockWriter(ctrl)
			tc.setUpMock(w)

			svc := NewCheckoutService(producer.NewSubmissionProducerWithWriter(w, "order-submissions"), nil)
			res, err := svc.Submit(tc.ctx(), tc.submission())
			tc.checkResponse(t, res, err)
		})
	}
}
