package producer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/RoyceAzure/lab/storefront/internal/domain/model/command"
	ka_err "github.com/RoyceAzure/lab/storefront/internal/infra/kafka/errors"
	mock_producer "github.com/RoyceAzure/lab/storefront/internal/infra/producer/mock"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestSubmission() *command.OrderSubmission {
	userID := int64(42)
	return &command.OrderSubmission{
		SubmissionID: uuid.NewString(),
		Customer:     command.CustomerInfo{UserID: &userID},
		ShippingAddress: model.ShippingAddress{
			Recipient: "Royce",
			Line1:     "1 Test Rd",
			City:      "Taipei",
		},
		Lines: []command.SubmissionLine{
			{ProductID: 1, VariantID: 7, Quantity: 2, UnitPrice: decimal.NewFromInt(100000)},
		},
		Subtotal:    decimal.NewFromInt(200000),
		ShippingFee: decimal.NewFromInt(20000),
		Total:       decimal.NewFromInt(220000),
	}
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestProduce(t *testing.T) {
	testCases := []struct {
		name          string
		submission    func() *command.OrderSubmission
		setUpMock     func(sub *command.OrderSubmission, w *mock_producer.MockWriter)
		checkResponse func(t *testing.T, err error)
	}{
		{
			name:       "ok",
			submission: newTestSubmission,
			setUpMock: func(sub *command.OrderSubmission, w *mock_producer.MockWriter) {
				w.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).
					DoAndReturn(func(ctx context.Context, msgs ...kafka.Message) error {
						require.Len(t, msgs, 1)
						msg := msgs[0]
						require.Equal(t, sub.SubmissionID, string(msg.Key))
						require.Equal(t, string(command.OrderSubmittedCommandName), headerValue(msg.Headers, command.HeaderCommandType))
						require.Equal(t, "0", headerValue(msg.Headers, command.HeaderRetryCount))

						var decoded command.OrderSubmission
						require.NoError(t, json.Unmarshal(msg.Value, &decoded))
						require.Equal(t, sub.SubmissionID, decoded.SubmissionID)
						require.True(t, decoded.Total.Equal(sub.Total))
						return nil
					}).Times(1)
			},
			checkResponse: func(t *testing.T, err error) {
				require.NoError(t, err)
			},
		},
		{
			name:       "writer failed",
			submission: newTestSubmission,
			setUpMock: func(sub *command.OrderSubmission, w *mock_producer.MockWriter) {
				w.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).Return(errors.New("broker down")).Times(1)
			},
			checkResponse: func(t *testing.T, err error) {
				require.Error(t, err)
				var kErr *ka_err.KafkaError
				require.ErrorAs(t, err, &kErr)
				require.Equal(t, "Write", kErr.Operation)
				require.Equal(t, "order-submissions", kErr.Topic)
			},
		},
		{
			name: "missing submission id",
			submission: func() *command.OrderSubmission {
				sub := newTestSubmission()
				sub.SubmissionID = ""
				return sub
			},
			setUpMock: func(sub *command.OrderSubmission, w *mock_producer.MockWriter) {
				w.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ka_err.ErrInvalidateParameter)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			w := mock_producer.NewMockWriter(ctrl)
			sub := tc.submission()
			tc.setUpMock(sub, w)

			p := NewSubmissionProducerWithWriter(w, "order-submissions")
			tc.checkResponse(t, p.Produce(context.Background(), sub))
		})
	}
}

func TestProduceAfterClose(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	w := mock_producer.NewMockWriter(ctrl)
	w.EXPECT().Close().Return(nil).Times(1)

	p := NewSubmissionProducerWithWriter(w, "order-submissions")
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	require.ErrorIs(t, p.Produce(context.Background(), newTestSubmission()), ka_err.ErrClientClosed)
}
