package service

import (
	"context"
	"strings"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model/command"
	"github.com/RoyceAzure/lab/storefront/internal/infra/tracing"
	"github.com/RoyceAzure/lab/storefront/internal/pkg/util"
	er "github.com/RoyceAzure/rj/util/rj_error"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const SubmissionStatusProcessing = "Processing"

// ISubmissionProducer 將 submission 送進 queue
type ISubmissionProducer interface {
	Produce(ctx context.Context, submission *command.OrderSubmission) error
}

type SubmitResult struct {
	SubmissionID string
	Status       string
}

type ICheckoutService interface {
	// Submit 檢查格式後送進 queue，不等待下單結果
	//
	// 錯誤:
	//   - er.BadRequestCode: submission 格式錯誤，不會送進 queue
	//   - er.InternalErrorCode: queue 無法寫入
	Submit(ctx context.Context, submission *command.OrderSubmission) (*SubmitResult, error)
}

type CheckoutService struct {
	producer ISubmissionProducer
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewCheckoutService(producer ISubmissionProducer, logger *zerolog.Logger) *CheckoutService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &CheckoutService{
		producer: producer,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *CheckoutService) Submit(ctx context.Context, submission *command.OrderSubmission) (*SubmitResult, error) {
	ctx, span := tracing.Tracer().Start(ctx, "checkout.submit")
	defer span.End()

	if submission == nil {
		return nil, er.New(er.BadRequestCode, "submission is required")
	}

	submission.SubmissionID = strings.TrimSpace(submission.SubmissionID)
	if submission.SubmissionID == "" {
		submission.SubmissionID = uuid.NewString()
	} else if _, err := uuid.Parse(submission.SubmissionID); err != nil {
		return nil, er.New(er.BadRequestCode, "submission_id must be a uuid")
	}
	span.SetAttributes(attribute.String("submission_id", submission.SubmissionID))

	// 已登入以 token 的使用者為準
	if user := util.GetUserFromContext(ctx); user != nil {
		id := user.ID
		submission.Customer = command.CustomerInfo{UserID: &id}
	}
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = s.now()
	}

	if err := submission.Validate(); err != nil {
		return nil, er.New(er.BadRequestCode, err.Error())
	}

	if err := s.producer.Produce(ctx, submission); err != nil {
		s.logger.Error().
			Err(err).
			Str("request_id", util.GetRequestIDFromContext(ctx)).
			Str("submission_id", submission.SubmissionID).
			Msg("enqueue submission failed")
		return nil, er.New(er.InternalErrorCode, "queue unavailable, retry later")
	}

	s.logger.Info().
		Str("request_id", util.GetRequestIDFromContext(ctx)).
		Str("submission_id", submission.SubmissionID).
		Int("lines", len(submission.Lines)).
		Msg("submission enqueued")

	return &SubmitResult{
		SubmissionID: submission.SubmissionID,
		Status:       SubmissionStatusProcessing,
	}, nil
}

var _ ICheckoutService = (*CheckoutService)(nil)
