package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	cmd_model "github.com/RoyceAzure/lab/storefront/internal/domain/model/command"
	"github.com/RoyceAzure/lab/storefront/internal/infra/consumer"
	"github.com/RoyceAzure/lab/storefront/internal/infra/metrics"
	"github.com/RoyceAzure/lab/storefront/internal/infra/repository/db"
	"github.com/RoyceAzure/lab/storefront/internal/infra/repository/eventdb"
	"github.com/RoyceAzure/lab/storefront/internal/infra/tracing"
	"github.com/RoyceAzure/lab/storefront/internal/pkg/util"
	"github.com/RoyceAzure/lab/storefront/internal/service/notification"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultTxTimeout     = 5 * time.Second
	DefaultNotifyTimeout = 10 * time.Second
)

// SubmissionStage 單筆 submission 的處理階段，只用於 log
type SubmissionStage string

const (
	StageReceived     SubmissionStage = "Received"
	StageValidating   SubmissionStage = "Validating"
	StageReserving    SubmissionStage = "Reserving"
	StageCommitting   SubmissionStage = "Committing"
	StageNotifying    SubmissionStage = "Notifying"
	StageAcknowledged SubmissionStage = "Acknowledged"
	StageRejected     SubmissionStage = "Rejected"
)

// metrics outcome label
const (
	resultPlaced    = "placed"
	resultDuplicate = "duplicate"
	resultRejected  = "rejected"
	resultPoison    = "poison"
	resultTransient = "transient"
)

// IFulfillmentStore 下單需要的資料存取
type IFulfillmentStore interface {
	GetLedgerRecord(ctx context.Context, submissionID string) (*model.IdempotencyRecord, error)
	PlaceOrder(ctx context.Context, params db.PlaceOrderParams) (*model.Order, error)
	RecordRejection(ctx context.Context, submissionID, reason string) (bool, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// IActivityLog 訂單歷程寫入
type IActivityLog interface {
	AppendActivity(ctx context.Context, orderCode, eventType string, activity model.OrderActivity) error
}

/*
SubmissionHandler 處理 order-submissions 上的單筆訊息
Received -> Validating -> Reserving -> Committing -> Notifying -> Acknowledged

	回傳 nil: 完成、重複投遞或業務拒絕 (已寫入 ledger)，consumer 可以 commit
	回傳 ErrPoisonMessage: 直接送 DLQ
	其他錯誤: 暫時性錯誤，由 consumer 重試

通知與歷程只在 transaction commit 後執行，失敗只記錄不影響結果
*/
type SubmissionHandler struct {
	store         IFulfillmentStore
	notifier      notification.INotificationService
	activity      IActivityLog
	metrics       *metrics.ConsumerMetrics
	logger        *zerolog.Logger
	txTimeout     time.Duration
	notifyTimeout time.Duration
	now           func() time.Time
}

type Option func(*SubmissionHandler)

func WithActivityLog(activity IActivityLog) Option {
	return func(h *SubmissionHandler) {
		h.activity = activity
	}
}

func WithMetrics(m *metrics.ConsumerMetrics) Option {
	return func(h *SubmissionHandler) {
		h.metrics = m
	}
}

func WithLogger(logger *zerolog.Logger) Option {
	return func(h *SubmissionHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithTxTimeout(d time.Duration) Option {
	return func(h *SubmissionHandler) {
		if d > 0 {
			h.txTimeout = d
		}
	}
}

func WithNotifyTimeout(d time.Duration) Option {
	return func(h *SubmissionHandler) {
		if d > 0 {
			h.notifyTimeout = d
		}
	}
}

func NewSubmissionHandler(store IFulfillmentStore, notifier notification.INotificationService, opts ...Option) *SubmissionHandler {
	nop := zerolog.Nop()
	h := &SubmissionHandler{
		store:         store,
		notifier:      notifier,
		logger:        &nop,
		txTimeout:     DefaultTxTimeout,
		notifyTimeout: DefaultNotifyTimeout,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Process 實作 consumer.Processer
func (h *SubmissionHandler) Process(ctx context.Context, msg kafka.Message) error {
	return h.Handle(ctx, msg)
}

func (h *SubmissionHandler) Handle(ctx context.Context, msg kafka.Message) error {
	start := time.Now()
	ctx = tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	ctx, span := tracing.Tracer().Start(ctx, "fulfillment.handle")
	defer span.End()

	logger := h.logger.With().
		Str("key", string(msg.Key)).
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Logger()

	sub, err := DecodeSubmission(msg)
	if err != nil {
		logger.Error().Err(err).Str("stage", string(StageReceived)).Msg("undecodable submission")
		span.SetStatus(codes.Error, err.Error())
		h.observe(resultPoison, start)
		return err
	}
	span.SetAttributes(attribute.String("submission_id", sub.SubmissionID))
	logger = logger.With().Str("submission_id", sub.SubmissionID).Logger()
	logger.Debug().Str("stage", string(StageReceived)).Msg("submission received")

	logger.Debug().Str("stage", string(StageValidating)).Msg("check idempotency ledger")
	record, err := h.store.GetLedgerRecord(ctx, sub.SubmissionID)
	if err != nil {
		logger.Warn().Err(err).Msg("check idempotency ledger failed")
		h.observe(resultTransient, start)
		return fmt.Errorf("check ledger: %w", err)
	}
	if record != nil {
		logger.Info().
			Str("stage", string(StageAcknowledged)).
			Str("ledger_outcome", string(record.Outcome)).
			Msg("duplicate submission suppressed")
		h.observe(resultDuplicate, start)
		return nil
	}

	order, err := h.placeOrder(ctx, sub, &logger)
	switch Classify(err) {
	case OutcomeAck:
		if err != nil {
			logger.Info().Str("stage", string(StageAcknowledged)).Msg("duplicate submission suppressed by ledger")
			h.observe(resultDuplicate, start)
			return nil
		}
	case OutcomeReject:
		recorded, recordErr := h.recordRejection(ctx, sub, err)
		if recordErr != nil {
			logger.Warn().Err(recordErr).AnErr("cause", err).Msg("record rejection failed, retry later")
			span.SetStatus(codes.Error, recordErr.Error())
			h.observe(resultTransient, start)
			return fmt.Errorf("record rejection: %w", recordErr)
		}
		if !recorded {
			logger.Info().Str("stage", string(StageAcknowledged)).Msg("duplicate submission suppressed by ledger")
			h.observe(resultDuplicate, start)
			return nil
		}
		logger.Warn().Err(err).Str("stage", string(StageRejected)).Msg("submission rejected")
		h.notifyRejected(ctx, sub, err, &logger)
		h.observe(resultRejected, start)
		return nil
	case OutcomeDeadLetter:
		span.SetStatus(codes.Error, err.Error())
		h.observe(resultPoison, start)
		return err
	default:
		logger.Warn().Err(err).Msg("place order failed, retry later")
		span.SetStatus(codes.Error, err.Error())
		h.observe(resultTransient, start)
		return err
	}

	span.SetAttributes(attribute.String("order_code", order.Code))
	logger = logger.With().Str("order_code", order.Code).Logger()
	logger.Debug().Str("stage", string(StageNotifying)).Msg("order committed, notify")
	h.notifyPlaced(ctx, order, &logger)

	logger.Info().Str("stage", string(StageAcknowledged)).Msg("order placed")
	h.observe(resultPlaced, start)
	return nil
}

// placeOrder 每次嘗試都有獨立的 transaction timeout，逾時視為暫時性錯誤
func (h *SubmissionHandler) placeOrder(ctx context.Context, sub *cmd_model.OrderSubmission, logger *zerolog.Logger) (*model.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, h.txTimeout)
	defer cancel()

	params := db.PlaceOrderParams{Order: sub.ToOrder(util.GenerateOrderCode(h.now()))}
	if sub.Customer.IsGuest() && sub.Customer.Guest.CreateAccount {
		guest := sub.Customer.Guest
		params.NewAccount = &model.User{
			Email:    strings.ToLower(strings.TrimSpace(guest.Email)),
			FullName: guest.FullName,
			Phone:    guest.Phone,
			Role:     model.UserRoleCustomer,
		}
	}

	logger.Debug().Str("stage", string(StageReserving)).Int("lines", len(sub.Lines)).Msg("reserve stock")
	order, err := h.store.PlaceOrder(ctx, params)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("stage", string(StageCommitting)).Str("order_code", order.Code).Msg("transaction committed")
	return order, nil
}

// recordRejection 拒絕也寫入 ledger，Rejected 之後重新投遞不會再下單
// 回傳 false 表示已有其他投遞寫入結果
func (h *SubmissionHandler) recordRejection(ctx context.Context, sub *cmd_model.OrderSubmission, cause error) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, h.txTimeout)
	defer cancel()
	return h.store.RecordRejection(ctx, sub.SubmissionID, rejectReason(cause))
}

// notifyCtx 不跟著 consumer 停止而取消，commit 後的通知盡量送完
func (h *SubmissionHandler) notifyCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), h.notifyTimeout)
}

func (h *SubmissionHandler) notifyPlaced(ctx context.Context, order *model.Order, logger *zerolog.Logger) {
	ctx, cancel := h.notifyCtx(ctx)
	defer cancel()

	res, err := h.notifier.NotifyOrderPlaced(ctx, order)
	if err != nil {
		logger.Error().Err(err).Msg("order placed notification failed")
	} else {
		logger.Debug().
			Int("delivered", res.Delivered).
			Int("failed", res.Failed).
			Int("skipped", res.Skipped).
			Msg("order placed notification sent")
	}

	if h.activity == nil {
		return
	}
	activity := model.OrderActivity{
		At:          h.now(),
		Status:      order.Status,
		Title:       "Order placed",
		Description: fmt.Sprintf("%d items, total %s", len(order.Lines), order.GrandTotal.StringFixed(2)),
	}
	if err := h.activity.AppendActivity(ctx, order.Code, eventdb.OrderPlacedEvent, activity); err != nil {
		logger.Warn().Err(err).Msg("append order activity failed")
	}
}

func (h *SubmissionHandler) notifyRejected(ctx context.Context, sub *cmd_model.OrderSubmission, cause error, logger *zerolog.Logger) {
	ctx, cancel := h.notifyCtx(ctx)
	defer cancel()

	userID, ok := h.submitter(ctx, sub, cause)
	if !ok {
		logger.Debug().Msg("no known submitter, skip failure notification")
		return
	}
	if _, err := h.notifier.NotifyOrderFailed(ctx, userID, sub.SubmissionID, rejectReason(cause)); err != nil {
		logger.Error().Err(err).Int64("user_id", userID).Msg("order failed notification failed")
	}
}

// submitter 找出失敗通知的收件人：登入用戶，或 guest email 對應的既有帳號
func (h *SubmissionHandler) submitter(ctx context.Context, sub *cmd_model.OrderSubmission, cause error) (int64, bool) {
	if id := sub.Customer.UserID; id != nil {
		if errors.Is(cause, db.ErrUserNotFound) {
			return 0, false
		}
		return *id, true
	}
	if sub.Customer.Guest == nil {
		return 0, false
	}

	email := strings.ToLower(strings.TrimSpace(sub.Customer.Guest.Email))
	user, err := h.store.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, db.ErrUserNotFound) {
			h.logger.Warn().Err(err).Str("submission_id", sub.SubmissionID).Msg("lookup submitter by email failed")
		}
		return 0, false
	}
	return user.ID, true
}

func (h *SubmissionHandler) observe(result string, start time.Time) {
	h.metrics.ObserveSubmission(result, time.Since(start))
}

// DecodeSubmission 解析並檢查訊息，任何格式錯誤都是 ErrPoisonMessage
func DecodeSubmission(msg kafka.Message) (*cmd_model.OrderSubmission, error) {
	if t := headerValue(msg.Headers, cmd_model.HeaderCommandType); t != "" && t != string(cmd_model.OrderSubmittedCommandName) {
		return nil, fmt.Errorf("%w: unexpected command type %q", consumer.ErrPoisonMessage, t)
	}

	var sub cmd_model.OrderSubmission
	if err := json.Unmarshal(msg.Value, &sub); err != nil {
		return nil, fmt.Errorf("%w: %w", consumer.ErrPoisonMessage, err)
	}
	if strings.TrimSpace(sub.SubmissionID) == "" {
		return nil, fmt.Errorf("%w: missing submission id", consumer.ErrPoisonMessage)
	}
	if err := sub.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", consumer.ErrPoisonMessage, err)
	}
	return &sub, nil
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

var (
	_ consumer.Processer = (*SubmissionHandler)(nil)
	_ IActivityLog       = (eventdb.IOrderActivityRepository)(nil)
)
