package consumer

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/infra/kafka/config"
	ka_err "github.com/RoyceAzure/lab/storefront/internal/infra/kafka/errors"
	"github.com/RoyceAzure/lab/storefront/internal/infra/producer"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const (
	workerBufferSize = 64
	resultBufferSize = 1024
	finalCommitWait  = 3 * time.Second
)

type outcome int

const (
	outcomeAbandoned outcome = iota // 不 commit，等待重新投遞
	outcomeProcessed
	outcomeDeadLettered
)

type processResult struct {
	msg     kafka.Message
	outcome outcome
}

// Consumer 一個 reader goroutine，WorkerNum 個 processer goroutine，一個 commit goroutine
// readMsg -> worker 處理 (失敗重試、超過次數送 DLQ) -> 依結果推進 offset -> 批次 commit
// 同一個 key 的訊息固定由同一個 worker 處理
type Consumer struct {
	cfg       *config.Config
	reader    KafkaReader
	dlqWriter producer.Writer
	processer Processer
	logger    *zerolog.Logger
	tracker   *offsetTracker

	isRunning     atomic.Bool
	readErrTimes  int
	lastErrorTime time.Time

	// 只由 commit goroutine 存取
	commitErrTimes int

	readCtx    context.Context
	readCancel context.CancelFunc
	// 處理訊息使用獨立的 ctx，停止讀取後仍可完成手上的訊息
	processCtx    context.Context
	processCancel context.CancelFunc

	workerChans []chan kafka.Message
	resultChan  chan processResult
	processWg   sync.WaitGroup
	commitWg    sync.WaitGroup

	handlerSuccessfunc func(kafka.Message)
	handlerErrorfunc   func(ConsumeError)
	isStopped          chan struct{}
}

func NewConsumer(cfg *config.Config, reader KafkaReader, dlqWriter producer.Writer, p Processer, opts ...Option) *Consumer {
	nop := zerolog.Nop()
	c := &Consumer{
		cfg:                cfg,
		reader:             reader,
		dlqWriter:          dlqWriter,
		processer:          p,
		logger:             &nop,
		tracker:            newOffsetTracker(),
		handlerSuccessfunc: func(kafka.Message) {},
		handlerErrorfunc:   func(ConsumeError) {},
		isStopped:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.WorkerNum <= 0 {
		c.cfg.WorkerNum = 1
	}
	return c
}

func (b *Consumer) Start() error {
	if !b.isRunning.CompareAndSwap(false, true) {
		return ka_err.ErrConsumerAlreadyRunning
	}

	b.readCtx, b.readCancel = context.WithCancel(context.Background())
	b.processCtx, b.processCancel = context.WithCancel(context.Background())
	b.workerChans = make([]chan kafka.Message, b.cfg.WorkerNum)
	b.resultChan = make(chan processResult, resultBufferSize)

	b.startConsumerLoop()
	return nil
}

func (b *Consumer) startConsumerLoop() {
	b.commitWg.Add(1)
	go func() {
		defer b.commitWg.Done()
		b.handleResult(b.resultChan)
	}()

	for i := range b.workerChans {
		ch := make(chan kafka.Message, workerBufferSize)
		b.workerChans[i] = ch
		b.processWg.Add(1)
		go func() {
			defer b.processWg.Done()
			b.process(ch, b.resultChan)
		}()
	}

	// kafka reader 只能有一個 goroutine
	go func() {
		b.readMsg(b.readCtx)
		b.shutdown()
	}()

	b.logger.Info().
		Str("topic", b.cfg.Topic).
		Int("workers", b.cfg.WorkerNum).
		Msg("kafka consumer started")
}

// readMsg 讀取訊息並依 key 分派給 worker
// 依據錯誤類型有重試機制，或者直接結束
func (b *Consumer) readMsg(ctx context.Context) {
	for {
		msg, err := b.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if ka_err.IsFatalError(err) {
				b.logger.Warn().Err(err).Msg("kafka reader closed, stop consumer")
				return
			}

			b.logger.Error().Err(err).Msg("kafka reader fetch failed")
			if err := b.retryBackoff(ctx); err != nil {
				b.logger.Error().Err(err).Msg("kafka reader stop retry")
				return
			}
			continue
		}
		b.readErrTimes = 0

		b.tracker.Track(msg)
		select {
		case b.workerChans[b.workerIndex(msg)] <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (b *Consumer) workerIndex(msg kafka.Message) int {
	if len(msg.Key) == 0 {
		return msg.Partition % len(b.workerChans)
	}
	h := fnv.New32a()
	h.Write(msg.Key)
	return int(h.Sum32() % uint32(len(b.workerChans)))
}

// retryBackoff 連續讀取錯誤超過 MaxRetryAttempts 次即放棄
func (b *Consumer) retryBackoff(ctx context.Context) error {
	if b.lastErrorTime.Add(b.cfg.RetryBackoffMax).Before(time.Now()) {
		b.readErrTimes = 0
	}
	b.readErrTimes++
	b.lastErrorTime = time.Now()

	if b.readErrTimes > b.cfg.MaxRetryAttempts {
		return fmt.Errorf("kafka consumer retry %d times, stop consumer", b.readErrTimes-1)
	}

	select {
	case <-time.After(b.cfg.Backoff(b.readErrTimes)):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// 以關閉 in 當作結束訊號，會持續處理直到 in 沒有訊息
func (b *Consumer) process(in <-chan kafka.Message, out chan<- processResult) {
	for msg := range in {
		out <- processResult{msg: msg, outcome: b.processWithRetry(msg)}
	}
}

func (b *Consumer) processWithRetry(msg kafka.Message) outcome {
	ctx := b.processCtx
	retries := 0
	for {
		err := b.processer.Process(ctx, msg)
		if err == nil {
			return outcomeProcessed
		}

		if ctx.Err() != nil {
			b.logMessage(b.logger.Warn(), msg).Err(err).Msg("consumer stopped before message finished")
			return outcomeAbandoned
		}

		if errors.Is(err, ErrPoisonMessage) {
			return b.deadLetter(msg, err, retries)
		}

		if retries >= b.cfg.MaxRetryAttempts {
			return b.deadLetter(msg, fmt.Errorf("%w: retry budget exhausted: %v", ErrPoisonMessage, err), retries)
		}
		retries++

		b.logMessage(b.logger.Warn(), msg).Err(err).Int("retry_count", retries).Msg("process message failed, retry")
		select {
		case <-time.After(b.cfg.Backoff(retries)):
		case <-ctx.Done():
			return outcomeAbandoned
		}
	}
}

// deadLetter 寫入 DLQ，寫入失敗以 Backoff 持續重試直到成功或 processCtx 被取消
// 沒有 DLQ writer 時停止讀取，讓 consumer group 重新分配後再投遞
func (b *Consumer) deadLetter(msg kafka.Message, cause error, retries int) outcome {
	if b.dlqWriter == nil {
		b.logMessage(b.logger.Error(), msg).Err(cause).Msg("no dead letter writer, stop consumer")
		b.readCancel()
		return outcomeAbandoned
	}

	dlqMsg := NewDeadLetterMessage(msg, cause, retries)
	for attempt := 1; ; attempt++ {
		err := b.writeDeadLetter(dlqMsg)
		if err == nil {
			break
		}
		if b.processCtx.Err() != nil {
			b.logMessage(b.logger.Error(), msg).Err(err).AnErr("cause", cause).Msg("consumer stopped before dead letter written, message will not be committed")
			return outcomeAbandoned
		}

		b.logMessage(b.logger.Error(), msg).Err(err).Int("attempt", attempt).Msg("write dead letter failed, retry")
		select {
		case <-time.After(b.cfg.Backoff(attempt)):
		case <-b.processCtx.Done():
			b.logMessage(b.logger.Error(), msg).AnErr("cause", cause).Msg("consumer stopped before dead letter written, message will not be committed")
			return outcomeAbandoned
		}
	}

	b.logMessage(b.logger.Error(), msg).Err(cause).Int("retry_count", retries).Msg("message moved to dead letter queue")
	b.handlerErrorfunc(ConsumeError{Message: msg, Err: cause, RetryCount: retries})
	return outcomeDeadLettered
}

func (b *Consumer) writeDeadLetter(msg kafka.Message) error {
	ctx, cancel := context.WithTimeout(b.processCtx, b.cfg.WriteTimeout)
	defer cancel()
	return b.dlqWriter.WriteMessages(ctx, msg)
}

// NewDeadLetterMessage 保留原始 key/value/headers，並附上錯誤與來源位置
func NewDeadLetterMessage(msg kafka.Message, cause error, retries int) kafka.Message {
	override := map[string]string{
		HeaderError:             cause.Error(),
		HeaderRetryCount:        strconv.Itoa(retries),
		HeaderOriginalTopic:     msg.Topic,
		HeaderOriginalPartition: strconv.Itoa(msg.Partition),
		HeaderOriginalOffset:    strconv.FormatInt(msg.Offset, 10),
	}

	headers := make([]kafka.Header, 0, len(msg.Headers)+len(override))
	for _, h := range msg.Headers {
		if _, ok := override[h.Key]; ok {
			continue
		}
		headers = append(headers, h)
	}
	for _, k := range []string{HeaderError, HeaderRetryCount, HeaderOriginalTopic, HeaderOriginalPartition, HeaderOriginalOffset} {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(override[k])})
	}

	return kafka.Message{
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	}
}

// handleResult 藉由關閉 in 來退出，結束前 commit 最後一次
func (b *Consumer) handleResult(in <-chan processResult) {
	ticker := time.NewTicker(b.cfg.CommitInterval)
	defer ticker.Stop()

	for {
		select {
		case res, ok := <-in:
			if !ok {
				b.commit(finalCommitWait)
				return
			}
			switch res.outcome {
			case outcomeProcessed:
				b.tracker.MarkDone(res.msg)
				b.handlerSuccessfunc(res.msg)
			case outcomeDeadLettered:
				b.tracker.MarkDone(res.msg)
			}
		case <-ticker.C:
			b.commit(b.cfg.CommitInterval + time.Second)
		}
	}
}

func (b *Consumer) commit(timeout time.Duration) {
	msgs := b.tracker.Committable()
	if len(msgs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := b.reader.CommitMessages(ctx, msgs...); err != nil {
		b.commitFailed(err)
		return
	}
	b.commitErrTimes = 0
	b.tracker.Committed(msgs)
}

// commitFailed offset 保留在 tracker，下次 commit 重送
// 暫時性錯誤 (rebalance、leader 切換) 只記 Warn，連續失敗或非暫時性錯誤記 Error
func (b *Consumer) commitFailed(err error) {
	b.commitErrTimes++
	kerr := ka_err.NewKafkaError("Commit", b.cfg.Topic, err)
	if ka_err.IsTemporaryError(err) && b.commitErrTimes <= b.cfg.MaxRetryAttempts {
		b.logger.Warn().Err(kerr).Int("attempt", b.commitErrTimes).Msg("commit offsets failed, retry on next tick")
		return
	}
	b.logger.Error().Err(kerr).Int("attempt", b.commitErrTimes).Msg("commit offsets failed")
}

// shutdown 由 reader goroutine 結束後呼叫
// 1. 關閉 worker chan
// 2. 等待所有 worker 消耗完剩餘訊息
// 3. 關閉 resultChan，等待 commit goroutine 提交所有已完成的 offset
func (b *Consumer) shutdown() {
	for _, ch := range b.workerChans {
		close(ch)
	}
	b.processWg.Wait()
	close(b.resultChan)
	b.commitWg.Wait()

	b.isRunning.Store(false)
	b.readCancel()
	b.processCancel()
	b.logger.Info().Int("uncommitted", b.tracker.Pending()).Msg("kafka consumer stopped")
	close(b.isStopped)
}

// Stop 停止讀取，timeout 內等待處理中的訊息完成
// 超時則取消處理中的訊息，未完成的訊息不會被 commit
func (b *Consumer) Stop(timeout time.Duration) error {
	if b.readCancel == nil {
		return nil
	}
	b.readCancel()

	select {
	case <-b.isStopped:
		return nil
	case <-time.After(timeout):
	}

	b.processCancel()
	select {
	case <-b.isStopped:
	case <-time.After(finalCommitWait):
	}
	return ka_err.ErrStopTimeout
}

// C 消費者完全停止後關閉
func (b *Consumer) C() <-chan struct{} {
	return b.isStopped
}

func (b *Consumer) logMessage(e *zerolog.Event, msg kafka.Message) *zerolog.Event {
	return e.
		Str("key", string(msg.Key)).
		Str("topic", msg.Topic).
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset)
}
