package consumer

import (
	"sync"

	"github.com/segmentio/kafka-go"
)

type partitionKey struct {
	topic     string
	partition int
}

type partitionState struct {
	inflight   []int64
	done       map[int64]bool
	lastOffset int64
	toCommit   *kafka.Message
}

// offsetTracker 記錄每個分區已讀取的 offset 與完成狀態
// 只有從最舊的未完成 offset 之前連續完成的部分可以 commit
type offsetTracker struct {
	mu         sync.Mutex
	partitions map[partitionKey]*partitionState
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{
		partitions: make(map[partitionKey]*partitionState),
	}
}

// Track 在分派給 worker 之前呼叫
// offset 沒有遞增表示分區被重新分配後重送，舊的追蹤狀態作廢
func (t *offsetTracker) Track(msg kafka.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := partitionKey{topic: msg.Topic, partition: msg.Partition}
	state, ok := t.partitions[key]
	if !ok || msg.Offset <= state.lastOffset {
		state = &partitionState{done: make(map[int64]bool)}
		t.partitions[key] = state
	}
	state.inflight = append(state.inflight, msg.Offset)
	state.done[msg.Offset] = false
	state.lastOffset = msg.Offset
}

// MarkDone 標記訊息完成，並推進可 commit 的位置
func (t *offsetTracker) MarkDone(msg kafka.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.partitions[partitionKey{topic: msg.Topic, partition: msg.Partition}]
	if !ok {
		return
	}
	if _, tracked := state.done[msg.Offset]; !tracked {
		return
	}
	state.done[msg.Offset] = true

	for len(state.inflight) > 0 && state.done[state.inflight[0]] {
		head := state.inflight[0]
		state.inflight = state.inflight[1:]
		delete(state.done, head)
		state.toCommit = &kafka.Message{Topic: msg.Topic, Partition: msg.Partition, Offset: head}
	}
}

// Committable 回傳每個分區目前可以 commit 的最高 offset 訊息
func (t *offsetTracker) Committable() []kafka.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	res := make([]kafka.Message, 0, len(t.partitions))
	for _, state := range t.partitions {
		if state.toCommit != nil {
			res = append(res, *state.toCommit)
		}
	}
	return res
}

// Committed commit 成功後清除，offset 已被更新的分區不受影響
func (t *offsetTracker) Committed(msgs []kafka.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, msg := range msgs {
		state, ok := t.partitions[partitionKey{topic: msg.Topic, partition: msg.Partition}]
		if !ok || state.toCommit == nil {
			continue
		}
		if state.toCommit.Offset == msg.Offset {
			state.toCommit = nil
		}
	}
}

// Pending 尚未完成的訊息數量
func (t *offsetTracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, state := range t.partitions {
		n += len(state.inflight)
	}
	return n
}
