package consumer

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func trackerMsg(partition int, offset int64) kafka.Message {
	return kafka.Message{Topic: "order-submissions", Partition: partition, Offset: offset}
}

func committedOffset(msgs []kafka.Message, partition int) (int64, bool) {
	for _, m := range msgs {
		if m.Partition == partition {
			return m.Offset, true
		}
	}
	return 0, false
}

func TestOffsetTrackerContiguous(t *testing.T) {
	tracker := newOffsetTracker()
	for i := int64(0); i < 5; i++ {
		tracker.Track(trackerMsg(0, i))
	}

	// offset 0 未完成前，後面的 offset 不能 commit
	tracker.MarkDone(trackerMsg(0, 2))
	tracker.MarkDone(trackerMsg(0, 1))
	require.Empty(t, tracker.Committable())

	tracker.MarkDone(trackerMsg(0, 0))
	offset, ok := committedOffset(tracker.Committable(), 0)
	require.True(t, ok)
	require.Equal(t, int64(2), offset)
	require.Equal(t, 2, tracker.Pending())

	tracker.Committed(tracker.Committable())
	require.Empty(t, tracker.Committable())

	tracker.MarkDone(trackerMsg(0, 4))
	require.Empty(t, tracker.Committable())
	tracker.MarkDone(trackerMsg(0, 3))
	offset, ok = committedOffset(tracker.Committable(), 0)
	require.True(t, ok)
	require.Equal(t, int64(4), offset)
	require.Equal(t, 0, tracker.Pending())
}

func TestOffsetTrackerPartitionsIndependent(t *testing.T) {
	tracker := newOffsetTracker()
	tracker.Track(trackerMsg(0, 10))
	tracker.Track(trackerMsg(1, 20))
	tracker.Track(trackerMsg(1, 21))

	tracker.MarkDone(trackerMsg(1, 20))
	tracker.MarkDone(trackerMsg(1, 21))

	msgs := tracker.Committable()
	require.Len(t, msgs, 1)
	offset, ok := committedOffset(msgs, 1)
	require.True(t, ok)
	require.Equal(t, int64(21), offset)
}

func TestOffsetTrackerCommittedKeepsNewerOffset(t *testing.T) {
	tracker := newOffsetTracker()
	tracker.Track(trackerMsg(0, 0))
	tracker.Track(trackerMsg(0, 1))

	tracker.MarkDone(trackerMsg(0, 0))
	snapshot := tracker.Committable()

	// commit 進行中又完成了新的 offset
	tracker.MarkDone(trackerMsg(0, 1))
	tracker.Committed(snapshot)

	offset, ok := committedOffset(tracker.Committable(), 0)
	require.True(t, ok)
	require.Equal(t, int64(1), offset)
}

func TestOffsetTrackerRedeliveryResets(t *testing.T) {
	tracker := newOffsetTracker()
	tracker.Track(trackerMsg(0, 5))
	tracker.Track(trackerMsg(0, 6))

	// 重新分配後從較舊的 offset 重送
	tracker.Track(trackerMsg(0, 5))
	tracker.MarkDone(trackerMsg(0, 6))
	require.Empty(t, tracker.Committable())

	tracker.MarkDone(trackerMsg(0, 5))
	offset, ok := committedOffset(tracker.Committable(), 0)
	require.True(t, ok)
	require.Equal(t, int64(5), offset)
}
