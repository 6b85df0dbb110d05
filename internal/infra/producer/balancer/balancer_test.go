package balancer

import (
	"testing"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func TestSubmissionBalancer(t *testing.T) {
	b := NewSubmissionBalancer()
	partitions := []int{0, 1, 2, 3, 4, 5}

	require.Equal(t, 0, b.Balance(kafka.Message{}))
	require.Equal(t, 0, b.Balance(kafka.Message{}, partitions...))

	used := make(map[int]struct{})
	for i := 0; i < 200; i++ {
		key := []byte(uuid.NewString())
		p := b.Balance(kafka.Message{Key: key}, partitions...)
		require.Contains(t, partitions, p)
		// 同一個 key 必須穩定落在同一分區
		require.Equal(t, p, b.Balance(kafka.Message{Key: key}, partitions...))
		used[p] = struct{}{}
	}
	require.Greater(t, len(used), 1)
}
