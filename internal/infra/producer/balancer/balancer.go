package balancer

import (
	"hash/fnv"

	"github.com/segmentio/kafka-go"
)

// SubmissionBalancer 根據 submission id (message key) 進行分區
// 同一筆提交重送時會落在同一個分區
type SubmissionBalancer struct{}

func NewSubmissionBalancer() *SubmissionBalancer {
	return &SubmissionBalancer{}
}

func (b *SubmissionBalancer) Balance(msg kafka.Message, partitions ...int) (partition int) {
	if len(partitions) == 0 {
		return 0
	}

	if len(msg.Key) == 0 {
		return partitions[0]
	}

	hash := fnv.New32a()
	hash.Write(msg.Key)

	return partitions[hash.Sum32()%uint32(len(partitions))]
}
