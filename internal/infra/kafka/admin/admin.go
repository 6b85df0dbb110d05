package admin

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"
)

const (
	DefaultPartitions        = 6
	DefaultReplicationFactor = 1
)

// TopicConfig 代表主題配置
type TopicConfig struct {
	Name              string
	Partitions        int
	ReplicationFactor int
	Configs           map[string]string
}

// Admin 連線到 controller 的管理工具
type Admin struct {
	conn    *kafka.Conn
	brokers []string
}

// NewAdmin 依序嘗試每個 broker 直到找到 controller
func NewAdmin(brokers []string) (*Admin, error) {
	var lastErr error
	for _, broker := range brokers {
		conn, err := kafka.Dial("tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}

		controller, err := conn.Controller()
		if err != nil {
			conn.Close()
			lastErr = err
			continue
		}

		// 只有 controller 能建立 topic
		controllerAddr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
		if controllerAddr != broker {
			conn.Close()
			conn, err = kafka.Dial("tcp", controllerAddr)
			if err != nil {
				lastErr = err
				continue
			}
		}

		return &Admin{
			conn:    conn,
			brokers: brokers,
		}, nil
	}

	return nil, fmt.Errorf("failed to connect to any broker and find controller: %w", lastErr)
}

func (a *Admin) Close() error {
	return a.conn.Close()
}

// ListTopics 列出所有主題
func (a *Admin) ListTopics(ctx context.Context) ([]string, error) {
	partitions, err := a.conn.ReadPartitions()
	if err != nil {
		return nil, fmt.Errorf("failed to read partitions: %w", err)
	}

	seen := make(map[string]struct{})
	result := make([]string, 0)
	for _, p := range partitions {
		if _, ok := seen[p.Topic]; ok {
			continue
		}
		seen[p.Topic] = struct{}{}
		result = append(result, p.Topic)
	}
	return result, nil
}

// EnsureTopics 建立尚不存在的主題，已存在的不修改
func (a *Admin) EnsureTopics(ctx context.Context, topics ...TopicConfig) error {
	existing, err := a.ListTopics(ctx)
	if err != nil {
		return err
	}

	missing := MissingTopics(existing, topics)
	if len(missing) == 0 {
		return nil
	}

	if err := a.conn.CreateTopics(toKafkaTopicConfigs(missing)...); err != nil {
		return fmt.Errorf("failed to create topics: %w", err)
	}
	return nil
}

// MissingTopics 回傳 existing 中沒有的主題，並補上預設的分區與副本數
func MissingTopics(existing []string, wanted []TopicConfig) []TopicConfig {
	has := make(map[string]struct{}, len(existing))
	for _, name := range existing {
		has[name] = struct{}{}
	}

	res := make([]TopicConfig, 0, len(wanted))
	for _, topic := range wanted {
		if topic.Name == "" {
			continue
		}
		if _, ok := has[topic.Name]; ok {
			continue
		}
		if topic.Partitions <= 0 {
			topic.Partitions = DefaultPartitions
		}
		if topic.ReplicationFactor <= 0 {
			topic.ReplicationFactor = DefaultReplicationFactor
		}
		has[topic.Name] = struct{}{}
		res = append(res, topic)
	}
	return res
}

func toKafkaTopicConfigs(topics []TopicConfig) []kafka.TopicConfig {
	res := make([]kafka.TopicConfig, 0, len(topics))
	for _, topic := range topics {
		entries := make([]kafka.ConfigEntry, 0, len(topic.Configs))
		for key, value := range topic.Configs {
			entries = append(entries, kafka.ConfigEntry{
				ConfigName:  key,
				ConfigValue: value,
			})
		}
		res = append(res, kafka.TopicConfig{
			Topic:             topic.Name,
			NumPartitions:     topic.Partitions,
			ReplicationFactor: topic.ReplicationFactor,
			ConfigEntries:     entries,
		})
	}
	return res
}
