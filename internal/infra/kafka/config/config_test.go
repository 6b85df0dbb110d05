package config

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     *Config
		wantErr error
	}{
		{name: "no brokers", cfg: &Config{Topic: "t"}, wantErr: ErrNoBrokers},
		{name: "no topic", cfg: &Config{Brokers: []string{"localhost:9092"}}, wantErr: ErrNoTopic},
		{name: "ok", cfg: &Config{Brokers: []string{"localhost:9092"}, Topic: "t"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, 8, tc.cfg.WorkerNum)
			require.Equal(t, "t.dlq", tc.cfg.GetDLQTopic())
		})
	}
}

func TestValidateConsumer(t *testing.T) {
	cfg := &Config{Brokers: []string{"localhost:9092"}, Topic: "t"}
	require.ErrorIs(t, cfg.ValidateConsumer(), ErrNoGroup)

	cfg.ConsumerGroup = "fulfillment"
	require.NoError(t, cfg.ValidateConsumer())
}

func TestBackoff(t *testing.T) {
	cfg := &Config{
		RetryBackoffMin:    100 * time.Millisecond,
		RetryBackoffMax:    time.Second,
		RetryBackoffFactor: 2,
	}

	require.Equal(t, 100*time.Millisecond, cfg.Backoff(1))
	require.Equal(t, 200*time.Millisecond, cfg.Backoff(2))
	require.Equal(t, 400*time.Millisecond, cfg.Backoff(3))
	require.Equal(t, 800*time.Millisecond, cfg.Backoff(4))
	require.Equal(t, time.Second, cfg.Backoff(5))
	require.Equal(t, time.Second, cfg.Backoff(20))
}

func TestGetBalancer(t *testing.T) {
	cfg := DefaultConfig()
	_, ok := cfg.GetBalancer().(*kafka.Hash)
	require.True(t, ok)
	require.Equal(t, int(kafka.RequireAll), cfg.RequiredAcks)
}
