package kafka_config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
	assert.Equal(t, int64(-2), cfg.ConsumerStartOffset)
	assert.Equal(t, DefaultDLQTopic, cfg.DLQTopic)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv(EnvKafkaBrokers, " k1:9092 ,k2:9092,")
	t.Setenv(EnvKafkaConsumerMaxRetries, "7")
	t.Setenv(EnvKafkaConsumerRetryBackoff, "2s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Brokers)
	assert.Equal(t, 7, cfg.ConsumerMaxRetries)
	assert.Equal(t, 2*time.Second, cfg.ConsumerRetryBackoff)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv(EnvKafkaProducerCompression, "brotli")
	t.Setenv(EnvKafkaProducerRequireAcks, "2")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ProducerCompression")
	assert.Contains(t, err.Error(), "ProducerRequireAcks")
}
