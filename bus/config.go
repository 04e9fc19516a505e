package bus

import (
	"time"

	"github.com/Shopify/sarama"
)

const (
	DefaultReplicas   = 1
	DefaultPartitions = 4
)

// BrokerConfig carries the kafka client configuration for the bus.
type BrokerConfig struct {
	SaramaConfig *sarama.Config
	Brokers      []string
	Partitions   int32
	Replicas     int16
}

// DefaultBrokerConfig returns the production defaults: acknowledged
// publishes, snappy compression, oldest-offset consumers.
func DefaultBrokerConfig(brokers []string, replicas int16) *BrokerConfig {
	config := sarama.NewConfig()
	config.Version = sarama.MaxVersion
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Group.Session.Timeout = 6 * time.Second
	config.Consumer.Group.Heartbeat.Interval = 2 * time.Second
	if replicas <= 0 {
		replicas = DefaultReplicas
	}
	return &BrokerConfig{
		SaramaConfig: config,
		Brokers:      brokers,
		Partitions:   DefaultPartitions,
		Replicas:     replicas,
	}
}
