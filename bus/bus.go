// Package bus implements the durable queue bus on kafka: closed queue and
// exchange sets, acknowledged publishing, consumer groups driven by the
// runner in runner.go.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Shopify/sarama"
	"github.com/hashicorp/go-uuid"
	"github.com/pkg/errors"

	"github.com/walletbase/walletd/log"
)

var logger = log.NewModuleLogger("bus")

// Envelope is the wire format of every queue message.
type Envelope struct {
	Payload  json.RawMessage   `json:"payload"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Publisher is the producing half of the bus.
type Publisher interface {
	Publish(queue QueueName, payload interface{}, metadata map[string]string) error
	PublishExchange(exchange ExchangeName, payload interface{}, metadata map[string]string) error
}

type Broker struct {
	config   *BrokerConfig
	producer sarama.SyncProducer
	admin    sarama.ClusterAdmin

	mu       sync.Mutex
	bindings map[ExchangeName][]QueueName
}

func NewBroker(config *BrokerConfig) (*Broker, error) {
	admin, err := sarama.NewClusterAdmin(config.Brokers, config.SaramaConfig)
	if err != nil {
		return nil, errors.Wrap(err, "kafka cluster admin")
	}
	producer, err := sarama.NewSyncProducer(config.Brokers, config.SaramaConfig)
	if err != nil {
		admin.Close()
		return nil, errors.Wrap(err, "kafka producer")
	}
	return &Broker{
		config:   config,
		producer: producer,
		admin:    admin,
		bindings: map[ExchangeName][]QueueName{},
	}, nil
}

func (b *Broker) Close() error {
	perr := b.producer.Close()
	aerr := b.admin.Close()
	if perr != nil {
		return perr
	}
	return aerr
}

// DeclareQueues creates the topics backing the queues. Idempotent.
func (b *Broker) DeclareQueues(queues ...QueueName) error {
	for _, q := range queues {
		if err := b.createTopic(q.String()); err != nil {
			return err
		}
	}
	return nil
}

// DeclareExchanges creates the topics backing the exchanges. Idempotent.
func (b *Broker) DeclareExchanges(exchanges ...ExchangeName) error {
	for _, e := range exchanges {
		if err := b.createTopic(e.String()); err != nil {
			return err
		}
	}
	return nil
}

// BindExchange registers queues as subscribers of an exchange. Each bound
// queue consumes the exchange topic under its own consumer group, which is
// the fan-out.
func (b *Broker) BindExchange(exchange ExchangeName, queues ...QueueName) error {
	if err := b.createTopic(exchange.String()); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, q := range queues {
		bound := false
		for _, existing := range b.bindings[exchange] {
			if existing == q {
				bound = true
				break
			}
		}
		if !bound {
			b.bindings[exchange] = append(b.bindings[exchange], q)
		}
	}
	return nil
}

func (b *Broker) createTopic(name string) error {
	err := b.admin.CreateTopic(name, &sarama.TopicDetail{
		NumPartitions:     b.config.Partitions,
		ReplicationFactor: b.config.Replicas,
	}, false)
	if err != nil && !isTopicExists(err) {
		return errors.Wrapf(err, "create topic %s", name)
	}
	return nil
}

func isTopicExists(err error) bool {
	if terr, ok := err.(*sarama.TopicError); ok {
		return terr.Err == sarama.ErrTopicAlreadyExists
	}
	return strings.Contains(err.Error(), "already exists")
}

// Publish serializes payload into an envelope and publishes it, returning
// after the broker acknowledges the write.
func (b *Broker) Publish(queue QueueName, payload interface{}, metadata map[string]string) error {
	return b.publish(queue.String(), payload, metadata)
}

func (b *Broker) PublishExchange(exchange ExchangeName, payload interface{}, metadata map[string]string) error {
	return b.publish(exchange.String(), payload, metadata)
}

func (b *Broker) publish(topic string, payload interface{}, metadata map[string]string) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "marshal payload for %s", topic)
	}
	body, err := json.Marshal(Envelope{Payload: raw, Metadata: metadata})
	if err != nil {
		return errors.Wrapf(err, "marshal envelope for %s", topic)
	}
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(body),
	}
	if _, _, err := b.producer.SendMessage(msg); err != nil {
		return errors.Wrapf(err, "publish to %s", topic)
	}
	return nil
}

// Consume runs the runner against a queue until ctx is cancelled. If the
// queue is bound to an exchange the exchange topic is consumed instead,
// under the queue's consumer group.
func (b *Broker) Consume(ctx context.Context, queue QueueName, runner *Runner) error {
	topic := queue.String()
	b.mu.Lock()
	for exchange, bound := range b.bindings {
		for _, q := range bound {
			if q == queue {
				topic = exchange.String()
			}
		}
	}
	b.mu.Unlock()

	group, err := b.newConsumerGroup(queue.String())
	if err != nil {
		return err
	}
	defer group.Close()

	handler := &groupHandler{ctx: ctx, runner: runner}
	for {
		err := group.Consume(ctx, []string{topic}, handler)
		if err != nil {
			if err == sarama.ErrClosedConsumerGroup {
				return nil
			}
			logger.Errorw("consume session failed", "queue", queue, "err", err)
		}
		if ctx.Err() != nil {
			runner.Drain()
			return nil
		}
		if err != nil {
			// A broken broker keeps failing fast; pace the rejoin.
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
		}
	}
}

func (b *Broker) newConsumerGroup(groupID string) (sarama.ConsumerGroup, error) {
	config := *b.config.SaramaConfig
	id, _ := uuid.GenerateUUID()
	config.ClientID = fmt.Sprintf("%s-%s", groupID, id)
	group, err := sarama.NewConsumerGroup(b.config.Brokers, groupID, &config)
	return group, errors.Wrapf(err, "consumer group %s", groupID)
}

// groupHandler adapts a Runner to sarama's consumer-group contract.
// Deliveries are processed synchronously within a partition, so per-queue
// order holds for a single consumer instance; the runner's semaphore caps
// concurrency across partitions.
type groupHandler struct {
	ctx    context.Context
	runner *Runner
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	logger.Infow("consumer session started", "member", sess.MemberID(), "consumer", h.runner.Name())
	return nil
}

func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	logger.Infow("consumer session ended", "member", sess.MemberID(), "consumer", h.runner.Name())
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		h.runner.Handle(h.ctx, message.Value)
		// Always mark: success acks, exhausted retries dead-letter.
		sess.MarkMessage(message, "")
		if h.ctx.Err() != nil {
			return nil
		}
	}
	return nil
}
