package intake

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/heyjunin/vodforge/pkg/errors"
)

// Message is one intake event: an uploaded asset ready for processing.
// Producers key it by asset id so redeliveries of the same asset land on
// the same partition.
type Message struct {
	AssetID  string `json:"asset_id"`
	InputRef string `json:"input_ref"`
}

func decodeMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, errors.Wrap(err, errors.QueueError, "Intake message is not valid JSON", errors.ErrQueueConsume)
	}
	if m.AssetID == "" || m.InputRef == "" {
		return Message{}, errors.New(errors.QueueError, "Intake message is missing asset_id or input_ref", string(data), errors.ErrQueueConsume)
	}
	return m, nil
}

// KafkaConfig locates the intake topic.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Consumer reads intake messages as part of a consumer group and commits
// them only after their job reaches a terminal state. Offsets advance
// strictly in order within each partition: a message is never committed
// while an earlier one is still in flight, so a crash redelivers
// everything unfinished.
type Consumer struct {
	reader  *kafka.Reader
	commits *committer
}

// NewConsumer connects a consumer group reader to the intake topic.
func NewConsumer(cfg KafkaConfig) (*Consumer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" || cfg.GroupID == "" {
		return nil, errors.New(errors.QueueError, "Kafka brokers, topic and group id are required", "", errors.ErrQueueConnect)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: reader, commits: newCommitter()}, nil
}

// Fetch blocks for the next message without acknowledging it.
func (c *Consumer) Fetch(ctx context.Context) (kafka.Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return kafka.Message{}, errors.WrapTransient(err, errors.QueueError, "Failed to fetch an intake message", errors.ErrQueueConsume)
	}
	c.commits.track(msg)
	return msg, nil
}

// Commit marks msg processed. The broker offset moves only once every
// earlier in-flight message of the same partition is also done.
func (c *Consumer) Commit(ctx context.Context, msg kafka.Message) error {
	ready := c.commits.finish(msg)
	if ready == nil {
		return nil
	}
	if err := c.reader.CommitMessages(ctx, *ready); err != nil {
		return errors.WrapTransient(err, errors.QueueError, "Failed to commit intake offsets", errors.ErrQueueConsume)
	}
	return nil
}

func (c *Consumer) Close() error { return c.reader.Close() }

// committer holds per-partition completion state. A Kafka commit is a
// watermark, not a set: committing offset N acknowledges everything below
// it, so with concurrent jobs the reader may only ever commit the longest
// finished prefix of each partition.
type committer struct {
	mu       sync.Mutex
	next     map[int]int64
	finished map[int]map[int64]kafka.Message
}

func newCommitter() *committer {
	return &committer{
		next:     make(map[int]int64),
		finished: make(map[int]map[int64]kafka.Message),
	}
}

// track registers a fetched message before it is dispatched.
func (c *committer) track(msg kafka.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.next[msg.Partition]
	if !ok || msg.Offset < cur {
		// First fetch for the partition, or a redelivery below the window
		// after a group rebalance.
		c.next[msg.Partition] = msg.Offset
	}
}

// finish marks msg done and returns the highest message now safe to
// commit, or nil while an earlier offset is still in flight.
func (c *committer) finish(msg kafka.Message) *kafka.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	part := c.finished[msg.Partition]
	if part == nil {
		part = make(map[int64]kafka.Message)
		c.finished[msg.Partition] = part
	}
	part[msg.Offset] = msg

	var last *kafka.Message
	for {
		m, ok := part[c.next[msg.Partition]]
		if !ok {
			break
		}
		delete(part, c.next[msg.Partition])
		c.next[msg.Partition]++
		last = &m
	}
	return last
}

// Producer publishes intake events. Used by submit and by whatever
// upstream system signals a completed upload.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer connects a writer to the intake topic.
func NewProducer(cfg KafkaConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New(errors.QueueError, "Kafka brokers and topic are required", "", errors.ErrQueueConnect)
	}
	return &Producer{writer: &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}}, nil
}

// Publish sends one intake event keyed by asset id.
func (p *Producer) Publish(ctx context.Context, m Message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, errors.QueueError, "Failed to encode the intake message", errors.ErrQueuePublish)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(m.AssetID), Value: payload})
	if err != nil {
		return errors.WrapTransient(err, errors.QueueError, "Failed to publish the intake message", errors.ErrQueuePublish)
	}
	return nil
}

func (p *Producer) Close() error { return p.writer.Close() }
