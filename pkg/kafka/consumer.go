package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"docrag-go/internal/config"
	"docrag-go/pkg/log"
	"docrag-go/pkg/retry"
	"docrag-go/pkg/tasks"
)

const (
	// DefaultMaxAttempts is how often a failing task is tried before its
	// offset is committed anyway.
	DefaultMaxAttempts = 3
	// DefaultRetryDelay is the pause between attempts.
	DefaultRetryDelay = 5 * time.Second
)

var (
	errGaveUp    = errors.New("attempts exhausted")
	errNoCounter = errors.New("attempt counter unavailable")
)

// TaskProcessor handles one ingestion task.
type TaskProcessor interface {
	ProcessTask(ctx context.Context, task tasks.IngestTask) error
}

// AttemptTracker counts failures per task across redeliveries.
type AttemptTracker interface {
	Increment(ctx context.Context, taskID string) (int64, error)
	Reset(ctx context.Context, taskID string) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads ingestion tasks and commits each offset once the task
// succeeded or ran out of attempts. Attempts are counted outside the process
// so a restart does not reset them.
type Consumer struct {
	reader      messageReader
	processor   TaskProcessor
	attempts    AttemptTracker
	maxAttempts int64
	retryDelay  time.Duration
}

// NewConsumer creates a consumer group reader on cfg.Topic.
func NewConsumer(cfg config.KafkaConfig, processor TaskProcessor, attempts AttemptTracker) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg.Brokers),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return newConsumer(r, processor, attempts, cfg.MaxAttempts, cfg.RetryDelay)
}

func newConsumer(r messageReader, processor TaskProcessor, attempts AttemptTracker, maxAttempts int, retryDelay time.Duration) *Consumer {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if retryDelay < 0 {
		retryDelay = DefaultRetryDelay
	}
	return &Consumer{
		reader:      r,
		processor:   processor,
		attempts:    attempts,
		maxAttempts: int64(maxAttempts),
		retryDelay:  retryDelay,
	}
}

// Run consumes until ctx is cancelled or the reader fails.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Errorf("[Kafka] close consumer: %v", err)
		}
	}()
	log.Info("[Kafka] consumer started")

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			log.Error("[Kafka] fetch message failed", err)
			return err
		}
		c.handle(ctx, m)
	}
}

func (c *Consumer) handle(ctx context.Context, m kafka.Message) {
	var task tasks.IngestTask
	if err := json.Unmarshal(m.Value, &task); err != nil {
		log.Errorf("[Kafka] undecodable message at offset %d: %v", m.Offset, err)
		c.commit(ctx, m)
		return
	}

	opts := retry.Options{
		Attempts: int(c.maxAttempts),
		Delay:    c.retryDelay,
		Retryable: func(err error) bool {
			return !errors.Is(err, errGaveUp) && !errors.Is(err, errNoCounter)
		},
	}
	err := retry.Do(ctx, opts, func(ctx context.Context) error {
		log.Infof("[Kafka] processing document %s (%s)", task.DocumentID, task.FileName)
		err := c.processor.ProcessTask(ctx, task)
		if err == nil {
			return nil
		}
		log.Errorf("[Kafka] document %s failed: %v", task.DocumentID, err)
		n, incErr := c.attempts.Increment(ctx, task.DocumentID)
		if incErr != nil {
			return fmt.Errorf("%w: %v", errNoCounter, incErr)
		}
		if n >= c.maxAttempts {
			return fmt.Errorf("%w after %d tries: %v", errGaveUp, n, err)
		}
		return err
	})
	switch {
	case err == nil:
	case errors.Is(err, errNoCounter):
		// The offset stays uncommitted and the task is redelivered after the
		// next rebalance.
		log.Errorf("[Kafka] document %s: %v", task.DocumentID, err)
		return
	case ctx.Err() != nil:
		return
	default:
		log.Errorf("[Kafka] giving up on document %s: %v", task.DocumentID, err)
		c.commit(ctx, m)
		return
	}

	log.Infof("[Kafka] document %s ingested", task.DocumentID)
	if err := c.attempts.Reset(ctx, task.DocumentID); err != nil {
		log.Warnf("[Kafka] reset attempts for %s: %v", task.DocumentID, err)
	}
	c.commit(ctx, m)
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		log.Errorf("[Kafka] commit offset %d: %v", m.Offset, err)
	}
}
