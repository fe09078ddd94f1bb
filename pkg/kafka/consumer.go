package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"PatternScan/pkg/logger"
	"PatternScan/pkg/retry"
)

// HandlerFunc processes one message value. A returned error is retried up
// to RetryMax times and then logged; the offset is committed either way.
type HandlerFunc func(ctx context.Context, topic string, key, value []byte) error

// Consumer reads a set of topics with one reader per topic.
type Consumer struct {
	cfg     ConsumerConfig
	readers []*kafka.Reader
	log     *logger.Logger
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	once    sync.Once
}

// NewConsumer creates a consumer; call Start to begin reading.
func NewConsumer(log *logger.Logger, opts ...ConsumerOption) (*Consumer, error) {
	cfg := defaultConsumerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if len(cfg.Topics) == 0 {
		return nil, fmt.Errorf("at least one topic is required")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Consumer{cfg: cfg, log: log}, nil
}

// Start launches one reading goroutine per topic.
func (c *Consumer) Start(ctx context.Context, handle HandlerFunc) {
	ctx, c.cancel = context.WithCancel(ctx)
	for _, topic := range c.cfg.Topics {
		rc := kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		}
		if c.cfg.GroupID == "" {
			rc.StartOffset = kafka.LastOffset
		}
		r := kafka.NewReader(rc)
		c.readers = append(c.readers, r)

		c.wg.Add(1)
		go c.consume(ctx, topic, r, handle)
	}
	c.log.Info("kafka consumer started", logger.Strings("topics", c.cfg.Topics))
}

func (c *Consumer) consume(ctx context.Context, topic string, r *kafka.Reader, handle HandlerFunc) {
	defer c.wg.Done()
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			c.log.Warn("kafka fetch failed", logger.String("topic", topic), logger.Error(err))
			time.Sleep(retry.Backoff(c.cfg.BackoffMin, c.cfg.BackoffMax, 1))
			continue
		}

		policy := retry.Policy{Attempts: c.cfg.RetryMax + 1, Min: c.cfg.BackoffMin, Max: c.cfg.BackoffMax}
		err = retry.Do(ctx, policy, func(int) (herr error) {
			defer func() {
				if p := recover(); p != nil {
					herr = fmt.Errorf("handler panic: %v", p)
				}
			}()
			return handle(ctx, topic, msg.Key, msg.Value)
		})
		if err != nil {
			c.log.Error("kafka handler failed", logger.String("topic", topic), logger.Error(err))
		}
		if c.cfg.GroupID != "" {
			if err := r.CommitMessages(context.Background(), msg); err != nil {
				c.log.Warn("kafka commit failed", logger.String("topic", topic), logger.Error(err))
			}
		}
	}
}

// Stop cancels reading and waits for the goroutines, bounded by ctx.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			stopErr = fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
		}
		for _, r := range c.readers {
			if err := r.Close(); err != nil {
				c.log.Warn("kafka reader close failed", logger.Error(err))
			}
		}
	})
	return stopErr
}
