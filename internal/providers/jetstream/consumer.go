package jetstream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/leadfoundry/lf-ingestor/internal/adapter"
	"github.com/leadfoundry/lf-ingestor/internal/domain"
	"github.com/leadfoundry/lf-ingestor/internal/logger"
)

// ConsumerConfig holds the configuration for the durable task consumer
type ConsumerConfig struct {
	URL            string
	StreamName     string
	Subject        string
	ConsumerName   string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectionName string
	AckWait        time.Duration
	MaxDeliver     int
}

// TaskHandler processes one delivered lead task. A nil return acks the
// message; domain.ErrLeadNotFound terminates it (poison input, no lead will
// appear on redelivery of the same ID and the publisher dedupes retries);
// any other error naks for redelivery.
type TaskHandler func(ctx context.Context, task *domain.LeadTask) error

// Consumer pulls lead tasks from the durable work queue and dispatches them
// to a handler
type Consumer struct {
	nc         adapter.NatsConn
	js         adapter.JetStream
	config     ConsumerConfig
	json       adapter.JSON
	consumeCtx adapter.ConsumeContext
}

// NewConsumer connects to NATS and binds a durable pull consumer on the
// lead-task stream
func NewConsumer(ctx context.Context, cfg ConsumerConfig, natsJS adapter.NatsJetStream, jsonAdapter adapter.JSON) (*Consumer, error) {
	opts := []nats.Option{
		nats.Name(cfg.ConnectionName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Error(err, zap.String("message", "Disconnected from NATS"))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	nc, js, err := natsJS.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS and create JetStream: %w", err)
	}

	return &Consumer{
		nc:     nc,
		js:     js,
		config: cfg,
		json:   jsonAdapter,
	}, nil
}

// Start creates or updates the durable consumer and begins dispatching
// messages to handler. Handler invocations run on the broker callback; the
// caller is expected to fan work out to its own pool.
func (c *Consumer) Start(ctx context.Context, handler TaskHandler) error {
	consumer, err := c.js.CreateOrUpdateConsumer(ctx, c.config.StreamName, jetstream.ConsumerConfig{
		Durable:       c.config.ConsumerName,
		FilterSubject: c.config.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       c.config.AckWait,
		MaxDeliver:    c.config.MaxDeliver,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer %s: %w", c.config.ConsumerName, err)
	}

	consumeCtx, err := consumer.Consume(func(msg adapter.Message) {
		c.dispatch(ctx, msg, handler)
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.consumeCtx = consumeCtx
	logger.Info("Lead task consumer started",
		zap.String("stream", c.config.StreamName),
		zap.String("consumer", c.config.ConsumerName))

	return nil
}

func (c *Consumer) dispatch(ctx context.Context, msg adapter.Message, handler TaskHandler) {
	var task domain.LeadTask
	if err := c.json.Unmarshal(msg.Data(), &task); err != nil {
		logger.Error(fmt.Errorf("undecodable lead task, terminating: %w", err))
		if err := msg.Term(); err != nil {
			logger.Error(fmt.Errorf("failed to terminate message: %w", err))
		}
		return
	}

	if err := handler(ctx, &task); err != nil {
		logger.Error(fmt.Errorf("lead task failed: %w", err),
			zap.Uint64("lead_id", task.LeadID), zap.String("task_id", task.TaskID))
		if errors.Is(err, domain.ErrLeadNotFound) {
			// Poison input: redelivery cannot make the lead appear
			if err := msg.Term(); err != nil {
				logger.Error(fmt.Errorf("failed to terminate message: %w", err))
			}
			return
		}
		if err := msg.Nak(); err != nil {
			logger.Error(fmt.Errorf("failed to nak message: %w", err))
		}
		return
	}

	if err := msg.Ack(); err != nil {
		logger.Error(fmt.Errorf("failed to ack message: %w", err),
			zap.String("task_id", task.TaskID))
	}
}

// Close stops consumption and closes the NATS connection
func (c *Consumer) Close() {
	if c.consumeCtx != nil {
		c.consumeCtx.Drain()
	}
	if c.nc != nil {
		c.nc.Close()
	}
}
