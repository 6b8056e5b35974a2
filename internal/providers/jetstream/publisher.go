package jetstream

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/leadfoundry/lf-ingestor/internal/adapter"
	"github.com/leadfoundry/lf-ingestor/internal/domain"
	"github.com/leadfoundry/lf-ingestor/internal/logger"
	"github.com/leadfoundry/lf-ingestor/internal/messaging"
)

// Config holds the configuration for NATS JetStream connection
type Config struct {
	URL            string
	StreamName     string
	Subject        string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectionName string
}

type publisher struct {
	nc      adapter.NatsConn
	js      adapter.JetStream
	subject string
	json    adapter.JSON
}

// NewPublisher creates a NATS JetStream publisher for lead tasks. The stream
// is created if absent with file storage, so published tasks survive a broker
// restart (at-least-once durable hand-off).
func NewPublisher(ctx context.Context, cfg Config, natsJS adapter.NatsJetStream, jsonAdapter adapter.JSON) (messaging.Publisher, error) {
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
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, js, err := natsJS.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS and create JetStream: %w", err)
	}

	if err := js.EnsureStream(ctx, jetstream.StreamConfig{
		Name:      cfg.StreamName,
		Subjects:  []string{cfg.Subject},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream %s: %w", cfg.StreamName, err)
	}

	return &publisher{
		nc:      nc,
		js:      js,
		subject: cfg.Subject,
		json:    jsonAdapter,
	}, nil
}

// PublishLeadTask publishes an enrichment task. The task ID rides the
// Nats-Msg-Id header so broker-side dedupe absorbs publisher retries.
func (p *publisher) PublishLeadTask(ctx context.Context, task *domain.LeadTask) error {
	logger.Debug("Publishing lead task",
		zap.Uint64("lead_id", task.LeadID), zap.String("task_id", task.TaskID))

	data, err := p.json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	_, err = p.js.Publish(ctx, p.subject, data, jetstream.WithMsgID(task.TaskID))
	if err != nil {
		return fmt.Errorf("failed to publish task: %w", err)
	}

	return nil
}

// Close closes the NATS connection
func (p *publisher) Close() {
	if p.nc == nil {
		return
	}

	p.nc.Close()
}
