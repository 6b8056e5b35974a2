package messaging

import (
	"context"

	"github.com/leadfoundry/lf-ingestor/internal/domain"
)

// Publisher defines the interface for handing a lead task off to the
// asynchronous processing queue. Delivery is durable and at-least-once.
//
//go:generate mockgen -source=publisher.go -destination=../mocks/publisher.go -package=mocks -mock_names=Publisher=MockPublisher
type Publisher interface {
	// PublishLeadTask publishes an enrichment task to the message broker
	PublishLeadTask(ctx context.Context, task *domain.LeadTask) error
	// Close closes the connection
	Close()
}
