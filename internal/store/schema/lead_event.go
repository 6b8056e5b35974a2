package schema

import (
	"time"

	"gorm.io/datatypes"
)

// Lead event types appended by the webhook updater and the enrichment worker
const (
	// LeadEventTypeWebhookUpdate records a status change driven by an inbound CRM webhook
	LeadEventTypeWebhookUpdate = "webhook_update"
	// LeadEventTypeProcessed records completion of the async enrichment task
	LeadEventTypeProcessed = "lead_processed"
)

// LeadEvent represents the lead_events table - append-only audit log of
// mutations applied to a lead after ingestion
type LeadEvent struct {
	// ID is an auto-incrementing sequence number
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// LeadID is the lead this event belongs to
	LeadID uint64 `gorm:"column:lead_id;not null;index"`
	// EventType identifies what happened (webhook_update, lead_processed)
	EventType string `gorm:"column:event_type;not null;type:text"`
	// Payload carries event-specific detail as JSON
	Payload datatypes.JSON `gorm:"column:payload;type:jsonb"`
	// CreatedAt is the timestamp when this event was recorded
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the LeadEvent model
func (LeadEvent) TableName() string {
	return "lead_events"
}
