package schema

import "time"

// LeadStatus tracks a lead through its workflow
type LeadStatus string

const (
	// LeadStatusNew is the initial status assigned on insert
	LeadStatusNew LeadStatus = "new"
	// LeadStatusProcessed is set by the enrichment worker once the async task completes
	LeadStatusProcessed LeadStatus = "processed"
)

// Lead represents the leads table. Email is the natural key: concurrent
// submissions for the same email converge to a single row via upsert.
type Lead struct {
	// ID is the store-assigned surrogate identifier
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// Email is the unique natural key used as the upsert conflict target
	Email string `gorm:"column:email;not null;uniqueIndex;type:text"`
	// Phone is the contact phone number as submitted
	Phone string `gorm:"column:phone;type:text"`
	// Name is the contact name as submitted
	Name string `gorm:"column:name;type:text"`
	// Source identifies where the lead originated (form, import, partner)
	Source string `gorm:"column:source;type:text"`
	// Company is filled in by the enrichment worker
	Company string `gorm:"column:company;type:text"`
	// Status is mutated by the webhook updater and the enrichment worker
	Status LeadStatus `gorm:"column:status;not null;default:new;type:text"`
	// CreatedAt is the timestamp when this lead was first inserted
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp of the most recent mutation
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Lead model
func (Lead) TableName() string {
	return "leads"
}
