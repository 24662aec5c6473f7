package entity

import "time"

// Client represents a taxpayer/submitter record for data transfer between layers.
type Client struct {
	ID                int64      `json:"id"`
	Email             string     `json:"email"`
	Name              string     `json:"name"`
	CreatedDate       time.Time  `json:"created_date"`
	LastProcessedDate *time.Time `json:"last_processed_date,omitempty"`
	IsActive          bool       `json:"is_active"`
}
