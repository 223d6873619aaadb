package models

import (
	"time"

	"gorm.io/gorm"
)

// Sample is one time-series point of an endpoint.
// Timestamp is the reading time in epoch milliseconds.
type Sample struct {
	gorm.Model

	EndpointID string  `gorm:"index:idx_sample_endpoint_ts;size:36;not null" json:"endpoint_id"`
	Value      float64 `json:"value"`
	Timestamp  int64   `gorm:"index:idx_sample_endpoint_ts" json:"timestamp"`
}

// OrganStatus is the single persisted status record of the sync organ.
type OrganStatus struct {
	Name           string    `gorm:"primaryKey" json:"name"`
	PullIntervalMS int       `json:"pull_interval_ms"`
	LastSync       time.Time `json:"last_sync"`
	UpdatedAt      time.Time `json:"updated_at"`
}
