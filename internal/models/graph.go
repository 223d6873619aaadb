// Package models defines GORM data models for webexsync.
package models

import (
	"time"

	"gorm.io/gorm"
)

// Node types.
const (
	TypeContext  = "context"
	TypeDevice   = "BmsDevice"
	TypeEndpoint = "BmsEndpoint"
)

// Relation kinds.
const (
	RelationHasDevice   = "hasBmsDevice"
	RelationHasEndpoint = "hasBmsEndpoint"
)

// Endpoint data types and kinds.
const (
	DataTypeReal  = "Real"
	EndpointOther = "Other"
)

// Node is a vertex of the graph. Contexts are root nodes; devices and
// endpoints belong to exactly one context through ContextID.
type Node struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"index;not null" json:"name"`
	Type      string    `gorm:"index;not null" json:"type"`
	ContextID string    `gorm:"index;size:36" json:"context_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Relation is a directed parent → child edge registered in a context.
type Relation struct {
	gorm.Model

	ParentID  string `gorm:"uniqueIndex:idx_relation;size:36;not null"`
	ChildID   string `gorm:"uniqueIndex:idx_relation;size:36;not null"`
	ContextID string `gorm:"index;size:36"`
	Kind      string `gorm:"uniqueIndex:idx_relation;not null"`
}

// Attribute is a categorized key/value pair attached to a node.
type Attribute struct {
	gorm.Model

	NodeID   string `gorm:"uniqueIndex:idx_attribute;size:36;not null" json:"node_id"`
	Category string `gorm:"uniqueIndex:idx_attribute;not null" json:"category"`
	Key      string `gorm:"uniqueIndex:idx_attribute;not null" json:"key"`
	Value    string `json:"value"`
}

// Endpoint holds the live state of an endpoint node.
type Endpoint struct {
	NodeID       string    `gorm:"primaryKey;size:36" json:"node_id"`
	CurrentValue float64   `json:"current_value"`
	Unit         string    `json:"unit"`
	DataType     string    `json:"data_type"`
	Type         string    `json:"type"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NodeTree is the DTO used by the API to return context → device → endpoint.
type NodeTree struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Type     string      `json:"type"`
	Endpoint *Endpoint   `json:"endpoint,omitempty"`
	Children []*NodeTree `json:"children,omitempty"`
}
