// Package webex is the Webex REST API client used by the sync loop.
// It owns the OAuth access token (refresh grant, file cache) and exposes
// typed accessors for workspaces, capabilities and workspace metrics.
package webex

import "time"

// Workspace is one entry of GET /workspaces.
type Workspace struct {
	ID               string `json:"id"`
	OrgID            string `json:"orgId"`
	DisplayName      string `json:"displayName"`
	Type             string `json:"type,omitempty"`
	SIPAddress       string `json:"sipAddress,omitempty"`
	Created          string `json:"created,omitempty"`
	HotdeskingStatus string `json:"hotdeskingStatus,omitempty"`
	SupportedDevices string `json:"supportedDevices,omitempty"`
	DevicePlatform   string `json:"devicePlatform"`
	Capacity         *int   `json:"capacity,omitempty"`
}

type workspaceList struct {
	Items []Workspace `json:"items"`
}

// Capability reports whether a workspace sensor capability is usable.
type Capability struct {
	Supported  bool `json:"supported"`
	Configured bool `json:"configured"`
}

type capabilitiesResponse struct {
	Capabilities map[string]Capability `json:"capabilities"`
}

// MetricSample is one reading of a workspace metric.
type MetricSample struct {
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// MetricSeries is the body of GET /workspaceMetrics. Items are ordered
// newest first; an empty Items means no data in the window.
type MetricSeries struct {
	WorkspaceID string         `json:"workspaceId"`
	MetricName  string         `json:"metricName"`
	Aggregation string         `json:"aggregation"`
	Unit        string         `json:"unit"`
	Items       []MetricSample `json:"items"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}
