// Package pull implements the Webex synchronization organ: the reconciler
// that maps remote workspaces onto graph nodes and the loop that runs it on
// a fixed cadence.
package pull

import (
	"context"
	"time"

	"github.com/vesaa/webexsync/internal/models"
	"github.com/vesaa/webexsync/internal/webex"
)

// GraphStore is the graph persistence the reconciler reads and writes.
type GraphStore interface {
	RootChildren(ctx context.Context) ([]models.Node, error)
	FindInContext(ctx context.Context, contextID string, match func(models.Node) bool) ([]models.Node, error)
	CreateNode(ctx context.Context, spec models.NodeSpec) (string, error)
	AddChild(ctx context.Context, parentID, childID, contextID, kind string) error
	Children(ctx context.Context, parentID, kind string) ([]models.Node, error)
	GetNode(ctx context.Context, id string) (models.Node, error)
	SetAttributes(ctx context.Context, nodeID, category string, attrs map[string]string) error
}

// NetworkService registers devices and updates endpoint live values.
type NetworkService interface {
	UpsertDevice(ctx context.Context, contextID string, spec models.DeviceSpec) (models.Node, error)
	SetEndpointValue(ctx context.Context, endpointID string, value float64) error
}

// TimeSeriesStore appends endpoint history.
type TimeSeriesStore interface {
	InsertSample(ctx context.Context, endpointID string, value float64, epochMillis int64) error
}

// RemoteAPI is the Webex data source. Nil results mean "skip"; errors are
// authentication failures.
type RemoteAPI interface {
	Workspaces(ctx context.Context) ([]webex.Workspace, error)
	Capabilities(ctx context.Context, workspaceID string) (map[string]webex.Capability, error)
	WorkspaceMetrics(ctx context.Context, workspaceID, metricName, aggregation string) (*webex.MetricSeries, error)
}

// StatusRecorder persists the time of the last successful cycle.
type StatusRecorder interface {
	RecordSync(ctx context.Context, at time.Time) error
}

// Ensure webex.Client satisfies RemoteAPI.
var _ RemoteAPI = (*webex.Client)(nil)
