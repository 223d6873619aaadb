package pull

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/vesaa/webexsync/internal/logging"
	"github.com/vesaa/webexsync/internal/metrics"
	"github.com/vesaa/webexsync/internal/models"
	"github.com/vesaa/webexsync/internal/webex"
)

const (
	// aggregation requested for every metric query
	aggregationNone = "none"

	attrCategoryWebex   = "Webex"
	attrCategoryDefault = "default"
)

// endpointDefaults is attached to every new endpoint for the time-series
// service (retention in days, initial block size).
var endpointDefaults = map[string]string{
	"timeSeries maxDay":           "40",
	"timeSeries initialBlockSize": "50",
}

// CycleStats summarizes one reconciliation pass.
type CycleStats struct {
	Workspaces       int
	DevicesCreated   int
	EndpointsCreated int
	SamplesWritten   int
}

// Reconciler maps Webex workspaces and their latest metric readings onto
// device and endpoint nodes of one network context.
//
// Resolve-or-create is a lookup followed by a create; it assumes it is the
// only writer of the context.
type Reconciler struct {
	api      RemoteAPI
	graph    GraphStore
	network  NetworkService
	series   TimeSeriesStore
	selector MetricSelector
	log      zerolog.Logger
}

// NewReconciler wires a reconciler. A nil selector polls the fixed catalog.
func NewReconciler(api RemoteAPI, graph GraphStore, network NetworkService, series TimeSeriesStore, selector MetricSelector) *Reconciler {
	if selector == nil {
		selector = FixedCatalog{}
	}
	return &Reconciler{
		api:      api,
		graph:    graph,
		network:  network,
		series:   series,
		selector: selector,
		log:      logging.With().Str("component", "reconciler").Logger(),
	}
}

// Reconcile runs one pass over every workspace, sequentially. A missing
// workspace list ends the pass without error; store errors and
// authentication failures abort it.
func (r *Reconciler) Reconcile(ctx context.Context, network models.Node) (CycleStats, error) {
	var stats CycleStats

	workspaces, err := r.api.Workspaces(ctx)
	if err != nil {
		return stats, fmt.Errorf("listing workspaces: %w", err)
	}
	if workspaces == nil {
		r.log.Warn().Msg("No workspace list this cycle")
		return stats, nil
	}

	for _, ws := range workspaces {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Workspaces++
		if err := r.syncWorkspace(ctx, network, ws, &stats); err != nil {
			return stats, fmt.Errorf("workspace %q: %w", ws.DisplayName, err)
		}
	}
	return stats, nil
}

func (r *Reconciler) syncWorkspace(ctx context.Context, network models.Node, ws webex.Workspace, stats *CycleStats) error {
	device, created, err := r.resolveDevice(ctx, network, ws)
	if err != nil {
		return err
	}
	if created {
		stats.DevicesCreated++
	}

	metricNames, err := r.selector.Metrics(ctx, ws)
	if err != nil {
		return err
	}

	for _, metric := range metricNames {
		series, err := r.api.WorkspaceMetrics(ctx, ws.ID, metric, aggregationNone)
		if err != nil {
			return fmt.Errorf("metric %s: %w", metric, err)
		}
		if series == nil || len(series.Items) == 0 {
			continue
		}
		if err := r.applySample(ctx, network, device, series, stats); err != nil {
			return fmt.Errorf("metric %s: %w", metric, err)
		}
	}
	return nil
}

// resolveDevice returns the device node named after the workspace, creating
// it with its Webex attributes when absent.
func (r *Reconciler) resolveDevice(ctx context.Context, network models.Node, ws webex.Workspace) (models.Node, bool, error) {
	match := func(n models.Node) bool {
		return n.Type == models.TypeDevice && n.Name == ws.DisplayName
	}
	devices, err := r.graph.FindInContext(ctx, network.ID, match)
	if err != nil {
		return models.Node{}, false, err
	}
	if len(devices) > 0 {
		return devices[0], false, nil
	}

	r.log.Info().Str("workspace", ws.DisplayName).Msg("Device does not exist, creating new device")
	if _, err := r.network.UpsertDevice(ctx, network.ID, models.DeviceSpec{Name: ws.DisplayName, Type: "device"}); err != nil {
		return models.Node{}, false, err
	}
	devices, err = r.graph.FindInContext(ctx, network.ID, match)
	if err != nil {
		return models.Node{}, false, err
	}
	if len(devices) == 0 {
		return models.Node{}, false, fmt.Errorf("device %q missing after creation", ws.DisplayName)
	}

	device := devices[0]
	if err := r.graph.SetAttributes(ctx, device.ID, attrCategoryWebex, deviceAttributes(ws)); err != nil {
		return models.Node{}, false, err
	}
	metrics.NodesCreated.WithLabelValues("device").Inc()
	r.log.Info().Str("workspace", ws.DisplayName).Str("node_id", device.ID).Msg("Created device")
	return device, true, nil
}

func deviceAttributes(ws webex.Workspace) map[string]string {
	capacity := ""
	if ws.Capacity != nil {
		capacity = strconv.Itoa(*ws.Capacity)
	}
	return map[string]string{
		"id":             ws.ID,
		"orgId":          ws.OrgID,
		"type":           ws.Type,
		"devicePlatform": ws.DevicePlatform,
		"capacity":       capacity,
	}
}

// applySample pushes the newest reading of series into its endpoint.
func (r *Reconciler) applySample(ctx context.Context, network, device models.Node, series *webex.MetricSeries, stats *CycleStats) error {
	latest := series.Items[0]

	endpoint, created, err := r.resolveEndpoint(ctx, network, device, series)
	if err != nil {
		return err
	}
	if created {
		stats.EndpointsCreated++
	}

	if err := r.network.SetEndpointValue(ctx, endpoint.ID, latest.Value); err != nil {
		return err
	}
	if err := r.series.InsertSample(ctx, endpoint.ID, latest.Value, latest.Timestamp.UnixMilli()); err != nil {
		return err
	}
	stats.SamplesWritten++
	metrics.SamplesWritten.WithLabelValues(endpoint.Name).Inc()
	r.log.Debug().
		Str("workspace", device.Name).
		Str("metric", endpoint.Name).
		Float64("value", latest.Value).
		Msg("Data updated")
	return nil
}

// resolveEndpoint returns the endpoint child of device named after the
// series metric, creating and seeding it when absent.
func (r *Reconciler) resolveEndpoint(ctx context.Context, network, device models.Node, series *webex.MetricSeries) (models.Node, bool, error) {
	name := series.MetricName
	if name == "" {
		name = "Unnamed"
	}

	children, err := r.graph.Children(ctx, device.ID, models.RelationHasEndpoint)
	if err != nil {
		return models.Node{}, false, err
	}
	for _, c := range children {
		if c.Name == name {
			return c, false, nil
		}
	}

	id, err := r.graph.CreateNode(ctx, models.NodeSpec{
		Name: name,
		Type: models.TypeEndpoint,
		Endpoint: &models.Endpoint{
			CurrentValue: series.Items[0].Value,
			Unit:         series.Unit,
			DataType:     models.DataTypeReal,
			Type:         models.EndpointOther,
		},
	})
	if err != nil {
		return models.Node{}, false, err
	}
	if err := r.graph.AddChild(ctx, device.ID, id, network.ID, models.RelationHasEndpoint); err != nil {
		return models.Node{}, false, err
	}
	if err := r.graph.SetAttributes(ctx, id, attrCategoryDefault, endpointDefaults); err != nil {
		return models.Node{}, false, err
	}
	node, err := r.graph.GetNode(ctx, id)
	if err != nil {
		return models.Node{}, false, err
	}
	metrics.NodesCreated.WithLabelValues("endpoint").Inc()
	r.log.Info().Str("metric", name).Str("workspace", device.Name).Msg("Created endpoint")
	return node, true, nil
}
