package pull

import (
	"context"

	"github.com/vesaa/webexsync/internal/webex"
)

// Metrics polled for every workspace.
var Catalog = []string{
	"soundLevel",
	"ambientNoise",
	"temperature",
	"humidity",
	"tvoc",
	"peopleCount",
}

// capabilityMetric maps a workspace capability to the metric it provides.
var capabilityMetric = map[string]string{
	"soundLevel":         "soundLevel",
	"ambientNoise":       "ambientNoise",
	"temperature":        "temperature",
	"relativeHumidity":   "humidity",
	"airQuality":         "tvoc",
	"occupancyDetection": "peopleCount",
	"presenceDetection":  "peopleCount",
}

// MetricSelector decides which metrics to poll for a workspace. A nil
// result skips the workspace's metrics for this cycle.
type MetricSelector interface {
	Metrics(ctx context.Context, ws webex.Workspace) ([]string, error)
}

// FixedCatalog polls the whole catalog for every workspace.
type FixedCatalog struct{}

func (FixedCatalog) Metrics(context.Context, webex.Workspace) ([]string, error) {
	return Catalog, nil
}

// CapabilityCatalog polls only the metrics backed by a capability the
// workspace reports as both supported and configured.
type CapabilityCatalog struct {
	API RemoteAPI
}

func (c CapabilityCatalog) Metrics(ctx context.Context, ws webex.Workspace) ([]string, error) {
	caps, err := c.API.Capabilities(ctx, ws.ID)
	if err != nil || caps == nil {
		return nil, err
	}
	wanted := make(map[string]bool)
	for name, capability := range caps {
		if !capability.Supported || !capability.Configured {
			continue
		}
		if metric, ok := capabilityMetric[name]; ok {
			wanted[metric] = true
		}
	}
	out := make([]string, 0, len(wanted))
	for _, m := range Catalog {
		if wanted[m] {
			out = append(out, m)
		}
	}
	return out, nil
}
