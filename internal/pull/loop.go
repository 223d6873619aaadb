package pull

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vesaa/webexsync/internal/logging"
	"github.com/vesaa/webexsync/internal/metrics"
	"github.com/vesaa/webexsync/internal/models"
)

// DefaultPenalty is the extra wait after a failed cycle.
const DefaultPenalty = time.Minute

// ErrContextNotFound is returned by Init when no graph context carries the
// configured network name.
var ErrContextNotFound = errors.New("network context not found")

// State is the lifecycle stage of a Loop.
type State int32

const (
	StateIdle State = iota
	StateInitializing
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Pass runs one reconciliation cycle against a network context.
type Pass interface {
	Reconcile(ctx context.Context, network models.Node) (CycleStats, error)
}

// LoopConfig configures a Loop.
type LoopConfig struct {
	NetworkName string
	Interval    time.Duration
	// Penalty defaults to DefaultPenalty when zero.
	Penalty time.Duration
}

// Loop drives the reconciler on a fixed cadence. One cycle runs at a time;
// Stop takes effect at the next cycle boundary.
type Loop struct {
	cfg    LoopConfig
	graph  GraphStore
	pass   Pass
	status StatusRecorder
	clock  Clock
	log    zerolog.Logger

	network  models.Node
	state    atomic.Int32
	running  atomic.Bool
	lastSync atomic.Int64 // unix ms
}

// NewLoop wires a loop. A nil clock uses RealClock.
func NewLoop(cfg LoopConfig, graph GraphStore, pass Pass, status StatusRecorder, clock Clock) *Loop {
	if cfg.Penalty == 0 {
		cfg.Penalty = DefaultPenalty
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Loop{
		cfg:    cfg,
		graph:  graph,
		pass:   pass,
		status: status,
		clock:  clock,
		log:    logging.With().Str("component", "loop").Logger(),
	}
}

// State returns the current lifecycle stage.
func (l *Loop) State() State { return State(l.state.Load()) }

// LastSync returns the time of the last successful cycle, zero if none.
func (l *Loop) LastSync() time.Time {
	ms := l.lastSync.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Network returns the resolved network context.
func (l *Loop) Network() models.Node { return l.network }

// Init resolves the network context and runs a first pass. Only a missing
// context (or a store error while looking for it) is returned; a failed
// first pass is logged.
func (l *Loop) Init(ctx context.Context) error {
	l.setState(StateInitializing)
	l.log.Info().Str("network", l.cfg.NetworkName).Msg("Initiating sync")

	network, err := l.resolveNetwork(ctx)
	if err != nil {
		l.setState(StateStopped)
		return err
	}
	l.network = network

	if err := l.cycle(ctx); err != nil {
		l.log.Error().Err(err).Msg("Initial sync failed")
		return nil
	}
	l.log.Info().Msg("Init done")
	return nil
}

func (l *Loop) resolveNetwork(ctx context.Context) (models.Node, error) {
	contexts, err := l.graph.RootChildren(ctx)
	if err != nil {
		return models.Node{}, fmt.Errorf("listing contexts: %w", err)
	}
	for _, c := range contexts {
		if c.Name == l.cfg.NetworkName {
			return c, nil
		}
	}
	return models.Node{}, fmt.Errorf("%w: %q", ErrContextNotFound, l.cfg.NetworkName)
}

// Run waits one interval, then reconciles every interval until Stop is
// called or ctx is done. A failed cycle adds the penalty delay. The wait
// after each cycle is the interval minus the cycle's duration, so cycles
// start on interval boundaries.
func (l *Loop) Run(ctx context.Context) error {
	l.running.Store(true)
	l.setState(StateRunning)
	defer l.setState(StateStopped)
	l.log.Info().Dur("interval", l.cfg.Interval).Msg("Starting run")

	if err := l.clock.Sleep(ctx, l.cfg.Interval); err != nil {
		return err
	}
	for {
		if !l.running.Load() {
			l.log.Info().Msg("Sync loop stopped")
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		start := l.clock.Now()
		err := l.cycle(ctx)
		elapsed := l.clock.Now().Sub(start)

		if err != nil {
			l.log.Error().Err(err).Dur("penalty", l.cfg.Penalty).Msg("Sync cycle failed")
			if err := l.clock.Sleep(ctx, l.cfg.Penalty); err != nil {
				return err
			}
		}
		if err := l.clock.Sleep(ctx, NextDelay(l.cfg.Interval, elapsed)); err != nil {
			return err
		}
	}
}

// Stop asks the loop to exit at its next cycle boundary.
func (l *Loop) Stop() {
	l.running.Store(false)
}

// NextDelay is the wait before the next cycle when the previous one took
// elapsed: max(0, interval - elapsed).
func NextDelay(interval, elapsed time.Duration) time.Duration {
	if d := interval - elapsed; d > 0 {
		return d
	}
	return 0
}

// cycle runs one pass and records the sync time on success.
func (l *Loop) cycle(ctx context.Context) error {
	start := l.clock.Now()
	l.log.Info().Msg("Updating data")

	stats, err := l.pass.Reconcile(ctx, l.network)
	metrics.SyncCycleDuration.Observe(l.clock.Now().Sub(start).Seconds())
	if err != nil {
		metrics.SyncCycles.WithLabelValues("failure").Inc()
		return err
	}
	metrics.SyncCycles.WithLabelValues("success").Inc()

	now := l.clock.Now()
	l.lastSync.Store(now.UnixMilli())
	metrics.LastSyncTimestamp.Set(float64(now.Unix()))
	if l.status != nil {
		if err := l.status.RecordSync(ctx, now); err != nil {
			l.log.Error().Err(err).Msg("Recording sync time failed")
		}
	}

	l.log.Info().
		Int("workspaces", stats.Workspaces).
		Int("devices_created", stats.DevicesCreated).
		Int("endpoints_created", stats.EndpointsCreated).
		Int("samples", stats.SamplesWritten).
		Dur("duration", now.Sub(start)).
		Msg("Data updated")
	return nil
}

func (l *Loop) setState(s State) { l.state.Store(int32(s)) }
