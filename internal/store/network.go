package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/vesaa/webexsync/internal/logging"
	"github.com/vesaa/webexsync/internal/models"
)

// UpsertDevice returns the device named spec.Name in contextID, creating it
// under the context node when absent.
func (s *Store) UpsertDevice(ctx context.Context, contextID string, spec models.DeviceSpec) (models.Node, error) {
	existing, err := s.FindInContext(ctx, contextID, func(n models.Node) bool {
		return n.Type == models.TypeDevice && n.Name == spec.Name
	})
	if err != nil {
		return models.Node{}, err
	}
	if len(existing) > 0 {
		return existing[0], nil
	}

	id, err := s.CreateNode(ctx, models.NodeSpec{Name: spec.Name, Type: models.TypeDevice})
	if err != nil {
		return models.Node{}, err
	}
	if err := s.AddChild(ctx, contextID, id, contextID, models.RelationHasDevice); err != nil {
		return models.Node{}, err
	}
	if spec.Type != "" {
		if err := s.SetAttributes(ctx, id, "default", map[string]string{"deviceType": spec.Type}); err != nil {
			return models.Node{}, err
		}
	}
	return s.GetNode(ctx, id)
}

// SetEndpointValue stores value as the endpoint's current value.
func (s *Store) SetEndpointValue(ctx context.Context, endpointID string, value float64) error {
	res := s.db.WithContext(ctx).Model(&models.Endpoint{}).
		Where("node_id = ?", endpointID).
		Updates(map[string]any{"current_value": value, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("endpoint %s: %w", endpointID, ErrNotFound)
	}
	return nil
}

// Endpoint returns the live state of an endpoint node.
func (s *Store) Endpoint(ctx context.Context, nodeID string) (*models.Endpoint, error) {
	var ep models.Endpoint
	if err := s.db.WithContext(ctx).Where("node_id = ?", nodeID).First(&ep).Error; err != nil {
		return nil, notFound(err)
	}
	return &ep, nil
}

// InsertSample appends one point to the endpoint's time series.
func (s *Store) InsertSample(ctx context.Context, endpointID string, value float64, epochMillis int64) error {
	m := &models.Sample{EndpointID: endpointID, Value: value, Timestamp: epochMillis}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("inserting sample for %s: %w", endpointID, err)
	}
	return nil
}

// Samples returns up to limit points of an endpoint, newest first.
func (s *Store) Samples(ctx context.Context, endpointID string, limit int) ([]models.Sample, error) {
	var rows []models.Sample
	q := s.db.WithContext(ctx).Where("endpoint_id = ?", endpointID).Order("timestamp desc, id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}

// StatusRecorder persists the organ's last sync time.
type StatusRecorder struct {
	store      *Store
	name       string
	intervalMS int
}

// NewStatusRecorder returns a recorder writing the status row called name.
func (s *Store) NewStatusRecorder(name string, interval time.Duration) *StatusRecorder {
	return &StatusRecorder{store: s, name: name, intervalMS: int(interval / time.Millisecond)}
}

// RecordSync stores at as the last successful sync.
func (r *StatusRecorder) RecordSync(ctx context.Context, at time.Time) error {
	status := models.OrganStatus{Name: r.name, PullIntervalMS: r.intervalMS, LastSync: at}
	if err := r.store.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&status).Error; err != nil {
		return fmt.Errorf("recording sync: %w", err)
	}
	logging.Debug().Time("last_sync", at).Msg("[db] recorded sync")
	return nil
}

// OrganStatus loads the status row called name.
func (s *Store) OrganStatus(ctx context.Context, name string) (*models.OrganStatus, error) {
	var st models.OrganStatus
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&st).Error; err != nil {
		return nil, notFound(err)
	}
	return &st, nil
}
