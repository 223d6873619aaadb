package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vesaa/webexsync/internal/logging"
	"github.com/vesaa/webexsync/internal/models"
)

// CreateContext returns the root context named name, creating it if absent.
func (s *Store) CreateContext(ctx context.Context, name string) (models.Node, error) {
	var node models.Node
	err := s.db.WithContext(ctx).
		Where("type = ? AND name = ?", models.TypeContext, name).
		First(&node).Error
	if err == nil {
		return node, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return node, err
	}

	node = models.Node{ID: uuid.NewString(), Name: name, Type: models.TypeContext}
	node.ContextID = node.ID
	if err := s.db.WithContext(ctx).Create(&node).Error; err != nil {
		return node, fmt.Errorf("creating context %q: %w", name, err)
	}
	logging.Info().Str("context", name).Str("id", node.ID).Msg("[db] created context")
	return node, nil
}

// RootChildren returns every context of the graph.
func (s *Store) RootChildren(ctx context.Context) ([]models.Node, error) {
	var nodes []models.Node
	err := s.db.WithContext(ctx).
		Where("type = ?", models.TypeContext).
		Order("name").
		Find(&nodes).Error
	return nodes, err
}

// FindInContext returns the nodes registered in contextID for which match
// reports true, in creation order.
func (s *Store) FindInContext(ctx context.Context, contextID string, match func(models.Node) bool) ([]models.Node, error) {
	var nodes []models.Node
	err := s.db.WithContext(ctx).
		Where("context_id = ? AND id <> ?", contextID, contextID).
		Order("created_at, id").
		Find(&nodes).Error
	if err != nil {
		return nil, err
	}
	out := nodes[:0]
	for _, n := range nodes {
		if match(n) {
			out = append(out, n)
		}
	}
	return out, nil
}

// CreateNode stores a detached node and, for endpoints, its live state.
// The node joins a context when it is attached with AddChild.
func (s *Store) CreateNode(ctx context.Context, spec models.NodeSpec) (string, error) {
	node := models.Node{ID: uuid.NewString(), Name: spec.Name, Type: spec.Type}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&node).Error; err != nil {
			return err
		}
		if spec.Endpoint == nil {
			return nil
		}
		ep := *spec.Endpoint
		ep.NodeID = node.ID
		return tx.Create(&ep).Error
	})
	if err != nil {
		return "", fmt.Errorf("creating node %q: %w", spec.Name, err)
	}
	return node.ID, nil
}

// AddChild links parentID → childID with the given relation kind and
// registers the child in contextID.
func (s *Store) AddChild(ctx context.Context, parentID, childID, contextID, kind string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rel := models.Relation{ParentID: parentID, ChildID: childID, ContextID: contextID, Kind: kind}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rel).Error; err != nil {
			return fmt.Errorf("adding %s relation: %w", kind, err)
		}
		res := tx.Model(&models.Node{}).Where("id = ?", childID).Update("context_id", contextID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("child %s: %w", childID, ErrNotFound)
		}
		return nil
	})
}

// Children returns the children of parentID linked with kind.
func (s *Store) Children(ctx context.Context, parentID, kind string) ([]models.Node, error) {
	var nodes []models.Node
	err := s.db.WithContext(ctx).
		Joins("JOIN relations ON relations.child_id = nodes.id AND relations.deleted_at IS NULL").
		Where("relations.parent_id = ? AND relations.kind = ?", parentID, kind).
		Order("nodes.created_at, nodes.id").
		Find(&nodes).Error
	return nodes, err
}

// GetNode loads a node by id.
func (s *Store) GetNode(ctx context.Context, id string) (models.Node, error) {
	var node models.Node
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&node).Error
	return node, notFound(err)
}

// SetAttributes creates or updates attrs under category on nodeID.
func (s *Store) SetAttributes(ctx context.Context, nodeID, category string, attrs map[string]string) error {
	if len(attrs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]models.Attribute, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, models.Attribute{NodeID: nodeID, Category: category, Key: k, Value: attrs[k]})
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "node_id"}, {Name: "category"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rows).Error
}

// Attributes returns every attribute of nodeID keyed by category then key.
func (s *Store) Attributes(ctx context.Context, nodeID string) (map[string]map[string]string, error) {
	var rows []models.Attribute
	if err := s.db.WithContext(ctx).Where("node_id = ?", nodeID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]map[string]string)
	for _, a := range rows {
		if out[a.Category] == nil {
			out[a.Category] = make(map[string]string)
		}
		out[a.Category][a.Key] = a.Value
	}
	return out, nil
}

// CountNodes returns how many nodes of type typ exist in contextID.
func (s *Store) CountNodes(ctx context.Context, contextID, typ string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Node{}).
		Where("context_id = ? AND type = ?", contextID, typ).
		Count(&n).Error
	return n, err
}

// Tree returns every context with its devices and their endpoints.
func (s *Store) Tree(ctx context.Context) ([]*models.NodeTree, error) {
	roots, err := s.RootChildren(ctx)
	if err != nil {
		return nil, err
	}

	var endpoints []models.Endpoint
	if err := s.db.WithContext(ctx).Find(&endpoints).Error; err != nil {
		return nil, err
	}
	state := make(map[string]*models.Endpoint, len(endpoints))
	for i := range endpoints {
		state[endpoints[i].NodeID] = &endpoints[i]
	}

	out := make([]*models.NodeTree, 0, len(roots))
	for _, root := range roots {
		rt := &models.NodeTree{ID: root.ID, Name: root.Name, Type: root.Type}
		devices, err := s.Children(ctx, root.ID, models.RelationHasDevice)
		if err != nil {
			return nil, err
		}
		for _, d := range devices {
			dt := &models.NodeTree{ID: d.ID, Name: d.Name, Type: d.Type}
			eps, err := s.Children(ctx, d.ID, models.RelationHasEndpoint)
			if err != nil {
				return nil, err
			}
			for _, e := range eps {
				dt.Children = append(dt.Children, &models.NodeTree{
					ID: e.ID, Name: e.Name, Type: e.Type, Endpoint: state[e.ID],
				})
			}
			rt.Children = append(rt.Children, dt)
		}
		out = append(out, rt)
	}
	return out, nil
}
