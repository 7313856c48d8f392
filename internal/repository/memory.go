package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/qrtrack/qr-track/internal/model"
)

// Memory is an in-memory store with the same semantics as Registry,
// including the unique-key rejection on insert. It backs unit tests and
// local development without a MySQL instance.
type Memory struct {
	mu           sync.Mutex
	associations map[string]*model.Association
	stats        map[string]*model.Stats
	impressions  map[int64][]model.Impression
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		associations: make(map[string]*model.Association),
		stats:        make(map[string]*model.Stats),
		impressions:  make(map[int64][]model.Impression),
	}
}

// CreatePair stores an Association and its Stats record atomically.
func (m *Memory) CreatePair(ctx context.Context, assoc *model.Association, stats *model.Stats) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.associations[assoc.Key]; exists {
		return model.ErrKeyConflict
	}
	a := *assoc
	a.CreatedAt = time.Now()
	s := *stats
	s.AssociationID = a.ID
	s.CreatedAt = a.CreatedAt
	m.associations[a.Key] = &a
	m.stats[s.Key] = &s
	stats.AssociationID = a.ID
	return nil
}

// KeyExists reports whether any Association holds the key.
func (m *Memory) KeyExists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.associations[key]
	return exists, nil
}

// FindAssociation retrieves an Association by key.
func (m *Memory) FindAssociation(ctx context.Context, key string) (*model.Association, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	assoc, exists := m.associations[key]
	if !exists {
		return nil, model.ErrNotFound
	}
	copied := *assoc
	return &copied, nil
}

// FindStats retrieves the Stats record for a key.
func (m *Memory) FindStats(ctx context.Context, key string) (*model.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats, exists := m.stats[key]
	if !exists {
		return nil, model.ErrNotFound
	}
	copied := *stats
	return &copied, nil
}

// ResolveAndRecord appends one Impression and returns the Association in
// a single atomic step.
func (m *Memory) ResolveAndRecord(ctx context.Context, key string, impressionID int64, at time.Time) (*model.Association, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	assoc, exists := m.associations[key]
	if !exists {
		return nil, model.ErrNotFound
	}
	stats, exists := m.stats[key]
	if !exists {
		return nil, model.ErrIntegrity
	}
	m.impressions[stats.ID] = append(m.impressions[stats.ID], model.Impression{
		ID:       impressionID,
		StatsID:  stats.ID,
		Datetime: at,
	})
	copied := *assoc
	return &copied, nil
}

// Impressions returns the impressions under a Stats record ordered by
// recording time.
func (m *Memory) Impressions(ctx context.Context, statsID int64) ([]model.Impression, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	impressions := make([]model.Impression, len(m.impressions[statsID]))
	copy(impressions, m.impressions[statsID])
	sort.Slice(impressions, func(i, j int) bool {
		return impressions[i].Datetime.Before(impressions[j].Datetime)
	})
	return impressions, nil
}

// UpdateStyleConfig replaces the stored style blob for a key.
func (m *Memory) UpdateStyleConfig(ctx context.Context, key string, blob *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	assoc, exists := m.associations[key]
	if !exists {
		return model.ErrNotFound
	}
	assoc.QRStyleConfig = blob
	return nil
}

// ResetImpressions drops every Impression owned by the key's Stats record.
func (m *Memory) ResetImpressions(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats, exists := m.stats[key]
	if !exists {
		return model.ErrNotFound
	}
	delete(m.impressions, stats.ID)
	return nil
}

// DeleteCascade removes the Association, its Stats and all Impressions.
func (m *Memory) DeleteCascade(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.associations[key]; !exists {
		return model.ErrNotFound
	}
	if stats, exists := m.stats[key]; exists {
		delete(m.impressions, stats.ID)
		delete(m.stats, key)
	}
	delete(m.associations, key)
	return nil
}

// AllKeys returns every stored association key.
func (m *Memory) AllKeys(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.associations))
	for key := range m.associations {
		keys = append(keys, key)
	}
	return keys, nil
}

// DropStats removes only the Stats record for a key, leaving the
// Association behind. It exists to exercise integrity-violation handling
// in tests.
func (m *Memory) DropStats(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stats, key)
}
