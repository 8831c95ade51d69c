package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/songzhibin97/callbattle/internal/models"
)

// MemoryStorage is an in-process data.Store used when no database is configured.
type MemoryStorage struct {
	mu          sync.RWMutex
	rounds      []models.Round
	calls       []models.Call
	results     []models.RoundResult
	predictions []models.Prediction
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// EnsureActiveRound implements data.Store; the lookup and insert share one lock.
func (m *MemoryStorage) EnsureActiveRound(ctx context.Context, now time.Time) (*models.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r := m.activeLocked(); r != nil {
		return r, nil
	}
	r := models.Round{
		ID:        uuid.NewString(),
		Status:    models.RoundActive,
		StartedAt: now,
	}
	m.rounds = append(m.rounds, r)
	return &r, nil
}

// GetActiveRound implements data.Store
func (m *MemoryStorage) GetActiveRound(ctx context.Context) (*models.Round, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeLocked(), nil
}

func (m *MemoryStorage) activeLocked() *models.Round {
	for i := len(m.rounds) - 1; i >= 0; i-- {
		if m.rounds[i].Status == models.RoundActive {
			r := m.rounds[i]
			return &r
		}
	}
	return nil
}

// ListRoundCalls implements data.Store
func (m *MemoryStorage) ListRoundCalls(ctx context.Context, roundID string) ([]models.Call, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Call
	for _, c := range m.calls {
		if c.RoundID == roundID {
			out = append(out, c)
		}
	}
	return out, nil
}

// ListCalls implements data.Store
func (m *MemoryStorage) ListCalls(ctx context.Context, agent models.Agent) ([]models.Call, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Call
	for _, c := range m.calls {
		if agent == "" || c.Agent == agent {
			out = append(out, c)
		}
	}
	return out, nil
}

// CreateCall implements data.Store
func (m *MemoryStorage) CreateCall(ctx context.Context, c *models.Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	m.calls = append(m.calls, *c)
	return nil
}

// UpdateCallValuation implements data.Store
func (m *MemoryStorage) UpdateCallValuation(ctx context.Context, c *models.Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.calls {
		if m.calls[i].ID != c.ID {
			continue
		}
		stored := &m.calls[i]
		stored.CurrentPrice = c.CurrentPrice
		stored.CurrentMarketCap = c.CurrentMarketCap
		if c.AthMarketCap > stored.AthMarketCap {
			stored.AthMarketCap = c.AthMarketCap
		}
		stored.CurrentMultiplier = c.CurrentMultiplier
		stored.AthMultiplier = c.AthMultiplier
		stored.UpdatedAt = c.UpdatedAt
		return nil
	}
	return fmt.Errorf("failed to update call %s: %w", c.ID, ErrNotFound)
}

// CreateRoundResult implements data.Store
func (m *MemoryStorage) CreateRoundResult(ctx context.Context, r *models.RoundResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	m.results = append(m.results, *r)
	return nil
}

// ListRoundResults implements data.Store, newest first
func (m *MemoryStorage) ListRoundResults(ctx context.Context, limit int) ([]models.RoundResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit = normalizeLimit(limit)
	out := make([]models.RoundResult, 0, limit)
	for i := len(m.results) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.results[i])
	}
	return out, nil
}

// CreatePrediction implements data.Store
func (m *MemoryStorage) CreatePrediction(ctx context.Context, p *models.Prediction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	stored := *p
	stored.Resolved = false
	stored.Result = nil
	stored.ResolvedAt = nil
	m.predictions = append(m.predictions, stored)
	return nil
}

// ListUnresolvedPredictions implements data.Store
func (m *MemoryStorage) ListUnresolvedPredictions(ctx context.Context, since time.Time) ([]models.Prediction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Prediction
	for _, p := range m.predictions {
		if !p.Resolved && !p.CreatedAt.Before(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

// ListPredictions implements data.Store, newest first
func (m *MemoryStorage) ListPredictions(ctx context.Context, limit int) ([]models.Prediction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit = normalizeLimit(limit)
	out := make([]models.Prediction, 0, limit)
	for i := len(m.predictions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.predictions[i])
	}
	return out, nil
}

// ResolvePrediction implements data.Store
func (m *MemoryStorage) ResolvePrediction(ctx context.Context, id string, result models.Position, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.predictions {
		p := &m.predictions[i]
		if p.ID != id {
			continue
		}
		if p.Resolved {
			return false, nil
		}
		res := result
		resolvedAt := at
		p.Resolved = true
		p.Result = &res
		p.ResolvedAt = &resolvedAt
		return true, nil
	}
	return false, fmt.Errorf("failed to resolve prediction %s: %w", id, ErrNotFound)
}

// AgentAggregates implements data.Store
func (m *MemoryStorage) AgentAggregates(ctx context.Context) ([]models.AgentAggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byAgent := make(map[models.Agent]*models.AgentAggregate)
	sums := make(map[models.Agent]float64)
	for _, c := range m.calls {
		mult := c.Multiplier()
		a, ok := byAgent[c.Agent]
		if !ok {
			a = &models.AgentAggregate{Agent: c.Agent, BestMultiplier: mult}
			byAgent[c.Agent] = a
		}
		a.Calls++
		sums[c.Agent] += mult
		if mult > a.BestMultiplier {
			a.BestMultiplier = mult
		}
	}

	out := make([]models.AgentAggregate, 0, len(byAgent))
	for agent, a := range byAgent {
		a.AvgMultiplier = sums[agent] / float64(a.Calls)
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Agent < out[j].Agent })
	return out, nil
}
