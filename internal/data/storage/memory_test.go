package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songzhibin97/callbattle/internal/models"
)

func TestMemoryStorage_EnsureActiveRoundConcurrent(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	ids := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := s.EnsureActiveRound(ctx, now)
			if assert.NoError(t, err) {
				ids <- r.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	unique := map[string]struct{}{}
	for id := range ids {
		unique[id] = struct{}{}
	}
	assert.Len(t, unique, 1)

	active, err := s.GetActiveRound(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, models.RoundActive, active.Status)
	assert.Nil(t, active.EndsAt)
}

func TestMemoryStorage_CallLifecycle(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	now := time.Now().UTC()

	call := &models.Call{
		RoundID:          "r1",
		Agent:            models.AgentOpus,
		TokenAddress:     "AAA",
		EntryMarketCap:   100000,
		CurrentMarketCap: 100000,
		AthMarketCap:     100000,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, s.CreateCall(ctx, call))
	require.NotEmpty(t, call.ID)
	require.NoError(t, s.CreateCall(ctx, &models.Call{RoundID: "r2", Agent: models.AgentCodex, TokenAddress: "BBB"}))

	update := *call
	update.CurrentMarketCap = 80000
	update.AthMarketCap = 90000
	require.NoError(t, s.UpdateCallValuation(ctx, &update))

	calls, err := s.ListRoundCalls(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, 80000.0, calls[0].CurrentMarketCap)
	assert.Equal(t, 100000.0, calls[0].AthMarketCap, "ath never decreases")
	assert.Equal(t, 100000.0, calls[0].EntryMarketCap)

	codex, err := s.ListCalls(ctx, models.AgentCodex)
	require.NoError(t, err)
	assert.Len(t, codex, 1)
	all, err := s.ListCalls(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	err = s.UpdateCallValuation(ctx, &models.Call{ID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorage_Predictions(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	now := time.Now().UTC()

	old := &models.Prediction{Question: "old", CreatedAt: now.Add(-25 * time.Hour)}
	fresh := &models.Prediction{Question: "fresh", CreatedAt: now.Add(-time.Hour)}
	require.NoError(t, s.CreatePrediction(ctx, old))
	require.NoError(t, s.CreatePrediction(ctx, fresh))

	pending, err := s.ListUnresolvedPredictions(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "fresh", pending[0].Question)

	ok, err := s.ResolvePrediction(ctx, fresh.ID, models.PositionYes, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ResolvePrediction(ctx, fresh.ID, models.PositionNo, now)
	require.NoError(t, err)
	assert.False(t, ok, "a prediction resolves once")

	list, err := s.ListPredictions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "fresh", list[0].Question)
	require.NotNil(t, list[0].Result)
	assert.Equal(t, models.PositionYes, *list[0].Result)

	_, err = s.ResolvePrediction(ctx, "missing", models.PositionNo, now)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorage_AgentAggregates(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	for _, c := range []models.Call{
		{Agent: models.AgentOpus, EntryMarketCap: 100, CurrentMarketCap: 150},
		{Agent: models.AgentOpus, EntryMarketCap: 100, CurrentMarketCap: 50},
		{Agent: models.AgentCodex, EntryMarketCap: 0, CurrentMarketCap: 500},
	} {
		c := c
		require.NoError(t, s.CreateCall(ctx, &c))
	}

	aggs, err := s.AgentAggregates(ctx)
	require.NoError(t, err)
	require.Len(t, aggs, 2)
	assert.Equal(t, models.AgentCodex, aggs[0].Agent)
	assert.Equal(t, 1.0, aggs[0].AvgMultiplier)
	assert.Equal(t, models.AgentOpus, aggs[1].Agent)
	assert.Equal(t, 2, aggs[1].Calls)
	assert.InDelta(t, 1.0, aggs[1].AvgMultiplier, 1e-9)
	assert.Equal(t, 1.5, aggs[1].BestMultiplier)
}

func TestMemoryStorage_RoundResults(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	for _, w := range []string{"opus", "codex", "draw"} {
		require.NoError(t, s.CreateRoundResult(ctx, &models.RoundResult{Winner: w}))
	}
	results, err := s.ListRoundResults(ctx, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "draw", results[0].Winner)
	assert.Equal(t, "codex", results[1].Winner)
}
