package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songzhibin97/callbattle/internal/battle"
	"github.com/songzhibin97/callbattle/internal/data/storage"
	"github.com/songzhibin97/callbattle/internal/models"
	"github.com/songzhibin97/callbattle/internal/prediction"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    map[string]any  `json:"meta"`
}

func do(t *testing.T, r *gin.Engine, method, path string) (int, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

type stubJobs struct {
	err error
}

func (s stubJobs) RunCycle(ctx context.Context) (*battle.CycleResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &battle.CycleResult{RoundID: "r1", Calls: []models.Call{{Agent: models.AgentOpus}, {Agent: models.AgentCodex}}}, nil
}

func (s stubJobs) UpdateActiveRound(ctx context.Context) (*battle.PriceUpdateResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &battle.PriceUpdateResult{RoundID: "r1", Total: 2, Updated: 2}, nil
}

func (s stubJobs) Close(ctx context.Context) (*models.RoundResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.RoundResult{Winner: "opus", Action: models.ActionBuybackBurn, OpusBalance: 1300, CodexBalance: 1100}, nil
}

func (s stubJobs) ResolveDue(ctx context.Context) (*prediction.ResolveResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &prediction.ResolveResult{Checked: 1, Resolved: 1}, nil
}

func TestCronHandler(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		jobs       stubJobs
		wantStatus int
		wantCode   int
		wantJob    string
		wantData   string
	}{
		{name: "cycle", path: "/api/cron/cycle", wantStatus: http.StatusOK, wantData: `"round_id":"r1"`},
		{name: "prices", path: "/api/cron/prices", wantStatus: http.StatusOK, wantData: `"updated":2`},
		{name: "close round", path: "/api/cron/close-round", wantStatus: http.StatusOK, wantData: `"action":"buyback_burn"`},
		{name: "resolve", path: "/api/cron/resolve-predictions", wantStatus: http.StatusOK, wantData: `"resolved":1`},
		{name: "cycle failure", path: "/api/cron/cycle", jobs: stubJobs{err: errors.New("db down")}, wantStatus: http.StatusInternalServerError, wantCode: codeJobFailed, wantJob: "cycle"},
		{name: "close failure", path: "/api/cron/close-round", jobs: stubJobs{err: errors.New("db down")}, wantStatus: http.StatusInternalServerError, wantCode: codeJobFailed, wantJob: "close-round"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			(&CronHandler{Cycle: tt.jobs, Prices: tt.jobs, Closer: tt.jobs, Resolver: tt.jobs}).Register(r)

			status, env := do(t, r, http.MethodPost, tt.path)
			assert.Equal(t, tt.wantStatus, status)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, 0, env.Code)
				assert.Contains(t, string(env.Data), tt.wantData)
				return
			}
			assert.Equal(t, tt.wantCode, env.Code)
			assert.Equal(t, "db down", env.Message)
			assert.Equal(t, tt.wantJob, env.Meta["job"])
		})
	}
}

func TestCronHandler_Unwired(t *testing.T) {
	r := gin.New()
	(&CronHandler{}).Register(r)
	status, env := do(t, r, http.MethodPost, "/api/cron/prices")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, codeJobUnwired, env.Code)
	assert.Equal(t, "service unavailable", env.Message)
}

func seededStore(t *testing.T) *storage.MemoryStorage {
	t.Helper()
	store := storage.NewMemoryStorage()
	ctx := context.Background()
	now := time.Now().UTC()

	round, err := store.EnsureActiveRound(ctx, now)
	require.NoError(t, err)
	for _, c := range []models.Call{
		{RoundID: round.ID, Agent: models.AgentOpus, TokenAddress: "a", EntryMarketCap: 100, CurrentMarketCap: 150, CreatedAt: now},
		{RoundID: round.ID, Agent: models.AgentCodex, TokenAddress: "b", EntryMarketCap: 100, CurrentMarketCap: 90, CreatedAt: now},
		{RoundID: round.ID, Agent: models.AgentCodex, TokenAddress: "c", EntryMarketCap: 100, CurrentMarketCap: 110, CreatedAt: now},
	} {
		c := c
		require.NoError(t, store.CreateCall(ctx, &c))
	}
	require.NoError(t, store.CreateRoundResult(ctx, &models.RoundResult{Winner: "opus", Action: models.ActionBuybackBurn, CreatedAt: now}))
	require.NoError(t, store.CreatePrediction(ctx, &models.Prediction{Question: "Will BTC be above $70,000 by 23:59 UTC today?", CreatedAt: now}))
	return store
}

func TestBattleHandler(t *testing.T) {
	r := gin.New()
	(&BattleHandler{Store: seededStore(t)}).Register(r)
	(&HealthHandler{}).Register(r)

	t.Run("stats", func(t *testing.T) {
		status, env := do(t, r, http.MethodGet, "/api/stats")
		require.Equal(t, http.StatusOK, status)

		var board []models.AgentStats
		require.NoError(t, json.Unmarshal(env.Data, &board))
		require.Len(t, board, 2)
		assert.Equal(t, models.AgentOpus, board[0].Agent)
		assert.Equal(t, 1500.0, board[0].Balance)
		assert.Equal(t, 1000.0, board[1].Balance)
		assert.Equal(t, 2, board[1].TotalCalls)
	})

	t.Run("calls filtered by agent", func(t *testing.T) {
		status, env := do(t, r, http.MethodGet, "/api/calls?agent=codex")
		require.Equal(t, http.StatusOK, status)
		var calls []models.Call
		require.NoError(t, json.Unmarshal(env.Data, &calls))
		assert.Len(t, calls, 2)
		assert.EqualValues(t, 2, env.Meta["count"])
	})

	t.Run("unknown agent", func(t *testing.T) {
		status, env := do(t, r, http.MethodGet, "/api/calls?agent=gemini")
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, codeInvalidAgent, env.Code)
	})

	t.Run("active round", func(t *testing.T) {
		status, env := do(t, r, http.MethodGet, "/api/rounds/active")
		require.Equal(t, http.StatusOK, status)
		assert.Contains(t, string(env.Data), `"status":"active"`)
		assert.EqualValues(t, 3, env.Meta["calls"])
	})

	t.Run("round results", func(t *testing.T) {
		status, env := do(t, r, http.MethodGet, "/api/round-results?limit=5")
		require.Equal(t, http.StatusOK, status)
		assert.Contains(t, string(env.Data), `"winner":"opus"`)
	})

	t.Run("predictions", func(t *testing.T) {
		status, env := do(t, r, http.MethodGet, "/api/predictions")
		require.Equal(t, http.StatusOK, status)
		assert.Contains(t, string(env.Data), "Will BTC be above")
	})
}

func TestBattleHandler_NoActiveRound(t *testing.T) {
	r := gin.New()
	(&BattleHandler{Store: storage.NewMemoryStorage()}).Register(r)

	status, env := do(t, r, http.MethodGet, "/api/rounds/active")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, codeNoActiveRound, env.Code)
	assert.Equal(t, "no active round", env.Message)

	status, env = do(t, r, http.MethodGet, "/api/calls")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(env.Data))
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		db         Pinger
		wantStatus int
	}{
		{name: "memory store", wantStatus: http.StatusOK},
		{name: "database up", db: pinger{}, wantStatus: http.StatusOK},
		{name: "database down", db: pinger{err: errors.New("refused")}, wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			(&HealthHandler{DB: tt.db}).Register(r)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			assert.Equal(t, tt.wantStatus, w.Code)

			w = httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}
