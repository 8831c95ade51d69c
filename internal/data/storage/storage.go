package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/songzhibin97/callbattle/internal/models"

	_ "github.com/lib/pq"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(connStr string) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStorage{db: db}

	err = s.initTables()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	return s, nil
}

// NewPostgresStorageFromDB wraps an existing handle without touching the schema.
func NewPostgresStorageFromDB(db *sql.DB) *PostgresStorage {
	return &PostgresStorage{db: db}
}

func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

const roundColumns = `id, status, started_at, ends_at, completed_at, winner`

// EnsureActiveRound implements data.Store. The partial unique index on
// rounds(status) WHERE status = 'active' makes the insert a conditional write.
func (s *PostgresStorage) EnsureActiveRound(ctx context.Context, now time.Time) (*models.Round, error) {
	round, err := s.GetActiveRound(ctx)
	if err != nil {
		return nil, err
	}
	if round != nil {
		return round, nil
	}

	query := `
        INSERT INTO rounds (id, status, started_at)
        VALUES ($1, 'active', $2)
        ON CONFLICT DO NOTHING
    `
	if _, err := s.db.ExecContext(ctx, query, uuid.NewString(), now); err != nil {
		return nil, fmt.Errorf("failed to create round: %w", err)
	}

	round, err = s.GetActiveRound(ctx)
	if err != nil {
		return nil, err
	}
	if round == nil {
		return nil, fmt.Errorf("failed to create round: %w", ErrNotFound)
	}
	return round, nil
}

// GetActiveRound implements data.Store
func (s *PostgresStorage) GetActiveRound(ctx context.Context) (*models.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE status = 'active' ORDER BY started_at DESC LIMIT 1`

	var (
		r           models.Round
		status      string
		endsAt      sql.NullTime
		completedAt sql.NullTime
		winner      sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query).Scan(&r.ID, &status, &r.StartedAt, &endsAt, &completedAt, &winner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active round: %w", err)
	}

	r.Status = models.RoundStatus(status)
	if endsAt.Valid {
		r.EndsAt = &endsAt.Time
	}
	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}
	if winner.Valid {
		r.Winner = &winner.String
	}
	return &r, nil
}

const callColumns = `id, round_id, agent, token_address, token_symbol, token_name, chain,
               entry_price, current_price, entry_mcap, current_mcap, ath_mcap,
               current_multiplier, ath_multiplier, reasoning, confidence, created_at, updated_at`

// ListRoundCalls implements data.Store
func (s *PostgresStorage) ListRoundCalls(ctx context.Context, roundID string) ([]models.Call, error) {
	query := `SELECT ` + callColumns + ` FROM calls WHERE round_id = $1 ORDER BY created_at ASC`
	return s.queryCalls(ctx, query, roundID)
}

// ListCalls implements data.Store
func (s *PostgresStorage) ListCalls(ctx context.Context, agent models.Agent) ([]models.Call, error) {
	if agent == "" {
		return s.queryCalls(ctx, `SELECT `+callColumns+` FROM calls ORDER BY created_at ASC`)
	}
	return s.queryCalls(ctx, `SELECT `+callColumns+` FROM calls WHERE agent = $1 ORDER BY created_at ASC`, string(agent))
}

func (s *PostgresStorage) queryCalls(ctx context.Context, query string, args ...any) ([]models.Call, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query calls: %w", err)
	}
	defer rows.Close()

	var result []models.Call
	for rows.Next() {
		var (
			c     models.Call
			agent string
		)
		err := rows.Scan(
			&c.ID,
			&c.RoundID,
			&agent,
			&c.TokenAddress,
			&c.TokenSymbol,
			&c.TokenName,
			&c.Chain,
			&c.EntryPrice,
			&c.CurrentPrice,
			&c.EntryMarketCap,
			&c.CurrentMarketCap,
			&c.AthMarketCap,
			&c.CurrentMultiplier,
			&c.AthMultiplier,
			&c.Reasoning,
			&c.Confidence,
			&c.CreatedAt,
			&c.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}
		c.Agent = models.Agent(agent)
		result = append(result, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating call rows: %w", err)
	}

	return result, nil
}

// CreateCall implements data.Store
func (s *PostgresStorage) CreateCall(ctx context.Context, c *models.Call) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	query := `
        INSERT INTO calls (
            id, round_id, agent, token_address, token_symbol, token_name, chain,
            entry_price, current_price, entry_mcap, current_mcap, ath_mcap,
            current_multiplier, ath_multiplier, reasoning, confidence, created_at, updated_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
        )
    `

	_, err := s.db.ExecContext(ctx, query,
		c.ID,
		c.RoundID,
		string(c.Agent),
		c.TokenAddress,
		c.TokenSymbol,
		c.TokenName,
		c.Chain,
		c.EntryPrice,
		c.CurrentPrice,
		c.EntryMarketCap,
		c.CurrentMarketCap,
		c.AthMarketCap,
		c.CurrentMultiplier,
		c.AthMultiplier,
		c.Reasoning,
		c.Confidence,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save call: %w", err)
	}
	return nil
}

// UpdateCallValuation implements data.Store. Entry fields are never written here and
// the ATH column only moves upwards.
func (s *PostgresStorage) UpdateCallValuation(ctx context.Context, c *models.Call) error {
	query := `
        UPDATE calls SET
            current_price = $2,
            current_mcap = $3,
            ath_mcap = GREATEST(ath_mcap, $4),
            current_multiplier = $5,
            ath_multiplier = $6,
            updated_at = $7
        WHERE id = $1
    `

	res, err := s.db.ExecContext(ctx, query,
		c.ID,
		c.CurrentPrice,
		c.CurrentMarketCap,
		c.AthMarketCap,
		c.CurrentMultiplier,
		c.AthMultiplier,
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update call: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to update call %s: %w", c.ID, ErrNotFound)
	}
	return nil
}

// CreateRoundResult implements data.Store
func (s *PostgresStorage) CreateRoundResult(ctx context.Context, r *models.RoundResult) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	query := `
        INSERT INTO round_results (id, winner, opus_balance, codex_balance, action, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	_, err := s.db.ExecContext(ctx, query, r.ID, r.Winner, r.OpusBalance, r.CodexBalance, string(r.Action), r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save round result: %w", err)
	}
	return nil
}

// ListRoundResults implements data.Store
func (s *PostgresStorage) ListRoundResults(ctx context.Context, limit int) ([]models.RoundResult, error) {
	query := `
        SELECT id, winner, opus_balance, codex_balance, action, created_at
        FROM round_results
        ORDER BY created_at DESC
        LIMIT $1
    `
	rows, err := s.db.QueryContext(ctx, query, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query round results: %w", err)
	}
	defer rows.Close()

	var result []models.RoundResult
	for rows.Next() {
		var (
			r      models.RoundResult
			action string
		)
		if err := rows.Scan(&r.ID, &r.Winner, &r.OpusBalance, &r.CodexBalance, &action, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan round result: %w", err)
		}
		r.Action = models.RoundAction(action)
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating round result rows: %w", err)
	}
	return result, nil
}

const predictionColumns = `id, question, category, asset, direction, target_price, current_price,
               opus_position, opus_confidence, opus_reasoning,
               codex_position, codex_confidence, codex_reasoning,
               resolved, result, created_at, resolved_at`

// CreatePrediction implements data.Store
func (s *PostgresStorage) CreatePrediction(ctx context.Context, p *models.Prediction) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	query := `
        INSERT INTO predictions (` + predictionColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, FALSE, NULL, $14, NULL)
    `
	_, err := s.db.ExecContext(ctx, query,
		p.ID,
		p.Question,
		p.Category,
		p.Asset,
		p.Direction,
		p.TargetPrice,
		p.CurrentPrice,
		string(p.OpusPosition),
		p.OpusConfidence,
		p.OpusReasoning,
		string(p.CodexPosition),
		p.CodexConfidence,
		p.CodexReasoning,
		p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save prediction: %w", err)
	}
	return nil
}

// ListUnresolvedPredictions implements data.Store
func (s *PostgresStorage) ListUnresolvedPredictions(ctx context.Context, since time.Time) ([]models.Prediction, error) {
	query := `SELECT ` + predictionColumns + ` FROM predictions
        WHERE resolved = FALSE AND created_at >= $1
        ORDER BY created_at ASC`
	return s.queryPredictions(ctx, query, since)
}

// ListPredictions implements data.Store
func (s *PostgresStorage) ListPredictions(ctx context.Context, limit int) ([]models.Prediction, error) {
	query := `SELECT ` + predictionColumns + ` FROM predictions ORDER BY created_at DESC LIMIT $1`
	return s.queryPredictions(ctx, query, normalizeLimit(limit))
}

func (s *PostgresStorage) queryPredictions(ctx context.Context, query string, args ...any) ([]models.Prediction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	var result []models.Prediction
	for rows.Next() {
		var (
			p             models.Prediction
			opusPosition  string
			codexPosition string
			res           sql.NullString
			resolvedAt    sql.NullTime
		)
		err := rows.Scan(
			&p.ID,
			&p.Question,
			&p.Category,
			&p.Asset,
			&p.Direction,
			&p.TargetPrice,
			&p.CurrentPrice,
			&opusPosition,
			&p.OpusConfidence,
			&p.OpusReasoning,
			&codexPosition,
			&p.CodexConfidence,
			&p.CodexReasoning,
			&p.Resolved,
			&res,
			&p.CreatedAt,
			&resolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		p.OpusPosition = models.Position(opusPosition)
		p.CodexPosition = models.Position(codexPosition)
		if res.Valid {
			pos := models.Position(res.String)
			p.Result = &pos
		}
		if resolvedAt.Valid {
			p.ResolvedAt = &resolvedAt.Time
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prediction rows: %w", err)
	}
	return result, nil
}

// ResolvePrediction implements data.Store
func (s *PostgresStorage) ResolvePrediction(ctx context.Context, id string, result models.Position, at time.Time) (bool, error) {
	query := `
        UPDATE predictions SET resolved = TRUE, result = $2, resolved_at = $3
        WHERE id = $1 AND resolved = FALSE
    `
	res, err := s.db.ExecContext(ctx, query, id, string(result), at)
	if err != nil {
		return false, fmt.Errorf("failed to resolve prediction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to resolve prediction: %w", err)
	}
	return n == 1, nil
}

// AgentAggregates implements data.Store
func (s *PostgresStorage) AgentAggregates(ctx context.Context) ([]models.AgentAggregate, error) {
	query := `
        SELECT agent,
               COUNT(*),
               AVG(CASE WHEN entry_mcap > 0 THEN current_mcap / entry_mcap ELSE 1 END),
               MAX(CASE WHEN entry_mcap > 0 THEN current_mcap / entry_mcap ELSE 1 END)
        FROM calls
        GROUP BY agent
        ORDER BY agent
    `
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query agent aggregates: %w", err)
	}
	defer rows.Close()

	var result []models.AgentAggregate
	for rows.Next() {
		var (
			a     models.AgentAggregate
			agent string
		)
		if err := rows.Scan(&agent, &a.Calls, &a.AvgMultiplier, &a.BestMultiplier); err != nil {
			return nil, fmt.Errorf("failed to scan agent aggregate: %w", err)
		}
		a.Agent = models.Agent(agent)
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agent aggregate rows: %w", err)
	}
	return result, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}

func (s *PostgresStorage) initTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS rounds (
			id VARCHAR(36) PRIMARY KEY,
			status VARCHAR(16) NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			ends_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			winner VARCHAR(16)
		)`,

		`CREATE UNIQUE INDEX IF NOT EXISTS rounds_single_active
			ON rounds (status) WHERE status = 'active'`,

		`CREATE TABLE IF NOT EXISTS calls (
			id VARCHAR(36) PRIMARY KEY,
			round_id VARCHAR(36) NOT NULL REFERENCES rounds(id),
			agent VARCHAR(16) NOT NULL,
			token_address VARCHAR(128) NOT NULL,
			token_symbol VARCHAR(64),
			token_name VARCHAR(128),
			chain VARCHAR(32),
			entry_price DOUBLE PRECISION NOT NULL DEFAULT 0,
			current_price DOUBLE PRECISION NOT NULL DEFAULT 0,
			entry_mcap DOUBLE PRECISION NOT NULL DEFAULT 0,
			current_mcap DOUBLE PRECISION NOT NULL DEFAULT 0,
			ath_mcap DOUBLE PRECISION NOT NULL DEFAULT 0,
			current_multiplier DOUBLE PRECISION NOT NULL DEFAULT 1,
			ath_multiplier DOUBLE PRECISION NOT NULL DEFAULT 1,
			reasoning TEXT,
			confidence INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS calls_round_created ON calls (round_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS round_results (
			id VARCHAR(36) PRIMARY KEY,
			winner VARCHAR(16) NOT NULL,
			opus_balance NUMERIC(18, 2) NOT NULL,
			codex_balance NUMERIC(18, 2) NOT NULL,
			action VARCHAR(16) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS predictions (
			id VARCHAR(36) PRIMARY KEY,
			question TEXT NOT NULL,
			category VARCHAR(32),
			asset VARCHAR(16) NOT NULL DEFAULT '',
			direction VARCHAR(8) NOT NULL DEFAULT '',
			target_price DOUBLE PRECISION NOT NULL DEFAULT 0,
			current_price DOUBLE PRECISION NOT NULL DEFAULT 0,
			opus_position VARCHAR(3) NOT NULL,
			opus_confidence INT NOT NULL,
			opus_reasoning TEXT,
			codex_position VARCHAR(3) NOT NULL,
			codex_confidence INT NOT NULL,
			codex_reasoning TEXT,
			resolved BOOLEAN NOT NULL DEFAULT FALSE,
			result VARCHAR(3),
			created_at TIMESTAMPTZ NOT NULL,
			resolved_at TIMESTAMPTZ
		)`,

		`CREATE INDEX IF NOT EXISTS predictions_unresolved ON predictions (resolved, created_at)`,
	}

	for _, query := range queries {
		_, err := s.db.Exec(query)
		if err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}
