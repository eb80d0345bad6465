package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrModelNotFound = errors.New("scoring model not found")
	ErrNoActiveModel = errors.New("no active scoring model")
	ErrScoreNotFound = errors.New("lead score not found")
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Model is a versioned set of feature weights. At most one model per tenant
// is active at a time, enforced by a partial unique index.
type Model struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	Name        string
	Version     int
	Weights     map[string]float64
	Active      bool
	CreatedAt   time.Time
	ActivatedAt *time.Time
}

// BreakdownEntry explains one feature's contribution to a computed score.
type BreakdownEntry struct {
	Feature string  `json:"feature"`
	Label   string  `json:"label"`
	Weight  float64 `json:"weight"`
	Value   float64 `json:"value"`
	Points  float64 `json:"points"`
	Impact  string  `json:"impact"`
}

// Score is the current score of a lead under the model that computed it.
type Score struct {
	LeadID       uuid.UUID
	TenantID     uuid.UUID
	Score        int
	ModelID      uuid.UUID
	ModelVersion int
	Breakdown    []BreakdownEntry
	ComputedAt   time.Time
}

// HistoryEntry is one past computation, newest first when listed.
type HistoryEntry struct {
	ID            uuid.UUID
	LeadID        uuid.UUID
	Score         int
	PreviousScore *int
	ModelID       uuid.UUID
	ModelVersion  int
	Breakdown     []BreakdownEntry
	ComputedAt    time.Time
}

func (r *Repository) CreateModel(ctx context.Context, tenantID uuid.UUID, name string, weights map[string]float64) (Model, error) {
	weightsJSON, err := json.Marshal(weights)
	if err != nil {
		return Model{}, fmt.Errorf("marshal weights: %w", err)
	}

	var m Model
	var weightsRaw []byte
	err = r.pool.QueryRow(ctx, `
		INSERT INTO scoring_models (id, tenant_id, name, version, weights, active)
		VALUES (
			$1, $2, $3,
			COALESCE((SELECT MAX(version) FROM scoring_models WHERE tenant_id = $2 AND name = $3), 0) + 1,
			$4, false
		)
		RETURNING id, tenant_id, name, version, weights, active, created_at, activated_at
	`, uuid.New(), tenantID, name, weightsJSON).Scan(
		&m.ID, &m.TenantID, &m.Name, &m.Version, &weightsRaw, &m.Active, &m.CreatedAt, &m.ActivatedAt,
	)
	if err != nil {
		return Model{}, err
	}
	if err := json.Unmarshal(weightsRaw, &m.Weights); err != nil {
		return Model{}, fmt.Errorf("unmarshal weights: %w", err)
	}
	return m, nil
}

// ActivateModel makes the given model the tenant's active one, deactivating
// whichever model held that slot. Both writes happen in one transaction so
// readers never observe two active models.
func (r *Repository) ActivateModel(ctx context.Context, tenantID, modelID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE scoring_models
		SET active = false
		WHERE tenant_id = $1 AND active = true AND id <> $2
	`, tenantID, modelID); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE scoring_models
		SET active = true, activated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, modelID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrModelNotFound
	}

	return tx.Commit(ctx)
}

func (r *Repository) GetActiveModel(ctx context.Context, tenantID uuid.UUID) (Model, error) {
	m, err := r.scanModel(r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, version, weights, active, created_at, activated_at
		FROM scoring_models
		WHERE tenant_id = $1 AND active = true
	`, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Model{}, ErrNoActiveModel
	}
	return m, err
}

func (r *Repository) GetModel(ctx context.Context, tenantID, modelID uuid.UUID) (Model, error) {
	m, err := r.scanModel(r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, version, weights, active, created_at, activated_at
		FROM scoring_models
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, modelID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Model{}, ErrModelNotFound
	}
	return m, err
}

func (r *Repository) ListModels(ctx context.Context, tenantID uuid.UUID) ([]Model, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, name, version, weights, active, created_at, activated_at
		FROM scoring_models
		WHERE tenant_id = $1
		ORDER BY name ASC, version DESC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	models := make([]Model, 0)
	for rows.Next() {
		m, err := r.scanModel(rows)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, rows.Err()
}

// SaveScore persists one computation: the current-score row is upserted, a
// history row is appended, and the full feature vector goes to the prediction
// ledger. All three in one transaction so the audit trail cannot drift from
// the current value.
func (r *Repository) SaveScore(ctx context.Context, score Score, features map[string]float64) error {
	breakdownJSON, err := json.Marshal(score.Breakdown)
	if err != nil {
		return fmt.Errorf("marshal breakdown: %w", err)
	}
	featuresJSON, err := json.Marshal(features)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var previous *int
	err = tx.QueryRow(ctx, `
		SELECT score FROM lead_scores WHERE tenant_id = $1 AND lead_id = $2
	`, score.TenantID, score.LeadID).Scan(&previous)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO lead_scores (lead_id, tenant_id, score, model_id, model_version, breakdown, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, lead_id) DO UPDATE SET
			score = EXCLUDED.score,
			model_id = EXCLUDED.model_id,
			model_version = EXCLUDED.model_version,
			breakdown = EXCLUDED.breakdown,
			computed_at = EXCLUDED.computed_at
	`, score.LeadID, score.TenantID, score.Score, score.ModelID, score.ModelVersion, breakdownJSON, score.ComputedAt); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO lead_score_history (id, tenant_id, lead_id, score, previous_score, model_id, model_version, breakdown, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, uuid.New(), score.TenantID, score.LeadID, score.Score, previous, score.ModelID, score.ModelVersion, breakdownJSON, score.ComputedAt); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO score_predictions (id, tenant_id, lead_id, model_id, model_version, features, score, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.New(), score.TenantID, score.LeadID, score.ModelID, score.ModelVersion, featuresJSON, score.Score, score.ComputedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *Repository) GetCurrentScore(ctx context.Context, tenantID, leadID uuid.UUID) (Score, error) {
	var s Score
	var breakdownRaw []byte
	err := r.pool.QueryRow(ctx, `
		SELECT lead_id, tenant_id, score, model_id, model_version, breakdown, computed_at
		FROM lead_scores
		WHERE tenant_id = $1 AND lead_id = $2
	`, tenantID, leadID).Scan(
		&s.LeadID, &s.TenantID, &s.Score, &s.ModelID, &s.ModelVersion, &breakdownRaw, &s.ComputedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Score{}, ErrScoreNotFound
	}
	if err != nil {
		return Score{}, err
	}
	if err := json.Unmarshal(breakdownRaw, &s.Breakdown); err != nil {
		return Score{}, fmt.Errorf("unmarshal breakdown: %w", err)
	}
	return s, nil
}

func (r *Repository) ListScoreHistory(ctx context.Context, tenantID, leadID uuid.UUID, limit int) ([]HistoryEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, score, previous_score, model_id, model_version, breakdown, computed_at
		FROM lead_score_history
		WHERE tenant_id = $1 AND lead_id = $2
		ORDER BY computed_at DESC
		LIMIT $3
	`, tenantID, leadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0)
	for rows.Next() {
		var e HistoryEntry
		var breakdownRaw []byte
		if err := rows.Scan(&e.ID, &e.LeadID, &e.Score, &e.PreviousScore, &e.ModelID, &e.ModelVersion, &breakdownRaw, &e.ComputedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(breakdownRaw, &e.Breakdown); err != nil {
			return nil, fmt.Errorf("unmarshal breakdown: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanModel(row rowScanner) (Model, error) {
	var m Model
	var weightsRaw []byte
	if err := row.Scan(&m.ID, &m.TenantID, &m.Name, &m.Version, &weightsRaw, &m.Active, &m.CreatedAt, &m.ActivatedAt); err != nil {
		return Model{}, err
	}
	if err := json.Unmarshal(weightsRaw, &m.Weights); err != nil {
		return Model{}, fmt.Errorf("unmarshal weights: %w", err)
	}
	return m, nil
}
