package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("routing rule not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Rule assigns leads to an advisor. Matchers are AND-combined; a nil matcher
// matches everything. Rules are evaluated in ascending priority order and
// the first match wins.
type Rule struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Name      string
	Priority  int
	Source    *string
	Program   *string
	MinScore  *float64
	AdvisorID uuid.UUID
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

const ruleColumns = `id, tenant_id, name, priority, source, program, min_score, advisor_id, active, created_at, updated_at`

func (r *Repository) Create(ctx context.Context, rule Rule) (Rule, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO routing_rules (id, tenant_id, name, priority, source, program, min_score, advisor_id, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+ruleColumns+`
	`, rule.ID, rule.TenantID, rule.Name, rule.Priority, rule.Source, rule.Program, rule.MinScore, rule.AdvisorID, rule.Active).
		Scan(scanTargets(&rule)...)
	return rule, err
}

func (r *Repository) Update(ctx context.Context, rule Rule) (Rule, error) {
	err := r.pool.QueryRow(ctx, `
		UPDATE routing_rules
		SET name = $3, priority = $4, source = $5, program = $6, min_score = $7,
		    advisor_id = $8, active = $9, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+ruleColumns+`
	`, rule.ID, rule.TenantID, rule.Name, rule.Priority, rule.Source, rule.Program, rule.MinScore, rule.AdvisorID, rule.Active).
		Scan(scanTargets(&rule)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rule{}, ErrNotFound
	}
	return rule, err
}

func (r *Repository) Delete(ctx context.Context, tenantID, ruleID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM routing_rules WHERE id = $1 AND tenant_id = $2
	`, ruleID, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, tenantID, ruleID uuid.UUID) (Rule, error) {
	var rule Rule
	err := r.pool.QueryRow(ctx, `
		SELECT `+ruleColumns+`
		FROM routing_rules
		WHERE id = $1 AND tenant_id = $2
	`, ruleID, tenantID).Scan(scanTargets(&rule)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rule{}, ErrNotFound
	}
	return rule, err
}

func (r *Repository) List(ctx context.Context, tenantID uuid.UUID) ([]Rule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM routing_rules
		WHERE tenant_id = $1
		ORDER BY priority ASC, created_at ASC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRules(rows)
}

// ListActive returns active rules in evaluation order.
func (r *Repository) ListActive(ctx context.Context, tenantID uuid.UUID) ([]Rule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM routing_rules
		WHERE tenant_id = $1 AND active
		ORDER BY priority ASC, created_at ASC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRules(rows)
}

func scanTargets(rule *Rule) []any {
	return []any{
		&rule.ID, &rule.TenantID, &rule.Name, &rule.Priority,
		&rule.Source, &rule.Program, &rule.MinScore, &rule.AdvisorID,
		&rule.Active, &rule.CreatedAt, &rule.UpdatedAt,
	}
}

func collectRules(rows pgx.Rows) ([]Rule, error) {
	rules := make([]Rule, 0)
	for rows.Next() {
		var rule Rule
		if err := rows.Scan(scanTargets(&rule)...); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}
