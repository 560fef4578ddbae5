package automation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the pgx surface the repository runs against.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists automation rules.
type Repository struct {
	pool Querier
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool Querier) *Repository {
	if pool == nil {
		panic("automation: pgx pool required")
	}
	return &Repository{pool: pool}
}

const ruleColumns = `id, trigger, custom_trigger_name, channel, active,
	subject, template, sent_count, last_run_at, created_at, updated_at`

// ListActive returns active rules subscribed to the trigger. For custom
// triggers only rules whose custom name matches are returned.
func (r *Repository) ListActive(ctx context.Context, trigger Trigger, customName string) ([]Rule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM automation_rules
		WHERE active
		  AND trigger = $1
		  AND ($1 <> 'custom' OR custom_trigger_name = $2)
		ORDER BY id`, trigger, customName)
	if err != nil {
		return nil, fmt.Errorf("automation: list active rules: %w", err)
	}
	defer rows.Close()
	return collectRules(rows)
}

// List returns all rules for the admin surface.
func (r *Repository) List(ctx context.Context) ([]Rule, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+ruleColumns+` FROM automation_rules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("automation: list rules: %w", err)
	}
	defer rows.Close()
	return collectRules(rows)
}

// Get returns one rule, nil when absent.
func (r *Repository) Get(ctx context.Context, id int64) (*Rule, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM automation_rules WHERE id = $1`, id)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("automation: load rule: %w", err)
	}
	return rule, nil
}

// Insert persists a new rule.
func (r *Repository) Insert(ctx context.Context, rule *Rule) error {
	if !rule.Trigger.Valid() {
		return fmt.Errorf("automation: unknown trigger %q", rule.Trigger)
	}
	if !rule.Channel.Valid() {
		return fmt.Errorf("automation: unknown channel %q", rule.Channel)
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO automation_rules (trigger, custom_trigger_name, channel,
			active, subject, template)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		rule.Trigger, rule.CustomTriggerName, rule.Channel, rule.Active,
		rule.Subject, rule.Template,
	)
	if err := row.Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
		return fmt.Errorf("automation: insert rule: %w", err)
	}
	return nil
}

// Update rewrites a rule's configuration fields.
func (r *Repository) Update(ctx context.Context, rule *Rule) (bool, error) {
	if !rule.Trigger.Valid() {
		return false, fmt.Errorf("automation: unknown trigger %q", rule.Trigger)
	}
	if !rule.Channel.Valid() {
		return false, fmt.Errorf("automation: unknown channel %q", rule.Channel)
	}
	ct, err := r.pool.Exec(ctx, `
		UPDATE automation_rules
		SET trigger = $2, custom_trigger_name = $3, channel = $4, active = $5,
			subject = $6, template = $7, updated_at = now()
		WHERE id = $1`,
		rule.ID, rule.Trigger, rule.CustomTriggerName, rule.Channel,
		rule.Active, rule.Subject, rule.Template,
	)
	if err != nil {
		return false, fmt.Errorf("automation: update rule: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// Delete removes a rule.
func (r *Repository) Delete(ctx context.Context, id int64) (bool, error) {
	ct, err := r.pool.Exec(ctx, `DELETE FROM automation_rules WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("automation: delete rule: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// MarkSent increments the rule's sent counter and stamps its last run.
func (r *Repository) MarkSent(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE automation_rules
		SET sent_count = sent_count + 1, last_run_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("automation: mark sent: %w", err)
	}
	return nil
}

func collectRules(rows pgx.Rows) ([]Rule, error) {
	var out []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("automation: scan rule: %w", err)
		}
		out = append(out, *rule)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var rule Rule
	err := row.Scan(
		&rule.ID, &rule.Trigger, &rule.CustomTriggerName, &rule.Channel,
		&rule.Active, &rule.Subject, &rule.Template, &rule.SentCount,
		&rule.LastRunAt, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}
