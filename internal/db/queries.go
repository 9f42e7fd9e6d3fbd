// internal/db/queries.go
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/codr1/tidyquote/internal/models"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries is the configuration and quote record store.
type Queries struct {
	db DBTX
}

func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

// ---- field configs ----

const fieldConfigColumns = `id, category, option_name, value, time_minutes, min_value, max_value, is_active, created_at, updated_at`

func scanFieldConfig(row scanner) (models.FieldConfig, error) {
	var (
		cfg      models.FieldConfig
		minValue sql.NullFloat64
		maxValue sql.NullFloat64
	)
	if err := row.Scan(
		&cfg.ID, &cfg.Category, &cfg.Option, &cfg.Value, &cfg.Time,
		&minValue, &maxValue, &cfg.IsActive, &cfg.CreatedAt, &cfg.UpdatedAt,
	); err != nil {
		return models.FieldConfig{}, err
	}
	cfg.MinValue = floatPtr(minValue)
	cfg.MaxValue = floatPtr(maxValue)
	return cfg, nil
}

// ListFieldConfigs returns field configs ordered by category and id.
func (q *Queries) ListFieldConfigs(ctx context.Context, activeOnly bool) ([]models.FieldConfig, error) {
	query := `SELECT ` + fieldConfigColumns + ` FROM field_configs`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY category, id`

	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.FieldConfig
	for rows.Next() {
		cfg, err := scanFieldConfig(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, cfg)
	}
	return items, rows.Err()
}

func (q *Queries) GetFieldConfig(ctx context.Context, id int64) (models.FieldConfig, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+fieldConfigColumns+` FROM field_configs WHERE id = ?`, id)
	return scanFieldConfig(row)
}

// UpsertFieldConfig inserts cfg or updates the row with the same category and option.
func (q *Queries) UpsertFieldConfig(ctx context.Context, cfg models.FieldConfig) (models.FieldConfig, error) {
	row := q.db.QueryRowContext(ctx, `
INSERT INTO field_configs (category, option_name, value, time_minutes, min_value, max_value, is_active)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (category, option_name) DO UPDATE SET
    value = excluded.value,
    time_minutes = excluded.time_minutes,
    min_value = excluded.min_value,
    max_value = excluded.max_value,
    is_active = excluded.is_active,
    updated_at = CURRENT_TIMESTAMP
RETURNING `+fieldConfigColumns,
		strings.TrimSpace(cfg.Category), strings.TrimSpace(cfg.Option), cfg.Value, cfg.Time,
		nullFloat(cfg.MinValue), nullFloat(cfg.MaxValue), cfg.IsActive,
	)
	return scanFieldConfig(row)
}

// UpdateFieldConfig overwrites row cfg.ID, including its category and option text.
func (q *Queries) UpdateFieldConfig(ctx context.Context, cfg models.FieldConfig) (models.FieldConfig, error) {
	row := q.db.QueryRowContext(ctx, `
UPDATE field_configs SET
    category = ?,
    option_name = ?,
    value = ?,
    time_minutes = ?,
    min_value = ?,
    max_value = ?,
    is_active = ?,
    updated_at = CURRENT_TIMESTAMP
WHERE id = ?
RETURNING `+fieldConfigColumns,
		strings.TrimSpace(cfg.Category), strings.TrimSpace(cfg.Option), cfg.Value, cfg.Time,
		nullFloat(cfg.MinValue), nullFloat(cfg.MaxValue), cfg.IsActive, cfg.ID,
	)
	return scanFieldConfig(row)
}

// SetFieldConfigActive flips the soft-delete flag and returns the rows affected.
func (q *Queries) SetFieldConfigActive(ctx context.Context, id int64, active bool) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE field_configs SET is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, active, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---- category defaults ----

func (q *Queries) ListCategoryDefaults(ctx context.Context) ([]models.CategoryDefault, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT category, default_option FROM category_defaults ORDER BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.CategoryDefault
	for rows.Next() {
		var (
			item   models.CategoryDefault
			option sql.NullString
		)
		if err := rows.Scan(&item.Category, &option); err != nil {
			return nil, err
		}
		if option.Valid {
			item.DefaultOption = &option.String
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (q *Queries) UpsertCategoryDefault(ctx context.Context, d models.CategoryDefault) error {
	var option sql.NullString
	if d.DefaultOption != nil {
		option = sql.NullString{String: *d.DefaultOption, Valid: true}
	}
	_, err := q.db.ExecContext(ctx, `
INSERT INTO category_defaults (category, default_option) VALUES (?, ?)
ON CONFLICT (category) DO UPDATE SET default_option = excluded.default_option`,
		strings.TrimSpace(d.Category), option)
	return err
}

// ---- scheduling rules ----

const schedulingRuleColumns = `id, rule_type, day_of_week, start_time, end_time, modifier_type, price_modifier, label, is_active`

func scanSchedulingRule(row scanner) (models.SchedulingRule, error) {
	var (
		rule models.SchedulingRule
		day  sql.NullInt64
	)
	if err := row.Scan(
		&rule.ID, &rule.RuleType, &day, &rule.StartTime, &rule.EndTime,
		&rule.ModifierType, &rule.PriceModifier, &rule.Label, &rule.IsActive,
	); err != nil {
		return models.SchedulingRule{}, err
	}
	if day.Valid {
		d := int(day.Int64)
		rule.DayOfWeek = &d
	}
	return rule, nil
}

// ListSchedulingRules returns rules in id order, optionally filtered by type.
func (q *Queries) ListSchedulingRules(ctx context.Context, ruleType *models.RuleType, activeOnly bool) ([]models.SchedulingRule, error) {
	var (
		where []string
		args  []any
	)
	if ruleType != nil {
		where = append(where, "rule_type = ?")
		args = append(args, string(*ruleType))
	}
	if activeOnly {
		where = append(where, "is_active = 1")
	}
	query := `SELECT ` + schedulingRuleColumns + ` FROM scheduling_rules`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.SchedulingRule
	for rows.Next() {
		rule, err := scanSchedulingRule(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rule)
	}
	return items, rows.Err()
}

func (q *Queries) CreateSchedulingRule(ctx context.Context, rule models.SchedulingRule) (models.SchedulingRule, error) {
	var day sql.NullInt64
	if rule.DayOfWeek != nil {
		day = sql.NullInt64{Int64: int64(*rule.DayOfWeek), Valid: true}
	}
	row := q.db.QueryRowContext(ctx, `
INSERT INTO scheduling_rules (rule_type, day_of_week, start_time, end_time, modifier_type, price_modifier, label, is_active)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING `+schedulingRuleColumns,
		string(rule.RuleType), day, rule.StartTime, rule.EndTime,
		string(rule.ModifierType), rule.PriceModifier, rule.Label, rule.IsActive,
	)
	return scanSchedulingRule(row)
}

// DeleteSchedulingRules removes every rule. Used when reseeding.
func (q *Queries) DeleteSchedulingRules(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM scheduling_rules`)
	return err
}

// ---- formulas ----

const formulaColumns = `id, name, result_type, elements, is_active, created_at, updated_at`

func scanFormula(row scanner) (models.Formula, error) {
	var (
		f        models.Formula
		elements string
	)
	if err := row.Scan(&f.ID, &f.Name, &f.ResultType, &elements, &f.IsActive, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return models.Formula{}, err
	}
	if err := json.Unmarshal([]byte(elements), &f.Elements); err != nil {
		return models.Formula{}, fmt.Errorf("decode elements of formula %d: %w", f.ID, err)
	}
	return f, nil
}

func (q *Queries) ListFormulas(ctx context.Context, activeOnly bool) ([]models.Formula, error) {
	query := `SELECT ` + formulaColumns + ` FROM formulas`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY id`

	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.Formula
	for rows.Next() {
		f, err := scanFormula(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	return items, rows.Err()
}

func (q *Queries) GetFormula(ctx context.Context, id int64) (models.Formula, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+formulaColumns+` FROM formulas WHERE id = ?`, id)
	return scanFormula(row)
}

func (q *Queries) CreateFormula(ctx context.Context, f models.Formula) (models.Formula, error) {
	elements, err := json.Marshal(f.Elements)
	if err != nil {
		return models.Formula{}, fmt.Errorf("encode elements: %w", err)
	}
	row := q.db.QueryRowContext(ctx, `
INSERT INTO formulas (name, result_type, elements, is_active) VALUES (?, ?, ?, ?)
RETURNING `+formulaColumns,
		f.Name, string(f.ResultType), string(elements), f.IsActive,
	)
	return scanFormula(row)
}

// UpdateFormula replaces the formula with f.ID. It returns sql.ErrNoRows when
// no such formula exists.
func (q *Queries) UpdateFormula(ctx context.Context, f models.Formula) (models.Formula, error) {
	elements, err := json.Marshal(f.Elements)
	if err != nil {
		return models.Formula{}, fmt.Errorf("encode elements: %w", err)
	}
	row := q.db.QueryRowContext(ctx, `
UPDATE formulas
SET name = ?, result_type = ?, elements = ?, is_active = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?
RETURNING `+formulaColumns,
		f.Name, string(f.ResultType), string(elements), f.IsActive, f.ID,
	)
	return scanFormula(row)
}

// UpsertFormulaByName inserts f or replaces the formula with the same name.
func (q *Queries) UpsertFormulaByName(ctx context.Context, f models.Formula) (models.Formula, error) {
	elements, err := json.Marshal(f.Elements)
	if err != nil {
		return models.Formula{}, fmt.Errorf("encode elements: %w", err)
	}
	row := q.db.QueryRowContext(ctx, `
INSERT INTO formulas (name, result_type, elements, is_active) VALUES (?, ?, ?, ?)
ON CONFLICT (name) DO UPDATE SET
    result_type = excluded.result_type,
    elements = excluded.elements,
    is_active = excluded.is_active,
    updated_at = CURRENT_TIMESTAMP
RETURNING `+formulaColumns,
		f.Name, string(f.ResultType), string(elements), f.IsActive,
	)
	return scanFormula(row)
}

// DeactivateFormula soft-deletes a formula and returns the rows affected.
func (q *Queries) DeactivateFormula(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE formulas SET is_active = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---- quote records ----

func (q *Queries) InsertQuote(ctx context.Context, rec models.QuoteRecord) error {
	draft, err := json.Marshal(rec.Draft)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	result, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = q.db.ExecContext(ctx, `
INSERT INTO quotes (id, draft, result, snapshot_version, total_cost, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, string(draft), string(result), rec.SnapshotVersion, rec.Result.TotalCost, createdAt.UTC(),
	)
	return err
}

func (q *Queries) GetQuote(ctx context.Context, id string) (models.QuoteRecord, error) {
	var (
		rec    models.QuoteRecord
		draft  string
		result string
	)
	err := q.db.QueryRowContext(ctx,
		`SELECT id, draft, result, snapshot_version, created_at FROM quotes WHERE id = ?`, id,
	).Scan(&rec.ID, &draft, &result, &rec.SnapshotVersion, &rec.CreatedAt)
	if err != nil {
		return models.QuoteRecord{}, err
	}
	if err := json.Unmarshal([]byte(draft), &rec.Draft); err != nil {
		return models.QuoteRecord{}, fmt.Errorf("decode draft of quote %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(result), &rec.Result); err != nil {
		return models.QuoteRecord{}, fmt.Errorf("decode result of quote %s: %w", id, err)
	}
	return rec, nil
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
