package snapshot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/codr1/tidyquote/internal/models"
)

// Reader is the read side of the configuration store.
type Reader interface {
	ListFieldConfigs(ctx context.Context, activeOnly bool) ([]models.FieldConfig, error)
	ListCategoryDefaults(ctx context.Context) ([]models.CategoryDefault, error)
	ListSchedulingRules(ctx context.Context, ruleType *models.RuleType, activeOnly bool) ([]models.SchedulingRule, error)
	ListFormulas(ctx context.Context, activeOnly bool) ([]models.Formula, error)
}

// Reporter receives formulas excluded from a snapshot.
type Reporter interface {
	ReportFormulaFailure(ctx context.Context, formulaName string, err error)
}

// Loader fetches the configuration and installs it in a Store.
type Loader struct {
	reader   Reader
	store    *Store
	reporter Reporter
	now      func() time.Time

	mu sync.Mutex
}

// NewLoader creates a loader. reporter may be nil.
func NewLoader(reader Reader, store *Store, reporter Reporter) *Loader {
	return &Loader{
		reader:   reader,
		store:    store,
		reporter: reporter,
		now:      time.Now,
	}
}

// Reload reads the active configuration, builds a new snapshot and swaps it
// in. On error the current snapshot is left in place.
func (l *Loader) Reload(ctx context.Context) (*Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	logger := log.Ctx(ctx).With().Str("component", "snapshot_loader").Logger()

	configs, err := l.reader.ListFieldConfigs(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list field configs: %w", err)
	}
	defaults, err := l.reader.ListCategoryDefaults(ctx)
	if err != nil {
		return nil, fmt.Errorf("list category defaults: %w", err)
	}
	rules, err := l.reader.ListSchedulingRules(ctx, nil, true)
	if err != nil {
		return nil, fmt.Errorf("list scheduling rules: %w", err)
	}
	formulas, err := l.reader.ListFormulas(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list formulas: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap, rejected := Build(uuid.NewString(), l.now(), configs, defaults, rules, formulas)
	for _, r := range rejected {
		logger.Warn().
			Err(r.Err).
			Str("formula", r.Formula).
			Msg("Formula failed validation and was excluded from the snapshot")
		if l.reporter != nil {
			l.reporter.ReportFormulaFailure(ctx, r.Formula, r.Err)
		}
	}

	previous := l.store.Swap(snap)
	event := logger.Info().
		Str("version", snap.Version).
		Int("field_configs", len(configs)).
		Int("rules", len(rules)).
		Int("formulas", len(snap.Formulas)).
		Int("rejected_formulas", len(rejected)).
		Bool("pipeline", snap.HasPipeline())
	if previous != nil {
		event = event.Str("previous_version", previous.Version)
	}
	event.Msg("Pricing snapshot loaded")

	return snap, nil
}
