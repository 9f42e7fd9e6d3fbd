package snapshot

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/codr1/tidyquote/internal/models"
)

type fakeReader struct {
	configs  []models.FieldConfig
	defaults []models.CategoryDefault
	rules    []models.SchedulingRule
	formulas []models.Formula
	err      error
}

func (f *fakeReader) ListFieldConfigs(context.Context, bool) ([]models.FieldConfig, error) {
	return f.configs, f.err
}

func (f *fakeReader) ListCategoryDefaults(context.Context) ([]models.CategoryDefault, error) {
	return f.defaults, nil
}

func (f *fakeReader) ListSchedulingRules(context.Context, *models.RuleType, bool) ([]models.SchedulingRule, error) {
	return f.rules, nil
}

func (f *fakeReader) ListFormulas(context.Context, bool) ([]models.Formula, error) {
	return f.formulas, nil
}

type recordingReporter struct {
	mu    sync.Mutex
	names []string
}

func (r *recordingReporter) ReportFormulaFailure(_ context.Context, name string, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
}

func elements(src ...models.FormulaElement) []models.FormulaElement { return src }

func fieldEl(ref string) models.FormulaElement {
	return models.FormulaElement{Kind: models.ElementField, Reference: ref}
}

func opEl(v string) models.FormulaElement {
	return models.FormulaElement{Kind: models.ElementOperator, Value: v}
}

func testReader() *fakeReader {
	return &fakeReader{
		configs: []models.FieldConfig{
			{Category: "Bedrooms", Option: "3 bedrooms", Time: 90, IsActive: true},
			{Category: "Window Cleaning", Option: "Inside only", Value: 10, IsActive: true},
		},
		formulas: []models.Formula{
			{Name: "Base time", ResultType: models.ResultTime, IsActive: true,
				Elements: elements(fieldEl("bedrooms.time"), opEl("+"), fieldEl("windowcleaning.time"))},
			{Name: "Cleaning Cost", ResultType: models.ResultCost, IsActive: true,
				Elements: elements(fieldEl("totalhours"), opEl("*"), fieldEl("hourlyrate"))},
			{Name: "Broken", ResultType: models.ResultCost, IsActive: true,
				Elements: elements(opEl("("), fieldEl("bedrooms"))},
			{Name: "Unknown", ResultType: models.ResultCost, IsActive: true,
				Elements: elements(fieldEl("garage.value"))},
			{Name: "Disabled", ResultType: models.ResultCost, IsActive: false,
				Elements: elements(fieldEl("bedrooms"))},
		},
	}
}

func TestBuildExcludesInvalidFormulas(t *testing.T) {
	r := testReader()
	snap, rejected := Build("v1", time.Now(), r.configs, nil, nil, r.formulas)

	if len(rejected) != 2 {
		t.Fatalf("Build() rejected %d formulas, want 2: %+v", len(rejected), rejected)
	}
	if _, ok := snap.Formula("base time"); !ok {
		t.Fatalf("Formula(base time) missing")
	}
	if _, ok := snap.Formula("Cleaning Cost"); !ok {
		t.Fatalf("Formula(Cleaning Cost) missing")
	}
	for _, name := range []string{"Broken", "Unknown", "Disabled"} {
		if _, ok := snap.Formula(name); ok {
			t.Errorf("Formula(%s) present, want excluded", name)
		}
	}
	if len(snap.Formulas) != 2 {
		t.Fatalf("Formulas = %d, want 2", len(snap.Formulas))
	}
	if snap.HasPipeline() {
		t.Fatalf("HasPipeline() = true, want false")
	}
}

func TestBuildRejectsDuplicateFormulaNames(t *testing.T) {
	r := testReader()
	formulas := append(r.formulas, models.Formula{
		Name: "Base-Time", ResultType: models.ResultTime, IsActive: true,
		Elements: elements(fieldEl("bedrooms.time")),
	})
	snap, rejected := Build("v1", time.Now(), r.configs, nil, nil, formulas)

	var dup *Rejection
	for i := range rejected {
		if rejected[i].Formula == "Base-Time" {
			dup = &rejected[i]
		}
	}
	if dup == nil || !errors.Is(dup.Err, ErrDuplicateFormula) {
		t.Fatalf("Build() rejections = %+v, want Base-Time rejected as duplicate", rejected)
	}
	expr, ok := snap.Formula("base time")
	if !ok {
		t.Fatalf("Formula(base time) missing")
	}
	if refs := expr.Refs(); len(refs) != 2 {
		t.Fatalf("Formula(base time) refs = %v, want the first definition", refs)
	}
}

func TestLoaderReloadSwapsSnapshot(t *testing.T) {
	store := NewStore(nil)
	if store.Load().Version != "empty" {
		t.Fatalf("initial version = %q, want empty", store.Load().Version)
	}

	reporter := &recordingReporter{}
	loader := NewLoader(testReader(), store, reporter)
	snap, err := loader.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if store.Load() != snap {
		t.Fatalf("store does not hold the reloaded snapshot")
	}
	if len(reporter.names) != 2 {
		t.Fatalf("reported %v, want 2 rejected formulas", reporter.names)
	}
	if got := snap.Resolver.Time(context.Background(), "bedrooms", models.BookingDraft{Bedrooms: "3"}); got != 90 {
		t.Fatalf("Resolver.Time() = %v, want 90", got)
	}

	again, err := loader.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if again.Version == snap.Version {
		t.Fatalf("Reload() reused version %q", again.Version)
	}
}

func TestLoaderLogsOneSummaryPerReload(t *testing.T) {
	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())

	if _, err := NewLoader(testReader(), NewStore(nil), nil).Reload(ctx); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	var summaries []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if strings.Contains(line, `"message":"Pricing snapshot loaded"`) {
			summaries = append(summaries, line)
		}
	}
	if len(summaries) != 1 {
		t.Fatalf("summary lines = %d, want 1: %s", len(summaries), buf.String())
	}
	for _, field := range []string{`"field_configs":2`, `"rejected_formulas":2`, `"pipeline":false`} {
		if !strings.Contains(summaries[0], field) {
			t.Errorf("summary %s missing %s", summaries[0], field)
		}
	}
}

func TestLoaderKeepsSnapshotOnError(t *testing.T) {
	store := NewStore(nil)
	before := store.Load()
	reader := testReader()
	reader.err = errors.New("disk on fire")

	if _, err := NewLoader(reader, store, nil).Reload(context.Background()); err == nil {
		t.Fatalf("Reload() error = nil, want error")
	}
	if store.Load() != before {
		t.Fatalf("store changed after failed reload")
	}
}

func TestKnownNamesIncludePipelineScalars(t *testing.T) {
	names := KnownNames(nil)
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	for _, want := range []string{"bedrooms", "servicetype", "basetime", "cleaningcost", "onetimecharge"} {
		if !seen[want] {
			t.Errorf("KnownNames() missing %q", want)
		}
	}
}
