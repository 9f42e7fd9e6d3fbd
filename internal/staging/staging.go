// Package staging holds draft field configuration edits until an admin
// commits them. A commit writes every staged edit in one transaction and then
// rebuilds the live pricing snapshot, so quotes never see half a changeset.
package staging

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/codr1/tidyquote/internal/db"
	"github.com/codr1/tidyquote/internal/fields"
	"github.com/codr1/tidyquote/internal/models"
	"github.com/codr1/tidyquote/internal/snapshot"
)

var (
	ErrNotFound           = errors.New("changeset not found")
	ErrEmptyChangeset     = errors.New("changeset has no staged edits")
	ErrUnknownFieldConfig = errors.New("field config not found")
)

// Reloader rebuilds the live snapshot after a commit.
type Reloader interface {
	Reload(ctx context.Context) (*snapshot.Snapshot, error)
}

// Changeset is a set of pending field config edits. Edits are keyed by
// normalized (category, option), so staging the same pair twice keeps the last.
type Changeset struct {
	ID        string               `json:"id"`
	CreatedAt time.Time            `json:"createdAt"`
	Upserts   []models.FieldConfig `json:"upserts"`
	// Deactivations holds field config IDs to soft-delete.
	Deactivations []int64 `json:"deactivations"`
}

type changeset struct {
	id            string
	createdAt     time.Time
	upserts       map[string]models.FieldConfig
	deactivations map[int64]struct{}
}

// CommitResult summarizes a committed changeset.
type CommitResult struct {
	ID              string `json:"id"`
	Upserted        int    `json:"upserted"`
	Deactivated     int    `json:"deactivated"`
	SnapshotVersion string `json:"snapshotVersion"`
}

type Manager struct {
	db     *db.DB
	loader Reloader
	now    func() time.Time

	mu   sync.Mutex
	sets map[string]*changeset
}

func NewManager(database *db.DB, loader Reloader) *Manager {
	return &Manager{
		db:     database,
		loader: loader,
		now:    time.Now,
		sets:   make(map[string]*changeset),
	}
}

// Open starts an empty changeset.
func (m *Manager) Open() Changeset {
	cs := &changeset{
		id:            uuid.NewString(),
		createdAt:     m.now(),
		upserts:       make(map[string]models.FieldConfig),
		deactivations: make(map[int64]struct{}),
	}
	m.mu.Lock()
	m.sets[cs.id] = cs
	m.mu.Unlock()
	return cs.view()
}

// ValidateFieldConfig checks cfg and rejects categories reserved for
// computed formula quantities.
func ValidateFieldConfig(cfg models.FieldConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return fields.ValidateCategory(cfg.Category)
}

// StageFieldConfig adds or replaces an upsert in changeset id.
func (m *Manager) StageFieldConfig(id string, cfg models.FieldConfig) (Changeset, error) {
	if err := ValidateFieldConfig(cfg); err != nil {
		return Changeset{}, err
	}
	cfg.Category = strings.TrimSpace(cfg.Category)
	cfg.Option = strings.TrimSpace(cfg.Option)

	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.sets[id]
	if !ok {
		return Changeset{}, ErrNotFound
	}
	cs.upserts[stagingKey(cfg.Category, cfg.Option)] = cfg
	return cs.view(), nil
}

// StageDeactivation marks field config configID for soft deletion.
func (m *Manager) StageDeactivation(id string, configID int64) (Changeset, error) {
	if configID <= 0 {
		return Changeset{}, fmt.Errorf("field config id must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.sets[id]
	if !ok {
		return Changeset{}, ErrNotFound
	}
	cs.deactivations[configID] = struct{}{}
	return cs.view(), nil
}

func (m *Manager) Get(id string) (Changeset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.sets[id]
	if !ok {
		return Changeset{}, ErrNotFound
	}
	return cs.view(), nil
}

// Discard drops changeset id without writing anything.
func (m *Manager) Discard(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sets[id]; !ok {
		return ErrNotFound
	}
	delete(m.sets, id)
	return nil
}

// Commit writes changeset id in one transaction and reloads the snapshot. The
// changeset is removed once the transaction commits; a failed transaction
// leaves it staged. A failed reload is logged and the next refresh picks the
// change up.
func (m *Manager) Commit(ctx context.Context, id string) (CommitResult, error) {
	logger := log.Ctx(ctx).With().Str("component", "staging").Str("changeset_id", id).Logger()

	m.mu.Lock()
	cs, ok := m.sets[id]
	if !ok {
		m.mu.Unlock()
		return CommitResult{}, ErrNotFound
	}
	view := cs.view()
	m.mu.Unlock()

	if len(view.Upserts) == 0 && len(view.Deactivations) == 0 {
		return CommitResult{}, ErrEmptyChangeset
	}

	result := CommitResult{ID: id}
	err := m.db.RunInTx(ctx, func(tx *db.DB) error {
		existing, err := tx.Queries.ListFieldConfigs(ctx, false)
		if err != nil {
			return fmt.Errorf("list field configs: %w", err)
		}
		ids := make(map[string]int64, len(existing))
		for _, cfg := range existing {
			if _, ok := ids[stagingKey(cfg.Category, cfg.Option)]; !ok {
				ids[stagingKey(cfg.Category, cfg.Option)] = cfg.ID
			}
		}
		for _, cfg := range view.Upserts {
			// A spelling variant of an existing option edits that row.
			if id, ok := ids[stagingKey(cfg.Category, cfg.Option)]; ok {
				cfg.ID = id
				if _, err := tx.Queries.UpdateFieldConfig(ctx, cfg); err != nil {
					return fmt.Errorf("update field config %s/%s: %w", cfg.Category, cfg.Option, err)
				}
			} else if _, err := tx.Queries.UpsertFieldConfig(ctx, cfg); err != nil {
				return fmt.Errorf("upsert field config %s/%s: %w", cfg.Category, cfg.Option, err)
			}
			result.Upserted++
		}
		for _, configID := range view.Deactivations {
			n, err := tx.Queries.SetFieldConfigActive(ctx, configID, false)
			if err != nil {
				return fmt.Errorf("deactivate field config %d: %w", configID, err)
			}
			if n == 0 {
				return fmt.Errorf("deactivate field config %d: %w", configID, ErrUnknownFieldConfig)
			}
			result.Deactivated++
		}
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("Changeset commit failed")
		return CommitResult{}, err
	}

	m.mu.Lock()
	delete(m.sets, id)
	m.mu.Unlock()

	if m.loader != nil {
		snap, err := m.loader.Reload(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Snapshot reload after commit failed")
		} else {
			result.SnapshotVersion = snap.Version
		}
	}

	logger.Info().
		Int("upserted", result.Upserted).
		Int("deactivated", result.Deactivated).
		Str("snapshot", result.SnapshotVersion).
		Msg("Changeset committed")
	return result, nil
}

func (cs *changeset) view() Changeset {
	v := Changeset{
		ID:            cs.id,
		CreatedAt:     cs.createdAt,
		Upserts:       make([]models.FieldConfig, 0, len(cs.upserts)),
		Deactivations: make([]int64, 0, len(cs.deactivations)),
	}
	for _, cfg := range cs.upserts {
		v.Upserts = append(v.Upserts, cfg)
	}
	sort.Slice(v.Upserts, func(i, j int) bool {
		if v.Upserts[i].Category != v.Upserts[j].Category {
			return v.Upserts[i].Category < v.Upserts[j].Category
		}
		return v.Upserts[i].Option < v.Upserts[j].Option
	})
	for configID := range cs.deactivations {
		v.Deactivations = append(v.Deactivations, configID)
	}
	sort.Slice(v.Deactivations, func(i, j int) bool { return v.Deactivations[i] < v.Deactivations[j] })
	return v
}

func stagingKey(category, option string) string {
	return fields.Normalize(category) + "\x00" + fields.Normalize(option)
}
