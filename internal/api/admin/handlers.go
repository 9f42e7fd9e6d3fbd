// internal/api/admin/handlers.go
package admin

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/tidyquote/internal/api/apiutil"
	"github.com/codr1/tidyquote/internal/models"
	"github.com/codr1/tidyquote/internal/snapshot"
	"github.com/codr1/tidyquote/internal/staging"
)

const (
	commitTimeout    = 10 * time.Second
	changesetIDParam = "id"
)

// Reloader rebuilds the pricing snapshot on demand.
type Reloader interface {
	Reload(ctx context.Context) (*snapshot.Snapshot, error)
}

var (
	manager  *staging.Manager
	reloader Reloader
	initOnce sync.Once
)

type stageRequest struct {
	Upserts       []models.FieldConfig `json:"upserts"`
	Deactivations []int64              `json:"deactivations"`
}

type reloadResponse struct {
	SnapshotVersion string    `json:"snapshotVersion"`
	LoadedAt        time.Time `json:"loadedAt"`
	FieldConfigs    int       `json:"fieldConfigs"`
	Rules           int       `json:"rules"`
	Formulas        int       `json:"formulas"`
	Pipeline        bool      `json:"pipeline"`
}

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(m *staging.Manager, r Reloader) {
	if m == nil || r == nil {
		return
	}
	initOnce.Do(func() {
		manager = m
		reloader = r
	})
}

// POST /api/v1/admin/changesets
func HandleOpenChangeset(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if manager == nil {
		logger.Error().Msg("Admin handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	cs := manager.Open()
	logger.Info().Str("changeset_id", cs.ID).Msg("Changeset opened")
	if err := apiutil.WriteJSON(w, http.StatusCreated, cs); err != nil {
		logger.Error().Err(err).Msg("Failed to write changeset response")
	}
}

// GET /api/v1/admin/changesets/{id}
func HandleGetChangeset(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if manager == nil {
		logger.Error().Msg("Admin handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	cs, err := manager.Get(strings.TrimSpace(r.PathValue(changesetIDParam)))
	if err != nil {
		writeStagingError(w, r, err)
		return
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, cs); err != nil {
		logger.Error().Err(err).Msg("Failed to write changeset response")
	}
}

// PUT /api/v1/admin/changesets/{id}/field-configs
func HandleStageFieldConfigs(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if manager == nil {
		logger.Error().Msg("Admin handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	id := strings.TrimSpace(r.PathValue(changesetIDParam))

	var req stageRequest
	if err := apiutil.DecodeJSON(w, r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "Invalid JSON body", Err: err})
		return
	}
	if len(req.Upserts) == 0 && len(req.Deactivations) == 0 {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "No edits to stage"})
		return
	}

	// Validate the whole request before staging any of it.
	for _, cfg := range req.Upserts {
		if err := staging.ValidateFieldConfig(cfg); err != nil {
			apiutil.WriteError(w, r, apiutil.HandlerError{
				Status:  http.StatusBadRequest,
				Message: "Invalid field config " + cfg.Category + "/" + cfg.Option + ": " + err.Error(),
				Err:     apiutil.FieldError{Field: "upserts", Reason: err.Error()},
			})
			return
		}
	}
	for _, configID := range req.Deactivations {
		if configID <= 0 {
			apiutil.WriteError(w, r, apiutil.BadRequest(apiutil.FieldError{Field: "deactivations", Reason: "must contain positive ids"}))
			return
		}
	}

	var (
		cs  staging.Changeset
		err error
	)
	if cs, err = manager.Get(id); err != nil {
		writeStagingError(w, r, err)
		return
	}
	for _, cfg := range req.Upserts {
		if cs, err = manager.StageFieldConfig(id, cfg); err != nil {
			writeStagingError(w, r, err)
			return
		}
	}
	for _, configID := range req.Deactivations {
		if cs, err = manager.StageDeactivation(id, configID); err != nil {
			writeStagingError(w, r, err)
			return
		}
	}

	logger.Info().
		Str("changeset_id", id).
		Int("upserts", len(cs.Upserts)).
		Int("deactivations", len(cs.Deactivations)).
		Msg("Changeset edits staged")
	if err := apiutil.WriteJSON(w, http.StatusOK, cs); err != nil {
		logger.Error().Err(err).Msg("Failed to write changeset response")
	}
}

// POST /api/v1/admin/changesets/{id}/commit
func HandleCommitChangeset(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if manager == nil {
		logger.Error().Msg("Admin handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commitTimeout)
	defer cancel()

	result, err := manager.Commit(ctx, strings.TrimSpace(r.PathValue(changesetIDParam)))
	if err != nil {
		writeStagingError(w, r, err)
		return
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, result); err != nil {
		logger.Error().Err(err).Msg("Failed to write commit response")
	}
}

// DELETE /api/v1/admin/changesets/{id}
func HandleDiscardChangeset(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if manager == nil {
		logger.Error().Msg("Admin handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	id := strings.TrimSpace(r.PathValue(changesetIDParam))
	if err := manager.Discard(id); err != nil {
		writeStagingError(w, r, err)
		return
	}
	logger.Info().Str("changeset_id", id).Msg("Changeset discarded")
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/admin/snapshot/reload
func HandleReloadSnapshot(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if reloader == nil {
		logger.Error().Msg("Admin handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commitTimeout)
	defer cancel()

	snap, err := reloader.Reload(ctx)
	if err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusInternalServerError, Message: "Failed to reload pricing snapshot", Err: err})
		return
	}

	resp := reloadResponse{
		SnapshotVersion: snap.Version,
		LoadedAt:        snap.LoadedAt,
		FieldConfigs:    len(snap.FieldConfigs),
		Rules:           len(snap.Rules),
		Formulas:        len(snap.Formulas),
		Pipeline:        snap.HasPipeline(),
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, resp); err != nil {
		logger.Error().Err(err).Msg("Failed to write reload response")
	}
}

func writeStagingError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, staging.ErrNotFound):
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusNotFound, Message: "Changeset not found", Err: err})
	case errors.Is(err, staging.ErrEmptyChangeset):
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusConflict, Message: err.Error(), Err: err})
	case errors.Is(err, staging.ErrUnknownFieldConfig):
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusConflict, Message: err.Error(), Err: err})
	default:
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusInternalServerError, Message: "Changeset operation failed", Err: err})
	}
}
