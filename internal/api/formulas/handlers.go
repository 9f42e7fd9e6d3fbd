// internal/api/formulas/handlers.go
package formulas

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/tidyquote/internal/api/apiutil"
	"github.com/codr1/tidyquote/internal/db"
	"github.com/codr1/tidyquote/internal/formula"
	"github.com/codr1/tidyquote/internal/models"
	"github.com/codr1/tidyquote/internal/snapshot"
)

const (
	formulaQueryTimeout = 5 * time.Second
	formulaIDParam      = "id"
	activeQueryKey      = "active"
)

// Reloader rebuilds the pricing snapshot after a formula write.
type Reloader interface {
	Reload(ctx context.Context) (*snapshot.Snapshot, error)
}

var (
	queries     *db.Queries
	reloader    Reloader
	queriesOnce sync.Once
)

// formulaRequest accepts either an element list or expression text.
type formulaRequest struct {
	Name       string                  `json:"name"`
	ResultType models.ResultType       `json:"resultType"`
	Elements   []models.FormulaElement `json:"elements,omitempty"`
	Source     string                  `json:"source,omitempty"`
	IsActive   *bool                   `json:"isActive,omitempty"`
}

type validateRequest struct {
	Elements []models.FormulaElement `json:"elements,omitempty"`
	Source   string                  `json:"source,omitempty"`
}

type validateResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type formulaResponse struct {
	models.Formula
	Source string `json:"source"`
}

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(q *db.Queries, r Reloader) {
	if q == nil {
		return
	}
	queriesOnce.Do(func() {
		queries = q
		reloader = r
	})
}

// POST /api/v1/formulas/validate
func HandleValidate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	q := loadQueries()
	if q == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var req validateRequest
	if err := apiutil.DecodeJSON(w, r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "Invalid JSON body", Err: err})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), formulaQueryTimeout)
	defer cancel()

	known, err := knownNames(ctx, q)
	if err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusInternalServerError, Message: "Failed to load field names", Err: err})
		return
	}

	elements := req.Elements
	if len(elements) == 0 && strings.TrimSpace(req.Source) != "" {
		elements, err = formula.Elements(req.Source)
	}
	if err == nil {
		err = formula.Validate(elements, known)
	}
	writeValidation(w, r, err)
}

// GET /api/v1/formulas
func HandleListFormulas(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	q := loadQueries()
	if q == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	activeOnly, err := apiutil.ParseBoolQuery(r, activeQueryKey)
	if err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), formulaQueryTimeout)
	defer cancel()

	rows, err := q.ListFormulas(ctx, activeOnly)
	if err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusInternalServerError, Message: "Failed to list formulas", Err: err})
		return
	}

	resp := make([]formulaResponse, 0, len(rows))
	for _, f := range rows {
		resp = append(resp, toResponse(f))
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, resp); err != nil {
		logger.Error().Err(err).Msg("Failed to write formulas response")
	}
}

// GET /api/v1/formulas/{id}
func HandleGetFormula(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	q := loadQueries()
	if q == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	id, err := apiutil.ParsePositiveInt64Field(r.PathValue(formulaIDParam), formulaIDParam)
	if err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), formulaQueryTimeout)
	defer cancel()

	f, err := q.GetFormula(ctx, id)
	if err != nil {
		writeLookupError(w, r, err, "Failed to load formula")
		return
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, toResponse(f)); err != nil {
		logger.Error().Err(err).Int64("formula_id", id).Msg("Failed to write formula response")
	}
}

// POST /api/v1/formulas
func HandleCreateFormula(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	q := loadQueries()
	if q == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var req formulaRequest
	if err := apiutil.DecodeJSON(w, r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "Invalid JSON body", Err: err})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), formulaQueryTimeout)
	defer cancel()

	f, ok := buildFormula(ctx, w, r, q, req)
	if !ok {
		return
	}

	created, err := q.CreateFormula(ctx, f)
	if err != nil {
		if db.IsUniqueViolation(err) {
			apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusConflict, Message: "A formula with that name already exists", Err: err})
			return
		}
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusInternalServerError, Message: "Failed to create formula", Err: err})
		return
	}

	logger.Info().Int64("formula_id", created.ID).Str("formula", created.Name).Msg("Formula created")
	reloadSnapshot(r.Context())

	if err := apiutil.WriteJSON(w, http.StatusCreated, toResponse(created)); err != nil {
		logger.Error().Err(err).Msg("Failed to write formula response")
	}
}

// PUT /api/v1/formulas/{id}
func HandleUpdateFormula(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	q := loadQueries()
	if q == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	id, err := apiutil.ParsePositiveInt64Field(r.PathValue(formulaIDParam), formulaIDParam)
	if err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest(err))
		return
	}

	var req formulaRequest
	if err := apiutil.DecodeJSON(w, r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "Invalid JSON body", Err: err})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), formulaQueryTimeout)
	defer cancel()

	f, ok := buildFormula(ctx, w, r, q, req)
	if !ok {
		return
	}
	f.ID = id

	updated, err := q.UpdateFormula(ctx, f)
	if err != nil {
		if db.IsUniqueViolation(err) {
			apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusConflict, Message: "A formula with that name already exists", Err: err})
			return
		}
		writeLookupError(w, r, err, "Failed to update formula")
		return
	}

	logger.Info().Int64("formula_id", updated.ID).Str("formula", updated.Name).Msg("Formula updated")
	reloadSnapshot(r.Context())

	if err := apiutil.WriteJSON(w, http.StatusOK, toResponse(updated)); err != nil {
		logger.Error().Err(err).Msg("Failed to write formula response")
	}
}

// DELETE /api/v1/formulas/{id}
func HandleDeleteFormula(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	q := loadQueries()
	if q == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	id, err := apiutil.ParsePositiveInt64Field(r.PathValue(formulaIDParam), formulaIDParam)
	if err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), formulaQueryTimeout)
	defer cancel()

	affected, err := q.DeactivateFormula(ctx, id)
	if err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusInternalServerError, Message: "Failed to delete formula", Err: err})
		return
	}
	if affected == 0 {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusNotFound, Message: "Formula not found"})
		return
	}

	logger.Info().Int64("formula_id", id).Msg("Formula deactivated")
	reloadSnapshot(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// buildFormula turns req into a validated formula. On failure it writes the
// response and returns false.
func buildFormula(ctx context.Context, w http.ResponseWriter, r *http.Request, q *db.Queries, req formulaRequest) (models.Formula, bool) {
	f := models.Formula{
		Name:       strings.TrimSpace(req.Name),
		ResultType: req.ResultType,
		Elements:   req.Elements,
		IsActive:   true,
	}
	if req.IsActive != nil {
		f.IsActive = *req.IsActive
	}

	if len(f.Elements) == 0 && strings.TrimSpace(req.Source) != "" {
		elements, err := formula.Elements(req.Source)
		if err != nil {
			writeValidation(w, r, err)
			return models.Formula{}, false
		}
		f.Elements = elements
	}
	if err := f.Validate(); err != nil {
		writeValidation(w, r, err)
		return models.Formula{}, false
	}

	known, err := knownNames(ctx, q)
	if err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusInternalServerError, Message: "Failed to load field names", Err: err})
		return models.Formula{}, false
	}
	if err := formula.Validate(f.Elements, known); err != nil {
		writeValidation(w, r, err)
		return models.Formula{}, false
	}
	return f, true
}

// knownNames lists the names a formula may reference under the active
// configuration.
func knownNames(ctx context.Context, q *db.Queries) ([]string, error) {
	configs, err := q.ListFieldConfigs(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list field configs: %w", err)
	}
	return snapshot.KnownNames(configs), nil
}

func writeValidation(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusOK
	resp := validateResponse{OK: err == nil}
	if err != nil {
		status = http.StatusUnprocessableEntity
		resp.Error = err.Error()
	}
	if writeErr := apiutil.WriteJSON(w, status, resp); writeErr != nil {
		log.Ctx(r.Context()).Error().Err(writeErr).Msg("Failed to write validation response")
	}
}

func writeLookupError(w http.ResponseWriter, r *http.Request, err error, message string) {
	if errors.Is(err, sql.ErrNoRows) {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusNotFound, Message: "Formula not found", Err: err})
		return
	}
	apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusInternalServerError, Message: message, Err: err})
}

// reloadSnapshot makes a formula write visible to quotes. A failure leaves
// the change for the next scheduled refresh.
func reloadSnapshot(ctx context.Context) {
	if reloader == nil {
		return
	}
	if _, err := reloader.Reload(ctx); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to reload pricing snapshot after formula write")
	}
}

func toResponse(f models.Formula) formulaResponse {
	src, err := formula.Source(f.Elements)
	if err != nil {
		src = ""
	}
	return formulaResponse{Formula: f, Source: src}
}

func loadQueries() *db.Queries {
	return queries
}
