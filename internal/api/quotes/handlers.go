// internal/api/quotes/handlers.go
package quotes

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/codr1/tidyquote/internal/api/apiutil"
	"github.com/codr1/tidyquote/internal/cache"
	"github.com/codr1/tidyquote/internal/db"
	"github.com/codr1/tidyquote/internal/models"
	"github.com/codr1/tidyquote/internal/pricing"
	"github.com/codr1/tidyquote/internal/snapshot"
)

const (
	quoteQueryTimeout = 5 * time.Second
	cacheTimeout      = 500 * time.Millisecond
	quoteIDParam      = "id"
	recordQueryKey    = "record"
)

// Deps are the collaborators the quote handlers need. Cache may be nil.
type Deps struct {
	Queries       *db.Queries
	Store         *snapshot.Store
	Calculator    *pricing.Calculator
	Cache         cache.QuoteCache
	RecordEnabled bool
}

var (
	deps     *Deps
	depsOnce sync.Once

	// now is replaced in tests.
	now = time.Now
)

type quoteResponse struct {
	ID string `json:"id,omitempty"`
	models.QuoteResult
}

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(d Deps) {
	if d.Store == nil || d.Calculator == nil {
		return
	}
	depsOnce.Do(func() {
		deps = &d
	})
}

// POST /api/v1/quotes
func HandleCreateQuote(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	d := loadDeps()
	if d == nil {
		logger.Error().Msg("Quote handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	record, err := apiutil.ParseBoolQuery(r, recordQueryKey)
	if err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest(err))
		return
	}
	if record && (!d.RecordEnabled || d.Queries == nil) {
		apiutil.WriteError(w, r, apiutil.HandlerError{
			Status:  http.StatusBadRequest,
			Message: "Quote recording is disabled",
		})
		return
	}

	var draft models.BookingDraft
	if err := apiutil.DecodeJSON(w, r, &draft); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{
			Status:  http.StatusBadRequest,
			Message: "Invalid JSON body",
			Err:     err,
		})
		return
	}
	if err := draft.Validate(); err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest(err))
		return
	}

	snap := d.Store.Load()
	result, cached := computeQuote(r.Context(), d, draft, snap)

	resp := quoteResponse{QuoteResult: result}
	if record {
		ctx, cancel := context.WithTimeout(r.Context(), quoteQueryTimeout)
		defer cancel()

		rec := models.QuoteRecord{
			ID:              uuid.NewString(),
			Draft:           draft,
			Result:          result,
			SnapshotVersion: result.SnapshotVersion,
			CreatedAt:       now(),
		}
		if err := d.Queries.InsertQuote(ctx, rec); err != nil {
			apiutil.WriteError(w, r, apiutil.HandlerError{
				Status:  http.StatusInternalServerError,
				Message: "Failed to record quote",
				Err:     err,
			})
			return
		}
		resp.ID = rec.ID
	}

	if cached {
		w.Header().Set("X-Cache", "HIT")
	} else if d.Cache != nil {
		w.Header().Set("X-Cache", "MISS")
	}

	logger.Debug().
		Str("snapshot_version", result.SnapshotVersion).
		Str("strategy", result.Strategy).
		Float64("total_cost", result.TotalCost).
		Bool("cached", cached).
		Msg("Quote computed")

	if err := apiutil.WriteJSON(w, http.StatusOK, resp); err != nil {
		logger.Error().Err(err).Msg("Failed to write quote response")
	}
}

// computeQuote returns the cached result for draft when one exists and
// computes and stores it otherwise. Cache failures never fail the quote.
func computeQuote(ctx context.Context, d *Deps, draft models.BookingDraft, snap *snapshot.Snapshot) (models.QuoteResult, bool) {
	logger := log.Ctx(ctx)
	if d.Cache == nil {
		return d.Calculator.Compute(ctx, draft, snap), false
	}

	key, err := cache.Key(snap.Version, draft, now())
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to build quote cache key")
		return d.Calculator.Compute(ctx, draft, snap), false
	}

	getCtx, cancel := context.WithTimeout(ctx, cacheTimeout)
	hit, err := d.Cache.Get(getCtx, key)
	cancel()
	if err != nil {
		logger.Warn().Err(err).Msg("Quote cache lookup failed")
	} else if hit != nil {
		return *hit, true
	}

	result := d.Calculator.Compute(ctx, draft, snap)

	setCtx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()
	if err := d.Cache.Set(setCtx, key, result); err != nil {
		logger.Warn().Err(err).Msg("Failed to cache quote")
	}
	return result, false
}

// GET /api/v1/quotes/{id}
func HandleGetQuote(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	d := loadDeps()
	if d == nil || d.Queries == nil {
		logger.Error().Msg("Quote handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	id := strings.TrimSpace(r.PathValue(quoteIDParam))
	if _, err := uuid.Parse(id); err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest(apiutil.FieldError{Field: quoteIDParam, Reason: "must be a UUID"}))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), quoteQueryTimeout)
	defer cancel()

	rec, err := d.Queries.GetQuote(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusNotFound, Message: "Quote not found", Err: err})
			return
		}
		apiutil.WriteError(w, r, apiutil.HandlerError{
			Status:  http.StatusInternalServerError,
			Message: "Failed to load quote",
			Err:     err,
		})
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, rec); err != nil {
		logger.Error().Err(err).Str("quote_id", id).Msg("Failed to write quote record")
	}
}

func loadDeps() *Deps {
	return deps
}
