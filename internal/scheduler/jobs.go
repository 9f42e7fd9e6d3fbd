package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/tidyquote/internal/snapshot"
)

const (
	SnapshotRefreshJob = "snapshot_refresh"
	AlertDigestJob     = "formula_failure_digest"

	snapshotRefreshTimeout = time.Minute
	alertDigestTimeout     = 30 * time.Second
)

// Reloader rebuilds the live configuration snapshot.
type Reloader interface {
	Reload(ctx context.Context) (*snapshot.Snapshot, error)
}

// Flusher sends pending alerts.
type Flusher interface {
	Flush(ctx context.Context) (int, error)
}

// RegisterSnapshotRefresh reloads the pricing snapshot on cronExpr. A failed
// reload keeps the current snapshot.
func (s *Service) RegisterSnapshotRefresh(loader Reloader, cronExpr string) error {
	if loader == nil {
		return fmt.Errorf("snapshot refresh job requires a loader")
	}
	jobLogger := log.With().
		Str("component", "snapshot_refresh_job").
		Str("job_name", SnapshotRefreshJob).
		Logger()

	_, err := s.AddJob(SnapshotRefreshJob, cronExpr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), snapshotRefreshTimeout)
		defer cancel()
		ctx = jobLogger.WithContext(ctx)

		if _, err := loader.Reload(ctx); err != nil {
			jobLogger.Error().Err(err).Msg("Snapshot refresh failed, keeping current snapshot")
		}
	})
	return err
}

// RegisterAlertDigest flushes the formula failure digest on cronExpr.
func (s *Service) RegisterAlertDigest(digest Flusher, cronExpr string) error {
	if digest == nil {
		return fmt.Errorf("alert digest job requires a digest")
	}
	jobLogger := log.With().
		Str("component", "alert_digest_job").
		Str("job_name", AlertDigestJob).
		Logger()

	_, err := s.AddJob(AlertDigestJob, cronExpr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), alertDigestTimeout)
		defer cancel()
		ctx = jobLogger.WithContext(ctx)

		sent, err := digest.Flush(ctx)
		if err != nil {
			jobLogger.Error().Err(err).Msg("Alert digest failed")
			return
		}
		jobLogger.Debug().Int("formulas", sent).Msg("Alert digest run")
	})
	return err
}
