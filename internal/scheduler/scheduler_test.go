package scheduler

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/codr1/tidyquote/internal/snapshot"
)

type stubReloader struct{}

func (stubReloader) Reload(ctx context.Context) (*snapshot.Snapshot, error) {
	return snapshot.Empty(), nil
}

type stubFlusher struct{}

func (stubFlusher) Flush(ctx context.Context) (int, error) { return 0, nil }

func TestRegisterJobs(t *testing.T) {
	svc, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = svc.Stop() })

	if err := svc.RegisterSnapshotRefresh(stubReloader{}, "*/5 * * * *"); err != nil {
		t.Fatalf("RegisterSnapshotRefresh() error = %v", err)
	}
	if err := svc.RegisterAlertDigest(stubFlusher{}, "0 8 * * *"); err != nil {
		t.Fatalf("RegisterAlertDigest() error = %v", err)
	}

	names := svc.JobNames()
	sort.Strings(names)
	if len(names) != 2 || names[0] != AlertDigestJob || names[1] != SnapshotRefreshJob {
		t.Fatalf("JobNames() = %v, want both jobs", names)
	}
}

func TestAddJobValidation(t *testing.T) {
	svc, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = svc.Stop() })

	if _, err := svc.AddJob("", "* * * * *", func() {}); !errors.Is(err, ErrEmptyJobName) {
		t.Fatalf("AddJob() error = %v, want ErrEmptyJobName", err)
	}
	if _, err := svc.AddJob("job", " ", func() {}); !errors.Is(err, ErrEmptyCronExpr) {
		t.Fatalf("AddJob() error = %v, want ErrEmptyCronExpr", err)
	}
	if _, err := svc.AddJob("job", "not a cron", func() {}); err == nil {
		t.Fatalf("AddJob() error = nil, want invalid cron error")
	}
	if err := svc.RegisterSnapshotRefresh(nil, "* * * * *"); err == nil {
		t.Fatalf("RegisterSnapshotRefresh(nil) error = nil")
	}

	var nilSvc *Service
	if _, err := nilSvc.AddJob("job", "* * * * *", func() {}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("nil AddJob() error = %v, want ErrNotInitialized", err)
	}
}
