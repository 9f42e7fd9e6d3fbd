package timeslots

// NOTE: Tests cannot use t.Parallel() due to shared package state.

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/codr1/tidyquote/internal/snapshot"
	"github.com/codr1/tidyquote/internal/testutil"
)

func resetStore(t *testing.T) {
	t.Helper()
	store = nil
	storeOnce = sync.Once{}
	t.Cleanup(func() {
		store = nil
		storeOnce = sync.Once{}
	})
}

func TestHandleSlots(t *testing.T) {
	resetStore(t)

	database := testutil.NewSeededDB(t)
	s := snapshot.NewStore(nil)
	if _, err := snapshot.NewLoader(database.Queries, s, nil).Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	InitHandlers(s)

	rec := httptest.NewRecorder()
	HandleSlots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/schedule/slots", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp slotsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	want := []string{"08:00 - 10:00", "10:00 - 12:00", "12:00 - 14:00", "14:00 - 16:00", "16:00 - 18:00"}
	if len(resp.Slots) != len(want) {
		t.Fatalf("slots = %v, want %v", resp.Slots, want)
	}
	for i := range want {
		if resp.Slots[i] != want[i] {
			t.Fatalf("slots[%d] = %q, want %q", i, resp.Slots[i], want[i])
		}
	}
	if len(resp.Cutoffs) != 1 || len(resp.OvertimeWindows) != 1 {
		t.Fatalf("cutoffs = %d, overtime windows = %d, want 1 each", len(resp.Cutoffs), len(resp.OvertimeWindows))
	}
	if resp.SnapshotVersion != s.Load().Version {
		t.Fatalf("snapshotVersion = %q, want %q", resp.SnapshotVersion, s.Load().Version)
	}
}

func TestHandleSlots_EmptySnapshot(t *testing.T) {
	resetStore(t)
	InitHandlers(snapshot.NewStore(nil))

	rec := httptest.NewRecorder()
	HandleSlots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/schedule/slots", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp slotsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Slots == nil || len(resp.Slots) != 0 {
		t.Fatalf("slots = %v, want empty list", resp.Slots)
	}
}
