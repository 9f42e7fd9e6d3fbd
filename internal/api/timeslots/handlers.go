// internal/api/timeslots/handlers.go
package timeslots

import (
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/codr1/tidyquote/internal/api/apiutil"
	"github.com/codr1/tidyquote/internal/models"
	"github.com/codr1/tidyquote/internal/schedule"
	"github.com/codr1/tidyquote/internal/snapshot"
)

var (
	store     *snapshot.Store
	storeOnce sync.Once
)

type slotsResponse struct {
	Slots           []string                `json:"slots"`
	Cutoffs         []models.SchedulingRule `json:"cutoffs"`
	OvertimeWindows []models.SchedulingRule `json:"overtimeWindows"`
	SnapshotVersion string                  `json:"snapshotVersion"`
}

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(s *snapshot.Store) {
	if s == nil {
		return
	}
	storeOnce.Do(func() {
		store = s
	})
}

// GET /api/v1/schedule/slots
func HandleSlots(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if store == nil {
		logger.Error().Msg("Snapshot store not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	snap := store.Load()
	resp := slotsResponse{
		Slots:           schedule.Slots(snap.Rules),
		Cutoffs:         rulesOfType(snap.Rules, models.RuleCutoff),
		OvertimeWindows: rulesOfType(snap.Rules, models.RuleOvertimeWindow),
		SnapshotVersion: snap.Version,
	}
	if resp.Slots == nil {
		resp.Slots = []string{}
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, resp); err != nil {
		logger.Error().Err(err).Msg("Failed to write slots response")
	}
}

func rulesOfType(rules []models.SchedulingRule, ruleType models.RuleType) []models.SchedulingRule {
	out := []models.SchedulingRule{}
	for _, rule := range rules {
		if rule.IsActive && rule.RuleType == ruleType {
			out = append(out, rule)
		}
	}
	return out
}
