package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	mw "parentseed/internal/middleware"
	"parentseed/internal/services"
	"parentseed/internal/stats"
	"parentseed/internal/store"
)

type DashboardHandler struct {
	entries EntryStore
	encSvc  *services.EncryptionService
	cache   DashboardCache
	logger  *zap.Logger
	now     func() time.Time
}

func NewDashboardHandler(entries EntryStore, encSvc *services.EncryptionService, cache DashboardCache, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{entries: entries, encSvc: encSvc, cache: cache, logger: logger, now: time.Now}
}

// Get serves chart series, weekly scores, streaks and the weekly summary.
// Query params: period (1week, 2weeks, 1month, 3months; default 2weeks) and
// now (RFC3339) to evaluate against another instant.
func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, _ := mw.UserIDFrom(r.Context())
	q := r.URL.Query()

	period, ok := stats.ParsePeriod(q.Get("period"))
	if !ok {
		http.Error(w, "invalid period; expected 1week, 2weeks, 1month or 3months", http.StatusBadRequest)
		return
	}
	now := h.now()
	if s := q.Get("now"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, "invalid now; expected RFC3339", http.StatusBadRequest)
			return
		}
		now = t
	}
	day := stats.DayKey(now)

	// The generation is read before the entries so a write that lands in
	// between leaves this dashboard under a key no reader will use.
	gen, err := h.cache.Generation(r.Context(), userID)
	useCache := err == nil
	if err != nil {
		h.logger.Warn("dashboard cache generation failed, bypassing cache", zap.Error(err))
	}
	if useCache {
		var cached stats.Dashboard
		hit, err := h.cache.Get(r.Context(), userID, gen, string(period), day, &cached)
		if err != nil {
			h.logger.Warn("dashboard cache read failed", zap.Error(err))
		}
		if hit {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	// Streaks need the full history.
	entries, err := h.entries.ListEntries(r.Context(), userID, store.ListFilter{})
	if err != nil {
		h.logger.Error("list entries for dashboard", zap.Error(err))
		http.Error(w, "could not fetch", http.StatusInternalServerError)
		return
	}
	for i := range entries {
		if err := h.encSvc.DecryptEntry(&entries[i]); err != nil {
			h.logger.Warn("dashboard entry not decryptable", zap.String("entry_id", entries[i].ID.String()), zap.Error(err))
			entries[i].Content = ""
		}
	}

	dash := stats.BuildDashboard(entries, period, now)
	if useCache {
		if err := h.cache.Set(r.Context(), userID, gen, string(period), day, dash); err != nil {
			h.logger.Warn("dashboard cache write failed", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, dash)
}
