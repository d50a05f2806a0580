package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"parentseed/internal/emotion"
	mw "parentseed/internal/middleware"
	"parentseed/internal/models"
	"parentseed/internal/services"
	"parentseed/internal/stats"
	"parentseed/internal/store"
)

const (
	dateLayout       = "2006-01-02"
	maxContentRunes  = 2000
	defaultListLimit = 100
	maxListLimit     = 500
)

type EntryStore interface {
	CreateEntry(ctx context.Context, e *models.JournalEntry) error
	ListEntries(ctx context.Context, userID uuid.UUID, f store.ListFilter) ([]models.JournalEntry, error)
	DeleteEntry(ctx context.Context, userID, id uuid.UUID) error
}

// Advisor writes the one-off advice stored with a new entry.
type Advisor interface {
	Advise(ctx context.Context, tags []emotion.Tag, content string) string
}

// DashboardCache is satisfied by *cache.Dashboards, including a nil one.
type DashboardCache interface {
	Generation(ctx context.Context, userID uuid.UUID) (int64, error)
	Get(ctx context.Context, userID uuid.UUID, gen int64, period, day string, dest any) (bool, error)
	Set(ctx context.Context, userID uuid.UUID, gen int64, period, day string, value any) error
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

type JournalHandler struct {
	entries EntryStore
	advisor Advisor
	encSvc  *services.EncryptionService
	cache   DashboardCache
	logger  *zap.Logger
	now     func() time.Time
}

func NewJournalHandler(entries EntryStore, advisor Advisor, encSvc *services.EncryptionService, cache DashboardCache, logger *zap.Logger) *JournalHandler {
	return &JournalHandler{entries: entries, advisor: advisor, encSvc: encSvc, cache: cache, logger: logger, now: time.Now}
}

type journalRequest struct {
	Date     string   `json:"date"` // YYYY-MM-DD, defaults to today in UTC+9
	Emotions []string `json:"emotions"`
	Content  string   `json:"content"`
}

// Create validates the entry, asks for advice once and stores both.
func (h *JournalHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, _ := mw.UserIDFrom(r.Context())
	var req journalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	tags, ok := emotion.Parse(req.Emotions)
	if !ok || len(tags) == 0 {
		http.Error(w, "emotions must be a non-empty list of known tags", http.StatusBadRequest)
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		http.Error(w, "content required", http.StatusBadRequest)
		return
	}
	if utf8.RuneCountInString(content) > maxContentRunes {
		http.Error(w, "content too long", http.StatusBadRequest)
		return
	}
	date := req.Date
	if date == "" {
		date = stats.DayKey(h.now())
	} else if _, err := time.Parse(dateLayout, date); err != nil {
		http.Error(w, "invalid date format; expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	entry := models.JournalEntry{
		UserID:   userID,
		Date:     date,
		Emotions: models.Emotions(tags),
		Content:  content,
		AIAdvice: h.advisor.Advise(r.Context(), tags, content),
	}

	stored := entry
	if err := h.encSvc.EncryptEntry(&stored); err != nil {
		h.logger.Error("encrypt entry", zap.Error(err))
		http.Error(w, "could not encrypt entry", http.StatusInternalServerError)
		return
	}
	err := h.entries.CreateEntry(r.Context(), &stored)
	if errors.Is(err, store.ErrNotFound) {
		// Token outlived the account.
		http.Error(w, "account no longer exists", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.logger.Error("create entry", zap.Error(err))
		http.Error(w, "could not save", http.StatusInternalServerError)
		return
	}
	entry.ID, entry.CreatedAt = stored.ID, stored.CreatedAt

	h.invalidate(r.Context(), userID)
	writeJSON(w, http.StatusCreated, toEntryDTO(entry))
}

// List returns entries newest first. Optional query params: start_date,
// end_date (YYYY-MM-DD) and limit.
func (h *JournalHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _ := mw.UserIDFrom(r.Context())
	q := r.URL.Query()
	f := store.ListFilter{Limit: defaultListLimit}

	if s := q.Get("start_date"); s != "" {
		if _, err := time.Parse(dateLayout, s); err != nil {
			http.Error(w, "invalid start_date format; expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		f.From = s
	}
	if s := q.Get("end_date"); s != "" {
		if _, err := time.Parse(dateLayout, s); err != nil {
			http.Error(w, "invalid end_date format; expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		f.To = s
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		f.Limit = min(n, maxListLimit)
	}

	entries, err := h.entries.ListEntries(r.Context(), userID, f)
	if err != nil {
		h.logger.Error("list entries", zap.Error(err))
		http.Error(w, "could not fetch", http.StatusInternalServerError)
		return
	}
	out := make([]EntryDTO, 0, len(entries))
	for _, e := range entries {
		if err := h.encSvc.DecryptEntry(&e); err != nil {
			h.logger.Warn("skipping undecryptable entry", zap.String("entry_id", e.ID.String()), zap.Error(err))
			continue
		}
		out = append(out, toEntryDTO(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *JournalHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, _ := mw.UserIDFrom(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	err = h.entries.DeleteEntry(r.Context(), userID, id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("delete entry", zap.Error(err))
		http.Error(w, "could not delete", http.StatusInternalServerError)
		return
	}
	h.invalidate(r.Context(), userID)
	w.WriteHeader(http.StatusNoContent)
}

// Emotions serves the tag vocabulary with labels and chart colors.
func (h *JournalHandler) Emotions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, emotion.Catalog())
}

func (h *JournalHandler) invalidate(ctx context.Context, userID uuid.UUID) {
	if err := h.cache.Invalidate(ctx, userID); err != nil {
		h.logger.Warn("dashboard cache invalidation failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
}
