package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"parentseed/internal/counselor"
	"parentseed/internal/emotion"
	mw "parentseed/internal/middleware"
	"parentseed/internal/models"
	"parentseed/internal/store"
)

type memStore struct {
	mu      sync.Mutex
	users   map[string]models.User // by email blind index
	deleted map[uuid.UUID]bool
	entries []models.JournalEntry
	clock   time.Time
}

func newMemStore() *memStore {
	return &memStore{
		users:   map[string]models.User{},
		deleted: map[uuid.UUID]bool{},
		clock:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.EmailBlindIndex]; ok {
		return store.ErrEmailTaken
	}
	u.ID = uuid.New()
	u.CreatedAt = s.clock
	s.users[u.EmailBlindIndex] = *u
	return nil
}

func (s *memStore) UserByEmailIndex(_ context.Context, index string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[index]
	if !ok {
		return models.User{}, store.ErrNotFound
	}
	return u, nil
}

func (s *memStore) EmailIndexExists(_ context.Context, index string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[index]
	return ok, nil
}

func (s *memStore) CreateEntry(_ context.Context, e *models.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleted[e.UserID] {
		return store.ErrNotFound
	}
	s.clock = s.clock.Add(time.Minute)
	e.ID = uuid.New()
	e.CreatedAt = s.clock
	s.entries = append(s.entries, *e)
	return nil
}

func (s *memStore) ListEntries(_ context.Context, userID uuid.UUID, f store.ListFilter) ([]models.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.JournalEntry{}
	for _, e := range s.entries {
		if e.UserID != userID {
			continue
		}
		if f.From != "" && e.Date < f.From {
			continue
		}
		if f.To != "" && e.Date > f.To {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *memStore) DeleteEntry(_ context.Context, userID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.ID == id && e.UserID == userID {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *memStore) DeleteAccount(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.UserID != userID {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	for index, u := range s.users {
		if u.ID == userID {
			delete(s.users, index)
		}
	}
	s.deleted[userID] = true
	return nil
}

// memCache records invalidations and serves whatever was Set under the
// current generation.
type memCache struct {
	mu          sync.Mutex
	data        map[string][]byte
	gens        map[uuid.UUID]int64
	invalidated []uuid.UUID
	genErr      error
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, gens: map[uuid.UUID]int64{}}
}

func cacheKey(userID uuid.UUID, gen int64, period, day string) string {
	return fmt.Sprintf("%s|%d|%s|%s", userID, gen, period, day)
}

func (c *memCache) Generation(_ context.Context, userID uuid.UUID) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.genErr != nil {
		return 0, c.genErr
	}
	return c.gens[userID], nil
}

func (c *memCache) Get(_ context.Context, userID uuid.UUID, gen int64, period, day string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[cacheKey(userID, gen, period, day)]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *memCache) Set(_ context.Context, userID uuid.UUID, gen int64, period, day string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[cacheKey(userID, gen, period, day)] = raw
	return nil
}

func (c *memCache) Invalidate(_ context.Context, userID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, userID)
	c.gens[userID]++
	prefix := userID.String() + "|"
	for k := range c.data {
		if strings.HasPrefix(k, prefix) {
			delete(c.data, k)
		}
	}
	return nil
}

type fakeCounselor struct {
	advice  string
	reply   string
	chatErr error
	history []counselor.Message
}

func (f *fakeCounselor) Advise(_ context.Context, _ []emotion.Tag, _ string) string {
	return f.advice
}

func (f *fakeCounselor) Chat(_ context.Context, _ string, history []counselor.Message) (string, error) {
	f.history = history
	return f.reply, f.chatErr
}

// asUser injects an authenticated user the way RequireAuth would.
func asUser(id uuid.UUID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(mw.WithUserID(r.Context(), id)))
		})
	}
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func userRouter(id uuid.UUID, mount func(r chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.Use(asUser(id))
	mount(r)
	return r
}
