package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mw "parentseed/internal/middleware"
)

type AccountStore interface {
	DeleteAccount(ctx context.Context, userID uuid.UUID) error
}

type UserHandler struct {
	accounts AccountStore
	cache    DashboardCache
	logger   *zap.Logger
}

func NewUserHandler(accounts AccountStore, cache DashboardCache, logger *zap.Logger) *UserHandler {
	return &UserHandler{accounts: accounts, cache: cache, logger: logger}
}

// DeleteAccount removes the caller and all of their entries. Repeating the
// call after success still answers 200.
func (h *UserHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, _ := mw.UserIDFrom(r.Context())
	if err := h.accounts.DeleteAccount(r.Context(), userID); err != nil {
		h.logger.Error("delete account", zap.String("user_id", userID.String()), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "アカウントの削除に失敗しました"})
		return
	}
	if err := h.cache.Invalidate(r.Context(), userID); err != nil {
		h.logger.Warn("dashboard cache invalidation failed", zap.Error(err))
	}
	h.logger.Info("account deleted", zap.String("user_id", userID.String()))
	writeJSON(w, http.StatusOK, map[string]string{"message": "アカウントが正常に削除されました"})
}
