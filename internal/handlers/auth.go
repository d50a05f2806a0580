package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"parentseed/internal/models"
	"parentseed/internal/services"
	"parentseed/internal/store"
)

const (
	tokenTTL          = 24 * time.Hour
	minPasswordLength = 6
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// UserStore looks users up by the blind index of their email, never by the
// stored (encrypted) address.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	UserByEmailIndex(ctx context.Context, index string) (models.User, error)
	EmailIndexExists(ctx context.Context, index string) (bool, error)
}

type AuthHandler struct {
	users     UserStore
	encSvc    *services.EncryptionService
	jwtSecret []byte
	logger    *zap.Logger
}

func NewAuthHandler(users UserStore, encSvc *services.EncryptionService, jwtSecret []byte, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{users: users, encSvc: encSvc, jwtSecret: jwtSecret, logger: logger}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func normalizeEmail(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	c.Email = normalizeEmail(c.Email)
	if c.Email == "" || c.Password == "" {
		http.Error(w, "email and password required", http.StatusBadRequest)
		return
	}
	if !emailPattern.MatchString(c.Email) {
		http.Error(w, "invalid email", http.StatusBadRequest)
		return
	}
	if len(c.Password) < minPasswordLength {
		http.Error(w, "password must be at least 6 characters", http.StatusBadRequest)
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(c.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("hash password", zap.Error(err))
		http.Error(w, "could not hash password", http.StatusInternalServerError)
		return
	}

	user := models.User{Email: c.Email, PasswordHash: string(hashed)}
	if err := h.encSvc.EncryptUser(&user); err != nil {
		h.logger.Error("encrypt user", zap.Error(err))
		http.Error(w, "could not create user", http.StatusInternalServerError)
		return
	}
	err = h.users.CreateUser(r.Context(), &user)
	if errors.Is(err, store.ErrEmailTaken) {
		http.Error(w, "email already registered", http.StatusConflict)
		return
	}
	if err != nil {
		h.logger.Error("create user", zap.Error(err))
		http.Error(w, "could not create user", http.StatusInternalServerError)
		return
	}
	user.Email = c.Email
	h.respondToken(w, http.StatusCreated, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	c.Email = normalizeEmail(c.Email)
	if c.Email == "" || c.Password == "" {
		http.Error(w, "email and password required", http.StatusBadRequest)
		return
	}

	user, err := h.users.UserByEmailIndex(r.Context(), h.encSvc.EmailBlindIndex(c.Email))
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.logger.Error("load user", zap.Error(err))
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(c.Password)) != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if err := h.encSvc.DecryptUser(&user); err != nil {
		h.logger.Error("decrypt user", zap.String("user_id", user.ID.String()), zap.Error(err))
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	h.respondToken(w, http.StatusOK, user)
}

// CheckEmail tells the signup form whether an address is still free.
func (h *AuthHandler) CheckEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	email := normalizeEmail(body.Email)
	if email == "" {
		http.Error(w, "email required", http.StatusBadRequest)
		return
	}
	if !emailPattern.MatchString(email) {
		http.Error(w, "invalid email", http.StatusBadRequest)
		return
	}

	exists, err := h.users.EmailIndexExists(r.Context(), h.encSvc.EmailBlindIndex(email))
	if err != nil {
		h.logger.Error("check email", zap.Error(err))
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	msg := "このメールアドレスは使用可能です"
	if exists {
		msg = "このメールアドレスは既に登録されています"
	}
	writeJSON(w, http.StatusOK, map[string]any{"exists": exists, "message": msg})
}

func (h *AuthHandler) respondToken(w http.ResponseWriter, status int, user models.User) {
	token, err := h.issueJWT(user.ID)
	if err != nil {
		h.logger.Error("sign token", zap.Error(err))
		http.Error(w, "could not issue token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, status, map[string]any{"token": token, "user": toUserDTO(user)})
}

func (h *AuthHandler) issueJWT(userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.jwtSecret)
}
