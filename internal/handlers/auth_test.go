package handlers

import (
	"net/http"
	"testing"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"parentseed/internal/services"
)

var testSecret = []byte("test-secret")

func plainEnc(t *testing.T) *services.EncryptionService {
	t.Helper()
	enc, err := services.NewEncryptionService(nil, nil)
	require.NoError(t, err)
	return enc
}

func testKeys() (encKey, indexKey []byte) {
	encKey, indexKey = make([]byte, 32), make([]byte, 32)
	for i := range encKey {
		encKey[i] = byte(i)
		indexKey[i] = byte(255 - i)
	}
	return encKey, indexKey
}

func TestSignupAndLogin(t *testing.T) {
	h := NewAuthHandler(newMemStore(), plainEnc(t), testSecret, zap.NewNop())

	rec := do(t, http.HandlerFunc(h.Signup), http.MethodPost, "/api/auth/signup",
		`{"email":" Parent@Example.com ","password":"secret123"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	signup := decode[struct {
		Token string  `json:"token"`
		User  UserDTO `json:"user"`
	}](t, rec)
	assert.Equal(t, "parent@example.com", signup.User.Email)

	token, err := jwt.Parse(signup.Token, func(*jwt.Token) (any, error) { return testSecret, nil })
	require.NoError(t, err)
	sub, err := token.Claims.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, signup.User.ID.String(), sub)

	rec = do(t, http.HandlerFunc(h.Login), http.MethodPost, "/api/auth/login",
		`{"email":"parent@example.com","password":"secret123"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, http.HandlerFunc(h.Login), http.MethodPost, "/api/auth/login",
		`{"email":"parent@example.com","password":"wrong-one"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, http.HandlerFunc(h.Login), http.MethodPost, "/api/auth/login",
		`{"email":"nobody@example.com","password":"secret123"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignupValidation(t *testing.T) {
	users := newMemStore()
	h := NewAuthHandler(users, plainEnc(t), testSecret, zap.NewNop())
	signup := http.HandlerFunc(h.Signup)

	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"not json", `nope`, http.StatusBadRequest},
		{"missing password", `{"email":"a@b.co"}`, http.StatusBadRequest},
		{"bad email", `{"email":"not-an-email","password":"secret123"}`, http.StatusBadRequest},
		{"short password", `{"email":"a@b.co","password":"123"}`, http.StatusBadRequest},
		{"ok", `{"email":"a@b.co","password":"secret123"}`, http.StatusCreated},
		{"duplicate", `{"email":"A@b.co","password":"secret123"}`, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, signup, http.MethodPost, "/api/auth/signup", tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

func TestCheckEmail(t *testing.T) {
	users := newMemStore()
	h := NewAuthHandler(users, plainEnc(t), testSecret, zap.NewNop())
	check := http.HandlerFunc(h.CheckEmail)

	type result struct {
		Exists  bool   `json:"exists"`
		Message string `json:"message"`
	}

	rec := do(t, check, http.MethodPost, "/api/auth/check-email", `{"email":"new@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[result](t, rec).Exists)

	do(t, http.HandlerFunc(h.Signup), http.MethodPost, "/api/auth/signup",
		`{"email":"new@example.com","password":"secret123"}`)

	rec = do(t, check, http.MethodPost, "/api/auth/check-email", `{"email":"NEW@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[result](t, rec)
	assert.True(t, got.Exists)
	assert.Equal(t, "このメールアドレスは既に登録されています", got.Message)

	assert.Equal(t, http.StatusBadRequest, do(t, check, http.MethodPost, "/", `{"email":""}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, check, http.MethodPost, "/", `{"email":"a@b"}`).Code)
}

func TestSignupStoresEncryptedEmail(t *testing.T) {
	encKey, indexKey := testKeys()
	enc, err := services.NewEncryptionService(encKey, indexKey)
	require.NoError(t, err)
	users := newMemStore()
	h := NewAuthHandler(users, enc, testSecret, zap.NewNop())

	rec := do(t, http.HandlerFunc(h.Signup), http.MethodPost, "/api/auth/signup",
		`{"email":"Parent@Example.com","password":"secret123"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[struct {
		User UserDTO `json:"user"`
	}](t, rec)
	assert.Equal(t, "parent@example.com", resp.User.Email)

	require.Len(t, users.users, 1)
	for index, u := range users.users {
		assert.Equal(t, enc.EmailBlindIndex("parent@example.com"), index)
		assert.NotEqual(t, "parent@example.com", index)
		assert.NotContains(t, u.Email, "parent@example.com")
	}

	rec = do(t, http.HandlerFunc(h.Login), http.MethodPost, "/api/auth/login",
		`{"email":"PARENT@example.com","password":"secret123"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decode[struct {
		User UserDTO `json:"user"`
	}](t, rec)
	assert.Equal(t, "parent@example.com", login.User.Email)
	assert.Equal(t, resp.User.ID, login.User.ID)

	rec = do(t, http.HandlerFunc(h.CheckEmail), http.MethodPost, "/api/auth/check-email",
		`{"email":"parent@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[struct {
		Exists bool `json:"exists"`
	}](t, rec).Exists)

	rec = do(t, http.HandlerFunc(h.Signup), http.MethodPost, "/api/auth/signup",
		`{"email":"parent@example.com","password":"other-pass"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
