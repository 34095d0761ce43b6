package auth_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarydesk/internal/auth"
	"librarydesk/internal/testutil"
)

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	tokens := auth.TokenService{Secret: []byte("test"), Issuer: "librarydesk", Duration: time.Hour}
	repo := auth.NewRepo(db)

	r := gin.New()
	auth.NewHandler(repo, tokens).RegisterRoutes(r.Group("/auth"))
	r.GET("/me", auth.AuthMiddleware(tokens, repo), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": auth.MustGetClaims(c).UserID})
	})
	r.GET("/maybe", auth.OptionalAuth(tokens, repo), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"signed_in": auth.MustGetClaims(c) != nil})
	})
	return r
}

func doJSON(r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func register(t *testing.T, r http.Handler) string {
	t.Helper()
	w := doJSON(r, http.MethodPost, "/auth/register", "", gin.H{
		"username":   "ada",
		"email":      "Ada@Example.com",
		"first_name": "Ada",
		"last_name":  "Lovelace",
		"password":   "correct horse",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestRegisterLoginAndMe(t *testing.T) {
	r := newRouter(t)
	token := register(t, r)

	w := doJSON(r, http.MethodGet, "/me", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodPost, "/auth/login", "", gin.H{"email": "ada@example.com", "password": "correct horse"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodPost, "/auth/login", "", gin.H{"email": "ada@example.com", "password": "wrong password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	r := newRouter(t)
	register(t, r)

	w := doJSON(r, http.MethodPost, "/auth/register", "", gin.H{
		"username":   "ada2",
		"email":      "ada@example.com",
		"first_name": "Ada",
		"last_name":  "Again",
		"password":   "correct horse",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRegister_Validation(t *testing.T) {
	r := newRouter(t)

	w := doJSON(r, http.MethodPost, "/auth/register", "", gin.H{
		"username": "ab",
		"email":    "not-an-email",
		"password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogout_RevokesToken(t *testing.T) {
	r := newRouter(t)
	token := register(t, r)

	w := doJSON(r, http.MethodPost, "/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddleware_MissingToken(t *testing.T) {
	r := newRouter(t)

	w := doJSON(r, http.MethodGet, "/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func signedIn(t *testing.T, r http.Handler, token string) bool {
	t.Helper()
	w := doJSON(r, http.MethodGet, "/maybe", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		SignedIn bool `json:"signed_in"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.SignedIn
}

func TestOptionalAuth_IgnoresRevokedToken(t *testing.T) {
	r := newRouter(t)
	token := register(t, r)

	assert.False(t, signedIn(t, r, ""))
	assert.False(t, signedIn(t, r, "garbage"))
	assert.True(t, signedIn(t, r, token))

	w := doJSON(r, http.MethodPost, "/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.False(t, signedIn(t, r, token))
}
