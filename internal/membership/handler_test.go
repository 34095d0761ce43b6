package membership_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarydesk/internal/auth"
	"librarydesk/internal/membership"
	"librarydesk/internal/testutil"
	"librarydesk/pkg/models"
)

var testTokens = auth.TokenService{Secret: []byte("test"), Issuer: "librarydesk", Duration: time.Hour}

func newMemberRouter(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	userID := testutil.CreateUser(t, db, "ada")

	r := gin.New()
	users := r.Group("/users", auth.AuthMiddleware(testTokens, auth.NewRepo(db)))
	membership.NewHandler(membership.NewRepo(db)).RegisterRoutes(users)

	tok, _, err := testTokens.Sign(&auth.User{ID: userID, Username: "ada"})
	require.NoError(t, err)
	return r, tok
}

func send(r http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_JoinAndMe(t *testing.T) {
	r, tok := newMemberRouter(t)

	w := send(r, http.MethodGet, "/users/members/me", tok, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = send(r, http.MethodPost, "/users/members", tok, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var joined models.Member
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &joined))
	assert.Len(t, joined.MembershipNumber, 10)
	assert.Equal(t, models.MembershipRegular, joined.MembershipStatus)

	w = send(r, http.MethodPost, "/users/members", tok, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = send(r, http.MethodGet, "/users/members/me", tok, "")
	require.Equal(t, http.StatusOK, w.Code)
	var me models.Member
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, joined.ID, me.ID)
	assert.Equal(t, "ada Tester", me.FullName)
}

func TestHandler_JoinWithNumber(t *testing.T) {
	r, tok := newMemberRouter(t)

	w := send(r, http.MethodPost, "/users/members", tok, `{"membership_number":"too-long-number"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = send(r, http.MethodPost, "/users/members", tok, `{"membership_number":"lib042"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var m models.Member
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	assert.Equal(t, "LIB042", m.MembershipNumber)

	w = send(r, http.MethodPost, "/users/members", tok, `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
