package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Simplici0/filaprint/internal/config"
	"github.com/Simplici0/filaprint/internal/dbtest"
	"github.com/Simplici0/filaprint/internal/metrics"
	"github.com/Simplici0/filaprint/internal/password"
	"github.com/Simplici0/filaprint/internal/storage"
	"github.com/Simplici0/filaprint/internal/user"
)

const testSecret = "test-secret"

type testServer struct {
	srv     *server
	handler http.Handler
	db      *sql.DB
}

func newTestServer(t *testing.T) testServer {
	t.Helper()

	database := dbtest.New(t)
	cfg := config.Config{Environment: config.EnvTest, JWTSecret: testSecret}
	srv := newServer(cfg, nil, database, storage.NewLocal(t.TempDir()), metrics.New(), zap.NewNop())
	return testServer{srv: srv, handler: srv.routes(), db: database}
}

// sessionFor returns a valid session cookie for the given user.
func (ts testServer) sessionFor(t *testing.T, id int64, username string, role user.Role) *http.Cookie {
	t.Helper()

	token, err := ts.srv.auth.issue(user.User{ID: id, Username: username, Role: role})
	require.NoError(t, err)
	return &http.Cookie{Name: sessionCookieName, Value: token}
}

func (ts testServer) do(req *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func postForm(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// withRoute attaches an identity and chi URL params, for calling handlers directly.
func withRoute(req *http.Request, id identity, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	return req.WithContext(withIdentity(ctx, id))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	return nil
}

func TestAuthMiddlewareRedirectsAnonymousRequests(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/prints", nil), nil)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected status 303, got %d", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "/login" {
		t.Fatalf("expected redirect to /login, got %q", got)
	}
}

func TestAuthMiddlewareClearsInvalidSession(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/", nil), &http.Cookie{Name: sessionCookieName, Value: "garbage"})

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	cleared := sessionCookie(rec)
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)
}

func TestAuthMiddlewareRejectsForeignSignature(t *testing.T) {
	ts := newTestServer(t)
	other := newAuthService("another-secret", false)
	token, err := other.issue(user.User{ID: 1, Username: "mallory", Role: user.RoleAdmin})
	require.NoError(t, err)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/", nil), &http.Cookie{Name: sessionCookieName, Value: token})

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestAuthRejectsExpiredSession(t *testing.T) {
	auth := newAuthService(testSecret, false)
	issued := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	auth.now = func() time.Time { return issued }
	token, err := auth.issue(user.User{ID: 3, Username: "maker", Role: user.RoleMaker})
	require.NoError(t, err)

	auth.now = func() time.Time { return issued.Add(sessionTTL + time.Minute) }
	_, err = auth.verify(token)
	require.Error(t, err)

	auth.now = func() time.Time { return issued.Add(time.Hour) }
	id, err := auth.verify(token)
	require.NoError(t, err)
	assert.Equal(t, identity{ID: 3, Username: "maker", Role: user.RoleMaker}, id)
}

func TestSignedInUserIsSentHomeFromLogin(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.sessionFor(t, 1, "maker", user.RoleMaker)

	for _, target := range []string{"/login", "/register"} {
		rec := ts.do(httptest.NewRequest(http.MethodGet, target, nil), cookie)
		assert.Equal(t, http.StatusSeeOther, rec.Code, target)
		assert.Equal(t, "/", rec.Header().Get("Location"), target)
	}
}

func TestPublicPaths(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/metrics", nil), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/login", nil), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterFirstUserBecomesAdmin(t *testing.T) {
	ts := newTestServer(t)

	form := url.Values{"username": {"alice"}, "password": {"secret1"}, "confirmPassword": {"secret1"}}
	rec := ts.do(postForm("/register", form), nil)
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, "/", rec.Header().Get("Location"))

	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)

	form = url.Values{"username": {"bob"}, "password": {"secret2"}, "confirmPassword": {"secret2"}}
	rec = ts.do(postForm("/register", form), nil)
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())

	alice, err := user.GetByUsername(context.Background(), ts.db, "alice")
	require.NoError(t, err)
	bob, err := user.GetByUsername(context.Background(), ts.db, "bob")
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, alice.Role)
	assert.Equal(t, user.RoleMaker, bob.Role)
	assert.True(t, password.Verify("secret1", alice.PasswordHash))
}

func TestRegisterValidation(t *testing.T) {
	ts := newTestServer(t)
	dbtest.InsertUser(t, ts.db, "taken", 0.12)

	tests := []struct {
		name   string
		form   url.Values
		field  string
		reason string
	}{
		{"missing username", url.Values{"password": {"secret1"}, "confirmPassword": {"secret1"}}, "username", reasonMissing},
		{"short username", url.Values{"username": {"ab"}, "password": {"secret1"}, "confirmPassword": {"secret1"}}, "username", reasonInvalid},
		{"missing password", url.Values{"username": {"carol"}, "confirmPassword": {"secret1"}}, "password", reasonMissing},
		{"mismatch", url.Values{"username": {"carol"}, "password": {"secret1"}, "confirmPassword": {"secret2"}}, "confirmPassword", reasonMismatch},
		{"weak", url.Values{"username": {"carol"}, "password": {"abc"}, "confirmPassword": {"abc"}}, "password", reasonWeak},
		{"exists", url.Values{"username": {"taken"}, "password": {"secret1"}, "confirmPassword": {"secret1"}}, "username", reasonExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(postForm("/register", tt.form), nil)

			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			body := decodeBody(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.reason, body["reason"])
			assert.Equal(t, tt.field, body["field"])
		})
	}
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)
	hash, err := password.Hash("secret1")
	require.NoError(t, err)
	_, err = user.Create(context.Background(), ts.db, "alice", hash, user.RoleMaker, time.Now())
	require.NoError(t, err)

	rec := ts.do(postForm("/login", url.Values{"username": {"alice"}, "password": {"wrong-pass"}}), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, reasonInvalid, decodeBody(t, rec)["reason"])

	rec = ts.do(postForm("/login", url.Values{"username": {"nobody"}, "password": {"secret1"}}), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, reasonInvalid, decodeBody(t, rec)["reason"])

	rec = ts.do(postForm("/login", url.Values{"username": {"alice"}}), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, reasonMissing, decodeBody(t, rec)["reason"])

	rec = ts.do(postForm("/login", url.Values{"username": {"alice"}, "password": {"secret1"}}), nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/", nil), cookie)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestLogoutClearsSession(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.sessionFor(t, 1, "maker", user.RoleMaker)

	rec := ts.do(postForm("/logout", nil), cookie)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	cleared := sessionCookie(rec)
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)
}

func TestSettingsProfile(t *testing.T) {
	ts := newTestServer(t)
	id := dbtest.InsertUser(t, ts.db, "maker", 0.2)
	dbtest.InsertUser(t, ts.db, "other", 0.12)
	cookie := ts.sessionFor(t, id, "maker", user.RoleMaker)

	rec := ts.do(postForm("/settings/profile", url.Values{"username": {"other"}}), cookie)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, reasonTaken, decodeBody(t, rec)["reason"])

	rec = ts.do(postForm("/settings/profile", url.Values{"username": {"renamed"}, "location": {"Lisbon"}, "electricity_rate": {""}}), cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, sessionCookie(rec))

	u, err := user.Get(context.Background(), ts.db, id)
	require.NoError(t, err)
	assert.Equal(t, "renamed", u.Username)
	assert.Equal(t, "Lisbon", u.Location)
	assert.Equal(t, user.DefaultElectricityRate, u.ElectricityRate)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/settings", nil), cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestSettingsPassword(t *testing.T) {
	ts := newTestServer(t)
	hash, err := password.Hash("secret1")
	require.NoError(t, err)
	u, err := user.Create(context.Background(), ts.db, "maker", hash, user.RoleMaker, time.Now())
	require.NoError(t, err)
	cookie := ts.sessionFor(t, u.ID, u.Username, u.Role)

	rec := ts.do(postForm("/settings/password", url.Values{
		"currentPassword": {"nope-nope"}, "newPassword": {"secret2"}, "confirmPassword": {"secret2"},
	}), cookie)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "currentPassword", decodeBody(t, rec)["field"])

	rec = ts.do(postForm("/settings/password", url.Values{
		"currentPassword": {"secret1"}, "newPassword": {"secret2"}, "confirmPassword": {"secret2"},
	}), cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	updated, err := user.Get(context.Background(), ts.db, u.ID)
	require.NoError(t, err)
	assert.True(t, password.Verify("secret2", updated.PasswordHash))
}

func TestAdminUsersRequiresAdmin(t *testing.T) {
	ts := newTestServer(t)
	id := dbtest.InsertUser(t, ts.db, "maker", 0.12)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/admin/users", nil), ts.sessionFor(t, id, "maker", user.RoleMaker))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/admin/users", nil), ts.sessionFor(t, id, "maker", user.RoleAdmin))
	require.Equal(t, http.StatusOK, rec.Code)
	users, ok := decodeBody(t, rec)["users"].([]any)
	require.True(t, ok)
	assert.Len(t, users, 1)
}
