package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grifitth12/absen-siswa/internal/model"
	"github.com/grifitth12/absen-siswa/internal/storage"
	"github.com/grifitth12/absen-siswa/internal/storage/memory"
)

type recordedRequest struct {
	Method        string
	Path          string
	Authorization string
	Body          map[string]any
}

type fakeService struct {
	mu       sync.Mutex
	requests []recordedRequest
	routes   map[string]func(w http.ResponseWriter, r *http.Request)
}

func newFakeService(t *testing.T) (*fakeService, *httptest.Server) {
	t.Helper()
	f := &fakeService{routes: map[string]func(http.ResponseWriter, *http.Request){}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.Body)
		}
		f.mu.Lock()
		f.requests = append(f.requests, rec)
		handler, ok := f.routes[r.Method+" "+r.URL.Path]
		f.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeService) handle(method, path string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[method+" "+path] = func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func (f *fakeService) calls() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func newTestGateway(t *testing.T, srv *httptest.Server) (*Gateway, *memory.Store) {
	t.Helper()
	store := memory.New()
	g, err := New(srv.URL+"/api/v1", store)
	require.NoError(t, err)
	return g, store
}

var studentCreds = model.Credentials{NISN: "123", Password: "4321"}

func TestLoginTokenShapes(t *testing.T) {
	cases := map[string]struct {
		body  string
		token string
		role  string
	}{
		"access_token":      {`{"message":"login berhasil","access_token":"tok1","role":"student"}`, "tok1", "student"},
		"accessToken":       {`{"accessToken":"tok1","role":"student"}`, "tok1", "student"},
		"token":             {`{"token":"tok1","role":"admin"}`, "tok1", "admin"},
		"data.access_token": {`{"data":{"access_token":"tok1","role":"staff"}}`, "tok1", "staff"},
		"priority":          {`{"token":"tok3","accessToken":"tok2","access_token":"tok1"}`, "tok1", ""},
		"null is skipped":   {`{"access_token":null,"token":"tok1"}`, "tok1", ""},
		"numeric token":     {`{"access_token":12345,"role":"student"}`, "12345", "student"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc, srv := newFakeService(t)
			svc.handle(http.MethodPost, "/api/v1/auth/login", http.StatusOK, tc.body)
			g, store := newTestGateway(t, srv)

			result, err := g.Login(context.Background(), studentCreds)
			require.NoError(t, err)
			assert.Equal(t, tc.token, result.Token)
			assert.Equal(t, tc.role, result.Role)

			stored, ok, err := store.Get(context.Background(), storage.KeyAuthToken)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, tc.token, stored)

			calls := svc.calls()
			require.Len(t, calls, 1)
			assert.Equal(t, map[string]any{"nisn": "123", "password": "4321"}, calls[0].Body)
			assert.Empty(t, calls[0].Authorization)
		})
	}
}

func TestLoginWithoutToken(t *testing.T) {
	bodies := []string{
		`{"message":"ok","role":"student"}`,
		`{"access_token":"","token":"tok1"}`,
		`{"access_token":0,"token":"tok1"}`,
		`{"access_token":true}`,
		`{"data":{"token":"tok1"}}`,
		`not json`,
	}
	for _, body := range bodies {
		svc, srv := newFakeService(t)
		svc.handle(http.MethodPost, "/api/v1/auth/login", http.StatusOK, body)
		g, store := newTestGateway(t, srv)

		_, err := g.Login(context.Background(), studentCreds)
		require.Error(t, err, body)
		assert.True(t, errors.Is(err, ErrTokenNotFound), body)
		var authErr *AuthenticationError
		require.True(t, errors.As(err, &authErr), body)
		assert.Equal(t, "token not found in response", authErr.Error())
		assert.Zero(t, store.Len(), "nothing persisted for %s", body)
	}
}

func TestLoginRejected(t *testing.T) {
	svc, srv := newFakeService(t)
	svc.handle(http.MethodPost, "/api/v1/auth/login", http.StatusUnauthorized, `{"error":"invalid_credentials"}`)
	g, store := newTestGateway(t, srv)

	_, err := g.Login(context.Background(), studentCreds)
	var authErr *AuthenticationError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	assert.Equal(t, "invalid_credentials", authErr.Error())
	assert.False(t, errors.Is(err, ErrTokenNotFound))
	assert.Zero(t, store.Len())

	svc.handle(http.MethodPost, "/api/v1/auth/login", http.StatusInternalServerError, `oops`)
	_, err = g.Login(context.Background(), studentCreds)
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "login failed", authErr.Error())
}

func TestLoginRequiresCredentials(t *testing.T) {
	svc, srv := newFakeService(t)
	g, _ := newTestGateway(t, srv)

	_, err := g.Login(context.Background(), model.Credentials{NISN: "  ", Password: "4321"})
	assert.ErrorIs(t, err, ErrMissingCredentials)
	_, err = g.Login(context.Background(), model.Credentials{NISN: "123"})
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.Empty(t, svc.calls())
}

func TestCurrentUserSendsStoredBearer(t *testing.T) {
	svc, srv := newFakeService(t)
	svc.handle(http.MethodPost, "/api/v1/auth/login", http.StatusOK, `{"access_token":"tok1","role":"student"}`)
	svc.handle(http.MethodGet, "/api/v1/auth/me", http.StatusOK,
		`{"message":"ok","data":{"id":7,"nisn":"123","fullname":"Siti Aminah","username":"siti","role":"student","class_group":"XII RPL 1"}}`)
	g, _ := newTestGateway(t, srv)

	_, err := g.Login(context.Background(), studentCreds)
	require.NoError(t, err)

	user, err := g.CurrentUser(context.Background())
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, model.User{ID: "7", NISN: "123", FullName: "Siti Aminah", Username: "siti", Role: "student", ClassGroup: "XII RPL 1"}, *user)

	calls := svc.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "/api/v1/auth/me", calls[1].Path)
	assert.Equal(t, "Bearer tok1", calls[1].Authorization)
}

func TestCurrentUserUnwrappedProfile(t *testing.T) {
	svc, srv := newFakeService(t)
	svc.handle(http.MethodGet, "/api/v1/auth/me", http.StatusOK, `{"id":"u-1","nisn":"123","role":"student"}`)
	g, store := newTestGateway(t, srv)
	require.NoError(t, store.Set(context.Background(), storage.KeyAuthToken, "tok1"))

	user, err := g.CurrentUser(context.Background())
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, model.ID("u-1"), user.ID)
	assert.Equal(t, "student", user.Role)
}

func TestCurrentUserWithoutTokenSkipsNetwork(t *testing.T) {
	svc, srv := newFakeService(t)
	g, _ := newTestGateway(t, srv)

	user, err := g.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.Empty(t, svc.calls())
}

func TestCurrentUserRejectedClearsToken(t *testing.T) {
	svc, srv := newFakeService(t)
	svc.handle(http.MethodGet, "/api/v1/auth/me", http.StatusUnauthorized, `{"error":"invalid_token"}`)
	g, store := newTestGateway(t, srv)
	require.NoError(t, store.Set(context.Background(), storage.KeyAuthToken, "expired"))

	user, err := g.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Nil(t, user)

	_, ok, err := store.Get(context.Background(), storage.KeyAuthToken)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCurrentUserKeepsReplacedToken(t *testing.T) {
	svc, srv := newFakeService(t)
	g, store := newTestGateway(t, srv)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, storage.KeyAuthToken, "expired"))

	svc.mu.Lock()
	svc.routes[http.MethodGet+" /api/v1/auth/me"] = func(w http.ResponseWriter, _ *http.Request) {
		_ = store.Set(context.Background(), storage.KeyAuthToken, "fresh")
		w.WriteHeader(http.StatusUnauthorized)
	}
	svc.mu.Unlock()

	user, err := g.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)

	token, ok, err := g.Token(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "fresh", token, "a token stored during the request survives")
}

func TestAuthenticateLeavesSlotsAlone(t *testing.T) {
	svc, srv := newFakeService(t)
	svc.handle(http.MethodPost, "/api/v1/auth/login", http.StatusOK, `{"access_token":"tok1","role":"student"}`)
	g, store := newTestGateway(t, srv)

	result, err := g.Authenticate(context.Background(), studentCreds)
	require.NoError(t, err)
	assert.Equal(t, "tok1", result.Token)
	assert.Zero(t, store.Len())

	require.NoError(t, g.SetToken(context.Background(), result.Token))
	token, ok, err := g.Token(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok1", token)
}

func TestProfile(t *testing.T) {
	svc, srv := newFakeService(t)
	svc.handle(http.MethodGet, "/api/v1/auth/me", http.StatusOK, `{"data":{"id":7,"nisn":"123","role":"student"}}`)
	g, store := newTestGateway(t, srv)
	require.NoError(t, store.Set(context.Background(), storage.KeyAuthToken, "stored"))

	user, err := g.Profile(context.Background(), "given")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "123", user.NISN)
	assert.Equal(t, "Bearer given", svc.calls()[0].Authorization)

	svc.handle(http.MethodGet, "/api/v1/auth/me", http.StatusUnauthorized, `{"error":"invalid_token"}`)
	_, err = g.Profile(context.Background(), "given")
	assert.ErrorIs(t, err, ErrTokenRejected)
	assert.Equal(t, 1, store.Len(), "a rejected profile fetch keeps the slots")
}

func TestSubmitAttendanceTokenWithoutSession(t *testing.T) {
	svc, srv := newFakeService(t)
	g, _ := newTestGateway(t, srv)

	_, err := g.SubmitAttendanceToken(context.Background(), "9999")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Empty(t, svc.calls())
}

func TestSubmitAttendanceToken(t *testing.T) {
	svc, srv := newFakeService(t)
	svc.handle(http.MethodPost, "/api/v1/token/absen", http.StatusOK, `{"message":"Absen berhasil","status":"present"}`)
	g, store := newTestGateway(t, srv)
	require.NoError(t, store.Set(context.Background(), storage.KeyAuthToken, "tok1"))

	_, err := g.SubmitAttendanceToken(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyTokenCode)

	result, err := g.SubmitAttendanceToken(context.Background(), " A1B2C3 ")
	require.NoError(t, err)
	assert.Equal(t, model.Redemption{Message: "Absen berhasil", Status: "present"}, result)

	calls := svc.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Bearer tok1", calls[0].Authorization)
	assert.Equal(t, map[string]any{"token_code": "A1B2C3"}, calls[0].Body)
}

func TestSubmitAttendanceTokenRejected(t *testing.T) {
	svc, srv := newFakeService(t)
	svc.handle(http.MethodPost, "/api/v1/token/absen", http.StatusBadRequest, `{"message":"Token expired"}`)
	g, store := newTestGateway(t, srv)
	require.NoError(t, store.Set(context.Background(), storage.KeyAuthToken, "tok1"))

	_, err := g.SubmitAttendanceToken(context.Background(), "9999")
	var redeemErr *RedemptionError
	require.True(t, errors.As(err, &redeemErr))
	assert.Equal(t, "Token expired", redeemErr.Error())
	assert.Equal(t, http.StatusBadRequest, redeemErr.StatusCode)

	svc.handle(http.MethodPost, "/api/v1/token/absen", http.StatusBadGateway, `<html>bad gateway</html>`)
	_, err = g.SubmitAttendanceToken(context.Background(), "9999")
	require.True(t, errors.As(err, &redeemErr))
	assert.Equal(t, "failed to submit attendance token", redeemErr.Error())

	token, ok, err := g.Token(context.Background())
	require.NoError(t, err)
	assert.True(t, ok, "a refused code leaves the session alone")
	assert.Equal(t, "tok1", token)
}

func TestLogoutIsIdempotent(t *testing.T) {
	svc, srv := newFakeService(t)
	g, store := newTestGateway(t, srv)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, storage.KeyAuthToken, "tok1"))
	require.NoError(t, g.CacheUser(ctx, model.User{NISN: "123", Role: "student"}))

	require.NoError(t, g.Logout(ctx))
	assert.Zero(t, store.Len())
	require.NoError(t, g.Logout(ctx))
	assert.Zero(t, store.Len())
	assert.Empty(t, svc.calls())
}

func TestCachedUser(t *testing.T) {
	_, srv := newFakeService(t)
	g, store := newTestGateway(t, srv)
	ctx := context.Background()

	user, err := g.CachedUser(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)

	require.NoError(t, g.CacheUser(ctx, model.User{NISN: "900", Username: "900", Role: "admin"}))
	user, err = g.CachedUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "admin", user.Role)

	require.NoError(t, store.Set(ctx, storage.KeyUser, "{broken"))
	user, err = g.CachedUser(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)
	_, ok, _ := store.Get(ctx, storage.KeyUser)
	assert.False(t, ok, "unreadable cache entry dropped")
}

func TestNetworkError(t *testing.T) {
	_, srv := newFakeService(t)
	g, store := newTestGateway(t, srv)
	srv.Close()

	_, err := g.Login(context.Background(), studentCreds)
	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, "login", netErr.Op)
	assert.Zero(t, store.Len())
}

func TestDoErrors(t *testing.T) {
	svc, srv := newFakeService(t)
	svc.handle(http.MethodGet, "/api/v1/dashboard", http.StatusForbidden, `{"success":false,"message":"staff only","code":"FORBIDDEN"}`)
	svc.handle(http.MethodGet, "/api/v1/logs/", http.StatusOK, `upstream says hi`)
	svc.handle(http.MethodGet, "/api/v1/export/attendance", http.StatusOK, `{"success":true,"data":[]}`)
	g, store := newTestGateway(t, srv)
	require.NoError(t, store.Set(context.Background(), storage.KeyAuthToken, "tok1"))

	err := g.Do(context.Background(), http.MethodGet, "/dashboard", nil, nil, nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "FORBIDDEN", apiErr.Code)
	assert.Equal(t, "staff only", apiErr.Message)

	err = g.Do(context.Background(), http.MethodGet, "/logs/", nil, nil, nil)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "upstream says hi", apiErr.Message)

	var out struct {
		Success bool `json:"success"`
	}
	query := url.Values{"kelas": {"XII RPL 1"}}
	require.NoError(t, g.Do(context.Background(), http.MethodGet, "/export/attendance", query, nil, &out))
	assert.True(t, out.Success)

	calls := svc.calls()
	assert.Equal(t, "Bearer tok1", calls[len(calls)-1].Authorization)
}

func TestResolveBaseURL(t *testing.T) {
	got, err := ResolveBaseURL("http://127.0.0.1:8080", "/api/v1")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8080/api/v1", got)

	got, err = ResolveBaseURL("", "https://www.reihan.biz.id/api/v1")
	require.NoError(t, err)
	assert.Equal(t, "https://www.reihan.biz.id/api/v1", got)

	_, err = ResolveBaseURL("", "/api/v1")
	assert.Error(t, err)

	_, err = New("/api/v1", memory.New())
	assert.Error(t, err)
}
