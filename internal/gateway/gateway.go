// Package gateway is the client side of the remote attendance service: it
// performs the login exchange, resolves the current user, redeems
// attendance codes and owns every read and write of the persisted session
// slots.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/grifitth12/absen-siswa/internal/metrics"
	"github.com/grifitth12/absen-siswa/internal/model"
	"github.com/grifitth12/absen-siswa/internal/storage"
)

const maxResponseBytes = 8 << 20

// tokenPaths lists, in priority order, every place a deployment of the
// service has been seen to put the access token.
var tokenPaths = []string{"access_token", "accessToken", "token", "data.access_token"}

var (
	rolePaths    = []string{"role", "data.role", "user.role"}
	messagePaths = []string{"message", "data.message"}
)

type Gateway struct {
	baseURL *url.URL
	client  *http.Client
	store   storage.Store
	log     zerolog.Logger
}

type Option func(*Gateway)

func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) {
		g.client = client
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(g *Gateway) {
		g.log = log
	}
}

// New returns a gateway for the service rooted at baseURL (for example
// https://school.example/api/v1) that keeps its slots in store.
func New(baseURL string, store storage.Store, opts ...Option) (*Gateway, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("gateway: invalid base url: %w", err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("gateway: base url %q is not absolute", baseURL)
	}
	g := &Gateway{
		baseURL: u,
		client:  http.DefaultClient,
		store:   store,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// ResolveBaseURL resolves a possibly relative base path such as /api/v1
// against origin.
func ResolveBaseURL(origin, base string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("gateway: invalid base url: %w", err)
	}
	if b.IsAbs() {
		return b.String(), nil
	}
	o, err := url.Parse(origin)
	if err != nil || !o.IsAbs() {
		return "", fmt.Errorf("gateway: relative base url %q needs an absolute origin, got %q", base, origin)
	}
	return o.ResolveReference(b).String(), nil
}

// BaseURL returns the service root the gateway talks to.
func (g *Gateway) BaseURL() string {
	return g.baseURL.String()
}

// Login authenticates with creds and persists the returned token.
func (g *Gateway) Login(ctx context.Context, creds model.Credentials) (model.LoginResult, error) {
	result, err := g.Authenticate(ctx, creds)
	if err != nil {
		return model.LoginResult{}, err
	}
	if err := g.SetToken(ctx, result.Token); err != nil {
		return model.LoginResult{}, err
	}
	return result, nil
}

// Authenticate performs the login exchange without touching the slots.
func (g *Gateway) Authenticate(ctx context.Context, creds model.Credentials) (result model.LoginResult, err error) {
	defer func() { observe("login", err) }()

	creds.NISN = strings.TrimSpace(creds.NISN)
	if creds.NISN == "" || creds.Password == "" {
		return model.LoginResult{}, ErrMissingCredentials
	}

	status, body, err := g.send(ctx, "login", http.MethodPost, "/auth/login", nil, "", creds)
	if err != nil {
		return model.LoginResult{}, err
	}
	if !success(status) {
		return model.LoginResult{}, &AuthenticationError{
			StatusCode: status,
			Message:    firstString(body, []string{"error", "message"}, "login failed"),
		}
	}

	result, err = parseLogin(body)
	if err != nil {
		var authErr *AuthenticationError
		if errors.As(err, &authErr) {
			authErr.StatusCode = status
		}
		return model.LoginResult{}, err
	}
	g.log.Debug().Str("role", result.Role).Msg("login succeeded")
	return result, nil
}

// SetToken stores token as the session token.
func (g *Gateway) SetToken(ctx context.Context, token string) error {
	if err := g.store.Set(ctx, storage.KeyAuthToken, token); err != nil {
		return fmt.Errorf("gateway: persisting token: %w", err)
	}
	return nil
}

// CurrentUser returns the profile behind the stored token. It returns
// (nil, nil) when no token is held, and also when the service rejects the
// token, in which case the token is cleared unless it was replaced while
// the request was in flight.
func (g *Gateway) CurrentUser(ctx context.Context) (*model.User, error) {
	token, ok, err := g.Token(ctx)
	if err != nil || !ok {
		return nil, err
	}

	user, err := g.Profile(ctx, token)
	if errors.Is(err, ErrTokenRejected) {
		g.log.Info().Msg("stored token rejected, clearing it")
		if err := g.clearToken(ctx, token); err != nil {
			g.log.Error().Err(err).Msg("clearing rejected token")
		}
		return nil, nil
	}
	return user, err
}

// Profile fetches the profile behind token. A non-2xx answer is reported as
// ErrTokenRejected; the slots are left alone.
func (g *Gateway) Profile(ctx context.Context, token string) (user *model.User, err error) {
	defer func() { observe("current_user", err) }()

	status, body, err := g.send(ctx, "current_user", http.MethodGet, "/auth/me", nil, token, nil)
	if err != nil {
		return nil, err
	}
	if !success(status) {
		return nil, fmt.Errorf("%w (status %d)", ErrTokenRejected, status)
	}
	return parseUser(body)
}

func (g *Gateway) clearToken(ctx context.Context, token string) error {
	stored, ok, err := g.Token(ctx)
	if err != nil || !ok || stored != token {
		return err
	}
	return g.store.Delete(ctx, storage.KeyAuthToken)
}

// SubmitAttendanceToken redeems an attendance code for the current session.
func (g *Gateway) SubmitAttendanceToken(ctx context.Context, code string) (result model.Redemption, err error) {
	defer func() { observe("redeem", err) }()

	token, ok, err := g.Token(ctx)
	if err != nil {
		return model.Redemption{}, err
	}
	if !ok {
		return model.Redemption{}, ErrNotAuthenticated
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return model.Redemption{}, ErrEmptyTokenCode
	}

	payload := map[string]string{"token_code": code}
	status, body, err := g.send(ctx, "redeem", http.MethodPost, "/token/absen", nil, token, payload)
	if err != nil {
		return model.Redemption{}, err
	}
	if !success(status) {
		return model.Redemption{}, &RedemptionError{
			StatusCode: status,
			Message:    firstString(body, []string{"message", "error"}, "failed to submit attendance token"),
		}
	}

	if err := json.Unmarshal(body, &result); err != nil {
		return model.Redemption{}, fmt.Errorf("gateway: decoding redemption: %w", err)
	}
	return result, nil
}

// Logout forgets the token and the cached profile. It never touches the
// network and is safe to call repeatedly.
func (g *Gateway) Logout(ctx context.Context) error {
	return g.store.Delete(ctx, storage.KeyAuthToken, storage.KeyUser)
}

// Token returns the stored session token, if any.
func (g *Gateway) Token(ctx context.Context) (string, bool, error) {
	token, ok, err := g.store.Get(ctx, storage.KeyAuthToken)
	if err != nil {
		return "", false, fmt.Errorf("gateway: reading token: %w", err)
	}
	return token, ok && token != "", nil
}

// CachedUser returns the profile cached by CacheUser. An unreadable cache
// entry is dropped and reported as absent.
func (g *Gateway) CachedUser(ctx context.Context) (*model.User, error) {
	raw, ok, err := g.store.Get(ctx, storage.KeyUser)
	if err != nil {
		return nil, fmt.Errorf("gateway: reading cached user: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var user model.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		g.log.Warn().Err(err).Msg("dropping unreadable cached user")
		_ = g.store.Delete(ctx, storage.KeyUser)
		return nil, nil
	}
	return &user, nil
}

func (g *Gateway) CacheUser(ctx context.Context, user model.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return g.store.Set(ctx, storage.KeyUser, string(data))
}

// Do sends a JSON request to one of the collaborator endpoints, attaching
// the stored bearer token when there is one, and decodes a 2xx answer into
// out (which may be nil).
func (g *Gateway) Do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	body, err := g.DoRaw(ctx, method, path, query, in)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &APIError{StatusCode: http.StatusOK, Message: fmt.Sprintf("decoding response: %v", err)}
	}
	return nil
}

// DoRaw is Do without the decoding step.
func (g *Gateway) DoRaw(ctx context.Context, method, path string, query url.Values, in any) (body []byte, err error) {
	defer func() { observe("api", err) }()

	token, _, err := g.Token(ctx)
	if err != nil {
		return nil, err
	}
	status, body, err := g.send(ctx, "api", method, path, query, token, in)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = "HTTP Error " + strconv.Itoa(status)
		}
		return nil, &APIError{StatusCode: status, Code: strconv.Itoa(status), Message: msg}
	}
	if !success(status) {
		return nil, &APIError{
			StatusCode: status,
			Code:       firstString(body, []string{"code"}, strconv.Itoa(status)),
			Message:    firstString(body, []string{"message", "error"}, "an error occurred"),
		}
	}
	return body, nil
}

func (g *Gateway) send(ctx context.Context, op, method, path string, query url.Values, token string, in any) (int, []byte, error) {
	var reader io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, nil, fmt.Errorf("gateway: encoding %s request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	u := g.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return 0, nil, fmt.Errorf("gateway: building %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, &NetworkError{Op: op, Err: err}
	}
	g.log.Debug().Str("op", op).Str("method", method).Str("path", u.Path).Int("status", resp.StatusCode).Msg("service call")
	return resp.StatusCode, body, nil
}

// parseLogin maps any observed login response shape onto LoginResult. The
// first token path that is present and non-null decides; it must hold a
// non-empty string or a non-zero number, which is kept in its literal form.
func parseLogin(body []byte) (model.LoginResult, error) {
	notFound := &AuthenticationError{Message: ErrTokenNotFound.Error(), Err: ErrTokenNotFound}
	if !gjson.ValidBytes(body) {
		return model.LoginResult{}, notFound
	}

	var token string
	for _, path := range tokenPaths {
		value := gjson.GetBytes(body, path)
		if !value.Exists() || value.Type == gjson.Null {
			continue
		}
		switch value.Type {
		case gjson.String:
			token = value.Str
		case gjson.Number:
			if value.Float() != 0 {
				token = value.Raw
			}
		}
		break
	}
	if token == "" {
		return model.LoginResult{}, notFound
	}

	return model.LoginResult{
		Message: firstString(body, messagePaths, ""),
		Token:   token,
		Role:    firstString(body, rolePaths, ""),
	}, nil
}

func parseUser(body []byte) (*model.User, error) {
	raw := body
	if data := gjson.GetBytes(body, "data"); data.IsObject() {
		raw = []byte(data.Raw)
	}
	var user model.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("gateway: decoding current user: %w", err)
	}
	return &user, nil
}

func firstString(body []byte, paths []string, fallback string) string {
	if !gjson.ValidBytes(body) {
		return fallback
	}
	for _, path := range paths {
		if value := gjson.GetBytes(body, path); value.Type == gjson.String && value.Str != "" {
			return value.Str
		}
	}
	return fallback
}

func success(status int) bool {
	return status >= 200 && status < 300
}

func observe(op string, err error) {
	var (
		netErr    *NetworkError
		authErr   *AuthenticationError
		redeemErr *RedemptionError
		apiErr    *APIError
	)
	outcome := "ok"
	switch {
	case err == nil:
	case errors.As(err, &netErr):
		outcome = "network_error"
	case errors.As(err, &authErr), errors.As(err, &redeemErr), errors.As(err, &apiErr):
		outcome = "rejected"
	case errors.Is(err, ErrNotAuthenticated), errors.Is(err, ErrMissingCredentials), errors.Is(err, ErrEmptyTokenCode):
		outcome = "invalid"
	default:
		outcome = "error"
	}
	metrics.GatewayCall(op, outcome)
}
