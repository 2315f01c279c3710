// Package devapi is a development stand-in for the school's attendance
// service. It speaks the same REST contract as the real deployment so the
// client can be exercised end to end without it.
package devapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/grifitth12/absen-siswa/internal/config"
	"github.com/grifitth12/absen-siswa/internal/logging"
	"github.com/grifitth12/absen-siswa/internal/metrics"
	"github.com/grifitth12/absen-siswa/internal/model"
)

const maxChartDays = 365

// Login response shapes, one per token spelling seen in deployments.
const (
	ShapeAccessToken      = "access_token"
	ShapeAccessTokenCamel = "accessToken"
	ShapeToken            = "token"
	ShapeData             = "data"
)

type Server struct {
	cfg        config.DevAPI
	store      *Store
	privileged model.RoleSet
	log        zerolog.Logger
	now        func() time.Time
}

func NewServer(cfg config.DevAPI, store *Store, privileged model.RoleSet, log zerolog.Logger) *Server {
	return &Server{
		cfg:        cfg,
		store:      store,
		privileged: privileged,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(logging.Middleware(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.With(s.authMiddleware).Get("/auth/me", s.handleGetMe)

		r.With(s.authMiddleware).Post("/token/absen", s.handleRedeem)
		r.With(s.authMiddleware, s.requirePrivileged).Post("/token/create", s.handleCreateToken)
		r.With(s.authMiddleware, s.requirePrivileged).Post("/token/create/default", s.handleCreateDefaultToken)

		r.With(s.authMiddleware, s.requirePrivileged).Get("/dashboard", s.handleDashboard)
		r.With(s.authMiddleware, s.requirePrivileged).Get("/dashboard/chart", s.handleChart)
		r.With(s.authMiddleware, s.requirePrivileged).Get("/export/attendance", s.handleExport)
		r.With(s.authMiddleware, s.requirePrivileged).Get("/logs/", s.handleLogs)
	})
	return r
}

type loginRequest struct {
	NISN     string `json:"nisn"`
	Password string `json:"password"`
}

type profile struct {
	ID         int64  `json:"id"`
	NISN       string `json:"nisn"`
	FullName   string `json:"fullname"`
	Username   string `json:"username"`
	Role       string `json:"role"`
	ClassGroup string `json:"class_group,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.NISN = strings.TrimSpace(req.NISN)
	if req.NISN == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	user, err := s.store.Authenticate(req.NISN, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	accessToken, err := NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.AccessTokenTTL, Claims{
		UserID: user.ID,
		Role:   user.Role,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("signing access token")
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}
	s.store.Log("login", user.ID, user.Username, s.now())

	const message = "login berhasil"
	switch s.cfg.LoginShape {
	case ShapeAccessTokenCamel, ShapeToken:
		body := map[string]string{"message": message, "role": user.Role}
		body[s.cfg.LoginShape] = accessToken
		writeJSON(w, http.StatusOK, body)
	case ShapeData:
		writeJSON(w, http.StatusOK, map[string]any{
			"message": message,
			"data": map[string]string{
				"access_token": accessToken,
				"role":         user.Role,
			},
		})
	default:
		writeJSON(w, http.StatusOK, map[string]string{
			"message":      message,
			"access_token": accessToken,
			"role":         user.Role,
		})
	}
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	user, err := s.store.User(claims.UserID)
	if err != nil {
		writeError(w, http.StatusNotFound, "user_not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "ok",
		"data": profile{
			ID:         user.ID,
			NISN:       user.NISN,
			FullName:   user.FullName,
			Username:   user.Username,
			Role:       user.Role,
			ClassGroup: user.ClassGroup,
		},
	})
}

type redeemRequest struct {
	TokenCode string `json:"token_code"`
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req redeemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if strings.TrimSpace(req.TokenCode) == "" {
		writeFailure(w, http.StatusBadRequest, "missing_token_code", "Token code is required")
		return
	}

	rec, err := s.store.Redeem(claims.UserID, req.TokenCode, s.now())
	switch {
	case errors.Is(err, ErrCodeInvalid):
		metrics.Redemption("invalid")
		writeFailure(w, http.StatusNotFound, "token_invalid", "Token not found")
		return
	case errors.Is(err, ErrCodeExpired):
		metrics.Redemption("expired")
		writeFailure(w, http.StatusBadRequest, "token_expired", "Token expired")
		return
	case errors.Is(err, ErrAlreadyRedeemed):
		metrics.Redemption("duplicate")
		writeFailure(w, http.StatusConflict, "already_submitted", "Attendance already recorded")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	metrics.Redemption(rec.Status)
	message := "Absen berhasil"
	if rec.Status == StatusLate {
		message = "Absen berhasil (terlambat)"
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": message, "status": rec.Status})
}

type createTokenRequest struct {
	Duration  int `json:"duration"`
	LateAfter int `json:"late_after"`
}

type tokenResponse struct {
	ID         int64       `json:"id"`
	TokenCode  string      `json:"token_code"`
	IsActive   bool        `json:"is_active"`
	ValidUntil string      `json:"validUntil"`
	LateAfter  string      `json:"lateAfter"`
	CreatedAt  string      `json:"createdAt"`
	CreatedBy  creatorInfo `json:"created_by"`
}

type creatorInfo struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
}

func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req createTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Duration <= 0 || req.LateAfter < 0 || req.LateAfter > req.Duration {
		writeFailure(w, http.StatusBadRequest, "invalid_duration", "duration must be positive and late_after must lie within it")
		return
	}
	s.createToken(w, r, time.Duration(req.Duration)*time.Minute, time.Duration(req.LateAfter)*time.Minute)
}

func (s *Server) handleCreateDefaultToken(w http.ResponseWriter, r *http.Request) {
	s.createToken(w, r, s.cfg.DefaultDuration, s.cfg.DefaultLateAfter)
}

func (s *Server) createToken(w http.ResponseWriter, r *http.Request, duration, lateAfter time.Duration) {
	claims := claimsFromContext(r.Context())
	creator, err := s.store.User(claims.UserID)
	if err != nil {
		writeError(w, http.StatusNotFound, "user_not_found")
		return
	}
	code, err := s.store.CreateCode(creator.ID, s.now(), duration, lateAfter)
	if err != nil {
		s.log.Error().Err(err).Msg("creating attendance code")
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeData(w, http.StatusCreated, "Token created", tokenResponse{
		ID:         code.ID,
		TokenCode:  code.Code,
		IsActive:   code.Active,
		ValidUntil: code.ValidUntil.Format(time.RFC3339),
		LateAfter:  code.LateAfter.Format(time.RFC3339),
		CreatedAt:  code.CreatedAt.Format(time.RFC3339),
		CreatedBy:  creatorInfo{ID: creator.ID, FullName: creator.FullName},
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, "", s.store.Stats(s.now()))
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxChartDays {
			writeFailure(w, http.StatusBadRequest, "invalid_days", "days must be between 1 and 365")
			return
		}
		days = n
	}
	writeData(w, http.StatusOK, "", s.store.Chart(s.now(), days))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ExportFilter{
		Kelas:   strings.TrimSpace(q.Get("kelas")),
		Jurusan: strings.TrimSpace(q.Get("jurusan")),
		Tanggal: strings.TrimSpace(q.Get("tanggal")),
	}
	if f.Kelas == "" && f.Jurusan == "" && f.Tanggal == "" {
		writeFailure(w, http.StatusBadRequest, "filter_required", "Please select at least one filter before exporting")
		return
	}
	if f.Tanggal != "" {
		if _, err := time.Parse(time.DateOnly, f.Tanggal); err != nil {
			writeFailure(w, http.StatusBadRequest, "invalid_date", "tanggal must be YYYY-MM-DD")
			return
		}
	}
	writeData(w, http.StatusOK, "", s.store.Export(f))
}

type logResponse struct {
	ID        string `json:"id"`
	Action    string `json:"action"`
	ActorID   int64  `json:"actor_id"`
	Detail    string `json:"detail"`
	CreatedAt string `json:"created_at"`
}

func (s *Server) handleLogs(w http.ResponseWriter, _ *http.Request) {
	entries := s.store.Logs()
	out := make([]logResponse, len(entries))
	for i, e := range entries {
		out[i] = logResponse{
			ID:        e.ID,
			Action:    e.Action,
			ActorID:   e.ActorID,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		}
	}
	writeData(w, http.StatusOK, "", out)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}

		claims, err := ParseToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requirePrivileged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if claims == nil || !s.privileged.Contains(claims.Role) {
			writeFailure(w, http.StatusForbidden, "staff_only", "Only staff can access this resource")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type claimsKey struct{}

func claimsFromContext(ctx context.Context) *Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*Claims)
	return claims
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// writeFailure is writeError with the envelope the staff endpoints use and a
// message meant for display.
func writeFailure(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{"success": false, "error": code, "code": code, "message": message})
}

func writeData(w http.ResponseWriter, status int, message string, data any) {
	body := map[string]any{"success": true, "data": data}
	if message != "" {
		body["message"] = message
	}
	writeJSON(w, status, body)
}
