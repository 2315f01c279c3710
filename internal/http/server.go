// Package http is the local HTTP surface over the session manager: the
// login form, the attendance code form and the staff pages talk to it.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/grifitth12/absen-siswa/internal/gateway"
	"github.com/grifitth12/absen-siswa/internal/logging"
	"github.com/grifitth12/absen-siswa/internal/model"
	"github.com/grifitth12/absen-siswa/internal/session"
	"github.com/grifitth12/absen-siswa/internal/staff"
)

type Server struct {
	session *session.Manager
	staff   *staff.Client
	nav     *NavigationLog
	log     zerolog.Logger
	now     func() time.Time
}

// NewServer serves mgr. nav must be the navigator mgr was built with.
func NewServer(mgr *session.Manager, staffClient *staff.Client, nav *NavigationLog, log zerolog.Logger) *Server {
	return &Server{
		session: mgr,
		staff:   staffClient,
		nav:     nav,
		log:     log,
		now:     time.Now,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(logging.Middleware(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/session", s.handleSession)
		r.Post("/session/login", s.handleLogin)
		r.Post("/session/logout", s.handleLogout)
		r.Post("/absen", s.handleSubmit)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requirePrivileged)
			r.Post("/tokens", s.handleCreateToken)
			r.Post("/tokens/default", s.handleCreateDefaultToken)
			r.Get("/dashboard", s.handleDashboard)
			r.Get("/chart", s.handleChart)
			r.Get("/export", s.handleExport)
			r.Get("/logs", s.handleLogs)
		})
	})
	return r
}

type sessionResponse struct {
	Session  session.Snapshot `json:"session"`
	Message  string           `json:"message,omitempty"`
	Role     string           `json:"role,omitempty"`
	Redirect string           `json:"redirect,omitempty"`
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, sessionResponse{Session: s.session.Snapshot()})
}

type loginRequest struct {
	NISN     string `json:"nisn"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	mark := s.nav.Mark()
	result, err := s.session.Login(r.Context(), model.Credentials{NISN: req.NISN, Password: req.Password})
	if err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Session:  s.session.Snapshot(),
		Message:  result.Message,
		Role:     result.Role,
		Redirect: s.redirectSince(mark),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	mark := s.nav.Mark()
	s.session.Logout(r.Context())
	writeJSON(w, http.StatusOK, sessionResponse{
		Session:  s.session.Snapshot(),
		Redirect: s.redirectSince(mark),
	})
}

type submitRequest struct {
	TokenCode string `json:"token_code"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	result, err := s.session.SubmitAttendanceToken(r.Context(), req.TokenCode)
	if err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type createTokenRequest struct {
	Duration  int `json:"duration"`
	LateAfter int `json:"late_after"`
}

func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req createTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	tok, err := s.staff.CreateToken(r.Context(), time.Duration(req.Duration)*time.Minute, time.Duration(req.LateAfter)*time.Minute)
	if err != nil {
		s.writeStaffError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tok)
}

func (s *Server) handleCreateDefaultToken(w http.ResponseWriter, r *http.Request) {
	tok, err := s.staff.CreateDefaultToken(r.Context())
	if err != nil {
		s.writeStaffError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tok)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := s.staff.DashboardStats(r.Context())
	if err != nil {
		s.writeStaffError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_days")
			return
		}
		days = n
	}
	points, err := s.staff.AttendanceChart(r.Context(), days)
	if err != nil {
		s.writeStaffError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

type tableResponse struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := staff.Filter{Kelas: q.Get("kelas"), Jurusan: q.Get("jurusan"), Tanggal: q.Get("tanggal")}
	table, err := s.staff.ExportAttendance(r.Context(), f)
	if err != nil {
		s.writeStaffError(w, r, err)
		return
	}

	if q.Get("format") != "csv" {
		writeJSON(w, http.StatusOK, tableResponse{Columns: table.Columns, Rows: table.Rows})
		return
	}
	name := staff.ExportFileName(f, s.now())
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	if err := staff.WriteCSV(w, table); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("streaming export")
	}
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	table, err := s.staff.History(r.Context())
	if err != nil {
		s.writeStaffError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tableResponse{Columns: table.Columns, Rows: table.Rows})
}

func (s *Server) requirePrivileged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := s.session.Snapshot()
		if !snap.IsAuthenticated || snap.User == nil {
			writeError(w, http.StatusUnauthorized, "not_authenticated")
			return
		}
		if !s.session.Privileged(snap.User.Role) {
			writeError(w, http.StatusForbidden, "staff_only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) redirectSince(mark uint64) string {
	dest, ok := s.nav.Since(mark)
	if !ok {
		return ""
	}
	return string(dest)
}

// writeSessionError maps login and redemption failures onto statuses; the
// body carries the message meant for the form.
func (s *Server) writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		authErr   *gateway.AuthenticationError
		redeemErr *gateway.RedemptionError
		netErr    *gateway.NetworkError
	)
	switch {
	case errors.Is(err, gateway.ErrMissingCredentials), errors.Is(err, gateway.ErrEmptyTokenCode):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, gateway.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "not_authenticated")
	case errors.As(err, &netErr):
		writeError(w, http.StatusBadGateway, netErr.Error())
	case errors.As(err, &authErr), errors.Is(err, session.ErrProfileUnavailable):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &redeemErr):
		status := redeemErr.StatusCode
		if status < 400 || status > 499 {
			status = http.StatusBadGateway
		}
		writeError(w, status, redeemErr.Message)
	case errors.Is(err, session.ErrSuperseded):
		writeError(w, http.StatusConflict, "superseded")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("session operation failed")
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}

func (s *Server) writeStaffError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		apiErr *gateway.APIError
		netErr *gateway.NetworkError
	)
	switch {
	case errors.Is(err, staff.ErrFilterRequired), errors.Is(err, staff.ErrInvalidDuration):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &apiErr):
		status := http.StatusBadGateway
		switch apiErr.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			status = apiErr.StatusCode
		}
		writeError(w, status, apiErr.Message)
	case errors.As(err, &netErr):
		writeError(w, http.StatusBadGateway, netErr.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("staff operation failed")
		writeError(w, http.StatusInternalServerError, "server_error")
	}
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
