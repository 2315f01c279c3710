// Package staff wraps the privileged endpoints of the attendance service:
// attendance code generation, dashboard figures, exports and history.
package staff

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/grifitth12/absen-siswa/internal/gateway"
)

const DefaultChartDays = 30

var (
	ErrFilterRequired  = errors.New("select at least one filter (kelas, jurusan or tanggal) before exporting")
	ErrInvalidDuration = errors.New("duration must be positive and late_after must lie within it")
)

// API is the authenticated transport; *gateway.Gateway satisfies it.
type API interface {
	Do(ctx context.Context, method, path string, query url.Values, in, out any) error
	DoRaw(ctx context.Context, method, path string, query url.Values, in any) ([]byte, error)
}

type Client struct {
	api API
}

func New(api API) *Client {
	return &Client{api: api}
}

type Creator struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
}

// Token is an attendance code as issued by the service.
type Token struct {
	ID         int64   `json:"id"`
	TokenCode  string  `json:"token_code"`
	IsActive   bool    `json:"is_active"`
	ValidUntil string  `json:"validUntil"`
	LateAfter  string  `json:"lateAfter,omitempty"`
	CreatedAt  string  `json:"createdAt"`
	CreatedBy  Creator `json:"created_by"`
}

type Stats struct {
	TotalTokens     int `json:"totalTokens"`
	TodayAttendance int `json:"todayAttendance"`
	ActiveTokens    int `json:"activeTokens"`
	TotalAttendance int `json:"totalAttendance"`
}

type ChartPoint struct {
	Date       string `json:"date"`
	Attendance int    `json:"attendance"`
	Total      int    `json:"total,omitempty"`
}

// Filter narrows an attendance export. Tanggal is a YYYY-MM-DD date.
type Filter struct {
	Kelas   string `json:"kelas,omitempty"`
	Jurusan string `json:"jurusan,omitempty"`
	Tanggal string `json:"tanggal,omitempty"`
}

func (f Filter) Empty() bool {
	return f.Kelas == "" && f.Jurusan == "" && f.Tanggal == ""
}

func (f Filter) query() url.Values {
	q := url.Values{}
	if f.Kelas != "" {
		q.Set("kelas", f.Kelas)
	}
	if f.Jurusan != "" {
		q.Set("jurusan", f.Jurusan)
	}
	if f.Tanggal != "" {
		q.Set("tanggal", f.Tanggal)
	}
	return q
}

type envelope[T any] struct {
	Success *bool  `json:"success"`
	Data    T      `json:"data"`
	Message string `json:"message"`
}

// CreateToken issues an attendance code valid for duration; redemptions
// after lateAfter are recorded as late. Both travel as whole minutes.
func (c *Client) CreateToken(ctx context.Context, duration, lateAfter time.Duration) (Token, error) {
	if duration < time.Minute || lateAfter < 0 || lateAfter > duration {
		return Token{}, ErrInvalidDuration
	}
	payload := map[string]int{
		"duration":   int(duration / time.Minute),
		"late_after": int(lateAfter / time.Minute),
	}
	var env envelope[Token]
	if err := c.call(ctx, http.MethodPost, "/token/create", nil, payload, &env); err != nil {
		return Token{}, err
	}
	return env.Data, nil
}

// CreateDefaultToken issues a code with the service's default timings.
func (c *Client) CreateDefaultToken(ctx context.Context) (Token, error) {
	var env envelope[Token]
	if err := c.call(ctx, http.MethodPost, "/token/create/default", nil, nil, &env); err != nil {
		return Token{}, err
	}
	return env.Data, nil
}

func (c *Client) DashboardStats(ctx context.Context) (Stats, error) {
	var env envelope[Stats]
	if err := c.call(ctx, http.MethodGet, "/dashboard", nil, nil, &env); err != nil {
		return Stats{}, err
	}
	return env.Data, nil
}

// AttendanceChart returns one point per day for the last days days
// (DefaultChartDays when days is not positive).
func (c *Client) AttendanceChart(ctx context.Context, days int) ([]ChartPoint, error) {
	if days <= 0 {
		days = DefaultChartDays
	}
	q := url.Values{"days": {strconv.Itoa(days)}}
	var env envelope[[]ChartPoint]
	if err := c.call(ctx, http.MethodGet, "/dashboard/chart", q, nil, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// ExportAttendance fetches attendance rows matching f. Columns keep the
// order the service sent them in.
func (c *Client) ExportAttendance(ctx context.Context, f Filter) (Table, error) {
	if f.Empty() {
		return Table{}, ErrFilterRequired
	}
	body, err := c.api.DoRaw(ctx, http.MethodGet, "/export/attendance", f.query(), nil)
	if err != nil {
		return Table{}, err
	}
	return tableFromEnvelope(body)
}

// History returns the service's attendance log.
func (c *Client) History(ctx context.Context) (Table, error) {
	body, err := c.api.DoRaw(ctx, http.MethodGet, "/logs/", nil, nil)
	if err != nil {
		return Table{}, err
	}
	return tableFromEnvelope(body)
}

func (c *Client) call(ctx context.Context, method, path string, query url.Values, in any, env interface{ failed() (bool, string) }) error {
	if err := c.api.Do(ctx, method, path, query, in, env); err != nil {
		return err
	}
	if failed, msg := env.failed(); failed {
		if msg == "" {
			msg = "an error occurred"
		}
		return &gateway.APIError{StatusCode: http.StatusOK, Message: msg}
	}
	return nil
}

func (e *envelope[T]) failed() (bool, string) {
	return e.Success != nil && !*e.Success, e.Message
}

func tableFromEnvelope(body []byte) (Table, error) {
	if s := gjson.GetBytes(body, "success"); s.Exists() && !s.Bool() {
		msg := gjson.GetBytes(body, "message").String()
		if msg == "" {
			msg = "an error occurred"
		}
		return Table{}, &gateway.APIError{StatusCode: http.StatusOK, Message: msg}
	}
	data := gjson.GetBytes(body, "data")
	if !data.Exists() {
		data = gjson.ParseBytes(body)
	}
	if data.Type == gjson.Null {
		return Table{}, nil
	}
	if !data.IsArray() {
		return Table{}, fmt.Errorf("staff: expected a list of rows, got %s", kind(data))
	}
	return newTable(data), nil
}

func kind(r gjson.Result) string {
	if r.IsObject() {
		return "object"
	}
	return strings.ToLower(r.Type.String())
}
