package devapi

import (
	"crypto/rand"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrCodeInvalid     = errors.New("token code not recognised")
	ErrCodeExpired     = errors.New("token expired")
	ErrAlreadyRedeemed = errors.New("attendance already recorded for this token")
)

const (
	StatusPresent = "present"
	StatusLate    = "late"
)

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

type User struct {
	ID           int64
	NISN         string
	FullName     string
	Username     string
	Role         string
	ClassGroup   string
	Jurusan      string
	PasswordHash []byte
}

type Code struct {
	ID         int64
	Code       string
	Active     bool
	CreatedBy  int64
	CreatedAt  time.Time
	LateAfter  time.Time
	ValidUntil time.Time
}

type Record struct {
	ID        string
	UserID    int64
	CodeID    int64
	Status    string
	CreatedAt time.Time
}

type LogEntry struct {
	ID        string
	Action    string
	ActorID   int64
	Detail    string
	CreatedAt time.Time
}

// Store is the development service's in-memory school: users, attendance
// codes, attendance records and an activity log.
type Store struct {
	cost int

	mu      sync.Mutex
	users   map[int64]*User
	byNISN  map[string]int64
	codes   map[string]*Code
	records []Record
	logs    []LogEntry
	nextID  int64
}

// NewStore returns an empty store hashing passwords at the given bcrypt
// cost (bcrypt.DefaultCost when zero).
func NewStore(cost int) *Store {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Store{
		cost:   cost,
		users:  map[int64]*User{},
		byNISN: map[string]int64{},
		codes:  map[string]*Code{},
	}
}

func (s *Store) AddUser(u User, password string) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == 0 {
		s.nextID++
		u.ID = s.nextID
	} else if u.ID > s.nextID {
		s.nextID = u.ID
	}
	u.PasswordHash = hash
	s.users[u.ID] = &u
	s.byNISN[u.NISN] = u.ID
	return u, nil
}

// Authenticate checks nisn and password, returning ErrUserNotFound for any
// mismatch.
func (s *Store) Authenticate(nisn, password string) (User, error) {
	s.mu.Lock()
	id, ok := s.byNISN[nisn]
	var u User
	if ok {
		u = *s.users[id]
	}
	s.mu.Unlock()

	if !ok {
		return User{}, ErrUserNotFound
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *Store) User(id int64) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return *u, nil
}

// CreateCode issues a new attendance code valid from now for duration.
func (s *Store) CreateCode(creator int64, now time.Time, duration, lateAfter time.Duration) (Code, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var code string
	for {
		var err error
		code, err = randomCode(6)
		if err != nil {
			return Code{}, err
		}
		if _, taken := s.codes[code]; !taken {
			break
		}
	}
	c := &Code{
		ID:         int64(len(s.codes) + 1),
		Code:       code,
		Active:     true,
		CreatedBy:  creator,
		CreatedAt:  now,
		LateAfter:  now.Add(lateAfter),
		ValidUntil: now.Add(duration),
	}
	s.codes[code] = c
	s.logLocked("token_created", creator, code, now)
	return *c, nil
}

// Redeem records attendance for user against code at now.
func (s *Store) Redeem(userID int64, code string, now time.Time) (Record, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.codes[code]
	if !ok {
		return Record{}, ErrCodeInvalid
	}
	if !c.Active || !now.Before(c.ValidUntil) {
		return Record{}, ErrCodeExpired
	}
	for _, rec := range s.records {
		if rec.UserID == userID && rec.CodeID == c.ID {
			return Record{}, ErrAlreadyRedeemed
		}
	}

	status := StatusPresent
	if now.After(c.LateAfter) {
		status = StatusLate
	}
	rec := Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		CodeID:    c.ID,
		Status:    status,
		CreatedAt: now,
	}
	s.records = append(s.records, rec)
	s.logLocked("attendance", userID, code+" "+status, now)
	return rec, nil
}

// CloseExpired deactivates every code whose validity ended before now and
// reports how many it closed.
func (s *Store) CloseExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	closed := 0
	for _, c := range s.codes {
		if c.Active && !now.Before(c.ValidUntil) {
			c.Active = false
			closed++
		}
	}
	return closed
}

func (s *Store) Log(action string, actor int64, detail string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logLocked(action, actor, detail, now)
}

func (s *Store) logLocked(action string, actor int64, detail string, now time.Time) {
	s.logs = append(s.logs, LogEntry{
		ID:        uuid.NewString(),
		Action:    action,
		ActorID:   actor,
		Detail:    detail,
		CreatedAt: now,
	})
}

type Stats struct {
	TotalTokens     int `json:"totalTokens"`
	TodayAttendance int `json:"todayAttendance"`
	ActiveTokens    int `json:"activeTokens"`
	TotalAttendance int `json:"totalAttendance"`
}

func (s *Store) Stats(now time.Time) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{TotalTokens: len(s.codes), TotalAttendance: len(s.records)}
	for _, c := range s.codes {
		if c.Active && now.Before(c.ValidUntil) {
			st.ActiveTokens++
		}
	}
	today := day(now)
	for _, rec := range s.records {
		if day(rec.CreatedAt) == today {
			st.TodayAttendance++
		}
	}
	return st
}

type ChartPoint struct {
	Date       string `json:"date"`
	Attendance int    `json:"attendance"`
	Total      int    `json:"total"`
}

// Chart returns attendance per day for the days days ending with now's
// date, oldest first. Total is the number of students.
func (s *Store) Chart(now time.Time, days int) []ChartPoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	students := 0
	for _, u := range s.users {
		if u.Role == "student" {
			students++
		}
	}
	perDay := map[string]int{}
	for _, rec := range s.records {
		perDay[day(rec.CreatedAt)]++
	}

	points := make([]ChartPoint, days)
	for i := range points {
		d := day(now.AddDate(0, 0, i-days+1))
		points[i] = ChartPoint{Date: d, Attendance: perDay[d], Total: students}
	}
	return points
}

type ExportFilter struct {
	Kelas   string
	Jurusan string
	Tanggal string
}

// ExportRow field order is the column order of the export.
type ExportRow struct {
	NISN    string `json:"nisn"`
	Nama    string `json:"nama"`
	Kelas   string `json:"kelas"`
	Jurusan string `json:"jurusan"`
	Status  string `json:"status"`
	Waktu   string `json:"waktu"`
	Token   string `json:"token"`
}

func (s *Store) Export(f ExportFilter) []ExportRow {
	s.mu.Lock()
	defer s.mu.Unlock()

	codes := make(map[int64]string, len(s.codes))
	for _, c := range s.codes {
		codes[c.ID] = c.Code
	}
	rows := []ExportRow{}
	for _, rec := range s.records {
		u, ok := s.users[rec.UserID]
		if !ok {
			continue
		}
		if f.Kelas != "" && !strings.EqualFold(u.ClassGroup, f.Kelas) {
			continue
		}
		if f.Jurusan != "" && !strings.EqualFold(u.Jurusan, f.Jurusan) {
			continue
		}
		if f.Tanggal != "" && day(rec.CreatedAt) != f.Tanggal {
			continue
		}
		rows = append(rows, ExportRow{
			NISN:    u.NISN,
			Nama:    u.FullName,
			Kelas:   u.ClassGroup,
			Jurusan: u.Jurusan,
			Status:  rec.Status,
			Waktu:   rec.CreatedAt.UTC().Format(time.DateTime),
			Token:   codes[rec.CodeID],
		})
	}
	return rows
}

// Logs returns the activity log, newest first.
func (s *Store) Logs() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := append([]LogEntry(nil), s.logs...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func day(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

func randomCode(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
