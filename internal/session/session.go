// Package session keeps the single in-memory answer to "who is logged in",
// reconciling it with the gateway's persisted slots.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/grifitth12/absen-siswa/internal/metrics"
	"github.com/grifitth12/absen-siswa/internal/model"
)

var (
	// ErrSuperseded is returned by a login whose result was discarded
	// because a newer login or logout was issued while it was in flight.
	ErrSuperseded = errors.New("session: login superseded by a newer operation")
	// ErrProfileUnavailable is returned by a login whose token was accepted
	// but whose profile could not be fetched.
	ErrProfileUnavailable = errors.New("session: profile unavailable")
)

type State int

const (
	Unknown State = iota
	Restoring
	Authenticated
	Anonymous
)

func (s State) String() string {
	switch s {
	case Unknown:
		return "unknown"
	case Restoring:
		return "restoring"
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	default:
		return "invalid"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Gateway is the slice of the credential gateway the manager drives. The
// manager does its own slot writes so that a superseded operation never
// touches them.
type Gateway interface {
	Authenticate(ctx context.Context, creds model.Credentials) (model.LoginResult, error)
	Profile(ctx context.Context, token string) (*model.User, error)
	SubmitAttendanceToken(ctx context.Context, code string) (model.Redemption, error)
	Logout(ctx context.Context) error
	Token(ctx context.Context) (string, bool, error)
	SetToken(ctx context.Context, token string) error
	CachedUser(ctx context.Context) (*model.User, error)
	CacheUser(ctx context.Context, user model.User) error
}

// Snapshot is a consistent view of the session at one instant.
type Snapshot struct {
	State           State       `json:"state"`
	User            *model.User `json:"user"`
	IsAuthenticated bool        `json:"is_authenticated"`
	IsLoading       bool        `json:"is_loading"`
}

type Manager struct {
	gw         Gateway
	privileged model.RoleSet
	nav        Navigator
	log        zerolog.Logger

	// commit is held while an operation is issued and while the newest
	// operation writes the persisted slots. It is never held across a call
	// to the service. Lock order: commit, then mu.
	commit sync.Mutex

	mu      sync.Mutex
	state   State
	user    *model.User
	started bool
	seq     uint64
	logins  int
}

type Option func(*Manager)

// WithPrivilegedRoles sets the roles that skip the profile fetch and are
// sent to the admin area. The default is staff and admin.
func WithPrivilegedRoles(roles model.RoleSet) Option {
	return func(m *Manager) {
		m.privileged = roles
	}
}

func WithNavigator(nav Navigator) Option {
	return func(m *Manager) {
		m.nav = nav
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) {
		m.log = log
	}
}

func New(gw Gateway, opts ...Option) *Manager {
	m := &Manager{
		gw:         gw,
		privileged: model.NewRoleSet("staff", "admin"),
		nav:        NavigatorFunc(func(Destination) {}),
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start restores the session from persisted slots. Only the first call does
// anything; restore failures are logged and end in Anonymous.
func (m *Manager) Start(ctx context.Context) {
	m.commit.Lock()
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		m.commit.Unlock()
		return
	}
	m.started = true
	seq := m.issueLocked()
	m.setStateLocked(Restoring)
	m.mu.Unlock()
	m.commit.Unlock()

	r := m.restore(ctx)

	m.commit.Lock()
	defer m.commit.Unlock()
	m.mu.Lock()
	if seq != m.seq {
		m.discardLocked("restore")
		m.mu.Unlock()
		return
	}
	m.user = r.user
	if r.user == nil {
		m.setStateLocked(Anonymous)
	} else {
		m.setStateLocked(Authenticated)
	}
	m.mu.Unlock()

	switch {
	case r.clear:
		if err := m.gw.Logout(ctx); err != nil {
			m.log.Error().Err(err).Msg("clearing session slots")
		}
	case r.fetched:
		if err := m.gw.CacheUser(ctx, *r.user); err != nil {
			m.log.Warn().Err(err).Msg("caching profile")
		}
	}
}

type restored struct {
	user    *model.User
	clear   bool
	fetched bool
}

// restore reads the slots and, when needed, asks the service who the token
// belongs to. It writes nothing.
func (m *Manager) restore(ctx context.Context) restored {
	token, ok, err := m.gw.Token(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("reading stored token")
		return restored{clear: true}
	}
	if !ok {
		return restored{}
	}

	cached, err := m.gw.CachedUser(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("reading cached profile")
	} else if cached != nil && m.privileged.Contains(cached.Role) {
		m.log.Debug().Str("role", cached.Role).Msg("session restored from cached profile")
		return restored{user: cached}
	}

	user, err := m.gw.Profile(ctx, token)
	if err != nil || user == nil {
		m.log.Info().Err(err).Msg("session restore failed, continuing anonymous")
		return restored{clear: true}
	}
	return restored{user: user, fetched: true}
}

// Login authenticates with creds. A privileged role gets a locally built
// profile and a navigation signal to the admin area; any other role has its
// profile fetched. Nothing is persisted unless the login is still the newest
// operation when it completes. On failure the state is left as it was,
// except that a session still restoring becomes Anonymous.
func (m *Manager) Login(ctx context.Context, creds model.Credentials) (model.LoginResult, error) {
	m.commit.Lock()
	m.mu.Lock()
	m.started = true
	seq := m.issueLocked()
	m.logins++
	m.mu.Unlock()
	m.commit.Unlock()
	defer func() {
		m.mu.Lock()
		m.logins--
		m.mu.Unlock()
	}()

	result, err := m.gw.Authenticate(ctx, creds)
	if err != nil {
		return model.LoginResult{}, m.failLogin(seq, err)
	}

	privileged := m.privileged.Contains(result.Role)
	var user *model.User
	if privileged {
		user = &model.User{
			NISN:     creds.NISN,
			Username: creds.NISN,
			Role:     result.Role,
		}
	} else {
		user, err = m.gw.Profile(ctx, result.Token)
		if err == nil && user == nil {
			err = ErrProfileUnavailable
		} else if err != nil {
			err = fmt.Errorf("%w: %w", ErrProfileUnavailable, err)
		}
		if err != nil {
			return model.LoginResult{}, m.failLogin(seq, err)
		}
	}

	m.commit.Lock()
	m.mu.Lock()
	if seq != m.seq {
		m.discardLocked("login")
		m.mu.Unlock()
		m.commit.Unlock()
		return model.LoginResult{}, ErrSuperseded
	}
	m.mu.Unlock()

	if err := m.gw.SetToken(ctx, result.Token); err != nil {
		err = m.failLogin(seq, err)
		m.commit.Unlock()
		return model.LoginResult{}, err
	}
	if err := m.gw.CacheUser(ctx, *user); err != nil {
		m.log.Warn().Err(err).Msg("caching profile")
	}
	m.mu.Lock()
	m.user = user
	m.setStateLocked(Authenticated)
	m.mu.Unlock()
	m.commit.Unlock()

	m.log.Info().Str("role", result.Role).Msg("logged in")
	if privileged {
		m.nav.Navigate(DestinationAdmin)
	}
	return result, nil
}

// failLogin settles the state after a failed login and returns err.
func (m *Manager) failLogin(seq uint64, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if seq != m.seq {
		return err
	}
	if m.state == Unknown || m.state == Restoring {
		m.user = nil
		m.setStateLocked(Anonymous)
	}
	return err
}

// Logout forgets the session. It never fails; a storage error is logged.
func (m *Manager) Logout(ctx context.Context) {
	m.commit.Lock()
	m.mu.Lock()
	m.started = true
	m.issueLocked()
	m.user = nil
	m.setStateLocked(Anonymous)
	m.mu.Unlock()

	err := m.gw.Logout(ctx)
	m.commit.Unlock()
	if err != nil {
		m.log.Error().Err(err).Msg("clearing session slots")
	}
	m.log.Info().Msg("logged out")
	m.nav.Navigate(DestinationLogin)
}

// SubmitAttendanceToken redeems code for the current session. It never
// changes the session state.
func (m *Manager) SubmitAttendanceToken(ctx context.Context, code string) (model.Redemption, error) {
	return m.gw.SubmitAttendanceToken(ctx, code)
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var user *model.User
	if m.user != nil {
		u := *m.user
		user = &u
	}
	return Snapshot{
		State:           m.state,
		User:            user,
		IsAuthenticated: m.state == Authenticated,
		IsLoading:       m.state == Unknown || m.state == Restoring || m.logins > 0,
	}
}

// Privileged reports whether role belongs to the privileged set.
func (m *Manager) Privileged(role string) bool {
	return m.privileged.Contains(role)
}

func (m *Manager) issueLocked() uint64 {
	m.seq++
	return m.seq
}

func (m *Manager) discardLocked(op string) {
	metrics.StaleCompletion()
	m.log.Debug().Str("op", op).Msg("discarding stale completion")
}

func (m *Manager) setStateLocked(state State) {
	if m.state == state {
		return
	}
	m.state = state
	metrics.SessionTransition(state.String())
}
