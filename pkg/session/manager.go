// Package session keeps a client authenticated against the backend.
//
// Manager owns one state machine, Unauthenticated -> Authenticated -> Refreshing ->
// Authenticated|Unauthenticated. Explicit calls (SignIn, Check, SignOut) and the refresh
// timer are both stimuli into that machine; the timer is best-effort and Check stays the
// source of truth for validity.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/go-go-golems/lenin/pkg/backend"
	"github.com/go-go-golems/lenin/pkg/claims"
	"github.com/go-go-golems/lenin/pkg/tokenstore"
)

// DefaultMargin is how long before the literal expiry a token is treated as expired.
const DefaultMargin = 10 * time.Second

// DefaultDisplayName is stored when the login answer carries no nombre.
const DefaultDisplayName = "Usuario"

var (
	ErrAlreadyAuthenticated = errors.New("session already authenticated")
	ErrSignInInProgress     = errors.New("sign-in already in progress")
	ErrNoRefreshToken       = errors.New("no refresh token available")
	ErrSessionEnded         = errors.New("session ended while refreshing")
)

// AuthAPI is the slice of the backend the manager talks to.
type AuthAPI interface {
	Login(ctx context.Context, req backend.LoginRequest) (*backend.LoginResponse, error)
	Register(ctx context.Context, payload any) (json.RawMessage, error)
	Refresh(ctx context.Context, refreshToken string) (*backend.TokenPair, error)
}

type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

type TimerState int

const (
	TimerIdle TimerState = iota
	TimerArmed
	TimerFiring
)

// Credentials is the bearer token pair.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

type Identity struct {
	Username    string
	DisplayName string
	Role        string
}

type Manager struct {
	store  *tokenstore.Store
	api    AuthAPI
	clock  clockwork.Clock
	margin time.Duration
	// timerCtx is handed to refreshes started by the timer.
	timerCtx context.Context
	logger   zerolog.Logger

	refreshGroup singleflight.Group

	mu         sync.Mutex
	state      State
	signingIn  bool
	epoch      uint64
	timer      clockwork.Timer
	timerGen   uint64
	timerState TimerState
}

type Option func(*Manager)

func WithClock(c clockwork.Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

func WithMargin(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.margin = d
		}
	}
}

// WithTimerContext sets the context used by timer-driven refreshes.
func WithTimerContext(ctx context.Context) Option {
	return func(m *Manager) {
		if ctx != nil {
			m.timerCtx = ctx
		}
	}
}

func NewManager(store *tokenstore.Store, api AuthAPI, opts ...Option) *Manager {
	if store == nil {
		store = tokenstore.NewMemory()
	}
	m := &Manager{
		store:    store,
		api:      api,
		clock:    clockwork.NewRealClock(),
		margin:   DefaultMargin,
		timerCtx: context.Background(),
		logger:   log.With().Str("component", "session").Logger(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) Store() *tokenstore.Store { return m.store }

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Authenticated() bool {
	return m.State() != StateUnauthenticated
}

func (m *Manager) TimerState() TimerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timerState
}

func (m *Manager) Identity() Identity {
	return Identity{
		Username:    m.store.Get(tokenstore.KeyUsername),
		DisplayName: m.store.Get(tokenstore.KeyNombre),
		Role:        m.store.Get(tokenstore.KeyRole),
	}
}

// SignIn exchanges username and password for a token pair. It refuses to run while this
// manager already holds a live session; other processes sharing the store are not checked.
func (m *Manager) SignIn(ctx context.Context, req backend.LoginRequest) (*backend.LoginResponse, error) {
	m.mu.Lock()
	if m.state != StateUnauthenticated {
		m.mu.Unlock()
		return nil, ErrAlreadyAuthenticated
	}
	if m.signingIn {
		m.mu.Unlock()
		return nil, ErrSignInInProgress
	}
	m.signingIn = true
	epoch := m.epoch
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.signingIn = false
		m.mu.Unlock()
	}()

	resp, err := m.api.Login(ctx, req)
	if err != nil {
		return nil, err
	}

	role := resp.Roles.First()
	if role == "" {
		role = claims.Role(resp.AccessToken)
	}
	if role == "" {
		role = claims.DefaultRole
	}
	nombre := resp.Nombre
	if nombre == "" {
		nombre = DefaultDisplayName
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		return nil, ErrSessionEnded
	}
	m.store.SetAccessToken(resp.AccessToken)
	m.store.SetRefreshToken(resp.RefreshToken)
	m.store.Set(tokenstore.KeyUsername, resp.Username)
	m.store.Set(tokenstore.KeyNombre, nombre)
	m.store.Set(tokenstore.KeyRole, role)
	m.state = StateAuthenticated
	m.armRefreshTimerLocked()

	m.logger.Info().Str("username", resp.Username).Str("role", role).Msg("signed in")
	return resp, nil
}

// SignUp forwards a registration payload. It does not sign in.
func (m *Manager) SignUp(ctx context.Context, payload any) (json.RawMessage, error) {
	return m.api.Register(ctx, payload)
}

// RefreshAccessToken exchanges the stored refresh token for a new pair. Concurrent callers
// share one exchange.
func (m *Manager) RefreshAccessToken(ctx context.Context) (Credentials, error) {
	if m.store.RefreshToken() == "" {
		return Credentials{}, ErrNoRefreshToken
	}
	v, err, _ := m.refreshGroup.Do("refresh", func() (interface{}, error) {
		return m.exchange(ctx)
	})
	if err != nil {
		return Credentials{}, err
	}
	return v.(Credentials), nil
}

func (m *Manager) exchange(ctx context.Context) (Credentials, error) {
	refreshToken := m.store.RefreshToken()
	if refreshToken == "" {
		return Credentials{}, ErrNoRefreshToken
	}

	m.mu.Lock()
	epoch := m.epoch
	if m.state == StateAuthenticated {
		m.state = StateRefreshing
	}
	m.mu.Unlock()

	pair, err := m.api.Refresh(ctx, refreshToken)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		return Credentials{}, ErrSessionEnded
	}
	if err != nil {
		if m.state == StateRefreshing {
			m.state = StateUnauthenticated
		}
		return Credentials{}, err
	}

	m.store.SetAccessToken(pair.AccessToken)
	m.store.SetRefreshToken(pair.RefreshToken)
	if m.state == StateRefreshing {
		m.state = StateAuthenticated
	}
	m.armRefreshTimerLocked()

	m.logger.Debug().Msg("access token refreshed")
	return Credentials{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil
}

// Check is the authentication gate. It never returns an error: any failure means "not
// authenticated".
func (m *Manager) Check(ctx context.Context) bool {
	if m.Authenticated() {
		m.ensureIdentity()
		return true
	}

	token := m.store.AccessToken()
	if token == "" {
		return false
	}

	m.mu.Lock()
	epoch := m.epoch
	m.mu.Unlock()

	if claims.IsExpired(token, m.margin, m.clock.Now()) {
		if _, err := m.RefreshAccessToken(ctx); err != nil {
			m.logger.Debug().Err(err).Msg("check: refresh failed")
			return false
		}
		if !m.markAuthenticated(epoch, false) {
			return false
		}
		m.ensureIdentity()
		return true
	}

	// Storage survived but memory did not (fresh process / reload).
	if !m.markAuthenticated(epoch, true) {
		return false
	}
	m.ensureIdentity()
	return true
}

func (m *Manager) markAuthenticated(epoch uint64, arm bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		return false
	}
	m.state = StateAuthenticated
	if arm {
		m.armRefreshTimerLocked()
	}
	return true
}

// SignOut forgets every stored credential and cancels the refresh timer. The backend is
// not contacted.
func (m *Manager) SignOut() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store.Clear()
	m.stopTimerLocked()
	m.state = StateUnauthenticated
	m.epoch++
	m.logger.Info().Msg("signed out")
}

func (m *Manager) ensureIdentity() {
	if m.store.Get(tokenstore.KeyUsername) != "" {
		return
	}
	token := m.store.AccessToken()
	if token == "" {
		return
	}
	if u := claims.Username(token); u != "" {
		m.store.Set(tokenstore.KeyUsername, u)
	}
}

// Close cancels the refresh timer and leaves the stored credentials alone.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimerLocked()
}
