// package auth owns token lifecycles for every registered service. The
// manager hands out valid access tokens, refreshes them proactively before
// expiry, and persists refreshed material so restarts resume without a new
// login.
package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/desertthunder/plexist/internal/models"
	"github.com/desertthunder/plexist/internal/shared"
)

// CredentialStore is the persistence surface the manager needs. Satisfied
// by [repositories.CredentialRepository].
type CredentialStore interface {
	Get(service string) (*models.Credential, error)
	Put(cred models.Credential) error
}

// defaultMargin is used when a token's original lifetime is unknown, for
// example right after loading persisted credentials.
const defaultMargin = 5 * time.Minute

type serviceAuth struct {
	mu     sync.Mutex
	cred   models.Credential
	loaded bool
	static bool
	oauth  *oauth2.Config
	// margin is a quarter of the token's lifetime, captured at refresh
	// time. Tokens are refreshed once their remaining validity drops
	// below it.
	margin time.Duration
}

// Manager implements [services.TokenProvider] and [executor.AuthHandler].
//
// Each service has its own lock so only one goroutine refreshes a given
// service at a time while other services proceed unblocked.
type Manager struct {
	store  CredentialStore
	logger *log.Logger

	mu       sync.RWMutex
	services map[string]*serviceAuth
}

// NewManager creates a Manager backed by the given credential store.
func NewManager(store CredentialStore, logger *log.Logger) *Manager {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Manager{
		store:    store,
		logger:   logger.With("component", "auth"),
		services: map[string]*serviceAuth{},
	}
}

// RegisterStatic registers a service whose token never expires and cannot
// be refreshed, such as a Plex server token.
func (m *Manager) RegisterStatic(service, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[service] = &serviceAuth{
		cred:   models.Credential{Service: service, AccessToken: token},
		loaded: true,
		static: true,
	}
}

// RegisterOAuth registers a service whose tokens come from an OAuth2
// authorization code flow. Persisted credentials, if any, are loaded on
// first use.
func (m *Manager) RegisterOAuth(service string, config *oauth2.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[service] = &serviceAuth{oauth: config, margin: defaultMargin}
}

func (m *Manager) service(name string) (*serviceAuth, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sa, ok := m.services[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrUnknownService, name)
	}
	return sa, nil
}

// Token returns a currently valid access token for the service, refreshing
// first when the remaining validity has dropped below a quarter of the
// token's lifetime.
func (m *Manager) Token(ctx context.Context, service string) (string, error) {
	sa, err := m.service(service)
	if err != nil {
		return "", err
	}

	sa.mu.Lock()
	defer sa.mu.Unlock()

	if err := m.loadLocked(sa, service); err != nil {
		return "", err
	}
	if sa.cred.AccessToken == "" {
		return "", fmt.Errorf("%w: %s", shared.ErrMissingCredentials, service)
	}
	if m.needsRefresh(sa) {
		if err := m.refreshLocked(ctx, sa, service); err != nil {
			return "", err
		}
	}
	return sa.cred.AccessToken, nil
}

// OnAuthFailure forces a refresh after a rejected call, regardless of what
// the local expiry says. The executor replays the failed call once after a
// successful refresh.
func (m *Manager) OnAuthFailure(ctx context.Context, service string) error {
	sa, err := m.service(service)
	if err != nil {
		return err
	}

	sa.mu.Lock()
	defer sa.mu.Unlock()

	if sa.static {
		return fmt.Errorf("%w: %s token rejected and cannot be refreshed", shared.ErrAuthFailed, service)
	}
	if err := m.loadLocked(sa, service); err != nil {
		return err
	}
	m.logger.Warn("forcing credential refresh after rejected call", "service", service)
	return m.refreshLocked(ctx, sa, service)
}

// Save persists a freshly obtained credential, typically at the end of a
// login flow, and primes the in-memory cache.
func (m *Manager) Save(cred models.Credential) error {
	sa, err := m.service(cred.Service)
	if err != nil {
		return err
	}

	sa.mu.Lock()
	defer sa.mu.Unlock()

	if err := m.store.Put(cred); err != nil {
		return err
	}
	sa.cred = cred
	sa.loaded = true
	sa.margin = marginFor(cred, time.Now())
	return nil
}

// Credential returns the cached credential for status display. It does not
// trigger a refresh.
func (m *Manager) Credential(service string) (*models.Credential, error) {
	sa, err := m.service(service)
	if err != nil {
		return nil, err
	}

	sa.mu.Lock()
	defer sa.mu.Unlock()

	if err := m.loadLocked(sa, service); err != nil {
		return nil, err
	}
	if sa.cred.AccessToken == "" {
		return nil, nil
	}
	cred := sa.cred
	return &cred, nil
}

// loadLocked pulls persisted credentials into the cache on first access.
func (m *Manager) loadLocked(sa *serviceAuth, service string) error {
	if sa.loaded {
		return nil
	}
	stored, err := m.store.Get(service)
	if err != nil {
		return err
	}
	if stored != nil {
		sa.cred = *stored
	} else {
		sa.cred = models.Credential{Service: service}
	}
	sa.loaded = true
	return nil
}

func (m *Manager) needsRefresh(sa *serviceAuth) bool {
	if sa.static || sa.cred.Expiry.IsZero() {
		return false
	}
	margin := sa.margin
	if margin <= 0 {
		margin = defaultMargin
	}
	return time.Until(sa.cred.Expiry) < margin
}

// refreshLocked exchanges the refresh token for new material and persists
// it. The caller holds the service lock.
func (m *Manager) refreshLocked(ctx context.Context, sa *serviceAuth, service string) error {
	if sa.oauth == nil {
		return fmt.Errorf("%w: %s", shared.ErrRefreshFailed, service)
	}
	if sa.cred.RefreshToken == "" {
		return fmt.Errorf("%w: %s", shared.ErrNoRefreshToken, service)
	}

	source := sa.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: sa.cred.RefreshToken})
	token, err := source.Token()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", shared.ErrRefreshFailed, service, err)
	}

	cred := models.Credential{
		Service:      service,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}
	// Some providers omit the refresh token on refresh responses; keep
	// the one we have.
	if cred.RefreshToken == "" {
		cred.RefreshToken = sa.cred.RefreshToken
	}

	if err := m.store.Put(cred); err != nil {
		return fmt.Errorf("failed to persist refreshed credential for %s: %w", service, err)
	}

	sa.cred = cred
	sa.margin = marginFor(cred, time.Now())
	m.logger.Info("refreshed credentials", "service", service, "expiry", cred.Expiry)
	return nil
}

// marginFor derives the proactive-refresh margin as a quarter of the
// token's lifetime, falling back to the default when the lifetime is
// unknown or implausibly short.
func marginFor(cred models.Credential, now time.Time) time.Duration {
	if cred.Expiry.IsZero() {
		return defaultMargin
	}
	ttl := cred.Expiry.Sub(now)
	if ttl <= 0 {
		return defaultMargin
	}
	margin := ttl / 4
	if margin < time.Minute {
		margin = time.Minute
	}
	return margin
}
