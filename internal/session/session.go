// Package session owns the Angel One login state for the relay.
//
// A Session is replaced wholesale on each successful login and is never
// partially updated. The manager serializes session mutation with a mutex so
// concurrent webhook deliveries while logged out produce exactly one broker
// login. There is no proactive expiry: a session is presumed valid until the
// process restarts or a forced re-login replaces it.
package session

import (
	"log"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"

	"webhook-relayv1/pkg/smartconnect"
)

// Broker is the subset of the SmartAPI client the manager needs. Injected so
// tests can count login calls without network access.
type Broker interface {
	GenerateSession(clientCode, password, totp string) (*smartconnect.SessionData, error)
	TerminateSession(clientCode string) error
}

// Session is the broker token set issued after authentication.
type Session struct {
	AuthToken    string
	RefreshToken string
	FeedToken    string
}

// Credentials identifies the account the manager logs in as.
type Credentials struct {
	ClientCode string
	Password   string
	TOTPSecret string
}

// Manager establishes and holds the single broker session.
type Manager struct {
	broker Broker
	creds  Credentials

	// Optional hook, invoked after every login attempt (metrics, alerts).
	OnLoginAttempt func(success bool)

	mu      sync.Mutex
	session *Session
}

// NewManager creates a session manager. No login happens until Ensure or
// ForceLogin is called.
func NewManager(b Broker, creds Credentials) *Manager {
	return &Manager{broker: b, creds: creds}
}

// Ensure returns true if a session exists, logging in first if needed.
// Failures are logged and reported as false, never as an error: the
// dispatcher turns a false into a "Login failed" outcome.
func (m *Manager) Ensure() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		return true
	}
	return m.login()
}

// ForceLogin discards any existing session and performs a fresh login.
// Used by the manual /login endpoint.
func (m *Manager) ForceLogin() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session = nil
	return m.login()
}

// login performs the TOTP + password exchange. Caller holds m.mu.
func (m *Manager) login() bool {
	code, err := totp.GenerateCode(m.creds.TOTPSecret, time.Now())
	if err != nil {
		log.Printf("[session] TOTP generation failed: %v", err)
		m.notify(false)
		return false
	}

	sess, err := m.broker.GenerateSession(m.creds.ClientCode, m.creds.Password, code)
	if err != nil {
		log.Printf("[session] login failed: %v", err)
		m.notify(false)
		return false
	}

	m.session = &Session{
		AuthToken:    sess.JWTToken,
		RefreshToken: sess.RefreshToken,
		FeedToken:    sess.FeedToken,
	}
	log.Printf("[session] logged in to Angel One as %s", m.creds.ClientCode)
	m.notify(true)
	return true
}

// LoggedIn reports whether a session is currently held.
func (m *Manager) LoggedIn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

// Current returns a copy of the held session, if any.
func (m *Manager) Current() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

// Logout terminates the broker session and drops local state. Best effort:
// a failed logout still clears the local session.
func (m *Manager) Logout() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return
	}
	if err := m.broker.TerminateSession(m.creds.ClientCode); err != nil {
		log.Printf("[session] logout failed: %v", err)
	}
	m.session = nil
}

func (m *Manager) notify(success bool) {
	if m.OnLoginAttempt != nil {
		m.OnLoginAttempt(success)
	}
}
