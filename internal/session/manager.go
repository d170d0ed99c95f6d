// Package session manages tenant enrollment verification and bearer
// session tokens for authenticated agents.
package session

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Session is the record behind one issued bearer token.
type Session struct {
	TenantID  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Manager owns the enrollment digests and the live session table.
// Sessions are keyed by the SHA-256 digest of the token, so validating a
// presented token never compares raw secret bytes against table keys.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session // sha256(token) hex → session
	enrollments map[string]string   // tenant → sha256(secret) hex

	defaultTTL time.Duration
}

// NewManager loads enrollment digests from enrollmentsFile. When the file
// does not exist, the development defaults are installed so a fresh checkout
// can mint sessions without setup.
func NewManager(enrollmentsFile string, defaultTTL time.Duration) *Manager {
	if defaultTTL == 0 {
		defaultTTL = time.Hour
	}

	m := &Manager{
		sessions:    make(map[string]*Session),
		enrollments: make(map[string]string),
		defaultTTL:  defaultTTL,
	}

	if err := m.loadEnrollments(enrollmentsFile); err != nil {
		slog.Warn("enrollments file not loaded, using dev defaults", "path", enrollmentsFile, "error", err)
		m.enrollments = map[string]string{
			"default": digestHex("test-secret-123"),
			"test":    digestHex("test-enrollment"),
		}
	}

	return m
}

func (m *Manager) loadEnrollments(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var enrollments map[string]string
	if err := json.Unmarshal(data, &enrollments); err != nil {
		return err
	}

	m.mu.Lock()
	m.enrollments = enrollments
	m.mu.Unlock()

	slog.Info("enrollments loaded", "path", path, "tenants", len(enrollments))
	return nil
}

// ReloadEnrollments re-reads the enrollments file. Admin action only;
// existing sessions are untouched.
func (m *Manager) ReloadEnrollments(path string) error {
	return m.loadEnrollments(path)
}

// VerifyEnrollment checks a tenant's shared secret against the stored
// digest. Unknown tenants verify against a dummy digest so the comparison
// cost does not reveal tenant existence.
func (m *Manager) VerifyEnrollment(tenantID, secret string) bool {
	m.mu.RLock()
	stored, ok := m.enrollments[tenantID]
	m.mu.RUnlock()

	presented := digestHex(secret)
	if !ok {
		subtle.ConstantTimeCompare([]byte(presented), []byte(presented))
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(stored)) == 1
}

// CreateSession mints a new session token for the tenant. ttl <= 0 uses the
// manager default (1h).
func (m *Manager) CreateSession(tenantID string, ttl time.Duration) (string, time.Time) {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	// 24 random bytes = 192 bits of entropy, URL-safe encoded.
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		// crypto/rand failure means the process has no usable entropy
		// source; nothing sensible to hand out.
		panic("session: crypto/rand unavailable: " + err.Error())
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	now := time.Now()
	sess := &Session{
		TenantID:  tenantID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	m.mu.Lock()
	m.sessions[digestHex(token)] = sess
	m.mu.Unlock()

	return token, sess.ExpiresAt
}

// ValidateToken resolves a presented token to its session. Unknown and
// expired tokens are indistinguishable: both return ok=false. Expired
// entries are evicted on access.
func (m *Manager) ValidateToken(token string) (*Session, bool) {
	key := digestHex(token)

	m.mu.RLock()
	sess, ok := m.sessions[key]
	m.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if time.Now().After(sess.ExpiresAt) {
		m.mu.Lock()
		// Re-check under the write lock: another validation may have
		// evicted and a new session reused the slot.
		if cur, still := m.sessions[key]; still && cur == sess {
			delete(m.sessions, key)
		}
		m.mu.Unlock()
		return nil, false
	}

	snapshot := *sess
	return &snapshot, true
}

// Revoke removes a session. Returns false when the token is unknown.
func (m *Manager) Revoke(token string) bool {
	key := digestHex(token)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[key]; !ok {
		return false
	}
	delete(m.sessions, key)
	return true
}

// SweepExpired evicts sessions past their expiry and returns the count.
func (m *Manager) SweepExpired() int {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, sess := range m.sessions {
		if now.After(sess.ExpiresAt) {
			delete(m.sessions, key)
			removed++
		}
	}
	return removed
}

// StartSweeper runs SweepExpired on the given interval until stop is closed.
func (m *Manager) StartSweeper(interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := m.SweepExpired(); n > 0 {
					slog.Debug("expired sessions swept", "count", n)
				}
			case <-stop:
				return
			}
		}
	}()
}

func digestHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
