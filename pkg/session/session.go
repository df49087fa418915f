package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrNoSession    = errors.New("no session")
	ErrInvalidToken = errors.New("invalid session token")
	ErrExpired      = errors.New("session expired")
	ErrRevoked      = errors.New("session revoked")

	// ErrUnavailable means the revocation store could not be consulted. The
	// token may still be good, so callers must not discard it.
	ErrUnavailable = errors.New("session store unavailable")
)

// Config holds session settings
type Config struct {
	Secret     string        `env:"SECRET"`
	CookieName string        `env:"COOKIE_NAME" envDefault:"agora_session"`
	TTL        time.Duration `env:"TTL" envDefault:"24h"`
	Secure     bool          `env:"COOKIE_SECURE" envDefault:"true"`
	Domain     string        `env:"COOKIE_DOMAIN"`
	Issuer     string        `env:"ISSUER" envDefault:"agora"`

	// Revocations selects where signed-out session IDs are kept: "memory" or "redis"
	Revocations        string `env:"REVOCATIONS" envDefault:"memory"`
	RevocationCapacity int    `env:"REVOCATION_CAPACITY" envDefault:"100000"`
}

// MinSecretLength is the shortest accepted HMAC secret
const MinSecretLength = 32

// Session is the identity carried by a valid token
type Session struct {
	ID        string
	UserID    int64
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RevocationStore remembers signed-out sessions until they would have expired
type RevocationStore interface {
	Revoke(ctx context.Context, sessionID string, until time.Time) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// Manager issues and resolves signed session tokens
type Manager struct {
	cfg         Config
	secret      []byte
	revocations RevocationStore
	now         func() time.Time
}

// NewManager creates a session manager
func NewManager(cfg Config, revocations RevocationStore) (*Manager, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d bytes", MinSecretLength)
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("session TTL must be positive")
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "agora_session"
	}
	return &Manager{
		cfg:         cfg,
		secret:      []byte(cfg.Secret),
		revocations: revocations,
		now:         time.Now,
	}, nil
}

// CookieName returns the name of the session cookie
func (m *Manager) CookieName() string {
	return m.cfg.CookieName
}

// TTL returns the lifetime of newly issued sessions
func (m *Manager) TTL() time.Duration {
	return m.cfg.TTL
}

// Issue signs a new session token for userID
func (m *Manager) Issue(userID int64) (string, *Session, error) {
	now := m.now().UTC().Truncate(time.Second)
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.cfg.TTL),
	}

	claims := jwt.RegisteredClaims{
		ID:        sess.ID,
		Subject:   strconv.FormatInt(userID, 10),
		Issuer:    m.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(sess.IssuedAt),
		ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session: %w", err)
	}
	return token, sess, nil
}

// Parse verifies a token's signature, expiry and revocation status
func (m *Manager) Parse(ctx context.Context, token string) (*Session, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.ID == "" {
		return nil, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}

	if m.revocations != nil {
		revoked, err := m.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if revoked {
			return nil, ErrRevoked
		}
	}

	sess := &Session{
		ID:        claims.ID,
		UserID:    userID,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		sess.IssuedAt = claims.IssuedAt.Time
	}
	return sess, nil
}

// Resolve reads the session cookie from r and parses it
func (m *Manager) Resolve(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrNoSession
	}
	return m.Parse(r.Context(), cookie.Value)
}

// Revoke invalidates a session until its natural expiry
func (m *Manager) Revoke(ctx context.Context, sess *Session) error {
	if m.revocations == nil || sess == nil {
		return nil
	}
	if !sess.ExpiresAt.After(m.now()) {
		return nil
	}
	if err := m.revocations.Revoke(ctx, sess.ID, sess.ExpiresAt); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// SetCookie writes the session cookie
func (m *Manager) SetCookie(w http.ResponseWriter, token string, sess *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    token,
		Path:     "/",
		Domain:   m.cfg.Domain,
		Expires:  sess.ExpiresAt,
		MaxAge:   int(sess.ExpiresAt.Sub(m.now()).Seconds()),
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		Domain:   m.cfg.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
