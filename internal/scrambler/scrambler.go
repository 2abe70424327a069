// Package scrambler issues and verifies signed tokens and hashes passwords.
package scrambler

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/chassisworks/chassis/internal/domain"
	"github.com/chassisworks/chassis/internal/errdefs"
)

// Config holds token and hashing settings. Access tokens live minutes,
// refresh tokens live days.
type Config struct {
	Secret             string `yaml:"secret"`
	Salt               int    `yaml:"salt"`
	RandomBytes        int    `yaml:"random_bytes"`
	AccessExpiredAtMin int    `yaml:"access_expired_at"`
	RefreshExpiredAtD  int    `yaml:"refresh_expired_at"`
}

// Scrambler mints and verifies JWTs, hashes passwords with bcrypt, and
// produces opaque random identifiers for non-password uses.
type Scrambler struct {
	cfg Config
}

type tokenClaims struct {
	Payload map[string]interface{} `json:"payload"`
	jwt.RegisteredClaims
}

// New creates a scrambler. The secret must be non-empty.
func New(cfg Config) (*Scrambler, error) {
	if cfg.Secret == "" {
		return nil, errors.New("scrambler: secret not set")
	}
	if cfg.Salt <= 0 {
		cfg.Salt = bcrypt.DefaultCost
	}
	if cfg.RandomBytes <= 0 {
		cfg.RandomBytes = 10
	}
	if cfg.AccessExpiredAtMin <= 0 {
		cfg.AccessExpiredAtMin = 10
	}
	if cfg.RefreshExpiredAtD <= 0 {
		cfg.RefreshExpiredAtD = 30
	}
	return &Scrambler{cfg: cfg}, nil
}

// AccessTTL is the access-token lifetime. The session store uses the same
// value for session record expiry.
func (s *Scrambler) AccessTTL() time.Duration {
	return time.Duration(s.cfg.AccessExpiredAtMin) * time.Minute
}

// RefreshTTL is the refresh-token lifetime.
func (s *Scrambler) RefreshTTL() time.Duration {
	return time.Duration(s.cfg.RefreshExpiredAtD) * 24 * time.Hour
}

// AccessToken mints a short-lived signed token carrying payload.
func (s *Scrambler) AccessToken(payload map[string]interface{}) (domain.TokenInfo, error) {
	return s.generate(payload, s.AccessTTL())
}

// RefreshToken mints a long-lived signed token carrying payload.
func (s *Scrambler) RefreshToken(payload map[string]interface{}) (domain.TokenInfo, error) {
	return s.generate(payload, s.RefreshTTL())
}

func (s *Scrambler) generate(payload map[string]interface{}, ttl time.Duration) (domain.TokenInfo, error) {
	id := uuid.NewString()
	now := time.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Payload: payload,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})

	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return domain.TokenInfo{}, fmt.Errorf("scrambler: sign token: %w", err)
	}
	return domain.TokenInfo{Token: signed, ID: id}, nil
}

// Verify parses and validates a token, returning its payload. Expired or
// invalidly signed tokens produce an errdefs.TokenExpiredError so callers
// can special-case them against other failures.
func (s *Scrambler) Verify(token string) (map[string]interface{}, error) {
	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("scrambler: unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) || errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrSignatureInvalid) {
			return nil, errdefs.TokenExpired(err)
		}
		return nil, fmt.Errorf("scrambler: verify token: %w", err)
	}
	if !parsed.Valid {
		return nil, errdefs.TokenExpired(nil)
	}
	return claims.Payload, nil
}

// HashPassword hashes a password with bcrypt at the configured cost.
func (s *Scrambler) HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.Salt)
	if err != nil {
		return "", fmt.Errorf("scrambler: hash password: %w", err)
	}
	return string(hashed), nil
}

// ComparePassword checks a candidate password against a bcrypt hash.
func (s *Scrambler) ComparePassword(candidate, hashed string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(candidate))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, fmt.Errorf("scrambler: compare password: %w", err)
	}
	return true, nil
}

// RandomHash returns an opaque hex identifier derived from cryptographically
// random bytes. Not for passwords.
func (s *Scrambler) RandomHash() (string, error) {
	buf := make([]byte, s.cfg.RandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("scrambler: random bytes: %w", err)
	}
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:]), nil
}
