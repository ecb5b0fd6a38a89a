// Package token covers the credential primitives: HS256 access/refresh
// tokens, peppered OTP and contact hashes, and the keyed refresh-token hash
// stored on sessions.
package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in the "type" claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	// ErrInvalidToken covers parse failures, bad signatures, and expiry.
	ErrInvalidToken = errors.New("invalid token")
	// ErrWrongType means a refresh token was presented where an access
	// token was required, or vice versa.
	ErrWrongType = errors.New("wrong token type")
)

// Claims is the decoded payload of a platform token.
type Claims struct {
	UserID    string
	Type      string
	SessionID string
	ExpiresAt time.Time
}

// Manager mints and verifies tokens and computes the platform hashes.
type Manager struct {
	secret     []byte
	otpPepper  string
	piiPepper  string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewManager builds a Manager. accessTTL and refreshTTL bound the two token
// lifetimes; peppers keep OTP codes and contact values out of the database
// in recoverable form.
func NewManager(secret, otpPepper, piiPepper string, accessTTL, refreshTTL time.Duration) *Manager {
	return &Manager{
		secret:     []byte(secret),
		otpPepper:  otpPepper,
		piiPepper:  piiPepper,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// AccessTTL returns the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.accessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.refreshTTL }

// MintAccess issues an access token bound to the session that minted it.
func (m *Manager) MintAccess(userID, sessionID string, now time.Time) (string, error) {
	return m.mint(userID, sessionID, TypeAccess, now.Add(m.accessTTL))
}

// MintRefresh issues a refresh token carrying the session id.
func (m *Manager) MintRefresh(userID, sessionID string, now time.Time) (string, error) {
	return m.mint(userID, sessionID, TypeRefresh, now.Add(m.refreshTTL))
}

func (m *Manager) mint(userID, sessionID, typ string, exp time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":  userID,
		"type": typ,
		"exp":  exp.Unix(),
	}
	if sessionID != "" {
		claims["sid"] = sessionID
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies signature and expiry and returns the claims.
func (m *Manager) Parse(raw string) (Claims, error) {
	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}

	c := Claims{}
	if sub, ok := mc["sub"].(string); ok {
		c.UserID = sub
	}
	if typ, ok := mc["type"].(string); ok {
		c.Type = typ
	}
	if sid, ok := mc["sid"].(string); ok {
		c.SessionID = sid
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	if c.UserID == "" {
		return Claims{}, ErrInvalidToken
	}
	return c, nil
}

// ParseAccess verifies an access token.
func (m *Manager) ParseAccess(raw string) (Claims, error) {
	c, err := m.Parse(raw)
	if err != nil {
		return Claims{}, err
	}
	if c.Type != TypeAccess {
		return Claims{}, ErrWrongType
	}
	return c, nil
}

// ParseRefresh verifies a refresh token; the session id is mandatory.
func (m *Manager) ParseRefresh(raw string) (Claims, error) {
	c, err := m.Parse(raw)
	if err != nil {
		return Claims{}, err
	}
	if c.Type != TypeRefresh || c.SessionID == "" {
		return Claims{}, ErrWrongType
	}
	return c, nil
}

// HashOTP returns the peppered SHA-256 hex digest stored for a code.
func (m *Manager) HashOTP(code string) string {
	sum := sha256.Sum256([]byte(m.otpPepper + ":" + code))
	return hex.EncodeToString(sum[:])
}

// VerifyOTP compares a presented code against a stored hash in constant
// time.
func (m *Manager) VerifyOTP(code, storedHash string) bool {
	return hmac.Equal([]byte(m.HashOTP(code)), []byte(storedHash))
}

// HashRefresh returns the keyed digest stored on auth_sessions. The JWT
// secret keys it so a database leak alone cannot forge refreshes.
func (m *Manager) HashRefresh(tok string) string {
	sum := sha256.Sum256(append(append([]byte{}, m.secret...), []byte(":"+tok)...))
	return hex.EncodeToString(sum[:])
}

// HashContact returns the peppered digest used for audit keys and the
// login-throttle key. purpose scopes the digest so the same value hashed
// for different flows cannot be correlated.
func (m *Manager) HashContact(value, purpose string) string {
	sum := sha256.Sum256([]byte(m.piiPepper + ":" + purpose + ":" + value))
	return hex.EncodeToString(sum[:])
}

// OTPDigits is the length of generated one-time codes.
const OTPDigits = 6

// RandomOTP generates a crypto-random numeric code of OTPDigits digits.
func RandomOTP() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < OTPDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", OTPDigits, n), nil
}
