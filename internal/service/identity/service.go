package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/rivio/ranking-server/internal/domain"
	"github.com/rivio/ranking-server/internal/token"
)

// Notifier delivers one-time codes out of band.
type Notifier interface {
	SendOTP(ctx context.Context, kind domain.ContactKind, value, code string, purpose domain.OTPPurpose) error
}

// Config holds the tunables the identity flows depend on.
type Config struct {
	OTPTTL            time.Duration
	OTPCooldown       time.Duration
	LoginWindow       time.Duration
	LoginMaxFailures  int
	PasswordMinLength int
	DeletionGrace     time.Duration
}

// Service implements identity business logic.
type Service struct {
	repo     Repository
	tokens   *token.Manager
	notifier Notifier
	cfg      Config
}

// NewService creates an identity service.
func NewService(repo Repository, tokens *token.Manager, notifier Notifier, cfg Config) *Service {
	return &Service{repo: repo, tokens: tokens, notifier: notifier, cfg: cfg}
}

var phoneRe = regexp.MustCompile(`^\+[0-9]{7,15}$`)

// NormalizeContact canonicalizes a contact value for its kind. Phones keep
// only '+' and digits; emails are lower-cased.
func NormalizeContact(kind domain.ContactKind, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch kind {
	case domain.ContactEmail:
		value = strings.ToLower(value)
		if !strings.Contains(value, "@") || len(value) < 5 {
			return "", ErrInvalidContact
		}
		return value, nil
	case domain.ContactPhone:
		var b strings.Builder
		for i, r := range value {
			if r == '+' && i == 0 || r >= '0' && r <= '9' {
				b.WriteRune(r)
			}
		}
		value = b.String()
		if !phoneRe.MatchString(value) {
			return "", ErrInvalidContact
		}
		return value, nil
	}
	return "", ErrInvalidContact
}

// ParseIdentifier splits a login identifier into a contact channel: email
// iff it contains '@', phone otherwise.
func ParseIdentifier(identifier string) (domain.ContactKind, string, error) {
	if strings.Contains(identifier, "@") {
		v, err := NormalizeContact(domain.ContactEmail, identifier)
		return domain.ContactEmail, v, err
	}
	v, err := NormalizeContact(domain.ContactPhone, identifier)
	return domain.ContactPhone, v, err
}

// RequestOTP issues a one-time code for the contact, honoring the reissue
// cooldown. For password_reset the anti-enumeration branch succeeds without
// issuing when no verified identity exists; it skips the cooldown check
// because no row is ever written. The cleartext code is returned for the
// caller to echo in development responses only.
func (s *Service) RequestOTP(ctx context.Context, kind domain.ContactKind, value string, purpose domain.OTPPurpose) (string, error) {
	if !purpose.Valid() {
		return "", ErrInvalidPurpose
	}
	value, err := NormalizeContact(kind, value)
	if err != nil {
		return "", err
	}

	if purpose == domain.PurposePasswordReset {
		ident, err := s.repo.IdentityByContact(ctx, kind, value)
		if err == ErrNotFound || (err == nil && !ident.IsVerified) {
			log.Printf("[identity.Service] otp request for unknown contact, purpose=%s", purpose)
			return "", nil
		}
		if err != nil {
			return "", err
		}
	}

	last, err := s.repo.LatestOTP(ctx, kind, value, purpose)
	if err != nil && err != ErrOTPNotFound {
		return "", err
	}
	if last != nil && time.Since(last.CreatedAt) < s.cfg.OTPCooldown {
		return "", ErrOTPCooldown
	}

	code, err := token.RandomOTP()
	if err != nil {
		return "", err
	}
	otp := &domain.AuthOTP{
		ID:           uuid.NewString(),
		ContactKind:  kind,
		ContactValue: value,
		Purpose:      purpose,
		CodeHash:     s.tokens.HashOTP(code),
		ExpiresAt:    time.Now().UTC().Add(s.cfg.OTPTTL),
	}
	if err := s.repo.CreateOTP(ctx, otp); err != nil {
		return "", err
	}
	if err := s.notifier.SendOTP(ctx, kind, value, code, purpose); err != nil {
		log.Printf("[identity.Service] otp delivery failed: %v", err)
	}
	return code, nil
}

// RegisterInput is the register-complete payload after contact parsing.
type RegisterInput struct {
	Kind     domain.ContactKind
	Value    string
	Code     string
	Password string
}

// Register consumes the latest register OTP and provisions the account:
// user, verified identity, credential, profile with an auto-generated
// alias, and a fresh session.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*domain.TokenPair, error) {
	value, err := NormalizeContact(in.Kind, in.Value)
	if err != nil {
		return nil, err
	}
	if len(in.Password) < s.cfg.PasswordMinLength {
		return nil, ErrWeakPassword
	}

	if ident, err := s.repo.IdentityByContact(ctx, in.Kind, value); err == nil {
		has, err := s.repo.HasCredential(ctx, ident.UserID)
		if err != nil {
			return nil, err
		}
		if has {
			return nil, ErrAlreadyRegistered
		}
	} else if err != ErrNotFound {
		return nil, err
	}

	pwHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	userID := uuid.NewString()
	pair, seed, err := s.mintSession(userID)
	if err != nil {
		return nil, err
	}

	reg := RegisterSeed{
		Kind:             in.Kind,
		Value:            value,
		PresentedOTPHash: s.tokens.HashOTP(in.Code),
		PasswordHash:     string(pwHash),
		UserID:           userID,
		AliasCandidates:  aliasCandidates(in.Kind, value),
		Session:          seed,
	}
	if err := s.repo.Register(ctx, reg); err != nil {
		return nil, err
	}
	return pair, nil
}

// aliasCandidates builds the deterministic base plus randomized fallbacks.
// Base suffix is the email local part (first 4 runes) or the phone's last
// four digits.
func aliasCandidates(kind domain.ContactKind, value string) []string {
	var suffix string
	if kind == domain.ContactEmail {
		local := value
		if i := strings.Index(value, "@"); i > 0 {
			local = value[:i]
		}
		if len(local) > 4 {
			local = local[:4]
		}
		suffix = local
	} else {
		digits := strings.TrimPrefix(value, "+")
		if len(digits) > 4 {
			digits = digits[len(digits)-4:]
		}
		suffix = digits
	}
	base := "player_" + strings.ToLower(suffix)

	candidates := make([]string, 0, 20)
	candidates = append(candidates, base)
	for i := 0; i < 19; i++ {
		var buf [3]byte
		if _, err := rand.Read(buf[:]); err != nil {
			continue
		}
		candidates = append(candidates, base+"_"+hex.EncodeToString(buf[:]))
	}
	return candidates
}

// Login authenticates by identifier + password under the sliding-window
// throttle and mints a fresh session.
func (s *Service) Login(ctx context.Context, identifier, password string) (*domain.TokenPair, error) {
	kind, value, err := ParseIdentifier(identifier)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	keyHash := s.tokens.HashContact(string(kind)+":"+value, "login")

	since := time.Now().UTC().Add(-s.cfg.LoginWindow)
	failures, err := s.repo.CountLoginFailures(ctx, keyHash, since)
	if err != nil {
		return nil, err
	}
	if failures >= s.cfg.LoginMaxFailures {
		return nil, ErrLoginThrottled
	}

	fail := func() (*domain.TokenPair, error) {
		if err := s.repo.RecordLoginAttempt(ctx, keyHash, false); err != nil {
			log.Printf("[identity.Service] record login failure: %v", err)
		}
		return nil, ErrInvalidCredentials
	}

	ident, err := s.repo.IdentityByContact(ctx, kind, value)
	if err == ErrNotFound {
		return fail()
	}
	if err != nil {
		return nil, err
	}

	user, err := s.repo.UserByID(ctx, ident.UserID)
	if err != nil {
		return nil, err
	}
	if !user.Status.CanAuthenticate() {
		return nil, ErrAccountBlocked
	}

	stored, err := s.repo.CredentialHash(ctx, user.ID)
	if err == ErrNotFound {
		return fail()
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) != nil {
		return fail()
	}

	if err := s.repo.RecordLoginAttempt(ctx, keyHash, true); err != nil {
		log.Printf("[identity.Service] record login success: %v", err)
	}

	pair, seed, err := s.mintSession(user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateSession(ctx, seed, true); err != nil {
		return nil, err
	}
	return pair, nil
}

// Refresh rotates a session: the presented refresh token is verified
// against the stored hash under a row lock, the old session is marked
// rotated, and a replacement is minted atomically.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, ErrSessionInvalid
	}

	pair, next, err := s.mintSession(claims.UserID)
	if err != nil {
		return nil, err
	}
	presented := s.tokens.HashRefresh(refreshToken)
	if err := s.repo.RotateSession(ctx, claims.SessionID, claims.UserID, presented, next); err != nil {
		return nil, err
	}
	return pair, nil
}

// Logout revokes the session behind the presented refresh token. Always
// succeeds from the client's perspective.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil
	}
	return s.repo.RevokeSession(ctx, claims.SessionID, claims.UserID, domain.RevokedLogout)
}

// ConfirmPasswordReset consumes the reset OTP, swaps the credential, and
// revokes every live session for the user.
func (s *Service) ConfirmPasswordReset(ctx context.Context, kind domain.ContactKind, value, code, newPassword string) error {
	value, err := NormalizeContact(kind, value)
	if err != nil {
		return err
	}
	if len(newPassword) < s.cfg.PasswordMinLength {
		return ErrWeakPassword
	}
	pwHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = s.repo.ResetPassword(ctx, kind, value, s.tokens.HashOTP(code), string(pwHash))
	return err
}

// RequestContactChange starts an OTP-gated move of a contact channel to a
// new value; the code is sent to the new value.
func (s *Service) RequestContactChange(ctx context.Context, userID string, kind domain.ContactKind, newValue string) (string, error) {
	newValue, err := NormalizeContact(kind, newValue)
	if err != nil {
		return "", err
	}
	if ident, err := s.repo.IdentityByContact(ctx, kind, newValue); err == nil && ident.UserID != userID {
		return "", ErrContactInUse
	} else if err != nil && err != ErrNotFound {
		return "", err
	}

	last, err := s.repo.LatestContactChange(ctx, userID, kind)
	if err != nil && err != ErrOTPNotFound {
		return "", err
	}
	if last != nil && time.Since(last.CreatedAt) < s.cfg.OTPCooldown {
		return "", ErrOTPCooldown
	}

	code, err := token.RandomOTP()
	if err != nil {
		return "", err
	}
	seed := ContactChangeSeed{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		NewValue:  newValue,
		CodeHash:  s.tokens.HashOTP(code),
		ExpiresAt: time.Now().UTC().Add(s.cfg.OTPTTL),
	}
	if err := s.repo.CreateContactChange(ctx, seed); err != nil {
		return "", err
	}
	if err := s.notifier.SendOTP(ctx, kind, newValue, code, domain.PurposeContactChange); err != nil {
		log.Printf("[identity.Service] contact-change otp delivery failed: %v", err)
	}
	return code, nil
}

// ConfirmContactChange applies the pending change once the code checks out.
func (s *Service) ConfirmContactChange(ctx context.Context, userID string, kind domain.ContactKind, code string) (string, error) {
	return s.repo.ConfirmContactChange(ctx, userID, kind, s.tokens.HashOTP(code))
}

// RequestDeletion schedules the account for anonymization after the grace
// period. Repeated requests return the already-open one.
func (s *Service) RequestDeletion(ctx context.Context, userID string, reason *string) (*domain.AccountDeletionRequest, error) {
	if open, err := s.repo.OpenDeletionRequest(ctx, userID); err == nil {
		return open, nil
	} else if err != ErrNoDeletionRequest {
		return nil, err
	}

	now := time.Now().UTC()
	req := &domain.AccountDeletionRequest{
		ID:           uuid.NewString(),
		UserID:       userID,
		Reason:       reason,
		RequestedAt:  now,
		ScheduledFor: now.Add(s.cfg.DeletionGrace),
		CreatedBy:    userID,
	}
	if err := s.repo.CreateDeletionRequest(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// CancelDeletion withdraws an open deletion request.
func (s *Service) CancelDeletion(ctx context.Context, userID string) error {
	return s.repo.CancelDeletionRequest(ctx, userID)
}

// DeletionStatus reports the open request, if any.
func (s *Service) DeletionStatus(ctx context.Context, userID string) (*domain.AccountDeletionRequest, error) {
	return s.repo.OpenDeletionRequest(ctx, userID)
}

// mintSession pre-mints the token pair and the session seed whose hash the
// repository stores.
func (s *Service) mintSession(userID string) (*domain.TokenPair, SessionSeed, error) {
	now := time.Now().UTC()
	sid := uuid.NewString()

	refresh, err := s.tokens.MintRefresh(userID, sid, now)
	if err != nil {
		return nil, SessionSeed{}, err
	}
	access, err := s.tokens.MintAccess(userID, sid, now)
	if err != nil {
		return nil, SessionSeed{}, err
	}

	seed := SessionSeed{
		ID:          sid,
		UserID:      userID,
		RefreshHash: s.tokens.HashRefresh(refresh),
		ExpiresAt:   now.Add(s.tokens.RefreshTTL()),
	}
	pair := &domain.TokenPair{
		UserID:       userID,
		SessionID:    sid,
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(s.tokens.AccessTTL().Seconds()),
	}
	return pair, seed, nil
}
