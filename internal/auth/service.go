package auth

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	defaultTokenTTL     = time.Hour
	defaultRefreshGrace = 72 * time.Hour
	defaultStoreTimeout = 5 * time.Second
)

// Service composes the codec, the revocation store and the principal
// directory into the four authentication operations: login,
// introspect, refresh, logout. It holds no per-request state; every
// operation is independent and atomic from the caller's view.
type Service struct {
	directory    Directory
	revoked      RevocationStore
	codec        *Codec
	now          func() time.Time
	tokenTTL     time.Duration
	refreshGrace time.Duration
	storeTimeout time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithTokenTTL sets the lifetime of issued tokens.
func WithTokenTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl <= 0 {
			return errors.New("auth: token ttl must be greater than zero")
		}
		s.tokenTTL = ttl
		return nil
	}
}

// WithRefreshGrace bounds how long past its expiry a token may still
// be exchanged for a fresh one.
func WithRefreshGrace(grace time.Duration) ServiceOption {
	return func(s *Service) error {
		if grace < 0 {
			return errors.New("auth: refresh grace must not be negative")
		}
		s.refreshGrace = grace
		return nil
	}
}

// WithStoreTimeout caps every revocation-store and directory call.
func WithStoreTimeout(d time.Duration) ServiceOption {
	return func(s *Service) error {
		if d <= 0 {
			return errors.New("auth: store timeout must be greater than zero")
		}
		s.storeTimeout = d
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs the authentication service.
func NewService(directory Directory, revoked RevocationStore, codec *Codec, opts ...ServiceOption) (*Service, error) {
	if directory == nil {
		return nil, errors.New("auth: directory is required")
	}
	if revoked == nil {
		return nil, errors.New("auth: revocation store is required")
	}
	if codec == nil {
		return nil, errors.New("auth: codec is required")
	}
	s := &Service{
		directory:    directory,
		revoked:      revoked,
		codec:        codec,
		now:          time.Now,
		tokenTTL:     defaultTokenTTL,
		refreshGrace: defaultRefreshGrace,
		storeTimeout: defaultStoreTimeout,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Session is the result of a successful login or refresh.
type Session struct {
	Token         string    `json:"token"`
	ExpiresAt     time.Time `json:"expires_at"`
	Authenticated bool      `json:"authenticated"`
}

// Introspection is the advisory validity verdict for a presented
// token. Invalid tokens produce Valid=false, never an error.
type Introspection struct {
	Valid bool `json:"valid"`
}

// Login verifies credentials and issues a token scoped to the
// principal's current roles. No partial token is ever returned.
func (s *Service) Login(ctx context.Context, username, secret string) (Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || secret == "" {
		return Session{}, ErrInvalidCredentials
	}
	principal, err := s.resolvePrincipal(ctx, username)
	if err != nil {
		return Session{}, err
	}
	if err := VerifyPassword(principal.User.PasswordHash, secret); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	token, claims, err := s.codec.Issue(principal.User.Username, principal.Scope(), s.tokenTTL)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: claims.ExpiresAt.Time, Authenticated: true}, nil
}

// Introspect reports whether a presented token is currently valid: the
// signature verifies, the expiry has not passed and the jti is not on
// the denylist. Malformed, forged, expired and revoked tokens all
// degrade to Valid=false; only a store outage is an error.
func (s *Service) Introspect(ctx context.Context, token string) (Introspection, error) {
	claims, err := s.codec.DecodeAndVerify(token)
	if err != nil {
		return Introspection{Valid: false}, nil
	}
	if !s.now().Before(claims.ExpiresAt.Time) {
		return Introspection{Valid: false}, nil
	}
	revoked, err := s.isRevoked(ctx, claims.ID)
	if err != nil {
		return Introspection{}, err
	}
	return Introspection{Valid: !revoked}, nil
}

// Refresh rotates a token: the presented jti is revoked and a fresh
// token with new timestamps and re-resolved scope is issued. The old
// token may already be expired, up to the configured grace window.
func (s *Service) Refresh(ctx context.Context, token string) (Session, error) {
	claims, err := s.codec.DecodeAndVerify(token)
	if err != nil {
		return Session{}, err
	}
	if s.now().After(claims.ExpiresAt.Time.Add(s.refreshGrace)) {
		return Session{}, ErrTokenExpired
	}
	revoked, err := s.isRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, ErrTokenRevoked
	}
	principal, err := s.resolvePrincipal(ctx, claims.Subject)
	if err != nil {
		return Session{}, err
	}
	created, err := s.revoke(ctx, claims)
	if err != nil {
		return Session{}, err
	}
	if !created {
		// A concurrent refresh or logout won the insert; only the
		// winner may rotate.
		return Session{}, ErrTokenRevoked
	}
	next, nextClaims, err := s.codec.Issue(principal.User.Username, principal.Scope(), s.tokenTTL)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: next, ExpiresAt: nextClaims.ExpiresAt.Time, Authenticated: true}, nil
}

// Logout puts the token's jti on the denylist. Logging out an expired
// or already-revoked token is a no-op; only a token that never came
// from this codec is rejected.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.codec.DecodeAndVerify(token)
	if err != nil {
		return err
	}
	_, err = s.revoke(ctx, claims)
	return err
}

// AuthenticateToken is the protected-request path: decode and verify,
// enforce strict expiry, reject revoked tokens, then load the
// principal with fresh roles for downstream policy checks.
func (s *Service) AuthenticateToken(ctx context.Context, token string) (Principal, *Claims, error) {
	claims, err := s.codec.DecodeAndVerify(token)
	if err != nil {
		return Principal{}, nil, err
	}
	if !s.now().Before(claims.ExpiresAt.Time) {
		return Principal{}, nil, ErrTokenExpired
	}
	revoked, err := s.isRevoked(ctx, claims.ID)
	if err != nil {
		return Principal{}, nil, err
	}
	if revoked {
		return Principal{}, nil, ErrTokenRevoked
	}
	principal, err := s.resolvePrincipal(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return Principal{}, nil, ErrUnauthorized
		}
		return Principal{}, nil, err
	}
	return principal, claims, nil
}

// PurgeRevoked removes denylist records that can no longer matter and
// returns how many were dropped. Safe to call at any time.
func (s *Service) PurgeRevoked(ctx context.Context) (int64, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	n, err := s.revoked.PurgeExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, storeUnavailable(err)
	}
	return n, nil
}

func (s *Service) resolvePrincipal(ctx context.Context, username string) (Principal, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	user, err := s.directory.FindByUsername(sctx, username)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return Principal{}, ErrPrincipalNotFound
		}
		return Principal{}, storeUnavailable(err)
	}
	roles, err := s.directory.RolesOf(sctx, user.ID)
	if err != nil {
		return Principal{}, storeUnavailable(err)
	}
	return Principal{User: user, Roles: roles}, nil
}

// revoke inserts the denylist record and reports whether this call
// created it. The record outlives the token by the refresh grace
// window so a revoked token can be neither introspected nor refreshed
// for as long as either path would still accept it.
func (s *Service) revoke(ctx context.Context, claims *Claims) (bool, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	rec := RevokedToken{JTI: claims.ID, ExpiresAt: claims.ExpiresAt.Time.Add(s.refreshGrace)}
	created, err := s.revoked.Revoke(sctx, rec)
	if err != nil {
		return false, storeUnavailable(err)
	}
	// Lazy garbage collection: each revocation is a chance to drop
	// records that stopped mattering. Failures are ignored.
	_, _ = s.revoked.PurgeExpired(sctx, s.now().UTC())
	return created, nil
}

func (s *Service) isRevoked(ctx context.Context, jti string) (bool, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	revoked, err := s.revoked.IsRevoked(sctx, jti)
	if err != nil {
		return false, storeUnavailable(err)
	}
	return revoked, nil
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}
