// Package service contains the application services: authentication, orders,
// the material checklist, artifacts and collaboration tokens.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/loandocs/internal/access"
	pkgcrypto "github.com/and161185/loandocs/internal/crypto"
	"github.com/and161185/loandocs/internal/errs"
	"github.com/and161185/loandocs/internal/limiter"
	"github.com/and161185/loandocs/internal/model"
	"github.com/and161185/loandocs/internal/repository"
)

// AuthService defines authentication and user administration.
type AuthService interface {
	// Register creates a user without an acting principal (bootstrap and seeding).
	Register(ctx context.Context, username, password string, role model.Role) (model.User, error)
	// LoginWithIP applies rate-limiting and authenticates the user.
	LoginWithIP(ctx context.Context, username, password string, ip string) (tokens model.Tokens, user model.User, err error)
	// Authenticate resolves a bearer access token to an active user.
	Authenticate(ctx context.Context, accessToken string) (model.User, error)
	// Refresh issues a new access token for an authenticated user.
	Refresh(ctx context.Context, u model.User) (model.Tokens, error)
	// CreateUser creates a user on behalf of an admin.
	CreateUser(ctx context.Context, p access.Principal, username, password string, role model.Role) (model.User, error)
	// SetActive activates or deactivates a user on behalf of an admin.
	SetActive(ctx context.Context, p access.Principal, id uuid.UUID, active bool) error
}

type AuthServiceImpl struct {
	users     repository.UserRepository
	signKey   []byte
	accessTTL time.Duration
	lim       limiter.Limiter
	guard     *access.Guard
	now       func() time.Time
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(
	users repository.UserRepository, signKey []byte, accessTTL time.Duration, lim limiter.Limiter, guard *access.Guard,
) *AuthServiceImpl {
	if lim == nil {
		lim = limiter.Noop{}
	}
	return &AuthServiceImpl{users: users, signKey: signKey, accessTTL: accessTTL, lim: lim, guard: orDefault(guard), now: time.Now}
}

// Register creates a new user record with a per-user salt.
func (s *AuthServiceImpl) Register(ctx context.Context, username, password string, role model.Role) (model.User, error) {
	if err := validateCredentials(username, password); err != nil {
		return model.User{}, err
	}
	if !role.Valid() {
		return model.User{}, fmt.Errorf("role %q: %w", role, errs.ErrInvalidInput)
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return model.User{}, err
	}
	saltAuth, err := pkgcrypto.RandBytes(pkgcrypto.SaltLen)
	if err != nil {
		return model.User{}, err
	}

	u := &model.User{
		ID:       uid,
		Username: username,
		PwdHash:  pkgcrypto.HashPassword([]byte(password), saltAuth),
		SaltAuth: saltAuth,
		Role:     role,
		Active:   true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return model.User{}, err
	}
	return *u, nil
}

// LoginWithIP authenticates with rate limiting by (username, ip).
func (s *AuthServiceImpl) LoginWithIP(ctx context.Context, username, password, ip string) (model.Tokens, model.User, error) {
	ipHash := limiter.HashIP(ip)

	// Check if requests are currently allowed for this (user, ip).
	allowed, _, err := s.lim.Allow(ctx, username, ipHash)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	if !allowed {
		return model.Tokens{}, model.User{}, errs.ErrRateLimited
	}

	u, err := s.users.GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.Tokens{}, model.User{}, err
	}
	if err != nil || !pkgcrypto.VerifyPassword([]byte(password), u.SaltAuth, u.PwdHash) {
		// Record failure; if threshold reached, return rate-limited.
		if blocked, _, ferr := s.lim.Failure(ctx, username, ipHash); ferr == nil && blocked {
			return model.Tokens{}, model.User{}, errs.ErrRateLimited
		}
		// unknown user and wrong password look the same
		return model.Tokens{}, model.User{}, errs.ErrUnauthorized
	}
	if !u.Active {
		return model.Tokens{}, model.User{}, fmt.Errorf("account disabled: %w", errs.ErrForbidden)
	}

	// Success: reset counters (best-effort).
	_ = s.lim.Success(ctx, username, ipHash)

	tokens, err := s.issueAccessToken(u.ID)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	return tokens, *u, nil
}

// Authenticate verifies the HS256 signature and expiry, then loads the subject.
func (s *AuthServiceImpl) Authenticate(ctx context.Context, accessToken string) (model.User, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(accessToken, &claims, func(t *jwt.Token) (any, error) {
		return s.signKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return model.User{}, errs.ErrUnauthorized
	}
	uid, err := uuid.FromString(claims.Subject)
	if err != nil {
		return model.User{}, errs.ErrUnauthorized
	}
	u, err := s.users.GetByID(ctx, uid)
	if errors.Is(err, errs.ErrNotFound) {
		return model.User{}, errs.ErrUnauthorized
	}
	if err != nil {
		return model.User{}, err
	}
	if !u.Active {
		return model.User{}, errs.ErrUnauthorized
	}
	return *u, nil
}

// Refresh re-issues an access token for a user that is still active.
func (s *AuthServiceImpl) Refresh(ctx context.Context, u model.User) (model.Tokens, error) {
	cur, err := s.users.GetByID(ctx, u.ID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Tokens{}, errs.ErrUnauthorized
		}
		return model.Tokens{}, err
	}
	if !cur.Active {
		return model.Tokens{}, errs.ErrUnauthorized
	}
	return s.issueAccessToken(cur.ID)
}

// CreateUser registers a user; admin only.
func (s *AuthServiceImpl) CreateUser(
	ctx context.Context, p access.Principal, username, password string, role model.Role,
) (model.User, error) {
	if err := s.guard.Check(p, access.ActionManageUsers, nil); err != nil {
		return model.User{}, err
	}
	return s.Register(ctx, username, password, role)
}

// SetActive toggles a user's active flag; admin only. Admins cannot disable themselves.
func (s *AuthServiceImpl) SetActive(ctx context.Context, p access.Principal, id uuid.UUID, active bool) error {
	if err := s.guard.Check(p, access.ActionManageUsers, nil); err != nil {
		return err
	}
	if me, ok := p.User(); ok && me.ID == id && !active {
		return fmt.Errorf("cannot deactivate own account: %w", errs.ErrInvalidInput)
	}
	return s.users.SetActive(ctx, id, active)
}

// issueAccessToken creates a signed HS256 JWT for the given subject.
func (s *AuthServiceImpl) issueAccessToken(userID uuid.UUID) (model.Tokens, error) {
	now := s.now()
	exp := now.Add(s.accessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: signed, ExpiresAt: exp}, nil
}
