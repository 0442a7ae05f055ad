// Package service contains application services for account sessions and the account directory.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	pkgcrypto "github.com/cigarclub/identity/internal/crypto"
	"github.com/cigarclub/identity/internal/errs"
	"github.com/cigarclub/identity/internal/limiter"
	"github.com/cigarclub/identity/internal/model"
	"github.com/cigarclub/identity/internal/repository"
)

var tracer = otel.Tracer("github.com/cigarclub/identity/internal/service")

// SessionService issues, rotates and revokes sessions.
type SessionService interface {
	// Register creates an account with role User and opens its first session.
	Register(ctx context.Context, in RegisterInput) (model.AuthResult, error)
	// Login authenticates by email and password and opens a new session.
	Login(ctx context.Context, in LoginInput) (model.AuthResult, error)
	// Refresh redeems a refresh token exactly once and returns a rotated pair.
	Refresh(ctx context.Context, refreshToken string) (model.AuthResult, error)
	// Logout revokes a refresh token. Unknown tokens are ignored.
	Logout(ctx context.Context, refreshToken string) error
}

// RegisterInput carries the fields accepted by Register.
type RegisterInput struct {
	Email     string `validate:"required,email,max=254"`
	Password  string `validate:"required,min=8,max=72"`
	FirstName string `validate:"max=100"`
	LastName  string `validate:"max=100"`
}

// LoginInput carries the fields accepted by Login. RemoteAddr keys the rate limiter.
type LoginInput struct {
	Email      string `validate:"required,max=254"`
	Password   string `validate:"required,max=72"`
	RemoteAddr string
}

// PasswordHasher hashes and verifies account passwords.
type PasswordHasher interface {
	HashPassword(password []byte) ([]byte, error)
	VerifyPassword(password, hash []byte) bool
}

// AccessIssuer signs access tokens for an account.
type AccessIssuer interface {
	Issue(acc model.Account) (string, time.Time, error)
}

// SessionConfig holds the lifetimes and bounds applied by SessionServiceImpl.
type SessionConfig struct {
	RefreshTTL     time.Duration
	RequestTimeout time.Duration    // bound on every store round trip; 0 disables
	Now            func() time.Time // defaults to time.Now
}

type SessionServiceImpl struct {
	accounts  repository.AccountRepository
	tokens    repository.RefreshTokenRepository
	hasher    PasswordHasher
	signer    AccessIssuer
	lim       limiter.Limiter
	log       *zap.Logger
	validate  *validator.Validate
	cfg       SessionConfig
	dummyHash []byte
}

// NewSessionService constructs SessionService with required dependencies.
// A nil limiter disables rate limiting.
func NewSessionService(
	accounts repository.AccountRepository,
	tokens repository.RefreshTokenRepository,
	hasher PasswordHasher,
	signer AccessIssuer,
	lim limiter.Limiter,
	log *zap.Logger,
	cfg SessionConfig,
) (*SessionServiceImpl, error) {
	if cfg.RefreshTTL <= 0 {
		return nil, errors.New("refresh ttl must be positive")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if lim == nil {
		lim = limiter.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	// compared against on unknown emails so both failure paths cost one bcrypt verification
	dummy, err := hasher.HashPassword([]byte("not-a-real-password"))
	if err != nil {
		return nil, fmt.Errorf("dummy hash: %w", err)
	}
	return &SessionServiceImpl{
		accounts:  accounts,
		tokens:    tokens,
		hasher:    hasher,
		signer:    signer,
		lim:       lim,
		log:       log,
		validate:  validator.New(),
		cfg:       cfg,
		dummyHash: dummy,
	}, nil
}

// Register creates a new account and issues its first token pair.
func (s *SessionServiceImpl) Register(ctx context.Context, in RegisterInput) (res model.AuthResult, err error) {
	ctx, span := tracer.Start(ctx, "session.Register")
	defer func() { endSpan(span, err) }()
	ctx, cancel := s.bound(ctx)
	defer cancel()

	in.Email = model.NormalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if err := s.check(in); err != nil {
		return model.AuthResult{}, err
	}

	hash, err := s.hasher.HashPassword([]byte(in.Password))
	if errors.Is(err, pkgcrypto.ErrPasswordTooLong) {
		return model.AuthResult{}, fmt.Errorf("%w: password too long", errs.ErrValidation)
	}
	if err != nil {
		return model.AuthResult{}, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return model.AuthResult{}, err
	}
	acc := model.Account{
		ID:        id,
		Email:     in.Email,
		PwdHash:   hash,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Role:      model.RoleUser,
		CreatedAt: s.cfg.Now().UTC(),
	}
	if err := s.accounts.Create(ctx, &acc); err != nil {
		return model.AuthResult{}, storeErr(err)
	}
	s.log.Info("registered", zap.String("account_id", acc.ID.String()), zap.String("email", acc.Email))

	return s.openSession(ctx, acc)
}

// Login authenticates with rate limiting by (email, ip).
func (s *SessionServiceImpl) Login(ctx context.Context, in LoginInput) (res model.AuthResult, err error) {
	ctx, span := tracer.Start(ctx, "session.Login")
	defer func() { endSpan(span, err) }()
	ctx, cancel := s.bound(ctx)
	defer cancel()

	in.Email = model.NormalizeEmail(in.Email)
	if err := s.check(in); err != nil {
		return model.AuthResult{}, err
	}
	ipHash := limiter.HashIP(in.RemoteAddr)

	allowed, _, err := s.lim.Allow(ctx, in.Email, ipHash)
	if err != nil {
		return model.AuthResult{}, fmt.Errorf("%w: limiter: %v", errs.ErrUnavailable, err)
	}
	if !allowed {
		return model.AuthResult{}, errs.ErrRateLimited
	}

	acc, err := s.accounts.GetByEmail(ctx, in.Email)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		s.hasher.VerifyPassword([]byte(in.Password), s.dummyHash)
		return model.AuthResult{}, s.loginFailed(ctx, in.Email, ipHash)
	case err != nil:
		return model.AuthResult{}, storeErr(err)
	}
	if !s.hasher.VerifyPassword([]byte(in.Password), acc.PwdHash) {
		return model.AuthResult{}, s.loginFailed(ctx, in.Email, ipHash)
	}

	if err := s.lim.Success(ctx, in.Email, ipHash); err != nil {
		s.log.Warn("limiter reset failed", zap.Error(err))
	}
	res, err = s.openSession(ctx, *acc)
	if err != nil {
		return model.AuthResult{}, err
	}
	s.log.Info("login ok", zap.String("account_id", acc.ID.String()))
	return res, nil
}

// loginFailed records a failed attempt and returns the error shown to the caller.
// Unknown email and wrong password are indistinguishable.
func (s *SessionServiceImpl) loginFailed(ctx context.Context, email string, ipHash []byte) error {
	blocked, _, err := s.lim.Failure(ctx, email, ipHash)
	if err != nil {
		s.log.Warn("limiter failure not recorded", zap.Error(err))
	}
	if blocked {
		return errs.ErrRateLimited
	}
	return errs.ErrUnauthorized
}

// Refresh rotates a refresh token: the presented one is revoked and a new pair is issued.
func (s *SessionServiceImpl) Refresh(ctx context.Context, refreshToken string) (res model.AuthResult, err error) {
	ctx, span := tracer.Start(ctx, "session.Refresh")
	defer func() { endSpan(span, err) }()
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if refreshToken == "" {
		return model.AuthResult{}, errs.ErrInvalidOrExpiredToken
	}
	now := s.cfg.Now()

	cur, err := s.tokens.GetByHash(ctx, pkgcrypto.HashSecret(refreshToken))
	if errors.Is(err, errs.ErrNotFound) {
		return model.AuthResult{}, errs.ErrInvalidOrExpiredToken
	}
	if err != nil {
		return model.AuthResult{}, storeErr(err)
	}
	if !cur.Redeemable(now) {
		return model.AuthResult{}, errs.ErrInvalidOrExpiredToken
	}

	acc, err := s.accounts.GetByID(ctx, cur.AccountID)
	if errors.Is(err, errs.ErrNotFound) {
		return model.AuthResult{}, errs.ErrInvalidOrExpiredToken
	}
	if err != nil {
		return model.AuthResult{}, storeErr(err)
	}

	access, exp, err := s.signer.Issue(*acc)
	if err != nil {
		return model.AuthResult{}, err
	}
	secret, next, err := s.newRefreshToken(acc.ID, now)
	if err != nil {
		return model.AuthResult{}, err
	}
	if err := s.tokens.Rotate(ctx, cur.ID, next, now); err != nil {
		return model.AuthResult{}, storeErr(err)
	}
	s.log.Info("token rotated", zap.String("account_id", acc.ID.String()), zap.String("token_id", next.ID.String()))

	return model.AuthResult{
		AccessToken:  access,
		RefreshToken: secret,
		Email:        acc.Email,
		Role:         acc.Role,
		ExpiresAt:    exp,
	}, nil
}

// Logout revokes the given refresh token if it is known and still active.
func (s *SessionServiceImpl) Logout(ctx context.Context, refreshToken string) (err error) {
	ctx, span := tracer.Start(ctx, "session.Logout")
	defer func() { endSpan(span, err) }()
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if refreshToken == "" {
		return nil
	}
	accountID, revoked, err := s.tokens.Revoke(ctx, pkgcrypto.HashSecret(refreshToken))
	if err != nil {
		return storeErr(err)
	}
	if revoked {
		s.log.Info("logout", zap.String("account_id", accountID.String()))
	}
	return nil
}

// openSession issues an access token and persists a new refresh token for acc.
func (s *SessionServiceImpl) openSession(ctx context.Context, acc model.Account) (model.AuthResult, error) {
	access, exp, err := s.signer.Issue(acc)
	if err != nil {
		return model.AuthResult{}, err
	}
	secret, tok, err := s.newRefreshToken(acc.ID, s.cfg.Now())
	if err != nil {
		return model.AuthResult{}, err
	}
	if err := s.tokens.Create(ctx, tok); err != nil {
		return model.AuthResult{}, storeErr(err)
	}
	return model.AuthResult{
		AccessToken:  access,
		RefreshToken: secret,
		Email:        acc.Email,
		Role:         acc.Role,
		ExpiresAt:    exp,
	}, nil
}

func (s *SessionServiceImpl) newRefreshToken(accountID uuid.UUID, now time.Time) (string, *model.RefreshToken, error) {
	secret, err := pkgcrypto.NewRefreshSecret()
	if err != nil {
		return "", nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return "", nil, err
	}
	return secret, &model.RefreshToken{
		ID:         id,
		AccountID:  accountID,
		SecretHash: pkgcrypto.HashSecret(secret),
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.cfg.RefreshTTL),
	}, nil
}

func (s *SessionServiceImpl) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.RequestTimeout)
}

// check runs struct validation and flattens failures into one ErrValidation.
func (s *SessionServiceImpl) check(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field())+" "+fe.Tag())
	}
	return fmt.Errorf("%w: %s", errs.ErrValidation, strings.Join(fields, ", "))
}

// storeErr turns a timed-out store call into ErrUnavailable; sentinels pass through.
func storeErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", errs.ErrUnavailable, err)
	}
	return err
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("identity.failed", true))
	}
	span.End()
}
