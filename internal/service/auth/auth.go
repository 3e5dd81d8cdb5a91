package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/akarpov/tokenvault/internal/apperrors"
	"github.com/akarpov/tokenvault/internal/logger"
	"github.com/akarpov/tokenvault/internal/models"
	"github.com/akarpov/tokenvault/internal/repository"
	"github.com/akarpov/tokenvault/internal/service/blacklist"
	"github.com/akarpov/tokenvault/internal/service/ratelimit"
	"github.com/akarpov/tokenvault/internal/service/token"
)

const (
	defaultAccessTokenTTL = 15 * time.Minute
	defaultSigningMethod  = "HS256"
	defaultMaxAttempts    = 5
	defaultAttemptWindow  = 15 * time.Minute

	authScheme = "Bearer"
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

// Auth service with sensible defaults
type Config struct {
	// Secret key to sign access tokens
	// Required to be set
	SecretKey string

	// JWT MAC algorithm
	// If not set then default is used
	Alg string

	// Access token lifetime
	AccessTTL time.Duration

	// Login throttling: attempts per window
	MaxLoginAttempts int
	AttemptWindow    time.Duration

	// Hasher to use during registration and login
	Hasher PasswordHasher
}

// Service composes password verification, login throttling, refresh token
// lifecycle and access token blacklisting into the login/logout flows.
type Service struct {
	key       string
	alg       jwt.SigningMethod
	accessTTL time.Duration

	hasher    PasswordHasher
	tokens    *token.Service
	userRepo  repository.UserRepo
	limiter   *ratelimit.Limiter
	blacklist blacklist.Blacklist
	logger    logger.Logger
}

func NewService(cfg Config, tokens *token.Service, userRepo repository.UserRepo, bl blacklist.Blacklist, l logger.Logger) (*Service, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}
	if tokens == nil || userRepo == nil {
		return nil, errors.New("token service and user repo must not be nil")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = defaultAccessTokenTTL
	}
	if cfg.MaxLoginAttempts == 0 {
		cfg.MaxLoginAttempts = defaultMaxAttempts
	}
	if cfg.AttemptWindow == 0 {
		cfg.AttemptWindow = defaultAttemptWindow
	}
	if cfg.Hasher == nil {
		cfg.Hasher = BcryptHasher{}
	}
	if bl == nil {
		bl = blacklist.NewMemory()
	}
	if l == nil {
		l = logger.NewNoOp()
	}

	return &Service{
		key:       cfg.SecretKey,
		alg:       jwt.GetSigningMethod(cfg.Alg),
		accessTTL: cfg.AccessTTL,
		hasher:    cfg.Hasher,
		tokens:    tokens,
		userRepo:  userRepo,
		limiter:   ratelimit.New(cfg.MaxLoginAttempts, cfg.AttemptWindow),
		blacklist: bl,
		logger:    l,
	}, nil
}

// Register creates the user and logs them in
func (s *Service) Register(ctx context.Context, username string, password string) (models.TokenPair, error) {
	var pair models.TokenPair

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return pair, fmt.Errorf("can't use this as password. Err: %w", err)
	}

	user, err := s.userRepo.CreateUser(ctx, username, hash)
	if err != nil {
		return pair, err
	}

	return s.generatePair(ctx, user)
}

// Login verifies the password and issues a token pair.
// Unknown user and wrong password are indistinguishable to the caller.
// The attempt counter resets only on full success.
func (s *Service) Login(ctx context.Context, username string, password string) (models.TokenPair, error) {
	var pair models.TokenPair

	if !s.limiter.Allow(username) {
		return pair, apperrors.ErrTooManyAttempts
	}

	user, err := s.userRepo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			s.limiter.Record(username)
			return pair, apperrors.ErrInvalidCredentials
		}
		return pair, err
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		s.limiter.Record(username)
		return pair, apperrors.ErrInvalidCredentials
	}

	pair, err = s.generatePair(ctx, user)
	if err != nil {
		return pair, err
	}

	s.limiter.Reset(username)
	return pair, nil
}

// Refresh validates the presented refresh token and rotates it.
// apperrors.ErrTokenReuse propagates as-is so the API boundary can tell
// "log in again" apart from "your session is under attack".
func (s *Service) Refresh(ctx context.Context, refresh string) (models.TokenPair, error) {
	var pair models.TokenPair

	record, err := s.tokens.Validate(ctx, refresh)
	if err != nil {
		return pair, err
	}

	user, err := s.userRepo.GetUserByID(ctx, record.OwnerID)
	if err != nil {
		return pair, err
	}

	access, err := s.signAccess(user)
	if err != nil {
		return pair, err
	}

	rotated, err := s.tokens.Rotate(ctx, refresh, record.OwnerID)
	if err != nil {
		return pair, err
	}

	return models.TokenPair{Access: access, Refresh: rotated}, nil
}

// Logout revokes the refresh token and denylists the access token for the
// rest of its natural lifetime. Succeeds silently on an already-dead token.
func (s *Service) Logout(ctx context.Context, refresh string, access string) error {
	if err := s.tokens.Revoke(ctx, refresh); err != nil {
		return err
	}

	return s.blacklistAccess(ctx, access)
}

// LogoutAll revokes every session of the user
func (s *Service) LogoutAll(ctx context.Context, userID uuid.UUID, access string) error {
	if err := s.tokens.RevokeAll(ctx, userID); err != nil {
		return err
	}

	return s.blacklistAccess(ctx, access)
}

// Authenticate resolves the request's bearer token to a user.
// Blacklisted tokens are rejected before the signature is even checked.
func (s *Service) Authenticate(ctx context.Context, r *http.Request) (models.User, error) {
	var user models.User

	access, err := BearerToken(r)
	if err != nil {
		return user, err
	}

	revoked, err := s.blacklist.Contains(ctx, access)
	if err != nil {
		return user, fmt.Errorf("error while checking blacklist. Err: %w", err)
	}
	if revoked {
		return user, apperrors.ErrAccessTokenRevoked
	}

	claims, err := s.parseAccess(access)
	if err != nil {
		return user, err
	}

	return s.userRepo.GetUserByID(ctx, claims.UserID)
}

// BearerToken extracts the access token from the Authorization header
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, authScheme) || token == "" {
		return "", errors.New("missing or malformed authorization header")
	}

	return token, nil
}

func (s *Service) generatePair(ctx context.Context, user models.User) (models.TokenPair, error) {
	var pair models.TokenPair

	access, err := s.signAccess(user)
	if err != nil {
		return pair, err
	}

	refresh, err := s.tokens.Issue(ctx, user.ID)
	if err != nil {
		return pair, fmt.Errorf("error while issuing refresh token. Err: %w", err)
	}

	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

// blacklistAccess denylists the token until the expiry baked into its claims.
// Unparseable tokens are skipped: they would not authenticate anyway.
func (s *Service) blacklistAccess(ctx context.Context, access string) error {
	if access == "" {
		return nil
	}

	claims, err := s.parseAccess(access)
	if err != nil || claims.ExpiresAt == nil {
		return nil
	}

	if err := s.blacklist.Add(ctx, access, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("error while blacklisting access token. Err: %w", err)
	}

	return nil
}
