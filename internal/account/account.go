// Package account handles user registration, authentication and session
// tokens. Trading code never calls it; the HTTP layer turns a verified
// token into the userID the engine and valuator take.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/papertrade/papertrade/internal/apperrors"
	"github.com/papertrade/papertrade/internal/model"
	"github.com/papertrade/papertrade/internal/store"
)

const maxUsernameLen = 50

var (
	passwordCharset = regexp.MustCompile(`^[A-Za-z0-9@$!%*#?&]{6,}$`)
	hasLetter       = regexp.MustCompile(`[A-Za-z]`)
	hasDigit        = regexp.MustCompile(`[0-9]`)
	hasSpecial      = regexp.MustCompile(`[@$!%*#?&]`)
)

// Options configures a Service.
type Options struct {
	Secret       []byte
	TokenTTL     time.Duration
	StartingCash decimal.Decimal
	BcryptCost   int // 0 means bcrypt.DefaultCost
}

// Service handles user accounts.
type Service struct {
	store        store.Store
	secret       []byte
	ttl          time.Duration
	startingCash decimal.Decimal
	cost         int
}

// NewService creates a new account service.
func NewService(st store.Store, opts Options) *Service {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	return &Service{
		store:        st,
		secret:       opts.Secret,
		ttl:          opts.TokenTTL,
		startingCash: opts.StartingCash,
		cost:         opts.BcryptCost,
	}
}

// ValidatePassword enforces the password policy: at least six characters
// from [A-Za-z0-9@$!%*#?&] with at least one letter, one digit and one
// special character.
func ValidatePassword(password string) error {
	if !passwordCharset.MatchString(password) ||
		!hasLetter.MatchString(password) ||
		!hasDigit.MatchString(password) ||
		!hasSpecial.MatchString(password) {
		return apperrors.ErrWeakPassword
	}
	return nil
}

// ConfirmPassword checks that a password and its confirmation match.
func ConfirmPassword(password, confirmation string) error {
	if password != confirmation {
		return apperrors.ErrPasswordMismatch
	}
	return nil
}

// Register creates a user holding the starting cash balance.
func (s *Service) Register(ctx context.Context, username, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperrors.ErrMissingCredentials
	}
	if len(username) > maxUsernameLen {
		return nil, apperrors.Reject(apperrors.ErrMissingCredentials, "username too long (max %d characters)", maxUsernameLen)
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &model.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: string(hash),
		Cash:         s.startingCash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	slog.Info("user registered", "user", u.ID, "username", u.Username)
	return u, nil
}

// Authenticate verifies credentials and returns the user's ID.
func (s *Service) Authenticate(ctx context.Context, username, password string) (string, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return "", apperrors.ErrMissingCredentials
	}
	u, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, apperrors.ErrUserNotFound) {
		return "", apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", apperrors.ErrInvalidCredentials
	}
	return u.ID, nil
}

// Login verifies credentials and returns a signed session token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	userID, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return "", err
	}
	return s.IssueToken(userID)
}

// IssueToken signs an HS256 token whose subject is userID.
func (s *Service) IssueToken(userID string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken checks a token's signature and expiry and returns its subject.
func (s *Service) VerifyToken(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", apperrors.Reject(apperrors.ErrUnauthorized, "invalid token")
	}
	if claims.Subject == "" {
		return "", apperrors.Reject(apperrors.ErrUnauthorized, "token has no subject")
	}
	return claims.Subject, nil
}

// ChangePassword replaces a user's password after checking the policy.
func (s *Service) ChangePassword(ctx context.Context, userID, newPassword string) error {
	if newPassword == "" {
		return apperrors.ErrMissingCredentials
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdatePasswordHash(ctx, userID, string(hash)); err != nil {
		return err
	}
	slog.Info("password changed", "user", userID)
	return nil
}

// Profile returns the user's public account data.
func (s *Service) Profile(ctx context.Context, userID string) (*model.User, error) {
	return s.store.GetUser(ctx, userID)
}
