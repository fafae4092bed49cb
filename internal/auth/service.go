package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"

	"github.com/pulseboard/pulseboard/internal/platform/httpx"
	"github.com/pulseboard/pulseboard/internal/shared"
)

// Mailer delivers account mail. The production implementation enqueues asynq
// tasks; tests plug a recorder in.
type Mailer interface {
	SendActivation(ctx context.Context, email, username, token string) error
	SendPasswordReset(ctx context.Context, email, username, token string) error
}

var (
	usernameRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	foldCaser  = cases.Fold()
	validate   = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernameRe.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return passwordStrong(fl.Field().String())
	})
	return v
}

// passwordStrong enforces the minimum policy: at least eight characters with
// an upper-case letter, a digit and a symbol.
func passwordStrong(pw string) bool {
	if len(pw) < 8 {
		return false
	}
	var upper, digit, special bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	return upper && digit && special
}

// Service wraps registration, activation and login rules.
type Service struct {
	repo   Repository
	mailer Mailer
	logger *slog.Logger
}

// NewService constructs a new Service. mailer may be nil in tests.
func NewService(repo Repository, mailer Mailer, logger *slog.Logger) *Service {
	return &Service{repo: repo, mailer: mailer, logger: logger}
}

// Register creates an inactive account and mails the activation link. The
// username is stored as typed; lookups run against its casefolded form so
// "Alice" and "alice" cannot coexist.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*Account, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	if err := validate.Struct(input); err != nil {
		return nil, fmt.Errorf("%w: %s", httpx.ErrValidation, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	expires := time.Now().Add(activationTTL)

	acct := Account{
		Username:            input.Username,
		UsernameFold:        foldCaser.String(input.Username),
		Email:               input.Email,
		PasswordHash:        string(hash),
		Role:                "user",
		ActivationToken:     &token,
		ActivationExpiresAt: &expires,
	}
	id, err := s.repo.CreateAccount(ctx, acct)
	if err != nil {
		if errors.Is(err, shared.ErrDuplicate) {
			return nil, fmt.Errorf("%w: username or email already taken", httpx.ErrDuplicate)
		}
		return nil, err
	}
	acct.ID = id

	if s.mailer != nil {
		if err := s.mailer.SendActivation(ctx, acct.Email, acct.Username, token); err != nil && s.logger != nil {
			s.logger.Warn("send activation mail", slog.Int64("user", id), slog.Any("error", err))
		}
	}
	return &acct, nil
}

// Activate redeems an activation token.
func (s *Service) Activate(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return httpx.ErrNotFound
	}
	acct, err := s.repo.FindByActivationToken(ctx, token)
	if err != nil {
		return mapNotFound(err)
	}
	if acct.ActivationExpiresAt == nil || time.Now().After(*acct.ActivationExpiresAt) {
		return fmt.Errorf("%w: activation link expired", httpx.ErrRejected)
	}
	return mapNotFound(s.repo.Activate(ctx, acct.ID))
}

// timingPadHash is a throwaway bcrypt hash (of no account's password) compared
// against on the unknown-username path, so a login miss costs the same as a
// wrong password and response timing does not reveal which usernames exist.
var timingPadHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// Authenticate validates username/password credentials. Inactive and blocked
// accounts are refused with distinct errors after the hash check, so the
// messages never leak whether a password was correct for a missing account.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*Account, error) {
	acct, err := s.repo.FindByLogin(ctx, foldCaser.String(strings.TrimSpace(username)))
	if err != nil {
		_ = bcrypt.CompareHashAndPassword(timingPadHash, []byte(password))
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !acct.IsActivated {
		return nil, shared.ErrAccountNotActivated
	}
	if acct.IsBlocked {
		return nil, shared.ErrAccountBlocked
	}
	return acct, nil
}

// RequestPasswordReset issues a reset token when the email is known. It
// succeeds silently otherwise; the response never reveals whether an account
// exists.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	acct, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return err
	}
	token, err := newToken()
	if err != nil {
		return err
	}
	if err := s.repo.SetResetToken(ctx, acct.ID, token, time.Now().Add(resetTTL)); err != nil {
		return err
	}
	if s.mailer != nil {
		if err := s.mailer.SendPasswordReset(ctx, acct.Email, acct.Username, token); err != nil && s.logger != nil {
			s.logger.Warn("send reset mail", slog.Int64("user", acct.ID), slog.Any("error", err))
		}
	}
	return nil
}

// ResetPassword redeems a reset token and installs the new password.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return httpx.ErrNotFound
	}
	if !passwordStrong(password) {
		return fmt.Errorf("%w: password does not meet the policy", httpx.ErrValidation)
	}
	acct, err := s.repo.FindByResetToken(ctx, token)
	if err != nil {
		return mapNotFound(err)
	}
	if acct.ResetExpiresAt == nil || time.Now().After(*acct.ResetExpiresAt) {
		return fmt.Errorf("%w: reset link expired", httpx.ErrRejected)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return mapNotFound(s.repo.UpdatePassword(ctx, acct.ID, string(hash)))
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func mapNotFound(err error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return httpx.ErrNotFound
	}
	return err
}
