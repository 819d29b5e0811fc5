package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"github.com/EricDistort/QuberX/internal/infrastructure/auth"
	"github.com/EricDistort/QuberX/internal/infrastructure/redis"
	"github.com/EricDistort/QuberX/internal/models"
	"github.com/EricDistort/QuberX/internal/repository"
	pkgerrors "github.com/EricDistort/QuberX/pkg/errors"
)

const (
	accountNumberDigits   = 10
	accountNumberAttempts = 5
	minPasswordLength     = 6
	maxReferrerChain      = 10000
)

type AccountService interface {
	Register(ctx context.Context, req models.RegistrationRequest) (*models.Account, error)
	Login(ctx context.Context, username, password string) (string, error)
	Logout(ctx context.Context, accountID int64) error
	ChangePassword(ctx context.Context, accountID int64, oldPassword, newPassword string) error
	GetAccount(ctx context.Context, accountID int64) (*models.Account, error)
	SetStatus(ctx context.Context, accountID int64, status models.AccountStatus) (*models.Account, error)
}

type accountService struct {
	store    repository.Store
	sessions redis.RedisClient
	tokens   *auth.TokenManager
	events   *EventPublisher
}

func NewAccountService(store repository.Store, sessions redis.RedisClient, tokens *auth.TokenManager, events *EventPublisher) *accountService {
	return &accountService{
		store:    store,
		sessions: sessions,
		tokens:   tokens,
		events:   events,
	}
}

var accountNumberRange = big.NewInt(9_000_000_000)

// newAccountNumber returns a random 10 digit number without a leading zero.
func newAccountNumber() (string, error) {
	n, err := rand.Int(rand.Reader, accountNumberRange)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", accountNumberDigits, n.Int64()+1_000_000_000), nil
}

func (s *accountService) Register(ctx context.Context, req models.RegistrationRequest) (acc *models.Account, err error) {
	ctx, span := tracer.Start(ctx, "Register")
	defer func() { finish(span, "register", err) }()

	username := strings.TrimSpace(req.Username)
	referrer := strings.TrimSpace(req.ReferrerAccountNumber)
	if username == "" {
		return nil, pkgerrors.NewValidationError("username", "username is required")
	}
	if len(req.Password) < minPasswordLength {
		return nil, pkgerrors.NewValidationError("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	if len(req.Password) > maxPasswordLength {
		return nil, pkgerrors.NewValidationError("password", fmt.Sprintf("must be at most %d bytes", maxPasswordLength))
	}
	email, phone := strings.TrimSpace(req.Email), strings.TrimSpace(req.Phone)
	if err := checkLengths(
		fieldLimit{"username", username, maxNameLength},
		fieldLimit{"email", email, maxNameLength},
		fieldLimit{"phone", phone, maxPhoneLength},
	); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "username", username, "error", err)
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	// A unique violation aborts the surrounding transaction, so each
	// account number candidate gets its own.
	for attempt := 1; ; attempt++ {
		number, err := newAccountNumber()
		if err != nil {
			return nil, fmt.Errorf("failed to generate account number: %w", err)
		}
		acc = &models.Account{
			AccountNumber:         number,
			Username:              username,
			Email:                 email,
			Phone:                 phone,
			PasswordHash:          string(hash),
			ReferrerAccountNumber: referrer,
			Status:                models.AccountStatusActive,
		}
		err = s.store.WithinTx(ctx, func(ctx context.Context, r repository.Repositories) error {
			if referrer != "" {
				if err := validateReferrer(ctx, r, referrer, number); err != nil {
					return err
				}
			}
			if err := r.Accounts.Create(ctx, acc); err != nil {
				return err
			}
			return audit(ctx, r, models.EntityAccount, acc.ID, models.AuditCreate, acc.ID, nil, acc.Balances())
		})
		if err == nil {
			break
		}
		if !errors.Is(err, pkgerrors.ErrAccountNumberTaken) || attempt == accountNumberAttempts {
			slog.Warn("registration failed", "username", username, "error", err)
			return nil, err
		}
		slog.Info("account number collision, regenerating", "attempt", attempt)
	}

	s.events.Publish(models.EventAccountRegistered, decimal.Zero, acc.AccountNumber, acc.ID)
	slog.Info("account registered", "account_id", acc.ID, "account_number", acc.AccountNumber, "referrer", referrer)
	return acc, nil
}

// validateReferrer checks that referrer exists and that its chain ends
// without passing through self.
func validateReferrer(ctx context.Context, r repository.Repositories, referrer, self string) error {
	if referrer == self {
		return pkgerrors.ErrReferrerCycle
	}
	seen := make(map[string]bool)
	for next, steps := referrer, 0; next != ""; steps++ {
		if next == self || seen[next] || steps >= maxReferrerChain {
			return pkgerrors.ErrReferrerCycle
		}
		seen[next] = true
		acc, err := r.Accounts.GetByAccountNumber(ctx, next)
		if err != nil {
			if errors.Is(err, pkgerrors.ErrAccountNotFound) {
				if next == referrer {
					return pkgerrors.ErrReferrerNotFound
				}
				return pkgerrors.ErrReferrerCycle
			}
			return err
		}
		next = acc.ReferrerAccountNumber
	}
	return nil
}

func (s *accountService) Login(ctx context.Context, username, password string) (token string, err error) {
	ctx, span := tracer.Start(ctx, "Login")
	defer func() { finish(span, "login", err) }()

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", pkgerrors.ErrInvalidCredentials
	}

	acc, err := s.store.Repos().Accounts.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrAccountNotFound) {
			slog.Warn("login for unknown username", "username", username)
			return "", pkgerrors.ErrInvalidCredentials
		}
		return "", err
	}
	span.SetAttributes(attribute.Int64("account_id", acc.ID))

	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		slog.Warn("invalid password", "account_id", acc.ID)
		return "", pkgerrors.ErrInvalidCredentials
	}
	if acc.Status != models.AccountStatusActive {
		slog.Warn("login to inactive account", "account_id", acc.ID, "status", acc.Status)
		return "", pkgerrors.ErrInvalidCredentials
	}

	token, err = s.tokens.GenerateJWT(acc.ID, acc.AccountNumber)
	if err != nil {
		slog.Error("failed to generate token", "account_id", acc.ID, "error", err)
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	if err := s.sessions.Set(ctx, auth.SessionKey(acc.ID), token, s.tokens.TTL()); err != nil {
		slog.Error("failed to store session", "account_id", acc.ID, "error", err)
		return "", pkgerrors.NewStorageError("store session", err)
	}

	slog.Info("login succeeded", "account_id", acc.ID)
	return token, nil
}

func (s *accountService) Logout(ctx context.Context, accountID int64) (err error) {
	ctx, span := tracer.Start(ctx, "Logout")
	defer func() { finish(span, "logout", err) }()

	if err := s.sessions.Del(ctx, auth.SessionKey(accountID)); err != nil {
		slog.Error("failed to revoke session", "account_id", accountID, "error", err)
		return pkgerrors.NewStorageError("revoke session", err)
	}
	slog.Info("logged out", "account_id", accountID)
	return nil
}

func (s *accountService) ChangePassword(ctx context.Context, accountID int64, oldPassword, newPassword string) (err error) {
	ctx, span := tracer.Start(ctx, "ChangePassword")
	defer func() { finish(span, "change_password", err) }()

	if len(newPassword) < minPasswordLength {
		return pkgerrors.NewValidationError("new_password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	if len(newPassword) > maxPasswordLength {
		return pkgerrors.NewValidationError("new_password", fmt.Sprintf("must be at most %d bytes", maxPasswordLength))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, r repository.Repositories) error {
		acc, err := r.Accounts.GetForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(oldPassword)); err != nil {
			return pkgerrors.ErrInvalidCredentials
		}
		return r.Accounts.UpdatePassword(ctx, accountID, string(hash))
	})
	if err != nil {
		slog.Warn("password change failed", "account_id", accountID, "error", err)
		return err
	}

	if err := s.sessions.Del(ctx, auth.SessionKey(accountID)); err != nil {
		slog.Error("failed to revoke session after password change", "account_id", accountID, "error", err)
	}
	slog.Info("password changed", "account_id", accountID)
	return nil
}

func (s *accountService) GetAccount(ctx context.Context, accountID int64) (*models.Account, error) {
	ctx, span := tracer.Start(ctx, "GetAccount")
	defer span.End()

	return s.store.Repos().Accounts.GetByID(ctx, accountID)
}

// SetStatus suspends or reactivates an account. Suspension also revokes
// the live session so the next authenticated call is rejected.
func (s *accountService) SetStatus(ctx context.Context, accountID int64, status models.AccountStatus) (acc *models.Account, err error) {
	ctx, span := tracer.Start(ctx, "SetStatus", trace.WithAttributes(attribute.Int64("account_id", accountID)))
	defer func() { finish(span, "set_account_status", err) }()

	if !status.Valid() {
		return nil, pkgerrors.NewValidationError("status", fmt.Sprintf("unknown account status %q", status))
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, r repository.Repositories) error {
		current, err := r.Accounts.GetForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if current.Status == status {
			acc = current
			return nil
		}
		if err := r.Accounts.UpdateStatus(ctx, accountID, status); err != nil {
			return err
		}
		old := current.Status
		current.Status = status
		acc = current
		return audit(ctx, r, models.EntityAccount, accountID, models.AuditStatus, accountID,
			map[string]models.AccountStatus{"status": old}, map[string]models.AccountStatus{"status": status})
	})
	if err != nil {
		slog.Warn("account status change failed", "account_id", accountID, "status", status, "error", err)
		return nil, err
	}

	if status == models.AccountStatusSuspended {
		if err := s.sessions.Del(ctx, auth.SessionKey(accountID)); err != nil {
			slog.Error("failed to revoke session of suspended account", "account_id", accountID, "error", err)
			return nil, pkgerrors.NewStorageError("revoke session", err)
		}
	}
	slog.Info("account status changed", "account_id", accountID, "status", status)
	return acc, nil
}
