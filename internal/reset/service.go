package reset

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/tracevec/backend/internal/models"
)

var (
	ErrAccountNotFound     = errors.New("no account with that email")
	ErrNoSecurityQuestions = errors.New("account has no security questions configured")
	ErrWrongAnswers        = errors.New("security answers do not match")
	ErrTokenInvalid        = errors.New("reset token is invalid")
	ErrTokenExpired        = errors.New("reset token has expired")
	ErrPasswordMismatch    = errors.New("passwords do not match")
	ErrPasswordTooShort    = fmt.Errorf("password must be at least %d characters", models.MinPasswordLength)
)

// PredefinedQuestions is the list offered to clients when setting up
// account recovery.
var PredefinedQuestions = []string{
	"What was the name of your first pet?",
	"What is your mother's maiden name?",
	"What was the name of your elementary school?",
	"In what city were you born?",
	"What was the make of your first car?",
	"What is the name of your favorite childhood friend?",
	"What was your childhood nickname?",
	"What is your favorite book?",
}

type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
}

type Service struct {
	accounts AccountStore
	tokens   *TokenStore
}

func NewService(accounts AccountStore, tokens *TokenStore) *Service {
	return &Service{accounts: accounts, tokens: tokens}
}

// Questions returns the account's security questions for the recovery
// form. Accounts without questions configured hit a dead end that only an
// administrator can resolve.
func (s *Service) Questions(ctx context.Context, email string) (*models.Account, []string, error) {
	acc, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, nil, err
	}
	if acc == nil {
		return nil, nil, ErrAccountNotFound
	}
	if !acc.HasSecurityQuestions() {
		return acc, nil, ErrNoSecurityQuestions
	}
	return acc, []string{*acc.SecurityQuestion1, *acc.SecurityQuestion2}, nil
}

// VerifyAnswers checks both answers case-insensitively and issues a
// single-use reset token on success.
func (s *Service) VerifyAnswers(ctx context.Context, email, answer1, answer2 string) (*models.Account, string, error) {
	acc, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, "", err
	}
	if acc == nil {
		return nil, "", ErrAccountNotFound
	}
	if !acc.HasSecurityQuestions() {
		return acc, "", ErrNoSecurityQuestions
	}
	if !acc.VerifySecurityAnswers(answer1, answer2) {
		return acc, "", ErrWrongAnswers
	}
	return acc, s.tokens.Issue(acc.ID), nil
}

// ResetPassword redeems a token and replaces the account password. The
// token is consumed whether or not the update succeeds downstream.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword, confirmPassword string) (*models.Account, error) {
	if newPassword != confirmPassword {
		return nil, ErrPasswordMismatch
	}
	if len(newPassword) < models.MinPasswordLength {
		return nil, ErrPasswordTooShort
	}
	accountID, ok, expired := s.tokens.Lookup(token)
	if expired {
		return nil, ErrTokenExpired
	}
	if !ok {
		return nil, ErrTokenInvalid
	}
	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, ErrTokenInvalid
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	s.tokens.Delete(token)
	if err := s.accounts.UpdatePassword(ctx, acc.ID, string(hash)); err != nil {
		return nil, err
	}
	return acc, nil
}
