package reset

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/tracevec/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type stubAccountStore struct {
	accounts map[string]*models.Account // keyed by email

	updatedHash string
	updatedID   uuid.UUID
}

func (s *stubAccountStore) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	return s.accounts[email], nil
}

func (s *stubAccountStore) GetByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	for _, a := range s.accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, nil
}

func (s *stubAccountStore) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	s.updatedID = id
	s.updatedHash = hash
	return nil
}

func accountWithQuestions(email string) *models.Account {
	q1, a1 := "What was the name of your first pet?", "rex"
	q2, a2 := "In what city were you born?", "bangkok"
	return &models.Account{
		ID:                uuid.New(),
		Email:             email,
		Role:              models.RoleUser,
		SecurityQuestion1: &q1,
		SecurityAnswer1:   &a1,
		SecurityQuestion2: &q2,
		SecurityAnswer2:   &a2,
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestQuestions_UnknownAccount(t *testing.T) {
	svc := NewService(&stubAccountStore{accounts: map[string]*models.Account{}}, NewTokenStore())

	_, _, err := svc.Questions(context.Background(), "nobody@example.com")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestQuestions_NoQuestionsConfigured(t *testing.T) {
	acc := &models.Account{ID: uuid.New(), Email: "bare@example.com"}
	svc := NewService(&stubAccountStore{accounts: map[string]*models.Account{acc.Email: acc}}, NewTokenStore())

	_, _, err := svc.Questions(context.Background(), acc.Email)
	if !errors.Is(err, ErrNoSecurityQuestions) {
		t.Errorf("expected ErrNoSecurityQuestions, got %v", err)
	}
}

func TestQuestions_ReturnsBothQuestions(t *testing.T) {
	acc := accountWithQuestions("user@example.com")
	svc := NewService(&stubAccountStore{accounts: map[string]*models.Account{acc.Email: acc}}, NewTokenStore())

	_, questions, err := svc.Questions(context.Background(), acc.Email)
	if err != nil {
		t.Fatalf("Questions: %v", err)
	}
	if len(questions) != 2 || questions[0] != *acc.SecurityQuestion1 || questions[1] != *acc.SecurityQuestion2 {
		t.Errorf("unexpected questions: %v", questions)
	}
}

func TestVerifyAnswers_CaseInsensitive(t *testing.T) {
	acc := accountWithQuestions("user@example.com")
	svc := NewService(&stubAccountStore{accounts: map[string]*models.Account{acc.Email: acc}}, NewTokenStore())

	_, token, err := svc.VerifyAnswers(context.Background(), acc.Email, "  REX ", "Bangkok")
	if err != nil {
		t.Fatalf("VerifyAnswers: %v", err)
	}
	if token == "" {
		t.Error("expected a reset token")
	}
}

func TestVerifyAnswers_WrongAnswer(t *testing.T) {
	acc := accountWithQuestions("user@example.com")
	svc := NewService(&stubAccountStore{accounts: map[string]*models.Account{acc.Email: acc}}, NewTokenStore())

	_, _, err := svc.VerifyAnswers(context.Background(), acc.Email, "rex", "chiang mai")
	if !errors.Is(err, ErrWrongAnswers) {
		t.Errorf("expected ErrWrongAnswers, got %v", err)
	}
}

func TestResetPassword_HappyPath(t *testing.T) {
	acc := accountWithQuestions("user@example.com")
	store := &stubAccountStore{accounts: map[string]*models.Account{acc.Email: acc}}
	tokens := NewTokenStore()
	svc := NewService(store, tokens)

	token := tokens.Issue(acc.ID)
	got, err := svc.ResetPassword(context.Background(), token, "brand-new-pass", "brand-new-pass")
	if err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if got.ID != acc.ID || store.updatedID != acc.ID {
		t.Error("password updated for the wrong account")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(store.updatedHash), []byte("brand-new-pass")); err != nil {
		t.Error("stored hash does not match the new password")
	}
}

func TestResetPassword_TokenIsSingleUse(t *testing.T) {
	acc := accountWithQuestions("user@example.com")
	tokens := NewTokenStore()
	svc := NewService(&stubAccountStore{accounts: map[string]*models.Account{acc.Email: acc}}, tokens)

	token := tokens.Issue(acc.ID)
	if _, err := svc.ResetPassword(context.Background(), token, "brand-new-pass", "brand-new-pass"); err != nil {
		t.Fatalf("first redemption: %v", err)
	}
	_, err := svc.ResetPassword(context.Background(), token, "another-pass1", "another-pass1")
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid on reuse, got %v", err)
	}
}

func TestResetPassword_ExpiredToken(t *testing.T) {
	acc := accountWithQuestions("user@example.com")
	tokens := NewTokenStore()
	svc := NewService(&stubAccountStore{accounts: map[string]*models.Account{acc.Email: acc}}, tokens)

	issued := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	tokens.now = func() time.Time { return issued }
	token := tokens.Issue(acc.ID)

	tokens.now = func() time.Time { return issued.Add(TokenTTL + time.Minute) }
	_, err := svc.ResetPassword(context.Background(), token, "brand-new-pass", "brand-new-pass")
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
	// the expired token is gone, so a retry reports invalid
	_, err = svc.ResetPassword(context.Background(), token, "brand-new-pass", "brand-new-pass")
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid after expiry cleanup, got %v", err)
	}
}

func TestResetPassword_Validation(t *testing.T) {
	tokens := NewTokenStore()
	svc := NewService(&stubAccountStore{accounts: map[string]*models.Account{}}, tokens)

	if _, err := svc.ResetPassword(context.Background(), "t", "abcdefgh", "mismatch"); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("expected ErrPasswordMismatch, got %v", err)
	}
	if _, err := svc.ResetPassword(context.Background(), "t", "short", "short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Errorf("expected ErrPasswordTooShort, got %v", err)
	}
	if _, err := svc.ResetPassword(context.Background(), "unknown", "abcdefgh", "abcdefgh"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid, got %v", err)
	}
}
