package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/tracevec/backend/internal/models"
)

var (
	ErrDuplicateUsername  = errors.New("username already registered")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrPasswordTooShort   = fmt.Errorf("password must be at least %d characters", models.MinPasswordLength)
)

// AccountStore is the subset of the account repository the service needs.
type AccountStore interface {
	Create(ctx context.Context, a *models.Account) error
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	TouchLastLogin(ctx context.Context, id uuid.UUID) error
}

type RegisterParams struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string

	// Recovery questions are optional at registration; both pairs must be
	// supplied together to take effect.
	SecurityQuestion1 string
	SecurityAnswer1   string
	SecurityQuestion2 string
	SecurityAnswer2   string
}

type Service interface {
	Register(ctx context.Context, p RegisterParams) (*models.Account, error)
	Login(ctx context.Context, username, password string) (string, *models.Account, error)
	ValidateToken(ctx context.Context, token string) (uuid.UUID, models.Role, error)
}

type service struct {
	accounts AccountStore
	secret   []byte
	tokenTTL time.Duration
}

func NewService(accounts AccountStore) Service {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "devsecret-change-me"
	}
	return &service{accounts: accounts, secret: []byte(secret), tokenTTL: 24 * time.Hour}
}

var _ Service = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	Role models.Role `json:"role"`
}

func (s *service) Register(ctx context.Context, p RegisterParams) (*models.Account, error) {
	if p.Password != p.ConfirmPassword {
		return nil, ErrPasswordMismatch
	}
	if len(p.Password) < models.MinPasswordLength {
		return nil, ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	acc := &models.Account{
		ID:               uuid.New(),
		Username:         strings.TrimSpace(p.Username),
		Email:            strings.TrimSpace(p.Email),
		PasswordHash:     string(hash),
		Role:             models.RoleUser,
		DailyExportLimit: models.DefaultDailyExportLimit,
		IsActive:         true,
	}
	if p.SecurityQuestion1 != "" && p.SecurityAnswer1 != "" &&
		p.SecurityQuestion2 != "" && p.SecurityAnswer2 != "" {
		q1, q2 := strings.TrimSpace(p.SecurityQuestion1), strings.TrimSpace(p.SecurityQuestion2)
		a1, a2 := models.NormalizeAnswer(p.SecurityAnswer1), models.NormalizeAnswer(p.SecurityAnswer2)
		acc.SecurityQuestion1, acc.SecurityAnswer1 = &q1, &a1
		acc.SecurityQuestion2, acc.SecurityAnswer2 = &q2, &a2
	}
	if err := s.accounts.Create(ctx, acc); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if strings.Contains(pgErr.ConstraintName, "username") {
				return nil, ErrDuplicateUsername
			}
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return acc, nil
}

func (s *service) Login(ctx context.Context, username, password string) (string, *models.Account, error) {
	acc, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		return "", nil, err
	}
	if acc == nil {
		return "", nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}
	if !acc.IsActive {
		return "", nil, ErrAccountDisabled
	}
	if err := s.accounts.TouchLastLogin(ctx, acc.ID); err != nil {
		return "", nil, err
	}
	token, err := s.issueToken(acc.ID, acc.Role)
	if err != nil {
		return "", nil, err
	}
	return token, acc, nil
}

func (s *service) issueToken(accountID uuid.UUID, role models.Role) (string, error) {
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Role: role,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

func (s *service) ValidateToken(ctx context.Context, token string) (uuid.UUID, models.Role, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return uuid.Nil, "", err
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return uuid.Nil, "", errors.New("invalid token")
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, "", err
	}
	return id, c.Role, nil
}
