package accounts

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/gocomet/carpool/internal/domain/user"
	"github.com/gocomet/carpool/internal/domain/vehicle"
	apperrors "github.com/gocomet/carpool/pkg/errors"
	"github.com/gocomet/carpool/pkg/logger"
	"github.com/google/uuid"
)

const minPasswordLength = 6

// TokenIssuer creates access tokens
type TokenIssuer interface {
	GenerateToken(userID uuid.UUID, role string) (string, error)
}

// PasswordHasher hashes and checks passwords
type PasswordHasher interface {
	Hash(password string) (string, error)
	Check(hash, password string) bool
}

// PasswordFuncs adapts plain functions to PasswordHasher
type PasswordFuncs struct {
	HashFunc  func(password string) (string, error)
	CheckFunc func(hash, password string) bool
}

func (p PasswordFuncs) Hash(password string) (string, error) { return p.HashFunc(password) }
func (p PasswordFuncs) Check(hash, password string) bool     { return p.CheckFunc(hash, password) }

// RegisterInput is the data a new user supplies
type RegisterInput struct {
	Name     string
	Email    string
	Phone    string
	Password string
	Role     string
}

// Session is an issued access token with its user
type Session struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	User        *user.User `json:"user"`
}

// Service handles registration, login and driver vehicles
type Service struct {
	users    user.Repository
	vehicles vehicle.Repository
	tokens   TokenIssuer
	password PasswordHasher
	logger   *logger.Logger
	now      func() time.Time
}

// NewService creates a new accounts service
func NewService(users user.Repository, vehicles vehicle.Repository, tokens TokenIssuer, password PasswordHasher, log *logger.Logger) *Service {
	return &Service{
		users:    users,
		vehicles: vehicles,
		tokens:   tokens,
		password: password,
		logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register creates a passenger or driver account and signs it in. Admin
// accounts cannot be self-registered.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	role := user.RolePassenger
	if in.Role != "" {
		parsed, ok := user.ParseRole(in.Role)
		if !ok || parsed == user.RoleAdmin {
			return nil, apperrors.ErrInvalidRequest.Withf("role must be passenger or driver")
		}
		role = parsed
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperrors.ErrInvalidRequest.Withf("name is required")
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(in.Email))
	if err != nil {
		return nil, apperrors.ErrInvalidRequest.Withf("email is invalid")
	}
	if len(in.Password) < minPasswordLength {
		return nil, apperrors.ErrInvalidRequest.Withf("password must be at least %d characters", minPasswordLength)
	}

	hash, err := s.password.Hash(in.Password)
	if err != nil {
		return nil, apperrors.Internal("Failed to hash password", err)
	}

	u := &user.User{
		ID:           uuid.New(),
		Name:         name,
		Email:        strings.ToLower(addr.Address),
		Phone:        strings.TrimSpace(in.Phone),
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    s.now(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			return nil, apperrors.ErrEmailTaken
		}
		return nil, apperrors.Internal("Failed to create user", err)
	}

	s.logger.Info("User registered", logger.UUID("user_id", u.ID), logger.String("role", string(u.Role)))
	return s.session(u)
}

// Login checks credentials and issues a token
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, apperrors.Internal("Failed to load user", err)
	}
	if !s.password.Check(u.PasswordHash, password) {
		return nil, apperrors.ErrInvalidCredentials
	}
	return s.session(u)
}

// Me returns the authenticated user
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*user.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, apperrors.ErrInvalidToken.Withf("User not found")
		}
		return nil, apperrors.Internal("Failed to load user", err)
	}
	return u, nil
}

func (s *Service) session(u *user.User) (*Session, error) {
	token, err := s.tokens.GenerateToken(u.ID, string(u.Role))
	if err != nil {
		return nil, apperrors.Internal("Failed to issue token", err)
	}
	return &Session{AccessToken: token, TokenType: "bearer", User: u}, nil
}
