// Package auth gates the operator UI: user accounts with hashed passwords,
// Google sign-in and expiring login sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors.
var (
	ErrUserExists         = errors.New("auth: username or email already registered")
	ErrUserNotFound       = errors.New("auth: user not found")
	ErrInvalidCredentials = errors.New("auth: invalid username or password")
	ErrMissingField       = errors.New("auth: username, password and email are required")
	ErrSessionNotFound    = errors.New("auth: session not found or expired")
)

// User is a registered operator. PasswordHash is empty for accounts created
// through Google sign-in.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store persists users.
type Store interface {
	Create(ctx context.Context, u *User) error
	ByUsername(ctx context.Context, username string) (*User, error)
	ByEmail(ctx context.Context, email string) (*User, error)
	Close() error
}

// Identity is what an external identity provider asserts about a user.
type Identity struct {
	Email string
	Name  string
}

// Service implements sign-up, login and logout over a Store and Sessions.
type Service struct {
	users    Store
	sessions Sessions
	logger   *slog.Logger
}

// NewService creates a Service.
func NewService(users Store, sessions Sessions, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:    users,
		sessions: sessions,
		logger:   logger.With("component", "auth"),
	}
}

// SignUp registers a new user with a password.
func (s *Service) SignUp(ctx context.Context, username, password, email string) (*User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || password == "" || email == "" {
		return nil, ErrMissingField
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := &User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info("user registered", "username", username)
	return u, nil
}

// Login checks credentials and opens a session.
func (s *Service) Login(ctx context.Context, username, password string) (string, *User, error) {
	u, err := s.users.ByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, ErrUserNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if u.PasswordHash == "" || !CheckPassword(u.PasswordHash, password) {
		s.logger.Debug("login rejected", "username", username)
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.sessions.Create(ctx, u.Username)
	if err != nil {
		return "", nil, err
	}
	s.logger.Info("user logged in", "username", u.Username)
	return token, u, nil
}

// LoginIdentity opens a session for an externally verified identity,
// registering the user on first sight.
func (s *Service) LoginIdentity(ctx context.Context, id Identity) (string, *User, error) {
	if id.Email == "" {
		return "", nil, fmt.Errorf("auth: identity has no email")
	}

	u, err := s.users.ByEmail(ctx, id.Email)
	if errors.Is(err, ErrUserNotFound) {
		u, err = s.registerIdentity(ctx, id)
	}
	if err != nil {
		return "", nil, err
	}

	token, err := s.sessions.Create(ctx, u.Username)
	if err != nil {
		return "", nil, err
	}
	s.logger.Info("identity logged in", "username", u.Username)
	return token, u, nil
}

func (s *Service) registerIdentity(ctx context.Context, id Identity) (*User, error) {
	name := strings.TrimSpace(id.Name)
	if name == "" {
		name = id.Email
	}
	u := &User{
		ID:        uuid.NewString(),
		Username:  name,
		Email:     id.Email,
		CreatedAt: time.Now().UTC(),
	}
	err := s.users.Create(ctx, u)
	if errors.Is(err, ErrUserExists) && name != id.Email {
		// Display name taken by another account; fall back to the email.
		u.Username = id.Email
		err = s.users.Create(ctx, u)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("user registered via identity provider", "username", u.Username)
	return u, nil
}

// Logout ends a session. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, token)
}

// Authenticate resolves a session token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}
	username, err := s.sessions.Lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.users.ByUsername(ctx, username)
}
