// Package authpw provides email/password authentication.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"organaizer/api/internal/store"
	"organaizer/api/internal/util"
)

// ErrInvalidCredentials is returned for any failed sign-in so callers
// cannot distinguish a wrong password from an unknown email.
var ErrInvalidCredentials = errors.New("invalid email or password")

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
}

// Service provides email/password authentication
type Service struct {
	store UserStore
}

func NewService(userStore UserStore) *Service {
	return &Service{store: userStore}
}

// SignUpRequest contains sign-up parameters
type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
}

// SignUp creates a new user account. Accounts are active immediately.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.User, error) {
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.Password == "" || strings.TrimSpace(req.DisplayName) == "" {
		return store.User{}, errors.New("email, password, and display name are required")
	}
	if len(req.Password) < 8 {
		return store.User{}, errors.New("password must be at least 8 characters")
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return store.User{}, errors.New("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := store.User{
		ID:              util.NewID("usr"),
		DisplayName:     strings.TrimSpace(req.DisplayName),
		Email:           email,
		PasswordHash:    string(hash),
		IsEmailVerified: true,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// SignIn authenticates a user by email and password.
func (s *Service) SignIn(ctx context.Context, email, password string) (store.User, error) {
	if email == "" || password == "" {
		return store.User{}, ErrInvalidCredentials
	}
	user, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}
