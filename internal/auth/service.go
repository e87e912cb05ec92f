package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/pocketops/checkin-bridge/internal/users"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type RegisterResult struct {
	ID       string
	Username string
}

type Service struct {
	users  *users.Service
	config JWTConfig
}

func NewService(usersService *users.Service, config JWTConfig) *Service {
	return &Service{
		users:  usersService,
		config: config,
	}
}

func (s *Service) Register(ctx context.Context, username, password string) (RegisterResult, error) {
	user, err := s.users.Create(ctx, username, password)
	if err != nil {
		return RegisterResult{}, err
	}
	return RegisterResult{ID: user.ID, Username: user.Username}, nil
}

func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("query user: %w", err)
	}

	if !users.CheckPassword(password, user.PasswordHash) {
		return "", ErrInvalidCredentials
	}

	token, err := GenerateToken(s.config, user.ID, user.Username)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

func (s *Service) Validate(token string) (*Claims, error) {
	return ValidateToken(s.config.Secret, token)
}
