package service

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	appErrors "github.com/enrollhub/enrollment-service/pkg/errors"
)

type credentialsFile struct {
	Users map[string]string `json:"users"`
}

// AuthService checks HTTP Basic credentials against a static user table.
// Secrets starting with "$2" are bcrypt hashes; anything else is compared
// as plain text in constant time.
type AuthService struct {
	users  map[string]string
	logger *zap.Logger
}

// NewAuthService builds the service from an in-memory user table.
func NewAuthService(users map[string]string, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	copied := make(map[string]string, len(users))
	for name, secret := range users {
		copied[name] = secret
	}
	return &AuthService{users: copied, logger: logger}
}

// LoadAuthService reads the credentials file, {"users": {"name": "secret"}}.
func LoadAuthService(path string, logger *zap.Logger) (*AuthService, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	var file credentialsFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse credentials file %s: %w", path, err)
	}
	if len(file.Users) == 0 {
		return nil, fmt.Errorf("credentials file %s defines no users", path)
	}
	return NewAuthService(file.Users, logger), nil
}

// Authenticate returns the username when the credentials match.
func (s *AuthService) Authenticate(_ context.Context, username, password string) (string, error) {
	secret, ok := s.users[username]

	if !ok || !matches(secret, password) {
		s.logger.Info("authentication failed", zap.String("username", username))
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid credentials")
	}
	return username, nil
}

func matches(secret, password string) bool {
	if strings.HasPrefix(secret, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(secret), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(password)) == 1
}
