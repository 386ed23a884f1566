// Package service contains the business logic for identity-store
// operations: lookup, issuance, rotation, revocation.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/FergusFettes/openai-cd2-proxy/internal/identity/internal/domain"
)

// KeyStore mirrors the top-level identity.KeyStore port to avoid an
// import cycle between service and the facade package.
type KeyStore interface {
	FindByToken(ctx context.Context, token string) (*domain.APIKey, error)
	Create(ctx context.Context, key *domain.APIKey) error
	Rotate(ctx context.Context, name, newToken string) error
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]domain.APIKey, error)
	AllTokens(ctx context.Context) ([]string, error)
}

// ErrEmptyName is returned when an operation requires a caller name and
// none was given.
var ErrEmptyName = errors.New("caller name is required")

// KeyService provides the business logic layer over KeyStore.
type KeyService struct {
	store  KeyStore
	logger *slog.Logger
}

// NewKeyService creates a KeyService.
func NewKeyService(store KeyStore, logger *slog.Logger) *KeyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &KeyService{store: store, logger: logger.With("component", "identity-key-service")}
}

// Authenticate resolves a bearer token to its caller record, or nil if
// the token is unknown.
func (s *KeyService) Authenticate(ctx context.Context, token string) (*domain.APIKey, error) {
	if token == "" {
		return nil, nil
	}
	key, err := s.store.FindByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("find key by token: %w", err)
	}
	return key, nil
}

// IssueKey creates a new caller with the given token, or with a freshly
// generated one if token is empty, and returns the token.
func (s *KeyService) IssueKey(ctx context.Context, name, token string, leaderboard bool) (string, error) {
	if name == "" {
		return "", ErrEmptyName
	}

	if token == "" {
		generated, err := domain.GenerateToken()
		if err != nil {
			return "", fmt.Errorf("generate token: %w", err)
		}
		token = generated
	}

	key := &domain.APIKey{Name: name, Token: token, Leaderboard: leaderboard}
	if err := s.store.Create(ctx, key); err != nil {
		return "", fmt.Errorf("store key: %w", err)
	}

	s.logger.Info("api key issued", "name", name)
	return token, nil
}

// RotateKey replaces name's token with a freshly generated one and
// returns it.
func (s *KeyService) RotateKey(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", ErrEmptyName
	}
	token, err := domain.GenerateToken()
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	if err := s.store.Rotate(ctx, name, token); err != nil {
		return "", fmt.Errorf("rotate key: %w", err)
	}
	s.logger.Info("api key rotated", "name", name)
	return token, nil
}

// RevokeKey deletes name's key.
func (s *KeyService) RevokeKey(ctx context.Context, name string) error {
	if name == "" {
		return ErrEmptyName
	}
	if err := s.store.Delete(ctx, name); err != nil {
		return fmt.Errorf("delete key: %w", err)
	}
	s.logger.Info("api key revoked", "name", name)
	return nil
}

// ListKeys returns every issued key.
func (s *KeyService) ListKeys(ctx context.Context) ([]domain.APIKey, error) {
	keys, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}
