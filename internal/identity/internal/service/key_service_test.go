package service

import (
	"context"
	"errors"
	"testing"

	"github.com/FergusFettes/openai-cd2-proxy/internal/identity/internal/domain"
)

type fakeStore struct {
	byToken map[string]*domain.APIKey
	byName  map[string]*domain.APIKey
}

func newFakeStore() *fakeStore {
	return &fakeStore{byToken: map[string]*domain.APIKey{}, byName: map[string]*domain.APIKey{}}
}

func (f *fakeStore) FindByToken(_ context.Context, token string) (*domain.APIKey, error) {
	return f.byToken[token], nil
}

func (f *fakeStore) Create(_ context.Context, key *domain.APIKey) error {
	if _, ok := f.byName[key.Name]; ok {
		return errors.New("already exists")
	}
	cp := *key
	f.byName[key.Name] = &cp
	f.byToken[key.Token] = &cp
	return nil
}

func (f *fakeStore) Rotate(_ context.Context, name, newToken string) error {
	key, ok := f.byName[name]
	if !ok {
		return errors.New("not found")
	}
	delete(f.byToken, key.Token)
	key.Token = newToken
	f.byToken[newToken] = key
	return nil
}

func (f *fakeStore) Delete(_ context.Context, name string) error {
	key, ok := f.byName[name]
	if !ok {
		return errors.New("not found")
	}
	delete(f.byToken, key.Token)
	delete(f.byName, name)
	return nil
}

func (f *fakeStore) List(context.Context) ([]domain.APIKey, error) {
	var out []domain.APIKey
	for _, k := range f.byName {
		out = append(out, *k)
	}
	return out, nil
}

func (f *fakeStore) AllTokens(context.Context) ([]string, error) {
	var out []string
	for t := range f.byToken {
		out = append(out, t)
	}
	return out, nil
}

func TestKeyService_IssueThenAuthenticate(t *testing.T) {
	store := newFakeStore()
	svc := NewKeyService(store, nil)

	token, err := svc.IssueKey(context.Background(), "alice", "", false)
	if err != nil {
		t.Fatalf("IssueKey: %v", err)
	}
	if token == "" {
		t.Fatal("expected a generated token")
	}

	key, err := svc.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if key == nil || key.Name != "alice" {
		t.Fatalf("expected to authenticate as alice, got %+v", key)
	}
}

func TestKeyService_AuthenticateUnknownToken(t *testing.T) {
	store := newFakeStore()
	svc := NewKeyService(store, nil)

	key, err := svc.Authenticate(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if key != nil {
		t.Fatalf("expected nil for unknown token, got %+v", key)
	}
}

func TestKeyService_RotateChangesToken(t *testing.T) {
	store := newFakeStore()
	svc := NewKeyService(store, nil)

	oldToken, _ := svc.IssueKey(context.Background(), "bob", "", false)
	newToken, err := svc.RotateKey(context.Background(), "bob")
	if err != nil {
		t.Fatalf("RotateKey: %v", err)
	}
	if newToken == oldToken {
		t.Fatal("expected rotation to change the token")
	}

	if key, _ := svc.Authenticate(context.Background(), oldToken); key != nil {
		t.Fatal("old token should no longer authenticate")
	}
	if key, _ := svc.Authenticate(context.Background(), newToken); key == nil {
		t.Fatal("new token should authenticate")
	}
}

func TestKeyService_RevokeRemovesKey(t *testing.T) {
	store := newFakeStore()
	svc := NewKeyService(store, nil)

	token, _ := svc.IssueKey(context.Background(), "carol", "", false)
	if err := svc.RevokeKey(context.Background(), "carol"); err != nil {
		t.Fatalf("RevokeKey: %v", err)
	}
	if key, _ := svc.Authenticate(context.Background(), token); key != nil {
		t.Fatal("revoked token should no longer authenticate")
	}
}

func TestKeyService_IssueRequiresName(t *testing.T) {
	store := newFakeStore()
	svc := NewKeyService(store, nil)

	if _, err := svc.IssueKey(context.Background(), "", "", false); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
}
