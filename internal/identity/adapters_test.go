package identity

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/FergusFettes/openai-cd2-proxy/internal/identity/internal/domain"
	"github.com/FergusFettes/openai-cd2-proxy/internal/identity/internal/service"
)

type memStore struct {
	keys map[string]*domain.APIKey
}

func newMemStore() *memStore { return &memStore{keys: map[string]*domain.APIKey{}} }

func (m *memStore) FindByToken(_ context.Context, token string) (*domain.APIKey, error) {
	return m.keys[token], nil
}
func (m *memStore) Create(_ context.Context, key *domain.APIKey) error {
	cp := *key
	m.keys[key.Token] = &cp
	return nil
}
func (m *memStore) Rotate(context.Context, string, string) error { return nil }
func (m *memStore) Delete(context.Context, string) error         { return nil }
func (m *memStore) List(context.Context) ([]domain.APIKey, error) {
	return nil, nil
}
func (m *memStore) AllTokens(context.Context) ([]string, error) {
	var out []string
	for t := range m.keys {
		out = append(out, t)
	}
	return out, nil
}

func newTestModule(t *testing.T, store *memStore) *Module {
	t.Helper()
	bloom := newNegativeCache(store, time.Hour, 1000, 0.01, nil)
	if err := bloom.rebuild(context.Background()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	return &Module{
		store:   store,
		service: service.NewKeyService(store, nil),
		bloom:   bloom,
		logger:  slog.Default(),
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	store := newMemStore()
	store.Create(context.Background(), &domain.APIKey{Name: "alice", Token: "tok-1"})
	m := newTestModule(t, store)

	var sawCaller string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawCaller = Caller(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/completions", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	rec := httptest.NewRecorder()

	m.authMiddleware()(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if sawCaller != "alice" {
		t.Fatalf("expected caller alice in context, got %q", sawCaller)
	}
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	store := newMemStore()
	m := newTestModule(t, store)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/completions", nil)
	rec := httptest.NewRecorder()
	m.authMiddleware()(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthMiddleware_UnknownTokenRejectedByBloom(t *testing.T) {
	store := newMemStore()
	store.Create(context.Background(), &domain.APIKey{Name: "alice", Token: "tok-1"})
	m := newTestModule(t, store)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached for an unknown token")
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/completions", nil)
	req.Header.Set("Authorization", "Bearer does-not-exist")
	rec := httptest.NewRecorder()
	m.authMiddleware()(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthMiddleware_SkipsHealthEndpoints(t *testing.T) {
	store := newMemStore()
	m := newTestModule(t, store)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	m.authMiddleware()(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected health endpoint to skip auth, got %d", rec.Code)
	}
}
