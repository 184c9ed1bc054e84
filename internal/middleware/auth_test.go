package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mmeshcher/petcare-system/internal/model"
)

func TestAuthMiddleware_WithValidCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			t.Fatalf("actor not in context")
		}
		if actor.ID != "42" || actor.Role != model.RoleStaff {
			t.Fatalf("actor from context = %+v, want 42/staff", actor)
		}
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/protected", nil)

	m.SetAuthCookie(w, model.Actor{ID: "42", Role: model.RoleStaff})
	resCookies := w.Result().Cookies()
	if len(resCookies) == 0 {
		t.Fatalf("no cookies set by SetAuthCookie")
	}

	r.AddCookie(resCookies[0])

	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestAuthMiddleware_WithBearerToken(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	var got model.Actor
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = ActorFromContext(r.Context())
	})

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.Header.Set("Authorization", "Bearer "+m.IssueToken(model.Actor{ID: "alice", Role: model.RoleCustomer}))

	w := httptest.NewRecorder()
	m.Middleware(next).ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got.ID != "alice" || got.Role != model.RoleCustomer {
		t.Fatalf("actor = %+v", got)
	}
}

func TestAuthMiddleware_RejectsBadTokens(t *testing.T) {
	m := NewAuthMiddleware("test-secret")
	other := NewAuthMiddleware("other-secret")

	tokens := map[string]string{
		"without cookie":    "",
		"foreign signature": other.IssueToken(model.Actor{ID: "alice", Role: model.RoleCustomer}),
		"tampered role":     "alice:admin." + m.sign("alice:customer"),
		"system role":       m.IssueToken(model.SystemActor),
		"unknown role":      m.IssueToken(model.Actor{ID: "x", Role: "root"}),
		"no signature":      "alice:customer",
	}

	for name, token := range tokens {
		t.Run(name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("next handler should not be called")
			})

			r := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if token != "" {
				r.Header.Set("Authorization", "Bearer "+token)
			}
			w := httptest.NewRecorder()
			m.Middleware(next).ServeHTTP(w, r)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(model.RoleStaff, model.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name  string
		actor *model.Actor
		want  int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"customer", &model.Actor{ID: "c", Role: model.RoleCustomer}, http.StatusForbidden},
		{"staff", &model.Actor{ID: "s", Role: model.RoleStaff}, http.StatusNoContent},
		{"admin", &model.Actor{ID: "a", Role: model.RoleAdmin}, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.actor != nil {
				r = r.WithContext(WithActor(r.Context(), *tt.actor))
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}
