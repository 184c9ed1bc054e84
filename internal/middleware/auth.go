// Package middleware содержит HTTP middleware сервиса записи и заказов.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/mmeshcher/petcare-system/internal/model"
)

type contextKey string

const actorKey contextKey = "actor"

const (
	authCookieName = "auth_token"
	authCookieTTL  = 30 * 24 * time.Hour
)

// AuthMiddleware проверяет подписанный токен участника "<id>:<role>.<hmac>" из cookie или заголовка Authorization.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретным ключом.
// Ключ обязателен: токены, подписанные им, переживают перезапуск сервиса.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{
		secretKey: []byte(secret),
	}
}

// Middleware проверяет токен и добавляет участника в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := tokenFromRequest(r)
		if token == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		actor, ok := a.ParseToken(token)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := WithActor(r.Context(), actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(authCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// IssueToken подписывает токен участника.
func (a *AuthMiddleware) IssueToken(actor model.Actor) string {
	payload := actor.ID + ":" + string(actor.Role)
	return payload + "." + a.sign(payload)
}

// SetAuthCookie устанавливает cookie авторизации для участника.
func (a *AuthMiddleware) SetAuthCookie(w http.ResponseWriter, actor model.Actor) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    a.IssueToken(actor),
		Path:     "/",
		Expires:  time.Now().Add(authCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *AuthMiddleware) sign(payload string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// ParseToken проверяет подпись токена и возвращает участника.
func (a *AuthMiddleware) ParseToken(token string) (model.Actor, bool) {
	dot := strings.LastIndexByte(token, '.')
	if dot < 0 {
		return model.Actor{}, false
	}
	payload, signature := token[:dot], token[dot+1:]

	if !hmac.Equal([]byte(signature), []byte(a.sign(payload))) {
		return model.Actor{}, false
	}

	id, role, ok := strings.Cut(payload, ":")
	if !ok || id == "" {
		return model.Actor{}, false
	}

	actor := model.Actor{ID: id, Role: model.Role(role)}
	if !actor.Role.Valid() || actor.Role == model.RoleSystem {
		return model.Actor{}, false
	}
	return actor, true
}

// RequireRole пропускает запрос, только если роль участника входит в roles.
func RequireRole(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

// WithActor кладёт участника в контекст.
func WithActor(ctx context.Context, actor model.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext извлекает участника из контекста запроса.
func ActorFromContext(ctx context.Context) (model.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(model.Actor)
	return actor, ok
}
