package http

import (
	"context"
	"net/http"
	"strings"

	"newshub-backend/internal/domain"
)

type principalCtxKey struct{}

// PrincipalMiddleware извлекает субъекта запроса из заголовков внешнего
// аутентификационного шлюза. Шлюз проверяет токен и проставляет
// X-Principal-Id и X-Subscriber-Tier; отсутствие заголовков означает анонима.
func PrincipalMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := domain.Principal{}
			if id := strings.TrimSpace(r.Header.Get("X-Principal-Id")); id != "" {
				principal.ID = id
				if tier, ok := domain.ParseSubscriberTier(r.Header.Get("X-Subscriber-Tier")); ok {
					principal.Tier = &tier
				}
			}
			ctx := context.WithValue(r.Context(), principalCtxKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromContext возвращает субъекта запроса. Для анонима ID пуст и Tier == nil.
func PrincipalFromContext(ctx context.Context) domain.Principal {
	principal, _ := ctx.Value(principalCtxKey{}).(domain.Principal)
	return principal
}

// RequireAuthenticated отклоняет анонимные запросы.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFromContext(r.Context()).ID == "" {
			WriteError(w, http.StatusUnauthorized, domain.ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}
