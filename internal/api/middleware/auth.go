package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/darmiel/kartei/internal/api/presenter"
	"github.com/darmiel/kartei/internal/core"
	"github.com/darmiel/kartei/internal/guard"
)

// BearerToken returns the credential of the Authorization header.
func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// AdminAuth lets only callers with the admin role through.
func AdminAuth(g *guard.Guard) func(handler http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, err := g.Authorize(r.Context(), BearerToken(r), core.CapManageTemplate, "")
			if err != nil {
				presenter.Err(w, r, err, "admin access required")
				return
			}

			log.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("sub", caller.ID)
			})
			next.ServeHTTP(w, r)
		})
	}
}
