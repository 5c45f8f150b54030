package tenant

import (
	"net/http"
	"strings"

	"github.com/nyroxsystems-boop/autoteile-assistent/internal/auth"
)

// ScopeRequired is the token scope needed for external sync calls.
const ScopeRequired = "ext"

// Require resolves the tenant for a request and injects a Scope into the
// request context. Two credentials are accepted:
//
//   - service tokens ("Authorization: Bearer svc_..."), optionally bound to
//     a tenant; unbound tokens pick the tenant via the X-Tenant slug header
//   - user session tokens, which carry the tenant memberships as claims;
//     the X-Tenant slug must appear in that claim with a known role
//
// Inactive tenants are rejected outright.
func Require(repo *Repo, jwtSvc *auth.JWT) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if h == "" || !strings.HasPrefix(h, "Bearer ") {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			raw := strings.TrimPrefix(h, "Bearer ")

			var t *Tenant

			if IsServiceToken(raw) {
				tok, err := repo.TokenByRaw(raw)
				if err != nil {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				if !tok.HasScope(ScopeRequired) {
					http.Error(w, "forbidden", http.StatusForbidden)
					return
				}
				t, err = resolveTokenTenant(repo, tok, r.Header.Get("X-Tenant"))
				if err != nil {
					http.Error(w, "tenant required", http.StatusForbidden)
					return
				}
				repo.MarkTokenUsed(tok)
			} else {
				sess, err := jwtSvc.Verify(raw)
				if err != nil {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				slug := strings.TrimSpace(r.Header.Get("X-Tenant"))
				if slug == "" {
					http.Error(w, "tenant required", http.StatusForbidden)
					return
				}
				role, ok := sess.Tenants[slug]
				if !ok || !ValidRole(role) {
					http.Error(w, "forbidden", http.StatusForbidden)
					return
				}
				t, err = repo.BySlug(slug)
				if err != nil {
					http.Error(w, "tenant required", http.StatusForbidden)
					return
				}
			}

			if !t.Active() {
				http.Error(w, "tenant inactive", http.StatusForbidden)
				return
			}

			ctx := With(r.Context(), NewScope(t.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func resolveTokenTenant(repo *Repo, tok *ServiceToken, slugHeader string) (*Tenant, error) {
	if tok.TenantID != nil {
		return repo.ByID(*tok.TenantID)
	}
	slug := strings.TrimSpace(slugHeader)
	if slug == "" {
		return nil, ErrNotFound
	}
	return repo.BySlug(slug)
}
