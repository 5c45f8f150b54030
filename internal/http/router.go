package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"

	"github.com/nyroxsystems-boop/autoteile-assistent/internal/auth"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/config"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/documents"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/http/handler"
	mw "github.com/nyroxsystems-boop/autoteile-assistent/internal/http/middleware"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/jobs"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/orders"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/tenant"
)

// Deps carries the wired services the router exposes.
type Deps struct {
	DB     *gorm.DB
	JWT    *auth.JWT
	Orders *orders.Service
	Jobs   *jobs.Repo
	Docs   *documents.Pipeline
}

func NewRouter(cfg config.Config, d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	tenants := &tenant.Repo{DB: d.DB}

	ah := &handler.AuthHandler{DB: d.DB, JWT: d.JWT, Tenants: tenants}
	r.Post("/auth/register", ah.Register)
	r.Post("/auth/login", ah.Login)

	oh := &handler.OrderHandler{DB: d.DB, Orders: d.Orders, Jobs: d.Jobs, Docs: d.Docs}
	dh := &handler.DocumentHandler{DB: d.DB, Orders: d.Orders, Jobs: d.Jobs, Docs: d.Docs}
	jh := &handler.JobHandler{Jobs: d.Jobs}

	r.Route("/api/ext", func(r chi.Router) {
		r.Use(tenant.Require(tenants, d.JWT))

		r.Put("/orders/{id}", oh.Upsert)
		r.Get("/orders/{id}", oh.Get)

		r.Post("/orders/{id}/documents", dh.Create)
		r.Get("/documents/{id}/pdf", dh.Download)

		r.Get("/jobs/{id}", jh.Get)
	})

	return r
}
