package api

import (
	_ "embed"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pstu-cpl/cpl/internal/api/handler"
	"github.com/pstu-cpl/cpl/internal/api/middleware"
	"github.com/pstu-cpl/cpl/internal/auth"
	"github.com/pstu-cpl/cpl/internal/catalog"
	"github.com/pstu-cpl/cpl/internal/testimonial"
)

// OpenAPISpec is the bundled API description.
//
//go:embed openapi.yaml
var OpenAPISpec []byte

// SessionManager hands out per-browser auth controllers and reports how
// many are live.
type SessionManager interface {
	middleware.SessionManager
	Len() int
}

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	Version      string
	DBPinger     handler.DBPinger
	Sessions     SessionManager
	Cookies      sessions.Store
	Catalog      *catalog.Service
	Testimonials testimonial.Repository
	Policy       auth.Policy
	CORSOrigins  []string
	OpenAPISpec  []byte
}

// NewRouter creates and configures a Chi router with all middleware and routes.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(chimiddleware.Logger)
	r.Use(middleware.Metrics)
	if len(deps.CORSOrigins) > 0 {
		r.Use(middleware.CORS(deps.CORSOrigins))
	}

	healthHandler := handler.NewHealthHandler(deps.DBPinger, deps.Sessions, deps.Version)
	r.Get("/health", healthHandler.ServeHTTP)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	if len(deps.OpenAPISpec) > 0 {
		openapiHandler := handler.NewOpenAPIHandler(deps.OpenAPISpec)
		r.Get("/openapi.json", openapiHandler.ServeHTTP)
		r.Get("/openapi.yaml", openapiHandler.YAML)
	}

	r.Route("/api", func(r chi.Router) {
		if deps.Catalog != nil {
			catalogHandler := handler.NewCatalogHandler(deps.Catalog)
			r.Get("/tournaments", catalogHandler.ListTournaments)
			r.Get("/tournaments/{id}", catalogHandler.GetTournament)
			r.Get("/tournaments/{tid}/matches/{mid}", catalogHandler.GetMatch)
			r.Get("/matches", catalogHandler.ListMatches)
			r.Get("/teams", catalogHandler.ListTeams)
			r.Get("/teams/{key}", catalogHandler.GetTeam)
		}

		var testimonialHandler *handler.TestimonialHandler
		if deps.Testimonials != nil {
			testimonialHandler = handler.NewTestimonialHandler(deps.Testimonials)
			r.Get("/testimonials", testimonialHandler.ListApproved)
			r.Post("/testimonials", testimonialHandler.Create)
		}

		if deps.Sessions == nil || deps.Cookies == nil {
			return
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Session(deps.Cookies, deps.Sessions))

			authHandler := handler.NewAuthHandler(deps.Policy)
			r.Route("/auth", func(r chi.Router) {
				r.Get("/me", authHandler.Me)
				r.Post("/login", authHandler.Login)
				r.Post("/register", authHandler.Register)
				r.Post("/logout", authHandler.Logout)
				r.Post("/password-reset", authHandler.RequestPasswordReset)

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireRole(deps.Policy, auth.RolePlayer, auth.RoleAdmin))
					r.Patch("/me", authHandler.Update)
					r.Post("/password", authHandler.ChangePassword)
				})
			})

			profileHandler := handler.NewProfileHandler()
			r.Get("/profiles/{id}", profileHandler.Get)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(deps.Policy, auth.RoleAdmin))

				if deps.Catalog != nil {
					adminHandler := handler.NewAdminHandler(deps.Catalog)
					r.Post("/tournaments", adminHandler.CreateTournament)
					r.Post("/teams", adminHandler.CreateTeam)
					r.Delete("/teams/{id}", adminHandler.DeleteTeam)
					r.Put("/teams/{id}/members", adminHandler.AssignPlayer)
					r.Delete("/teams/{id}/members/{profileID}", adminHandler.RemovePlayer)
					r.Post("/matches", adminHandler.CreateMatch)
					r.Patch("/matches/{id}", adminHandler.UpdateMatch)
					r.Get("/registrations", adminHandler.ListRegistrations)
				}

				if testimonialHandler != nil {
					r.Get("/testimonials", testimonialHandler.List)
					r.Post("/testimonials/{id}/approve", testimonialHandler.Approve)
					r.Delete("/testimonials/{id}", testimonialHandler.Delete)
				}
			})
		})
	})

	return r
}
