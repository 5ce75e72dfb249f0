package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"flux/internal/backend"
	"flux/internal/config"
	"flux/internal/hub"
	"flux/internal/jwt"
	"flux/internal/models"
	"flux/internal/observability"
	"flux/internal/rabbitmq"
)

// Sessions is the auth provider, plus issuing a fresh token for a verified user.
type Sessions interface {
	backend.Auth
	Issue(user models.User, remember bool) (backend.Session, error)
}

type Handlers struct {
	cfg    config.Config
	auth   Sessions
	tokens *jwt.Issuer
	hub    *hub.Hub
	audit  *rabbitmq.Audit
	sugar  *zap.SugaredLogger
}

func New(cfg config.Config, auth Sessions, tokens *jwt.Issuer, hub *hub.Hub, audit *rabbitmq.Audit, sugar *zap.SugaredLogger) *Handlers {
	return &Handlers{cfg: cfg, auth: auth, tokens: tokens, hub: hub, audit: audit, sugar: sugar}
}

func (h *Handlers) Router() http.Handler {
	r := chi.NewRouter()
	if h.cfg.Cors {
		r.Use(AllowCors)
	}
	r.Use(middleware.RequestID)
	if h.cfg.PrintHttpRequests {
		r.Use(middleware.Logger)
	}

	r.Use(middleware.Recoverer)
	r.Use(observability.HTTPMetricsMiddleware)

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Timeout(60 * time.Second))
		api.NotFound(http.NotFound)

		api.Route("/auth", func(r chi.Router) {
			r.Post("/login", h.Login)
			r.Post("/register", h.Register)
			r.Post("/logout", h.Logout)
			r.With(h.UserVerifier).Get("/me", h.Me)
		})

		api.Route("/channel", func(r chi.Router) {
			r.Use(h.UserVerifier, h.SessionVerifier)
			r.Post("/create", h.CreateChannel)
			r.Post("/select", h.SelectChannel)
		})

		api.Route("/message", func(r chi.Router) {
			r.Use(h.UserVerifier, h.SessionVerifier)
			r.Post("/send", h.SendMessage)
		})

		api.Route("/preferences", func(r chi.Router) {
			r.Use(h.UserVerifier, h.SessionVerifier)
			r.Get("/", h.GetPreferences)
			r.Post("/update", h.UpdatePreferences)
			r.Post("/prefix", h.EditPrefix)
			r.Post("/save", h.SavePreferences)
			r.Post("/emoji", h.UploadEmoji)
		})

		api.With(h.UserVerifier, h.SessionVerifier).Post("/navigate", h.Navigate)
	})

	r.Handle("/metrics", observability.Handler())
	r.Handle("/static/*", staticFiles())

	var websocketPath string

	if h.cfg.BehindNginx {
		websocketPath = "/ws/"
	} else {
		websocketPath = "/ws"
		if !h.cfg.UsesS3() {
			r.Handle("/cdn/*", http.StripPrefix("/cdn/", http.FileServer(http.Dir(h.cfg.UploadDir))))
		}
	}

	r.With(h.UserVerifier).Get(websocketPath, h.HandleWebSocket)

	r.Get("/", h.Page)
	r.Get("/settings", h.Page)
	r.Get("/settings/", h.Page)
	r.NotFound(RedirectHome)

	return r
}

func Serve(cfg config.Config, handler http.Handler) error {
	if cfg.IsHttps() {
		return http.ListenAndServeTLS(cfg.ListenAddress(), cfg.TlsCert, cfg.TlsKey, handler)
	}
	return http.ListenAndServe(cfg.ListenAddress(), handler)
}
