package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mizuki-dev/guildgate/internal/http/handler"
	"github.com/mizuki-dev/guildgate/internal/http/middleware"
	"github.com/mizuki-dev/guildgate/internal/http/response"
)

type Dependencies struct {
	CallbackHandler      *handler.CallbackHandler
	SessionHandler       *handler.SessionHandler
	SettingsHandler      *handler.SettingsHandler
	DispatchHandler      *handler.DispatchHandler
	OperatorToken        string
	PublicDir            string
	CallbackRateLimitRPM int
	APIRateLimitRPM      int
	EnableOTelHTTP       bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.StructuredRequestLogger)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
	})

	callbackLimiter := middleware.NewRateLimiter(dep.CallbackRateLimitRPM, time.Minute)
	r.With(callbackLimiter.Middleware()).Get("/callback", dep.CallbackHandler.HandleCallback)

	apiLimiter := middleware.NewRateLimiter(dep.APIRateLimitRPM, time.Minute)
	r.Route("/api", func(api chi.Router) {
		api.Use(apiLimiter.Middleware())
		api.Use(middleware.OperatorAuth(dep.OperatorToken))

		api.Post("/sessions", dep.SessionHandler.CreateSession)
		api.Post("/sessions/{token}/announcement", dep.SessionHandler.AttachAnnouncement)
		api.Delete("/sessions/{token}", dep.SessionHandler.DeleteSession)

		api.Get("/guilds/{guildID}/settings", dep.SettingsHandler.GetSettings)
		api.Put("/guilds/{guildID}/settings", dep.SettingsHandler.PutSettings)

		api.Post("/guilds/{guildID}/dispatch", dep.DispatchHandler.DispatchJoin)
	})

	if dep.PublicDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(dep.PublicDir)))
	}

	if dep.EnableOTelHTTP {
		return otelhttp.NewHandler(r, "guildgate.http")
	}
	return r
}
