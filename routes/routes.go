package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/Dosada05/esports-arena/handlers"
	"github.com/Dosada05/esports-arena/middleware"
)

func InitRoutes(
	auth *middleware.Authenticator,
	tournamentHandler *handlers.TournamentHandler,
	registrationHandler *handlers.RegistrationHandler,
	matchHandler *handlers.MatchHandler,
	websocketHandler *handlers.WebsocketHandler,
) *chi.Mux {
	router := chi.NewRouter()

	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/swagger/*", httpSwagger.WrapHandler)

	router.Route("/tournaments", func(r chi.Router) {
		r.Get("/", tournamentHandler.ListHandler)
		r.Get("/{tournamentID}", tournamentHandler.GetByIDHandler)
		r.Get("/{tournamentID}/bracket", tournamentHandler.GetBracketHandler)
		r.Get("/{tournamentID}/matches", matchHandler.ListHandler)
		r.Get("/{tournamentID}/ws", websocketHandler.SubscribeHandler)

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)

			r.Post("/{tournamentID}/participants", registrationHandler.RegisterHandler)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Authorize(middleware.RoleAdmin))

				r.Post("/", tournamentHandler.CreateHandler)
				r.Put("/{tournamentID}", tournamentHandler.UpdateHandler)
				r.Patch("/{tournamentID}/status", tournamentHandler.StatusHandler)
				r.Post("/{tournamentID}/bracket", tournamentHandler.BuildBracketHandler)
				r.Post("/{tournamentID}/payouts", tournamentHandler.CommitPayoutsHandler)
				r.Post("/{tournamentID}/banner", tournamentHandler.UploadBannerHandler)
			})
		})
	})

	router.Route("/participants", func(r chi.Router) {
		r.Use(auth.Authenticate)

		r.Post("/{participantID}/check-in", registrationHandler.CheckInHandler)
		r.Post("/{participantID}/claim", registrationHandler.ClaimPrizeHandler)
		r.Post("/{participantID}/screenshot", registrationHandler.ScreenshotHandler)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authorize(middleware.RoleAdmin))
			r.Post("/{participantID}/disqualify", registrationHandler.DisqualifyHandler)
		})
	})

	router.Route("/matches", func(r chi.Router) {
		r.Get("/{matchID}", matchHandler.GetHandler)

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)

			r.Post("/{matchID}/start", matchHandler.StartHandler)
			r.Post("/{matchID}/result", matchHandler.ReportResultHandler)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Authorize(middleware.RoleAdmin))
				r.Post("/{matchID}/override", matchHandler.OverrideResultHandler)
				r.Post("/{matchID}/cancel", matchHandler.CancelHandler)
			})
		})
	})

	return router
}
