package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mkaryagin/scrim-system/handlers"
)

func SetupRoutes(
	router *chi.Mux,
	lifecycleHandler *handlers.LifecycleHandler,
	scoreHandler *handlers.ScoreHandler,
	queueHandler *handlers.QueueHandler,
	signupHandler *handlers.SignupHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Route("/matches", func(r chi.Router) {
		r.Get("/{matchID}", lifecycleHandler.GetMatchHandler)
		r.Post("/{matchID}/status", lifecycleHandler.TransitionMatchHandler)
		r.Post("/{matchID}/games/{gameNumber}/result", scoreHandler.ReportGameResultHandler)
	})

	router.Route("/tournaments", func(r chi.Router) {
		r.Get("/{tournamentID}/bracket", lifecycleHandler.GetBracketHandler)
		r.Post("/{tournamentID}/status", lifecycleHandler.TransitionTournamentHandler)
		r.Post("/{tournamentID}/signups", signupHandler.AddSignupHandler)
		r.Delete("/{tournamentID}/signups", signupHandler.RemoveSignupHandler)
	})

	router.Get("/games/{gameID}/signup-form", signupHandler.GetSignupFormHandler)

	router.Post("/queues/{queue}/items/{itemID}/requeue", queueHandler.RequeueHandler)

	router.Get("/ws/tournaments/{tournamentID}", webSocketHandler.ServeWs)
}
