package services

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(s *StudyService) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.Health)
		r.Post("/participants", s.CreateParticipant)
		r.Get("/participants/{participantID}", s.GetParticipant)
		r.Get("/stats", s.Stats)

		r.Post("/chat", s.Chat)
		r.Post("/exchanges", s.LogExchange)
		r.Get("/conversations/{participantID}", s.GetConversation)

		r.Route("/forms/{participantID}", func(r chi.Router) {
			r.Get("/", s.GetForm)
			r.Put("/", s.SaveFormFields)
			r.Post("/{section}", s.SaveSection)
		})
	})

	return r
}
