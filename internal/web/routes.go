package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/faceid/internal/face"
	"github.com/kozaktomas/faceid/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	identities := handlers.NewIdentitiesHandler(s.engine, s.config.MaxUploadSize, s.logger)
	recognize := handlers.NewRecognizeHandler(s.engine, s.config.MaxUploadSize, s.logger)
	health := handlers.NewHealthHandler(s.engine)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", health.Get)

		// Identities
		r.Get("/identities", identities.List)
		r.Get("/identities/{key}", identities.Get)
		r.Delete("/identities/{key}", identities.Delete)
		r.Post("/identities/{key}/faces", identities.RegisterFace)
		r.Post("/identities/{key}/embeddings", identities.RegisterEmbedding)

		// Recognition
		r.Post("/recognize", recognize.Recognize)
		r.Post("/recognize/embedding", recognize.RecognizeEmbedding)
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"status":"error","kind":"` + string(face.KindNotFound) + `","error":"no such endpoint"}`))
	})
}
