package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/maxpert/ringfs/cluster"
	"github.com/rs/zerolog/log"
)

// NewRouter builds the node's HTTP surface. members and metrics are optional.
func NewRouter(handlers *AdminHandlers, members *cluster.ClusterManager, metrics http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Route("/files", func(r chi.Router) {
		r.Use(AuthMiddleware)
		r.Get("/", handlers.handleListFiles)
		r.Get("/{name}", handlers.handleReadFile)
		r.Put("/{name}", handlers.handleWriteFile)
		r.Get("/{name}/replicas", handlers.handleFileReplicas)
		r.Get("/{name}/changes", handlers.handleFileChanges)
		r.Post("/{name}/track", handlers.handleTrackFile)
		r.Delete("/{name}/track", handlers.handleUntrackFile)
	})

	r.Route("/node", func(r chi.Router) {
		r.Use(AuthMiddleware)
		r.Get("/replicas", handlers.handleNodeReplicas)
	})

	if members != nil {
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware)
			r.Mount("/cluster", members.Routes())
		})
	}

	if metrics != nil {
		r.Handle("/metrics", metrics)
		log.Info().Msg("Metrics endpoint enabled at /metrics")
	}

	log.Info().Msg("Admin endpoints enabled at /files, /node and /cluster")
	return r
}
