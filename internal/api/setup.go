// Package api serves built power grids and the revision store over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/doet/powermap/internal/cache"
	"github.com/doet/powermap/internal/config"
	"github.com/doet/powermap/internal/store"
)

// Service holds what the handlers share.
type Service struct {
	store    store.Store
	projects config.Projects
	builder  *Builder
	cache    cache.Cache
	cacheTTL time.Duration
	logger   *slog.Logger
}

// New wires a service. A nil cache disables response caching; built grids
// are still kept for cacheTTL.
func New(st store.Store, projects config.Projects, c cache.Cache, cacheTTL time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    st,
		projects: projects,
		builder:  NewBuilder(st, cacheTTL, logger),
		cache:    c,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

func (s *Service) SetupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.ProjectsHandler)
	r.Route("/{project}", func(r chi.Router) {
		r.Use(s.projectContext)

		r.Route("/power", func(r chi.Router) {
			r.Use(cache.Middleware(s.cache, s.cacheTTL))
			r.Get("/areas.geojson", s.AreasGeoJSONHandler)
			r.Get("/areas.json", s.AreasJSONHandler)
			r.Get("/areas.csv", s.AreasCSVHandler)
			r.Get("/grid", s.GridHandler)
			r.Get("/grid.geojson", s.GridGeoJSONHandler)
			r.Get("/grid_coverage.geojson", s.GridCoverageHandler)
			r.Get("/grid_cables.csv", s.GridCablesCSVHandler)
			r.Get("/grid_pdus.csv", s.GridPDUsCSVHandler)
			r.Get("/placement_entities.geojson", s.PlacementGeoJSONHandler)
		})

		r.Route("/data", func(r chi.Router) {
			r.Get("/", s.CollectionsHandler)
			r.Get("/{collection}/items.geojson", s.ItemsGeoJSONHandler)
			r.Get("/{collection}/revisions", s.RevisionsHandler)
			r.Get("/{collection}/items/{item}/revisions", s.ItemRevisionsHandler)
		})
	})

	return r
}

func (s *Service) ProjectsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.projects.Names())
}
