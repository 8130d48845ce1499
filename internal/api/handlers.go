package api

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/doet/powermap/internal/feature"
	"github.com/doet/powermap/internal/logger"
	"github.com/doet/powermap/internal/powermap"
	"github.com/doet/powermap/internal/store"
	"github.com/doet/powermap/internal/utils"
)

// projectContext resolves {project} or answers 404.
func (s *Service) projectContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := s.projects.Project(chi.URLParam(r, "project"))
		if err != nil {
			http.Error(w, "Project not found", http.StatusNotFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(utils.WithProject(r.Context(), p)))
	})
}

// grid builds or fetches the grid for the request, honouring time_end.
// It writes the error response itself and returns nil on failure.
func (s *Service) grid(w http.ResponseWriter, r *http.Request) *powermap.Grid {
	p, ok := utils.GetProjectFromContext(r.Context())
	if !ok {
		http.Error(w, "Project not found", http.StatusNotFound)
		return nil
	}
	timeEnd, err := queryTime(r, "time_end")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	start := time.Now()
	g, err := s.builder.Grid(r.Context(), p, timeEnd)
	if err != nil {
		s.logger.Error("grid build failed", "project", p.Name, "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, powermap.ErrDuplicateArea) {
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, "Unable to build power grid: "+err.Error(), status)
		return nil
	}
	addServerTiming(w, "grid", time.Since(start))
	return g
}

func (s *Service) AreasGeoJSONHandler(w http.ResponseWriter, r *http.Request) {
	if g := s.grid(w, r); g != nil {
		writeGeoJSON(w, g.AreasGeoJSON())
	}
}

func (s *Service) AreasJSONHandler(w http.ResponseWriter, r *http.Request) {
	g := s.grid(w, r)
	if g == nil {
		return
	}
	infos := g.AreaInfos()
	if infos == nil {
		infos = []powermap.AreaInfo{}
	}
	writeJSON(w, infos)
}

func (s *Service) AreasCSVHandler(w http.ResponseWriter, r *http.Request) {
	if g := s.grid(w, r); g != nil {
		writeCSV(w, g.WriteAreasCSV)
	}
}

func (s *Service) GridGeoJSONHandler(w http.ResponseWriter, r *http.Request) {
	if g := s.grid(w, r); g != nil {
		writeGeoJSON(w, g.GridGeoJSON())
	}
}

// GridHandler serves the grid with its log. log_level defaults to warn.
func (s *Service) GridHandler(w http.ResponseWriter, r *http.Request) {
	g := s.grid(w, r)
	if g == nil {
		return
	}
	level := slog.LevelWarn
	if l := r.URL.Query().Get("log_level"); l != "" {
		level = logger.ParseLevel(l)
	}
	writeJSON(w, g.Document(level))
}

func (s *Service) GridCoverageHandler(w http.ResponseWriter, r *http.Request) {
	g := s.grid(w, r)
	if g == nil {
		return
	}
	fc, err := g.CoverageGeoJSON(0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeGeoJSON(w, fc)
}

func (s *Service) GridCablesCSVHandler(w http.ResponseWriter, r *http.Request) {
	g := s.grid(w, r)
	if g == nil {
		return
	}
	includeNative := queryBool(r, "include_native")
	writeCSV(w, func(b io.Writer) error { return g.WriteCablesCSV(b, includeNative) })
}

func (s *Service) GridPDUsCSVHandler(w http.ResponseWriter, r *http.Request) {
	if g := s.grid(w, r); g != nil {
		writeCSV(w, g.WritePDUCountsCSV)
	}
}

func (s *Service) PlacementGeoJSONHandler(w http.ResponseWriter, r *http.Request) {
	if g := s.grid(w, r); g != nil {
		writeGeoJSON(w, g.PlacementGeoJSON())
	}
}

func writeCSV(w http.ResponseWriter, fill func(io.Writer) error) {
	var b bytes.Buffer
	if err := fill(&b); err != nil {
		http.Error(w, "Failed to write CSV", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Write(b.Bytes())
}

// collection opens {collection} of the request project or answers 404.
func (s *Service) collection(w http.ResponseWriter, r *http.Request) store.Collection {
	p, ok := utils.GetProjectFromContext(r.Context())
	if !ok {
		http.Error(w, "Project not found", http.StatusNotFound)
		return nil
	}
	c, err := s.store.Collection(r.Context(), p.Name, chi.URLParam(r, "collection"), false)
	if errors.Is(err, store.ErrCollectionNotFound) {
		http.Error(w, "Collection not found", http.StatusNotFound)
		return nil
	}
	if err != nil {
		http.Error(w, "Store error: "+err.Error(), http.StatusInternalServerError)
		return nil
	}
	return c
}

func (s *Service) CollectionsHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := utils.GetProjectFromContext(r.Context())
	infos, err := s.store.Collections(r.Context(), p.Name)
	if err != nil {
		http.Error(w, "Store error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	out := make(map[string]store.Info, len(infos))
	for _, i := range infos {
		out[i.Name] = i
	}
	writeJSON(w, out)
}

// ItemsGeoJSONHandler serves the last values within time_start and time_end.
func (s *Service) ItemsGeoJSONHandler(w http.ResponseWriter, r *http.Request) {
	c := s.collection(w, r)
	if c == nil {
		return
	}
	var bounds store.Bounds
	var err error
	if bounds.Start, err = queryTime(r, "time_start"); err == nil {
		bounds.End, err = queryTime(r, "time_end")
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	items, err := c.AllLastValues(r.Context(), bounds)
	if err != nil {
		http.Error(w, "Store error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	data, err := feature.EncodeCollection(items)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Write(data)
}

func (s *Service) RevisionsHandler(w http.ResponseWriter, r *http.Request) {
	c := s.collection(w, r)
	if c == nil {
		return
	}
	h, err := c.AllRevisions(r.Context(), queryBool(r, "include_deleted"))
	if err != nil {
		http.Error(w, "Store error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, h)
}

func (s *Service) ItemRevisionsHandler(w http.ResponseWriter, r *http.Request) {
	c := s.collection(w, r)
	if c == nil {
		return
	}
	revs, err := c.ItemRevisions(r.Context(), chi.URLParam(r, "item"), true)
	if err != nil {
		http.Error(w, "Store error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if len(revs) == 0 {
		http.Error(w, "Item not found", http.StatusNotFound)
		return
	}
	writeJSON(w, revs)
}
