// Package webhooks lets an upstream map service trigger a project import.
package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/doet/powermap/internal/config"
	"github.com/doet/powermap/internal/importer"
	"github.com/doet/powermap/internal/store"
)

const (
	SignatureHeader = "X-Powermap-Signature"
	DeliveryHeader  = "X-Powermap-Delivery"

	defaultUser = "webhook"
)

// ImportRequest is the optional body of an import hook. Empty Collections
// runs every importer of the project.
type ImportRequest struct {
	Collections []string `json:"collections"`
	User        string   `json:"user"`
}

type importResponse struct {
	OK      bool     `json:"ok"`
	Results []string `json:"results"`
	Error   string   `json:"error,omitempty"`
}

// Hook runs imports on signed requests, one at a time per project.
type Hook struct {
	projects config.Projects
	store    store.Store
	secret   string
	logger   *slog.Logger

	mu      sync.Mutex
	running map[string]bool
}

func New(projects config.Projects, st store.Store, secret string, logger *slog.Logger) *Hook {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hook{
		projects: projects,
		store:    st,
		secret:   secret,
		logger:   logger.With("component", "webhook"),
		running:  map[string]bool{},
	}
}

func (h *Hook) SetupRoutes() http.Handler {
	r := chi.NewRouter()
	r.Post("/import/{project}", h.ImportHandler)
	return r
}

func (h *Hook) ImportHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MiB
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "payload too large or unreadable", http.StatusRequestEntityTooLarge)
		return
	}
	defer r.Body.Close()

	did := r.Header.Get(DeliveryHeader)
	if did == "" {
		http.Error(w, "missing delivery id", http.StatusBadRequest)
		return
	}
	if h.secret == "" {
		http.Error(w, "server misconfigured", http.StatusInternalServerError)
		return
	}
	if !Verify(r.Header.Get(SignatureHeader), did, raw, h.secret) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var req ImportRequest
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
	}
	if req.User == "" {
		req.User = defaultUser
	}

	p, err := h.projects.Project(chi.URLParam(r, "project"))
	if err != nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}
	if !h.acquire(p.Name) {
		http.Error(w, "import already running", http.StatusConflict)
		return
	}
	defer h.release(p.Name)

	log := h.logger.With("project", p.Name, "delivery", did)
	importers, err := importer.ForProject(p, h.projects.DataDir, h.store, log)
	if err != nil {
		http.Error(w, "Invalid project: "+err.Error(), http.StatusInternalServerError)
		return
	}
	ic := importer.Context{Project: p.Name, User: req.User, Store: h.store, Logger: log}
	results, err := importer.Run(r.Context(), ic, importers, req.Collections...)

	resp := importResponse{OK: err == nil, Results: make([]string, 0, len(results))}
	for _, res := range results {
		resp.Results = append(resp.Results, res.String())
	}
	status := http.StatusOK
	if err != nil {
		log.Error("import failed", "error", err)
		resp.Error = err.Error()
		status = http.StatusBadGateway
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func (h *Hook) acquire(project string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running[project] {
		return false
	}
	h.running[project] = true
	return true
}

func (h *Hook) release(project string) {
	h.mu.Lock()
	delete(h.running, project)
	h.mu.Unlock()
}

// Sign returns the signature header value for a delivery.
func Sign(did string, raw []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(raw)
	mac.Write([]byte(did))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks sig against the HMAC-SHA256 of the body followed by the
// delivery id.
func Verify(sig, did string, raw []byte, secret string) bool {
	if !strings.HasPrefix(sig, "sha256=") {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(Sign(did, raw, secret)))
}
