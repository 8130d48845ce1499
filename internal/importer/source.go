package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/doet/powermap/internal/feature"
	"github.com/doet/powermap/internal/store"
)

var (
	ErrNoLocation      = errors.New("neither url nor filename is set")
	ErrOfflineNoFile   = errors.New("filename is required when offline")
	ErrIncrementalFile = errors.New("incremental import needs a url")
)

const requestTimeout = 30 * time.Second

// LoadFromURLOrFile reads a payload from a URL, or from a file below Dir when
// offline or no URL is configured.
type LoadFromURLOrFile struct {
	URL      string
	Filename string
	Dir      string
	Offline  bool
	Client   *http.Client
}

func (l LoadFromURLOrFile) Validate() error {
	if l.URL == "" && l.Filename == "" {
		return ErrNoLocation
	}
	if l.Offline && l.Filename == "" {
		return ErrOfflineNoFile
	}
	return nil
}

func (l LoadFromURLOrFile) local() bool { return l.Offline || l.URL == "" }

// Load returns the raw payload. path and params are only allowed for URLs.
func (l LoadFromURLOrFile) Load(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	if l.local() {
		if path != "" || len(params) > 0 {
			return nil, ErrIncrementalFile
		}
		name := l.Filename
		if l.Dir != "" && !filepath.IsAbs(name) {
			name = filepath.Join(l.Dir, name)
		}
		slog.Info("Loading file", "file", name)
		return os.ReadFile(name)
	}

	full := l.URL + path
	if len(params) > 0 {
		full += "?" + params.Encode()
	}
	slog.Info("Loading URL", "url", full)
	req, err := http.NewRequestWithContext(ctx, "GET", full, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	client := l.Client
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", l.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request %s: status %d", l.URL, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// GeoJSON is a FeatureCollection source.
type GeoJSON struct {
	LoadFromURLOrFile
}

func (s GeoJSON) Features(ctx context.Context) ([]feature.Feature, error) {
	data, err := s.Load(ctx, "", nil)
	if err != nil {
		return nil, err
	}
	return feature.DecodeCollection(data)
}

// PlacementRevision is one entry of the placement API.
type PlacementRevision struct {
	ID        json.Number     `json:"id"`
	Revision  int             `json:"revision"`
	GeoJSON   json.RawMessage `json:"geoJson"`
	Timestamp string          `json:"timeStamp"`
	Deleted   bool            `json:"isDeleted"`
}

// Feature decodes the embedded GeoJSON, which the API sends either as an
// object or as a string holding one.
func (r PlacementRevision) Feature() (*feature.Feature, error) {
	raw := []byte(r.GeoJSON)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		raw = []byte(s)
	}
	var f feature.Feature
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	if f.ID == "" {
		f.ID = r.ID.String()
	}
	return &f, nil
}

// Time parses the revision timestamp. Times without a zone are in loc.
func (r PlacementRevision) Time(loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, r.Timestamp); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", r.Timestamp, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q: %w", r.Timestamp, err)
	}
	return t.UTC(), nil
}

// Placement reads placement entities from the placement API.
type Placement struct {
	LoadFromURLOrFile
	IgnoredNames []string
	// Location is the zone the API uses for times without an offset.
	Location *time.Location
}

func (p Placement) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

func (p Placement) revisions(ctx context.Context, path string, params url.Values) ([]PlacementRevision, error) {
	data, err := p.Load(ctx, path, params)
	if err != nil {
		return nil, err
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode placement revisions: %w", err)
	}
	out := make([]PlacementRevision, 0, len(raw))
	for _, item := range raw {
		var r PlacementRevision
		if err := json.Unmarshal(item, &r); err != nil {
			slog.Warn("placement revision validation failed", "error", err)
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (p Placement) ignored(f *feature.Feature) bool {
	if f == nil || f.Name() == "" {
		return true
	}
	for _, n := range p.IgnoredNames {
		if n == f.Name() {
			return true
		}
	}
	return false
}

// Features returns the current entities. Ids get an underscore prefix.
func (p Placement) Features(ctx context.Context) ([]feature.Feature, error) {
	revs, err := p.revisions(ctx, "", nil)
	if err != nil {
		return nil, err
	}
	slog.Info("Got placement entities", "count", len(revs))
	var out []feature.Feature
	for _, r := range revs {
		if r.Deleted {
			continue
		}
		f, err := r.Feature()
		if err != nil {
			return nil, fmt.Errorf("placement entity %s: %w", r.ID, err)
		}
		if p.ignored(f) {
			continue
		}
		f.ID = "_" + f.ID
		out = append(out, *f)
	}
	return out, nil
}

// RevisionsSince asks the API for revisions after since.
func (p Placement) RevisionsSince(ctx context.Context, since time.Time) ([]store.Revision, error) {
	if p.local() {
		return nil, ErrIncrementalFile
	}
	params := url.Values{}
	params.Set("startTime", since.In(p.location()).Format("2006-01-02T15:04:05.000"))
	revs, err := p.revisions(ctx, "/raw", params)
	if err != nil {
		return nil, err
	}
	slog.Info("Got new entity revisions", "count", len(revs), "since", since)
	out := make([]store.Revision, 0, len(revs))
	for _, r := range revs {
		f, err := r.Feature()
		if err == nil && f == nil && !r.Deleted {
			err = errors.New("missing geoJson")
		}
		var ts time.Time
		if err == nil {
			ts, err = r.Time(p.location())
		}
		if err != nil {
			slog.Warn("placement revision validation failed", "id", r.ID.String(), "error", err)
			continue
		}
		id := r.ID.String()
		if f != nil {
			id = f.ID
		}
		out = append(out, store.Revision{
			ItemID:    id,
			Revision:  r.Revision,
			Timestamp: ts,
			Deleted:   r.Deleted,
			Data:      f,
		})
	}
	return out, nil
}
