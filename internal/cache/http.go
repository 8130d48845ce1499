package cache

import (
	"bytes"
	"log/slog"
	"net/http"
	"time"

	"github.com/doet/powermap/internal/metrics"
)

type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *recorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Middleware serves repeated GET requests from c for ttl. Only 200 responses
// are stored, keyed by path and query. Cache failures are logged and the
// request is served uncached.
func Middleware(c Cache, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if c == nil || ttl <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}
			key := r.URL.RequestURI()
			if b, ok, err := c.Get(r.Context(), key); err != nil {
				slog.Warn("cache get failed", "backend", c.Name(), "error", err)
			} else if ok {
				if ct, body, ok := decode(b); ok {
					metrics.CacheHitsTotal.WithLabelValues(c.Name()).Inc()
					w.Header().Set("Content-Type", ct)
					w.Header().Set("X-Cache", "HIT")
					w.Write(body)
					return
				}
			}
			metrics.CacheMissesTotal.WithLabelValues(c.Name()).Inc()

			w.Header().Set("X-Cache", "MISS")
			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			if rec.status != http.StatusOK {
				return
			}
			if err := c.Set(r.Context(), key, encode(w.Header().Get("Content-Type"), rec.body.Bytes()), ttl); err != nil {
				slog.Warn("cache set failed", "backend", c.Name(), "error", err)
			}
		})
	}
}

// encode prefixes the body with its content type and a newline.
func encode(contentType string, body []byte) []byte {
	out := make([]byte, 0, len(contentType)+1+len(body))
	out = append(out, contentType...)
	out = append(out, '\n')
	return append(out, body...)
}

func decode(b []byte) (string, []byte, bool) {
	i := bytes.IndexByte(b, '\n')
	if i < 0 {
		return "", nil, false
	}
	return string(b[:i]), b[i+1:], true
}
