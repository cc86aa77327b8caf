// Package api is the HTTP surface fronting the allocation core: generate-sets,
// allocate, merge, administrative drain/evict, and health checks (spec.md
// §6 — out of the core's scope but specified at its interface).
package api

import (
	"context"
	"net/http"

	"github.com/oriys/satchel/internal/allocator"
	"github.com/oriys/satchel/internal/builder"
	"github.com/oriys/satchel/internal/domain"
	"github.com/oriys/satchel/internal/logging"
	"github.com/oriys/satchel/internal/observability"
	"github.com/oriys/satchel/internal/pool"
	"github.com/oriys/satchel/internal/store"
)

// Pinger reports whether a backing store is reachable, for /health and
// /health/ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a plain function to Pinger — for clients like
// *redis.Client whose Ping returns a *redis.StatusCmd rather than an error.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// ServerConfig contains dependencies for the HTTP server.
type ServerConfig struct {
	Allocator  *allocator.Allocator
	Builder    *builder.Builder
	Pool       pool.Index
	Content    store.ContentStore
	Catalog    store.SetCatalog
	Categories domain.CategoryTable

	// Postgres and Redis back /health and /health/ready. Either may be nil,
	// in which case that component is omitted from the health report.
	Postgres Pinger
	Redis    Pinger

	// BuilderDefaults are the numSetsPerCategory/itemsPerSet values
	// generate-sets falls back to when the request body omits them.
	BuilderDefaults BuilderDefaults

	// Metrics, if set, is mounted at GET /metrics (typically a
	// metrics.Registry's promhttp handler).
	Metrics http.Handler
}

// BuilderDefaults mirrors the request struct's optional fields: a field
// omitted from the request means "use the configured default"; an explicit
// zero is rejected, not read as "build zero sets".
type BuilderDefaults struct {
	NumSetsPerCategory int
	ItemsPerSet        int
}

// StartHTTPServer creates and starts the HTTP server fronting the allocation
// core, following the teacher's StartHTTPServer(addr, cfg) *http.Server shape.
func StartHTTPServer(addr string, cfg ServerConfig) *http.Server {
	mux := http.NewServeMux()

	h := &Handler{cfg: cfg}
	h.RegisterRoutes(mux)

	var handler http.Handler = observability.HTTPMiddleware(mux)

	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Op().Error("HTTP server error", "error", err)
		}
	}()

	return server
}
