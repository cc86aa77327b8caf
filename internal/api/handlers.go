package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"github.com/oriys/satchel/internal/domain"
	"github.com/oriys/satchel/internal/logging"
)

// Handler serves the allocator's HTTP surface.
type Handler struct {
	cfg ServerConfig
}

// RegisterRoutes registers every route on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /generate-sets", h.GenerateSets)
	mux.HandleFunc("POST /allocate", h.Allocate)
	mux.Handle("POST /merge", gzhttp.GzipHandler(http.HandlerFunc(h.Merge)))

	mux.HandleFunc("POST /admin/pool/{category}/drain", h.DrainPool)
	mux.HandleFunc("POST /admin/users/{id}/evict", h.EvictUser)

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /health/ready", h.HealthReady)

	if h.cfg.Metrics != nil {
		mux.Handle("GET /metrics", h.cfg.Metrics)
	}
}

// GenerateSets handles POST /generate-sets. The builder run is accepted and
// executed asynchronously (spec.md §6); the response only confirms the
// params it will run with. A field omitted from the body falls back to
// BuilderDefaults; an explicit value must be positive.
func (h *Handler) GenerateSets(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NumSetsPerCategory *int `json:"numSetsPerCategory"`
		ItemsPerSet        *int `json:"itemsPerSet"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	numSetsPerCategory := h.cfg.BuilderDefaults.NumSetsPerCategory
	if req.NumSetsPerCategory != nil {
		numSetsPerCategory = *req.NumSetsPerCategory
	}
	itemsPerSet := h.cfg.BuilderDefaults.ItemsPerSet
	if req.ItemsPerSet != nil {
		itemsPerSet = *req.ItemsPerSet
	}
	if numSetsPerCategory <= 0 || itemsPerSet <= 0 {
		writeError(w, http.StatusBadRequest, "numSetsPerCategory and itemsPerSet must be positive")
		return
	}

	go func(numSetsPerCategory, itemsPerSet int) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		result, err := h.cfg.Builder.Build(ctx, numSetsPerCategory, itemsPerSet)
		if err != nil {
			logging.Op().Error("generate-sets run failed", "error", err)
			return
		}
		for categoryID, buildErr := range result.Errors {
			logging.Op().Error("generate-sets category failed", "category", categoryID, "error", buildErr)
		}
	}(numSetsPerCategory, itemsPerSet)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted": true,
		"params": map[string]int{
			"numSetsPerCategory": numSetsPerCategory,
			"itemsPerSet":        itemsPerSet,
		},
	})
}

// Allocate handles POST /allocate.
func (h *Handler) Allocate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID      string   `json:"userId"`
		CategoryIDs []string `json:"categoryIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if len(req.CategoryIDs) == 0 {
		writeError(w, http.StatusBadRequest, "categoryIds must be a non-empty array")
		return
	}
	for _, categoryID := range req.CategoryIDs {
		if !h.cfg.Categories.Known(categoryID) {
			writeError(w, http.StatusBadRequest, "unknown category: "+categoryID)
			return
		}
	}

	result := h.cfg.Allocator.AllocateBatch(r.Context(), req.UserID, req.CategoryIDs)

	writeJSON(w, http.StatusOK, map[string]any{
		"userId":     result.UserID,
		"successful": result.Successful,
		"failed":     result.Failed,
		"summary": map[string]int{
			"requested":  len(req.CategoryIDs),
			"successful": len(result.Successful),
			"failed":     len(result.Failed),
		},
	})
}

// mergedCategory is one category's entry in the merge response.
type mergedCategory struct {
	SetID     string        `json:"setId"`
	ItemCount int           `json:"itemCount"`
	Items     []domain.Item `json:"items"`
}

// Merge handles POST /merge: it allocates the next set per category through
// AllocateBatch, then joins each allocated set with the catalog and content
// store to materialize the content (spec.md §4's "merge surface", outside the
// core). A category the allocator could not serve is reported under failed.
func (h *Handler) Merge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID      string   `json:"userId"`
		CategoryIDs []string `json:"categoryIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if len(req.CategoryIDs) == 0 {
		writeError(w, http.StatusBadRequest, "categoryIds must be a non-empty array")
		return
	}

	ctx := r.Context()
	result := h.cfg.Allocator.AllocateBatch(ctx, req.UserID, req.CategoryIDs)

	categories := map[string]mergedCategory{}
	var allItems []domain.Item
	failed := map[string]string{}
	for categoryID, reason := range result.Failed {
		failed[categoryID] = reason
	}

	for categoryID, setID := range result.Successful {
		set, found, err := h.cfg.Catalog.Get(ctx, setID)
		if err != nil {
			failed[categoryID] = err.Error()
			continue
		}
		if !found {
			failed[categoryID] = domain.ErrInvariantViolation.Error()
			continue
		}
		items, err := h.cfg.Content.GetBatch(ctx, set.Refs)
		if err != nil {
			failed[categoryID] = err.Error()
			continue
		}
		categories[categoryID] = mergedCategory{SetID: setID, ItemCount: len(items), Items: items}
		allItems = append(allItems, items...)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"userId":     req.UserID,
		"categories": categories,
		"failed":     failed,
		"allItems":   allItems,
	})
}

// DrainPool handles POST /admin/pool/{category}/drain — the administrative
// drain spec.md §3 references without naming an interface. It empties the
// whole pool with Pool.Drop; DequeueOne is not exposed here.
func (h *Handler) DrainPool(w http.ResponseWriter, r *http.Request) {
	categoryID := r.PathValue("category")
	if !h.cfg.Categories.Known(categoryID) {
		writeError(w, http.StatusBadRequest, "unknown category: "+categoryID)
		return
	}
	if err := h.cfg.Pool.Drop(r.Context(), categoryID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"category": categoryID, "status": "drained"})
}

// EvictUser handles POST /admin/users/{id}/evict, the standalone evictUser(u)
// operation (spec.md §4.4).
func (h *Handler) EvictUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}
	if err := h.cfg.Allocator.EvictUser(r.Context(), userID); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"userId": userID, "status": "evicted"})
}

// Health handles GET /health — detailed component status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := map[string]bool{}
	status := "ok"
	if h.cfg.Postgres != nil {
		ok := h.cfg.Postgres.Ping(ctx) == nil
		components["postgres"] = ok
		if !ok {
			status = "degraded"
		}
	}
	if h.cfg.Redis != nil {
		ok := h.cfg.Redis.Ping(ctx) == nil
		components["redis"] = ok
		if !ok {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"components": components,
	})
}

// HealthReady handles GET /health/ready — a Kubernetes readiness probe.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.cfg.Postgres != nil {
		if err := h.cfg.Postgres.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"error":  "postgres unavailable: " + err.Error(),
			})
			return
		}
	}
	if h.cfg.Redis != nil {
		if err := h.cfg.Redis.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"error":  "redis unavailable: " + err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
