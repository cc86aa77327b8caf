package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oriys/satchel/internal/allocator"
	"github.com/oriys/satchel/internal/builder"
	"github.com/oriys/satchel/internal/domain"
	"github.com/oriys/satchel/internal/eviction"
	"github.com/oriys/satchel/internal/ledger"
	"github.com/oriys/satchel/internal/pool"
	"github.com/oriys/satchel/internal/store"
)

var errUnreachable = errors.New("unreachable")

func newTestHandler(t *testing.T) (*Handler, *store.Memory, pool.Index) {
	t.Helper()
	content := store.NewMemory()
	idx := pool.NewMemoryIndex()
	led := ledger.NewMemoryStore()
	categories := domain.CategoryTable{Categories: []domain.Category{{ID: "cat-X", DisplayName: "X"}}}

	alloc := allocator.New(idx, led, eviction.DefaultConfig())
	b := builder.New(content, content, idx, store.NewMemoryLocker(), categories)

	cfg := ServerConfig{
		Allocator:       alloc,
		Builder:         b,
		Pool:            idx,
		Content:         content,
		Catalog:         content,
		Categories:      categories,
		BuilderDefaults: BuilderDefaults{NumSetsPerCategory: 3, ItemsPerSet: 5},
	}
	return &Handler{cfg: cfg}, content, idx
}

func doJSON(t *testing.T, h http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(buf))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestAllocateRejectsUnknownCategory(t *testing.T) {
	h, _, _ := newTestHandler(t)
	rec := doJSON(t, h.Allocate, map[string]any{
		"userId":      "u1",
		"categoryIds": []string{"cat-unknown"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAllocateRejectsEmptyCategoryList(t *testing.T) {
	h, _, _ := newTestHandler(t)
	rec := doJSON(t, h.Allocate, map[string]any{
		"userId":      "u1",
		"categoryIds": []string{},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAllocateNoSetsAvailableIsReportedAsFailed(t *testing.T) {
	h, _, _ := newTestHandler(t)
	rec := doJSON(t, h.Allocate, map[string]any{
		"userId":      "u1",
		"categoryIds": []string{"cat-X"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Successful map[string]string `json:"successful"`
		Failed     map[string]string `json:"failed"`
		Summary    struct{ Requested, Successful, Failed int }
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(resp.Successful) != 0 {
		t.Fatalf("expected no successful categories, got %v", resp.Successful)
	}
	if _, ok := resp.Failed["cat-X"]; !ok {
		t.Fatalf("expected cat-X in failed, got %v", resp.Failed)
	}
}

func TestAllocateReturnsSetFromPool(t *testing.T) {
	h, _, idx := newTestHandler(t)
	if err := idx.Enqueue(context.Background(), "cat-X", []string{"set-1"}); err != nil {
		t.Fatalf("seed pool: %v", err)
	}
	rec := doJSON(t, h.Allocate, map[string]any{
		"userId":      "u1",
		"categoryIds": []string{"cat-X"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Successful map[string]string `json:"successful"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Successful["cat-X"] != "set-1" {
		t.Fatalf("successful[cat-X] = %q, want set-1", resp.Successful["cat-X"])
	}
}

func TestGenerateSetsRejectsNonPositiveParams(t *testing.T) {
	h, _, _ := newTestHandler(t)
	rec := doJSON(t, h.GenerateSets, map[string]any{
		"numSetsPerCategory": 0,
		"itemsPerSet":        0,
	})
	// Both params are explicitly 0; BuilderDefaults only fills fields the
	// body omits, so the request fails validation.
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", rec.Code, rec.Body.String())
	}
}

func TestGenerateSetsAcceptsAndEchoesDefaults(t *testing.T) {
	h, _, _ := newTestHandler(t)
	rec := doJSON(t, h.GenerateSets, map[string]any{})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Accepted bool
		Params   struct{ NumSetsPerCategory, ItemsPerSet int }
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Accepted {
		t.Fatalf("expected accepted=true")
	}
	if resp.Params.NumSetsPerCategory != 3 || resp.Params.ItemsPerSet != 5 {
		t.Fatalf("params = %+v, want defaults {3 5}", resp.Params)
	}
}

func TestMergeReturnsItemsForAllocatedSet(t *testing.T) {
	h, content, idx := newTestHandler(t)
	ctx := context.Background()
	if _, _, err := content.PutBatch(ctx, []domain.Item{
		{ID: "i1", Hash: "h1", CategoryID: "cat-X"},
		{ID: "i2", Hash: "h2", CategoryID: "cat-X"},
	}); err != nil {
		t.Fatalf("seed content: %v", err)
	}
	if err := content.Put(ctx, domain.Set{
		SetID:      "set-1",
		CategoryID: "cat-X",
		Refs:       []domain.ItemRef{{ID: "i1", Hash: "h1"}, {ID: "i2", Hash: "h2"}},
		Watermark:  "i2",
	}); err != nil {
		t.Fatalf("seed set: %v", err)
	}
	if err := idx.Enqueue(ctx, "cat-X", []string{"set-1"}); err != nil {
		t.Fatalf("seed pool: %v", err)
	}

	rec := doJSON(t, h.Merge, map[string]any{
		"userId":      "u1",
		"categoryIds": []string{"cat-X"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Categories map[string]struct {
			SetID     string
			ItemCount int
		}
		AllItems []domain.Item `json:"allItems"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Categories["cat-X"].SetID != "set-1" || resp.Categories["cat-X"].ItemCount != 2 {
		t.Fatalf("categories[cat-X] = %+v", resp.Categories["cat-X"])
	}
	if len(resp.AllItems) != 2 {
		t.Fatalf("allItems length = %d, want 2", len(resp.AllItems))
	}
}

func TestDrainPoolRejectsUnknownCategory(t *testing.T) {
	h, _, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/admin/pool/cat-unknown/drain", nil)
	req.SetPathValue("category", "cat-unknown")
	rec := httptest.NewRecorder()
	h.DrainPool(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDrainPoolEmptiesQueue(t *testing.T) {
	h, _, idx := newTestHandler(t)
	ctx := context.Background()
	if err := idx.Enqueue(ctx, "cat-X", []string{"set-1"}); err != nil {
		t.Fatalf("seed pool: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/admin/pool/cat-X/drain", nil)
	req.SetPathValue("category", "cat-X")
	rec := httptest.NewRecorder()
	h.DrainPool(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	ids, err := idx.PeekAll(ctx, "cat-X")
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected drained pool, got %v", ids)
	}
}

func TestEvictUserRejectsMissingID(t *testing.T) {
	h, _, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/admin/users//evict", nil)
	req.SetPathValue("id", "")
	rec := httptest.NewRecorder()
	h.EvictUser(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHealthReportsOKWithNoBackendsConfigured(t *testing.T) {
	h, _, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHealthReadyFailsWhenPostgresUnreachable(t *testing.T) {
	h, _, _ := newTestHandler(t)
	h.cfg.Postgres = PingerFunc(func(ctx context.Context) error {
		return errUnreachable
	})
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	h.HealthReady(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
