// Package domain holds the tagged records shared by the allocation core:
// items and sets from the content layer, and the per-user allocation state
// the ledger and eviction policy operate on.
//
// Records are modeled as explicit structs rather than loosely-typed maps.
// Legacy field aliases on ingested payloads (see normalize.go) are resolved
// once at ingestion time, not re-checked on every read.
package domain

import (
	"encoding/json"
	"time"
)

// Item is one unit of content, uniquely identified by (ID, Hash). Items are
// append-only: once written they are never mutated, and a duplicate-hash
// insert is suppressed by the content store (see store.ContentStore.PutBatch).
type Item struct {
	ID         string          `json:"id"`
	Hash       string          `json:"hash"`
	CategoryID string          `json:"category_id"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ItemRef is the (id, hash) pair a Set references. A Set's refs are fixed at
// creation time and never rewritten.
type ItemRef struct {
	ID   string `json:"id"`
	Hash string `json:"hash"`
}
