package core

//go:generate go run ../cmd/musgen

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for stored records.
// It is generated from database sequences or by content hashing.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// Identical content always produces identical IDs, which makes it usable as a
// duplicate-detection key.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Record is a persisted sentence together with its embedding.
type Record struct {
	Id        ID        `json:"id"`
	Text      string    `json:"text"`
	Vector    []float64 `json:"embedding"`
	CreatedAt time.Time `json:"ts"` // When the embedding was produced
}

// SearchResult represents a search result with the full record and relevance score.
type SearchResult struct {
	Record *Record
	Score  float64
}

// Checkpoint records how far a resumable maintenance job has progressed.
type Checkpoint struct {
	Name      string    `json:"name"`
	LastID    ID        `json:"last_id"` // last record fully processed
	UpdatedAt time.Time `json:"updated_at"`
}
