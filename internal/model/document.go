package model

import (
	"fmt"
	"time"
)

// Document represents a normalized text document registered for ingestion.
// Documents are immutable once ingested; re-ingesting the same ID replaces
// all chunks derived from the prior version.
type Document struct {
	ID         string    `json:"id"`                   // Stable document identifier
	Text       string    `json:"-"`                    // Normalized full text (not serialized)
	SourceURI  string    `json:"source_uri,omitempty"` // Where the text came from (file path, URL)
	IngestedAt time.Time `json:"ingested_at"`          // When ingestion occurred
}

// Chunk is a bounded, offset-addressable slice of a document's text.
// It is the unit of retrieval: offsets always satisfy
// document.Text[StartOffset:EndOffset] == Text.
type Chunk struct {
	ID          string `json:"chunk_id"`    // "<document_id>:<sequence_index>"
	DocumentID  string `json:"document_id"` // Owning document
	Text        string `json:"text"`        // Chunk text
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
	Sequence    int    `json:"sequence_index"` // 0-based position within the document
}

// ChunkID derives the stable chunk identifier from a document ID and
// sequence index. Identical input text and configuration must always
// produce identical IDs, so provenance survives re-ingestion.
func ChunkID(documentID string, sequence int) string {
	return fmt.Sprintf("%s:%d", documentID, sequence)
}

// IndexEntry is one chunk's vector plus the metadata needed to resolve
// provenance without re-fetching the source document.
type IndexEntry struct {
	ChunkID     string    `json:"chunk_id"`
	DocumentID  string    `json:"document_id"`
	Vector      []float32 `json:"vector"`
	Text        string    `json:"text"`
	StartOffset int       `json:"start_offset"`
	EndOffset   int       `json:"end_offset"`
	Sequence    int       `json:"sequence_index"`
}

// RetrievalHit is a single search match.
type RetrievalHit struct {
	ChunkID     string  `json:"chunk_id"`
	DocumentID  string  `json:"document_id"`
	Score       float64 `json:"score"` // Cosine similarity in [-1, 1]
	Text        string  `json:"text"`
	StartOffset int     `json:"start_offset"`
	EndOffset   int     `json:"end_offset"`
}

// RetrievalResult is an ordered evidence set: hits sorted by descending
// score with no duplicate chunk IDs.
type RetrievalResult struct {
	Hits []RetrievalHit `json:"hits"`
}

// Empty reports whether no evidence survived retrieval. An empty result is
// a valid terminal state, not an error.
func (r RetrievalResult) Empty() bool {
	return len(r.Hits) == 0
}

// ChunkIDs returns the hit chunk IDs in rank order.
func (r RetrievalResult) ChunkIDs() []string {
	ids := make([]string, len(r.Hits))
	for i, h := range r.Hits {
		ids[i] = h.ChunkID
	}
	return ids
}
