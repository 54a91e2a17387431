package models

import (
	"time"
)

// Document describes one uploaded document. The raw bytes are not kept.
type Document struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	StorageURL  string    `json:"storage_url,omitempty"` // S3 URL when archiving is enabled
	ChunkCount  int       `json:"chunk_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// IndexEntry is one embedded chunk as stored in the vector index.
type IndexEntry struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	Position   int       `db:"position" json:"position"`
	Text       string    `db:"text" json:"text"`
	Embedding  []float32 `db:"embedding" json:"-"` // pgvector column
	TokenCount int       `db:"token_count" json:"token_count"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// RetrievedPassage is a chunk returned for a query with its similarity score.
type RetrievedPassage struct {
	DocumentID string  `json:"document_id"`
	Position   int     `json:"position"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// Answer is the result of one query. It is not persisted.
type Answer struct {
	Query      string             `json:"query"`
	Text       string             `json:"answer"`
	DocumentID string             `json:"document_id"`
	Passages   []RetrievedPassage `json:"passages"`
}
