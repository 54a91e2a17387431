package ingestion_engine

import "time"

// IngestConfig tunes the indexing stage.
//
// BatchSize:    how many chunks to embed in one provider call (e.g., 16).
// Concurrency:  how many batches may be in flight at once.
// EmbedTimeout: upper bound for a single batch call.
type IngestConfig struct {
	BatchSize    int
	Concurrency  int
	EmbedTimeout time.Duration
}

func (c *IngestConfig) withDefaults() IngestConfig {
	out := IngestConfig{BatchSize: 16, Concurrency: 1, EmbedTimeout: 30 * time.Second}
	if c == nil {
		return out
	}
	if c.BatchSize > 0 {
		out.BatchSize = c.BatchSize
	}
	if c.Concurrency > 0 {
		out.Concurrency = c.Concurrency
	}
	if c.EmbedTimeout > 0 {
		out.EmbedTimeout = c.EmbedTimeout
	}
	return out
}

// batch is a contiguous run of chunk positions embedded together.
type batch struct {
	start int
	texts []string
}
