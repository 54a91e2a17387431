package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/askdoc/internal/config"
	"github.com/markdave123-py/askdoc/internal/core"
	"github.com/markdave123-py/askdoc/internal/models"
)

var _ core.VectorIndex = (*VectorStore)(nil)

// VectorStore keeps index entries in Postgres using the pgvector extension.
type VectorStore struct {
	db *sql.DB
}

// NewVectorStore opens the pool, pings it and bootstraps the schema.
func NewVectorStore(ctx context.Context, cfg *config.Config) (*VectorStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, &core.ConfigurationError{Missing: []string{"DATABASE_URL"}}
	}

	dsn, err := dataSourceName(cfg.DatabaseURL, cfg.SslCertPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return NewVectorStoreFromDB(db), nil
}

// NewVectorStoreFromDB wraps an already bootstrapped pool.
func NewVectorStoreFromDB(db *sql.DB) *VectorStore {
	return &VectorStore{db: db}
}

// dataSourceName appends CA verification to the URL when a certificate is given.
func dataSourceName(rawURL, certPath string) (string, error) {
	if certPath == "" {
		return rawURL, nil
	}
	if _, err := os.Stat(certPath); err != nil {
		return "", fmt.Errorf("ssl cert not accessible at %q: %w", certPath, err)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", certPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *VectorStore) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Upsert inserts entries in a single transaction.
func (c *VectorStore) Upsert(ctx context.Context, entries []models.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	const q = `
		INSERT INTO document_chunks
			(id, document_id, position, text, embedding, token_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (document_id, position) DO UPDATE
		SET text = EXCLUDED.text, embedding = EXCLUDED.embedding, token_count = EXCLUDED.token_count
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range entries {
		e := &entries[i]
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			e.ID, e.DocumentID, e.Position, e.Text, pgvector.NewVector(e.Embedding), e.TokenCount, createdAt,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert chunk %d: %w", e.Position, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Query finds the top-k chunks of one document by cosine similarity.
func (c *VectorStore) Query(ctx context.Context, documentID string, vector []float32, k int) ([]models.RetrievedPassage, error) {
	out := []models.RetrievedPassage{}
	if k <= 0 {
		return out, nil
	}

	const q = `
		SELECT document_id, position, text, 1 - (embedding <=> $2) AS score
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY embedding <=> $2, position ASC
		LIMIT $3
	`
	rows, err := c.db.QueryContext(ctx, q, documentID, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.RetrievedPassage
		if err := rows.Scan(&p.DocumentID, &p.Position, &p.Text, &p.Score); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (c *VectorStore) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}
