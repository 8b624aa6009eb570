package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/medrag/internal/config"
	"github.com/xxxsen/medrag/internal/db"
	"github.com/xxxsen/medrag/internal/model"
)

// OpenTestDB connects to the postgres instance named by TEST_DB_HOST and
// applies migrations. Tests are skipped when it is unset.
func OpenTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set, skipping postgres test")
	}
	conn, err := db.Open(config.DatabaseConfig{
		Host:     host,
		Port:     5432,
		User:     "medrag",
		Password: "medrag_pass",
		DBName:   "medrag_test",
		SSLMode:  "disable",
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	if _, err := conn.Exec(`TRUNCATE documents, embedding_cache`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return conn, func() {
		_ = conn.Close()
	}
}

// AxisVector returns a dim-length unit vector on axis i with a small tilt
// toward axis j, handy for deterministic cosine orderings.
func AxisVector(dim, i, j int, tilt float32) []float32 {
	v := make([]float32, dim)
	v[i%dim] = 1
	if tilt != 0 {
		v[j%dim] = tilt
	}
	return v
}

// InsertDocument writes doc into the postgres documents table.
func InsertDocument(t *testing.T, conn *sql.DB, doc *model.Document, ctime int64) {
	t.Helper()
	const query = `
		INSERT INTO documents (id, product_id, title, text, type, source, embedding, ctime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			text = EXCLUDED.text,
			embedding = EXCLUDED.embedding,
			ctime = EXCLUDED.ctime
	`
	_, err := conn.ExecContext(context.Background(), query,
		doc.ID, doc.ProductID, doc.Title, doc.Text, doc.Type, doc.Source,
		pgvector.NewVector(doc.Embedding), ctime,
	)
	if err != nil {
		t.Fatalf("insert document %s: %v", doc.ID, err)
	}
}
