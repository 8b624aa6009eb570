package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"
	"github.com/xxxsen/medrag/internal/model"
	"github.com/xxxsen/medrag/internal/pkg/dbutil"
)

const (
	documentTable = "documents"
	maxEfSearch   = 1000
)

var documentFields = []string{"id", "product_id", "title", "text", "type", "source"}

// DocumentVectorRepo reads the pgvector backed document collection.
type DocumentVectorRepo struct {
	db *sql.DB
}

func NewDocumentVectorRepo(db *sql.DB) *DocumentVectorRepo {
	return &DocumentVectorRepo{db: db}
}

// Search runs an approximate cosine search. numCandidates becomes the hnsw
// ef_search budget for this query.
func (r *DocumentVectorRepo) Search(ctx context.Context, vec []float32, numCandidates, limit int) ([]model.Document, error) {
	if limit <= 0 {
		return nil, nil
	}
	ef := numCandidates
	if ef < limit {
		ef = limit
	}
	if ef > maxEfSearch {
		ef = maxEfSearch
	}
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", ef)); err != nil {
		return nil, err
	}
	const query = `
		SELECT id, product_id, title, text, type, source, 1 - (embedding <=> $1) AS score
		FROM documents
		ORDER BY embedding <=> $1
		LIMIT $2
	`
	rows, err := tx.QueryContext(ctx, query, pgvector.NewVector(vec), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []model.Document
	for rows.Next() {
		var doc model.Document
		if err := rows.Scan(&doc.ID, &doc.ProductID, &doc.Title, &doc.Text, &doc.Type, &doc.Source, &doc.Score); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return docs, tx.Commit()
}

// ListByMetadata returns documents whose type or source matches the filter.
func (r *DocumentVectorRepo) ListByMetadata(ctx context.Context, filter model.MetadataFilter, limit int) ([]model.Document, error) {
	if filter.IsEmpty() || limit <= 0 {
		return nil, nil
	}
	var ors []map[string]interface{}
	if len(filter.Types) > 0 {
		ors = append(ors, map[string]interface{}{"type in": toInterfaces(filter.Types)})
	}
	if len(filter.Sources) > 0 {
		ors = append(ors, map[string]interface{}{"source in": toInterfaces(filter.Sources)})
	}
	where := map[string]interface{}{
		"_or":      ors,
		"_orderby": "id asc",
		"_limit":   []uint{0, uint(limit)},
	}
	fields := append(append([]string{}, documentFields...), "embedding")
	sqlStr, args, err := builder.BuildSelect(documentTable, where, fields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []model.Document
	for rows.Next() {
		var doc model.Document
		var vec pgvector.Vector
		if err := rows.Scan(&doc.ID, &doc.ProductID, &doc.Title, &doc.Text, &doc.Type, &doc.Source, &vec); err != nil {
			return nil, err
		}
		doc.Embedding = vec.Slice()
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *DocumentVectorRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM documents`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func toInterfaces(items []string) []interface{} {
	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		out = append(out, item)
	}
	return out
}
