package vectorindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/didi/gendry/builder"
	_ "modernc.org/sqlite"

	"github.com/xxxsen/medrag/internal/model"
	"github.com/xxxsen/medrag/internal/pkg/vecmath"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	product_id TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	text TEXT NOT NULL,
	type TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	embedding BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_type ON documents (type);
CREATE INDEX IF NOT EXISTS idx_documents_source ON documents (source);
`

var sqliteFields = []string{"id", "product_id", "title", "text", "type", "source"}

type sqliteConfig struct {
	Path string `json:"path"`
}

func init() {
	Register("sqlite", func(args FactoryArgs) (VectorIndex, error) {
		var cfg sqliteConfig
		if err := decodeConfig(args.Data, &cfg); err != nil {
			return nil, err
		}
		if cfg.Path == "" {
			return nil, errors.New("sqlite index path is required")
		}
		return OpenSQLiteIndex(cfg.Path)
	})
}

// SQLiteIndex is an embedded single-file index. Search is an exact scan, so
// the candidate budget is not used. Rows are written by the offline indexer;
// the embedding column holds the JSON encoded vector.
type SQLiteIndex struct {
	db *sql.DB
}

func OpenSQLiteIndex(path string) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init sqlite index: %w", err)
	}
	return &SQLiteIndex{db: db}, nil
}

func (s *SQLiteIndex) Search(ctx context.Context, vector []float32, numCandidates, limit int) ([]model.Document, error) {
	if limit <= 0 {
		return nil, nil
	}
	fields := append(append([]string{}, sqliteFields...), "embedding")
	sqlStr, args, err := builder.BuildSelect("documents", nil, fields)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []model.Document
	for rows.Next() {
		doc, emb, err := scanSQLiteDocument(rows)
		if err != nil {
			return nil, err
		}
		doc.Score = vecmath.Cosine(vector, emb)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Score > docs[j].Score })
	if len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (s *SQLiteIndex) FetchByMetadata(ctx context.Context, filter model.MetadataFilter, limit int) ([]model.Document, error) {
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
	fields := append(append([]string{}, sqliteFields...), "embedding")
	sqlStr, args, err := builder.BuildSelect("documents", where, fields)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []model.Document
	for rows.Next() {
		doc, emb, err := scanSQLiteDocument(rows)
		if err != nil {
			return nil, err
		}
		doc.Embedding = emb
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func scanSQLiteDocument(rows *sql.Rows) (model.Document, []float32, error) {
	var doc model.Document
	var blob []byte
	if err := rows.Scan(&doc.ID, &doc.ProductID, &doc.Title, &doc.Text, &doc.Type, &doc.Source, &blob); err != nil {
		return doc, nil, err
	}
	var emb []float32
	if err := json.Unmarshal(blob, &emb); err != nil {
		return doc, nil, fmt.Errorf("decode embedding %s: %w", doc.ID, err)
	}
	return doc, emb, nil
}

func (s *SQLiteIndex) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM documents`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

func toInterfaces(items []string) []interface{} {
	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		out = append(out, item)
	}
	return out
}
