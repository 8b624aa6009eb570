package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	mclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/xxxsen/medrag/internal/model"
)

const (
	defaultMilvusCollection  = "medical_documents"
	defaultMilvusVectorField = "embedding"
	maxMilvusEf              = 32768
)

var milvusOutputFields = []string{"product_id", "title", "text", "type", "source"}

type milvusConfig struct {
	Address     string `json:"address"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	DBName      string `json:"db_name"`
	Collection  string `json:"collection"`
	VectorField string `json:"vector_field"`
	IndexType   string `json:"index_type"`
	Timeout     int    `json:"timeout"`
}

func init() {
	Register("milvus", func(args FactoryArgs) (VectorIndex, error) {
		var cfg milvusConfig
		if err := decodeConfig(args.Data, &cfg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(cfg.Address) == "" {
			return nil, errors.New("milvus address is required")
		}
		timeout := time.Duration(cfg.Timeout) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		cli, err := mclient.NewClient(ctx, mclient.Config{
			Address:  cfg.Address,
			Username: cfg.Username,
			Password: cfg.Password,
			DBName:   cfg.DBName,
		})
		if err != nil {
			return nil, fmt.Errorf("connect milvus: %w", err)
		}
		return NewMilvusIndex(cli, cfg.Collection, cfg.VectorField, cfg.IndexType)
	})
}

// MilvusIndex searches a milvus collection whose primary key is the varchar
// field "id".
type MilvusIndex struct {
	cli         mclient.Client
	collection  string
	vectorField string
	hnsw        bool
}

func NewMilvusIndex(cli mclient.Client, collection, vectorField, indexType string) (*MilvusIndex, error) {
	if cli == nil {
		return nil, errors.New("milvus client is nil")
	}
	if strings.TrimSpace(collection) == "" {
		collection = defaultMilvusCollection
	}
	if strings.TrimSpace(vectorField) == "" {
		vectorField = defaultMilvusVectorField
	}
	return &MilvusIndex{
		cli:         cli,
		collection:  collection,
		vectorField: vectorField,
		hnsw:        strings.EqualFold(indexType, "hnsw"),
	}, nil
}

func (m *MilvusIndex) searchParam(numCandidates, limit int) (entity.SearchParam, error) {
	if !m.hnsw {
		return entity.NewIndexAUTOINDEXSearchParam(1)
	}
	ef := clampInt(numCandidates, limit, maxMilvusEf)
	return entity.NewIndexHNSWSearchParam(ef)
}

func (m *MilvusIndex) Search(ctx context.Context, vector []float32, numCandidates, limit int) ([]model.Document, error) {
	if limit <= 0 {
		return nil, nil
	}
	sp, err := m.searchParam(numCandidates, limit)
	if err != nil {
		return nil, err
	}
	res, err := m.cli.Search(
		ctx,
		m.collection,
		nil,
		"",
		milvusOutputFields,
		[]entity.Vector{entity.FloatVector(vector)},
		m.vectorField,
		entity.COSINE,
		limit,
		sp,
	)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, nil
	}
	sr := res[0]
	if sr.Err != nil {
		return nil, sr.Err
	}
	docs := make([]model.Document, 0, sr.ResultCount)
	for i := 0; i < sr.ResultCount; i++ {
		doc := documentFromColumns(sr.Fields, i)
		if sr.IDs != nil {
			doc.ID, _ = sr.IDs.GetAsString(i)
		}
		if i < len(sr.Scores) {
			doc.Score = float64(sr.Scores[i])
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (m *MilvusIndex) FetchByMetadata(ctx context.Context, filter model.MetadataFilter, limit int) ([]model.Document, error) {
	if filter.IsEmpty() || limit <= 0 {
		return nil, nil
	}
	fields := append([]string{"id", m.vectorField}, milvusOutputFields...)
	rs, err := m.cli.Query(ctx, m.collection, nil, metadataExpr(filter), fields, mclient.WithLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	idCol := columnByName(rs, "id")
	if idCol == nil {
		return nil, nil
	}
	docs := make([]model.Document, 0, idCol.Len())
	for i := 0; i < idCol.Len(); i++ {
		doc := documentFromColumns(rs, i)
		doc.ID, _ = idCol.GetAsString(i)
		doc.Embedding = vectorAt(rs, m.vectorField, i)
		docs = append(docs, doc)
	}
	return docs, nil
}

func (m *MilvusIndex) Count(ctx context.Context) (int64, error) {
	stats, err := m.cli.GetCollectionStatistics(ctx, m.collection)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(stats["row_count"], 10, 64)
}

func (m *MilvusIndex) Close() error {
	return m.cli.Close()
}

// metadataExpr renders `type in [...] or source in [...]` for milvus.
func metadataExpr(filter model.MetadataFilter) string {
	var parts []string
	if len(filter.Types) > 0 {
		parts = append(parts, "type in "+quoteList(filter.Types))
	}
	if len(filter.Sources) > 0 {
		parts = append(parts, "source in "+quoteList(filter.Sources))
	}
	return strings.Join(parts, " or ")
}

func quoteList(items []string) string {
	quoted := make([]string, 0, len(items))
	for _, item := range items {
		quoted = append(quoted, strconv.Quote(item))
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func documentFromColumns(cols mclient.ResultSet, i int) model.Document {
	var doc model.Document
	read := func(name string, dst *string) {
		if col := columnByName(cols, name); col != nil {
			*dst, _ = col.GetAsString(i)
		}
	}
	read("product_id", &doc.ProductID)
	read("title", &doc.Title)
	read("text", &doc.Text)
	read("type", &doc.Type)
	read("source", &doc.Source)
	return doc
}

func vectorAt(cols mclient.ResultSet, name string, i int) []float32 {
	col, ok := columnByName(cols, name).(*entity.ColumnFloatVector)
	if !ok {
		return nil
	}
	data := col.Data()
	if i >= len(data) {
		return nil
	}
	return data[i]
}

func columnByName(cols mclient.ResultSet, name string) entity.Column {
	for _, c := range cols {
		if c != nil && c.Name() == name {
			return c
		}
	}
	return nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return v
}
