package vectorindex

import (
	"context"
	"fmt"

	"github.com/xxxsen/medrag/internal/model"
	"github.com/xxxsen/medrag/internal/repo"
)

func init() {
	Register("pgvector", func(args FactoryArgs) (VectorIndex, error) {
		if args.DB == nil {
			return nil, fmt.Errorf("pgvector index requires a database connection")
		}
		return NewPgvectorIndex(repo.NewDocumentVectorRepo(args.DB)), nil
	})
}

type PgvectorIndex struct {
	docs *repo.DocumentVectorRepo
}

func NewPgvectorIndex(docs *repo.DocumentVectorRepo) *PgvectorIndex {
	return &PgvectorIndex{docs: docs}
}

func (p *PgvectorIndex) Search(ctx context.Context, vector []float32, numCandidates, limit int) ([]model.Document, error) {
	return p.docs.Search(ctx, vector, numCandidates, limit)
}

func (p *PgvectorIndex) FetchByMetadata(ctx context.Context, filter model.MetadataFilter, limit int) ([]model.Document, error) {
	return p.docs.ListByMetadata(ctx, filter, limit)
}

func (p *PgvectorIndex) Count(ctx context.Context) (int64, error) {
	return p.docs.Count(ctx)
}
