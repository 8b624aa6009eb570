package rag

import (
	"context"

	"github.com/xxxsen/medrag/internal/model"
)

// Strategy yields a candidate document set. Strategies are tried in order and
// the first non-empty result wins.
type Strategy struct {
	Name string
	Run  func(ctx context.Context) []model.Document
}

// Given is a strategy returning a fixed set.
func Given(name string, docs []model.Document) Strategy {
	return Strategy{Name: name, Run: func(context.Context) []model.Document { return docs }}
}

// When disables s unless cond holds.
func When(cond bool, s Strategy) Strategy {
	if cond {
		return s
	}
	return Strategy{Name: s.Name, Run: nil}
}

// FirstNonEmpty runs strategies in order and returns the first non-empty
// result together with the name of the strategy that produced it.
func FirstNonEmpty(ctx context.Context, strategies ...Strategy) ([]model.Document, string) {
	for _, s := range strategies {
		if s.Run == nil {
			continue
		}
		if docs := s.Run(ctx); len(docs) > 0 {
			return docs, s.Name
		}
	}
	return nil, ""
}
