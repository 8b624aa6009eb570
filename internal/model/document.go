package model

const (
	DocTypeProduct = "product"
	DocTypePrice   = "price"
	DocTypeFAQ     = "faq"
)

// Document is a read-only copy of an indexed chunk. Score is the similarity
// against the current query and is never persisted.
type Document struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id,omitempty"`
	Text      string    `json:"text"`
	Title     string    `json:"title,omitempty"`
	Type      string    `json:"type,omitempty"`
	Source    string    `json:"source,omitempty"`
	Embedding []float32 `json:"-"`
	Score     float64   `json:"score"`
}

// MetadataFilter matches documents whose type is in Types OR whose source is
// in Sources.
type MetadataFilter struct {
	Types   []string
	Sources []string
}

func (f MetadataFilter) IsEmpty() bool {
	return len(f.Types) == 0 && len(f.Sources) == 0
}

func (f MetadataFilter) Match(doc Document) bool {
	for _, t := range f.Types {
		if doc.Type == t {
			return true
		}
	}
	for _, s := range f.Sources {
		if doc.Source == s {
			return true
		}
	}
	return false
}
