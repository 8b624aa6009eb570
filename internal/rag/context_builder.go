package rag

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/medrag/internal/model"
	"github.com/xxxsen/medrag/internal/patterns"
)

const (
	NoInfoMessage     = "Không tìm thấy thông tin liên quan trong cơ sở dữ liệu."
	EmptyQueryMessage = "Không có truy vấn người dùng."
	NoPriceMessage    = "Không tìm thấy thông tin giá trong dữ liệu."

	DefaultCharLimit = 2000
	DefaultMaxDocs   = 4
	faqMaxDocs       = 8
	relevanceTopN    = 3
	ellipsis         = "..."
)

// FAQRetriever is the fallback used when faq questions come back empty.
type FAQRetriever interface {
	RetrieveFAQ(ctx context.Context, query string, k int) []model.Document
}

// ContextBuilder filters, ranks and formats retrieved documents into one
// bounded block of evidence.
type ContextBuilder struct {
	set       *patterns.Set
	faq       FAQRetriever
	faqSource string
}

func NewContextBuilder(set *patterns.Set, faq FAQRetriever, faqSource string) *ContextBuilder {
	if faqSource == "" {
		faqSource = DefaultFAQSource
	}
	return &ContextBuilder{set: set, faq: faq, faqSource: faqSource}
}

func (b *ContextBuilder) faqFallback(query string, k int) Strategy {
	return Strategy{
		Name: "faq_fallback",
		Run: func(ctx context.Context) []model.Document {
			if b.faq == nil {
				return nil
			}
			return b.faq.RetrieveFAQ(ctx, query, k)
		},
	}
}

// BuildContext never returns an empty string: when nothing survives it
// returns NoInfoMessage.
func (b *ContextBuilder) BuildContext(ctx context.Context, docs []model.Document, intent model.Intent, query string, charLimit, maxDocs int) string {
	if charLimit <= 0 {
		charLimit = DefaultCharLimit
	}
	if maxDocs <= 0 {
		maxDocs = DefaultMaxDocs
	}
	isFAQ := intent == model.IntentFAQ
	canFallback := isFAQ && strings.TrimSpace(query) != ""
	logger := logutil.GetLogger(ctx)

	docs, source := FirstNonEmpty(ctx,
		Given("retrieved", docs),
		When(canFallback, b.faqFallback(query, maxDocs)),
	)
	if len(docs) == 0 {
		return NoInfoMessage
	}

	relevant := b.FilterByRelevance(docs, intent)
	selected, stage := FirstNonEmpty(ctx,
		Given("intent_filter", b.FilterByIntent(relevant, intent)),
		When(canFallback, b.faqFallback(query, maxDocs)),
		Given("relevance", relevant),
	)

	limit := maxDocs
	if isFAQ {
		limit = faqMaxDocs
	}
	if len(selected) > limit {
		selected = selected[:limit]
	}
	parts := make([]string, 0, len(selected))
	for _, doc := range selected {
		parts = append(parts, b.formatDoc(doc, intent, charLimit))
	}
	logger.Debug("context built",
		zap.String("intent", string(intent)),
		zap.String("source", source),
		zap.String("stage", stage),
		zap.Int("docs", len(parts)),
	)
	return strings.Join(parts, "\n")
}

// FilterByRelevance keeps documents scoring at least
// max(0.1, 0.45*max) for faq or max(0.2, 0.6*max) otherwise. When none
// qualifies the best three are kept, so the result is never empty for a
// non-empty input.
func (b *ContextBuilder) FilterByRelevance(docs []model.Document, intent model.Intent) []model.Document {
	if len(docs) == 0 {
		return nil
	}
	maxScore := docs[0].Score
	for _, d := range docs[1:] {
		if d.Score > maxScore {
			maxScore = d.Score
		}
	}
	threshold := maxFloat(0.2, 0.6*maxScore)
	if intent == model.IntentFAQ {
		threshold = maxFloat(0.1, 0.45*maxScore)
	}
	kept := make([]model.Document, 0, len(docs))
	for _, d := range docs {
		if d.Score >= threshold {
			kept = append(kept, d)
		}
	}
	if len(kept) > 0 {
		return kept
	}
	top := append([]model.Document(nil), docs...)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Score > top[j].Score })
	if len(top) > relevanceTopN {
		top = top[:relevanceTopN]
	}
	return top
}

// FilterByIntent keeps documents whose text carries the vocabulary of the
// intent. Intents without a vocabulary pass through unchanged.
func (b *ContextBuilder) FilterByIntent(docs []model.Document, intent model.Intent) []model.Document {
	var family *patterns.RegexFamily
	switch intent {
	case model.IntentPrice:
		family = b.set.PriceDocs
	case model.IntentProduct:
		family = b.set.ProductDocs
	case model.IntentMedical:
		family = b.set.MedicalDocs
	case model.IntentFAQ:
		family = b.set.FAQDocs
	default:
		return docs
	}
	out := make([]model.Document, 0, len(docs))
	for _, d := range docs {
		if intent == model.IntentFAQ && (d.Type == model.DocTypeFAQ || d.Source == b.faqSource) {
			out = append(out, d)
			continue
		}
		if family.Match(patterns.Normalize(d.Text)) {
			out = append(out, d)
		}
	}
	return out
}

func (b *ContextBuilder) label(doc model.Document) string {
	if doc.Type != "" {
		return doc.Type
	}
	if doc.Source == b.faqSource {
		return model.DocTypeFAQ
	}
	return "doc"
}

func (b *ContextBuilder) formatDoc(doc model.Document, intent model.Intent, charLimit int) string {
	text := doc.Text
	keepWhole := intent == model.IntentPrice && b.set.CurrencyMarkers.Match(patterns.Normalize(text))
	if !keepWhole {
		text = truncateAtWord(text, charLimit)
	}
	if b.label(doc) == model.DocTypeFAQ {
		if doc.Title != "" {
			return "[FAQ] " + doc.Title + ": " + text
		}
		return "[FAQ] " + text
	}
	if doc.ProductID != "" {
		return "[Sản phẩm ID: " + doc.ProductID + "] " + text
	}
	return "[Doc] " + text
}

// truncateAtWord cuts text to limit runes, backing off to the last
// whitespace inside the window, and marks the cut with an ellipsis.
func truncateAtWord(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	cut := string(runes[:limit])
	if idx := strings.LastIndexFunc(cut, unicode.IsSpace); idx > 0 {
		cut = cut[:idx]
	}
	return cut + ellipsis
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
