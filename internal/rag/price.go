package rag

import (
	"strings"

	"github.com/xxxsen/medrag/internal/model"
)

// ExtractPriceInfo lists the first price found in each document as
// "- <product>: <price>".
func (b *ContextBuilder) ExtractPriceInfo(docs []model.Document) string {
	var lines []string
	for _, d := range docs {
		price, ok := b.set.PriceExtract.FirstSubmatch(d.Text)
		if !ok {
			continue
		}
		name := d.ProductID
		if b.set.ProductName != nil {
			if m := b.set.ProductName.FindStringSubmatch(d.Text); len(m) > 1 && strings.TrimSpace(m[1]) != "" {
				name = strings.TrimSpace(m[1])
			}
		}
		if name == "" {
			name = d.ID
		}
		lines = append(lines, "- "+name+": "+strings.TrimSpace(price))
	}
	if len(lines) == 0 {
		return NoPriceMessage
	}
	return strings.Join(lines, "\n")
}
