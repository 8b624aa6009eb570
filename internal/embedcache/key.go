package embedcache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint is the content hash used as cache key for text.
func Fingerprint(text string) string {
	hash := sha256.Sum256([]byte(text))
	return hex.EncodeToString(hash[:])
}

func buildCacheKey(modelName, text string) (string, string, string) {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = "unknown"
	}
	contentHash := Fingerprint(text)
	return "embed:" + modelName + ":" + contentHash, contentHash, modelName
}
