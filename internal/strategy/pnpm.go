package strategy

import (
	"encoding/json"
	"strings"
)

const pnpmMarker = "/.pnpm/"

// pnpmStrategy only analyses bundles whose source map lists at least one
// source inside a pnpm store.
type pnpmStrategy struct {
	endpointStrategy
}

func (pnpmStrategy) Screen(_ []byte, sourceMap []byte) (string, bool) {
	if len(sourceMap) == 0 {
		return "source map missing", false
	}
	var decoded struct {
		Sources []any `json:"sources"`
	}
	if err := json.Unmarshal(sourceMap, &decoded); err != nil {
		return "source map is not valid JSON", false
	}
	for _, src := range decoded.Sources {
		if s, ok := src.(string); ok && strings.Contains(s, pnpmMarker) {
			return "", true
		}
	}
	return "source map has no pnpm sources", false
}
