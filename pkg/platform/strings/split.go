// Package strings provides string helpers shared by config and request parsing.
package strings

import (
	"strings"
)

// SplitList splits raw on sep, trims each element and drops empties and
// repeats. Order is preserved; an empty input yields nil.
//
//	SplitList(" a:9092, b:9092,,a:9092 ", ",") // []string{"a:9092", "b:9092"}
func SplitList(raw, sep string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, sep)
	seen := make(map[string]struct{}, len(parts))
	var result []string
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}
