package utils

import "strings"

// ParseList splits a comma-separated value into trimmed entries, dropping
// empty and repeated ones while keeping first-seen order. Returns nil when
// nothing remains.
func ParseList(s string) []string {
	var result []string
	seen := make(map[string]bool)
	for _, v := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" || seen[trimmed] {
			continue
		}
		seen[trimmed] = true
		result = append(result, trimmed)
	}
	return result
}
