package app

import (
	"sort"
	"strings"
)

// AnswerDelimiter joins selected answer ids in the canonical encoding.
const AnswerDelimiter = ","

// CanonicalAnswers trims, de-duplicates and sorts a delimiter-joined answer set so that a multi-select
// submission compares byte-for-byte with the stored correct answers.
func CanonicalAnswers(raw string) string {
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, part := range strings.Split(raw, AnswerDelimiter) {
		id := strings.TrimSpace(part)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return strings.Join(ids, AnswerDelimiter)
}
