package facts

import (
	"strings"
	"unicode"
)

// GroundingRatio is the share of significant fact tokens that must appear in the summary.
const GroundingRatio = 0.5

// minTokenLength: tokens this short or shorter are not significant.
const minTokenLength = 3

var stopWords = map[string]bool{
	"user": true, "users": true, "they": true, "them": true, "their": true, "theirs": true,
	"this": true, "that": true, "these": true, "those": true, "there": true, "here": true,
	"with": true, "from": true, "into": true, "onto": true, "about": true, "above": true,
	"below": true, "after": true, "before": true, "over": true, "under": true, "again": true,
	"have": true, "having": true, "been": true, "being": true,
	"were": true, "does": true, "doing": true, "will": true,
	"would": true, "should": true, "could": true, "might": true, "must": true, "shall": true,
	"what": true, "which": true, "when": true, "where": true, "while": true, "whom": true,
	"very": true, "just": true, "also": true, "only": true, "some": true, "such": true,
	"than": true, "then": true, "each": true, "more": true, "most": true,
	"other": true, "same": true, "both": true, "because": true, "until": true, "your": true,
	"yours": true, "ours": true, "himself": true, "herself": true, "itself": true,
	"themselves": true, "really": true, "likes": true, "like": true,
}

// ValidateFactAgainstSummary reports whether fact is textually supported by summary.
// The fact is tokenized, stop-words and short tokens are dropped, and at least
// GroundingRatio of the remaining tokens must occur in the summary.
// A fact with no significant tokens cannot be grounded.
func ValidateFactAgainstSummary(fact, summary string) bool {
	tokens := significantTokens(fact)
	if len(tokens) == 0 {
		return false
	}

	haystack := strings.ToLower(summary)
	found := 0
	for _, token := range tokens {
		if strings.Contains(haystack, token) {
			found++
		}
	}
	return float64(found)/float64(len(tokens)) >= GroundingRatio
}

func significantTokens(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if len([]rune(f)) <= minTokenLength || stopWords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}
