package services

import (
	"strings"
	"unicode"
)

// DefaultFuzzyThreshold is the minimum score for a span to be suggested.
const DefaultFuzzyThreshold = 0.80

// ContainsFold reports whether phrase occurs in sentence ignoring case.
func ContainsFold(sentence string, phrase string) bool {
	return strings.Contains(strings.ToLower(sentence), strings.ToLower(strings.TrimSpace(phrase)))
}

// BestFuzzySpan finds the sentence n-gram (n = token count of phrase) that
// best matches phrase. The score is max(token Jaccard, Levenshtein ratio).
func BestFuzzySpan(sentence string, phrase string) (string, float64) {
	tokens := tokenize(sentence)
	phraseTokens := tokenize(phrase)
	if len(tokens) == 0 || len(phraseTokens) == 0 {
		return "", 0
	}
	n := len(phraseTokens)
	best := ""
	bestScore := 0.0
	for i := 0; i+n <= len(tokens); i++ {
		span := strings.Join(tokens[i:i+n], " ")
		score := tokenJaccard(span, phrase)
		if ratio := levenshteinRatio(span, phrase); ratio > score {
			score = ratio
		}
		if score > bestScore {
			bestScore = score
			best = span
		}
	}
	return best, bestScore
}

func tokenize(value string) []string {
	return strings.FieldsFunc(strings.ToLower(strings.TrimSpace(value)), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

func tokenJaccard(a string, b string) float64 {
	left := make(map[string]struct{})
	for _, token := range tokenize(a) {
		left[token] = struct{}{}
	}
	right := make(map[string]struct{})
	for _, token := range tokenize(b) {
		right[token] = struct{}{}
	}
	if len(left) == 0 && len(right) == 0 {
		return 1
	}
	intersection := 0
	union := len(right)
	for token := range left {
		if _, ok := right[token]; ok {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func levenshteinRatio(a string, b string) float64 {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))
	if len(ra) == 0 && len(rb) == 0 {
		return 1
	}
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a []rune, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len(a); i++ {
		prev := row[0]
		row[0] = i
		for j := 1; j <= len(b); j++ {
			current := row[j]
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			row[j] = min(row[j]+1, row[j-1]+1, prev+cost)
			prev = current
		}
	}
	return row[len(b)]
}
