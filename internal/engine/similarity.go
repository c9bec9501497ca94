package engine

import (
	"regexp"
	"strings"
	"unicode"
)

// Tokenize lowercases, strips punctuation, splits on whitespace, and drops
// tokens of length <= 2. The result is a set for Jaccard math.
func Tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	var b strings.Builder
	flush := func() {
		if b.Len() > 2 {
			tokens[b.String()] = struct{}{}
		}
		b.Reset()
	}
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// Jaccard computes token-set similarity between two texts.
func Jaccard(a, b string) float64 {
	return JaccardSets(Tokenize(a), Tokenize(b))
}

// JaccardSets computes |A ∩ B| / |A ∪ B| over pre-tokenized sets, for the
// hot O(n²) merge loops. Both empty yields 1; one empty yields 0.
func JaccardSets(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	for tok := range small {
		if _, ok := large[tok]; ok {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	return float64(shared) / float64(union)
}

var (
	quotedRe     = regexp.MustCompile(`"([^"]{2,60})"`)
	backtickedRe = regexp.MustCompile("`([^`]{2,60})`")
	capitalRe    = regexp.MustCompile(`\b[A-Z][a-zA-Z0-9]+(?:[A-Z][a-zA-Z0-9]*)+\b`)
)

// techLexicon is the fixed vocabulary of technology terms recognized as key
// phrases and tags.
var techLexicon = []string{
	"api", "auth", "cache", "cli", "config", "database", "docker", "frontend",
	"backend", "graphql", "grpc", "http", "json", "jwt", "kubernetes", "linux",
	"migration", "oauth", "postgres", "postgresql", "python", "react", "redis",
	"rest", "rust", "schema", "sql", "sqlite", "terraform", "test", "typescript",
	"websocket", "yaml", "golang",
}

// KeyPhrases collects quoted phrases, backticked terms, capitalized
// identifiers, and known technology terms from the text.
func KeyPhrases(text string) []string {
	seen := make(map[string]bool)
	var phrases []string
	add := func(p string) {
		p = strings.TrimSpace(p)
		if p == "" {
			return
		}
		key := strings.ToLower(p)
		if !seen[key] {
			seen[key] = true
			phrases = append(phrases, p)
		}
	}

	for _, m := range quotedRe.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range backtickedRe.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range capitalRe.FindAllString(text, -1) {
		add(m)
	}
	lower := strings.ToLower(text)
	lowerTokens := Tokenize(lower)
	for _, term := range techLexicon {
		if _, ok := lowerTokens[term]; ok {
			add(term)
		}
	}
	return phrases
}
