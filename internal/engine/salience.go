package engine

import (
	"regexp"
	"sort"
	"strings"
)

// Salience scoring is a pure function of content plus user hints: a base
// score nudged upward by explicit-request phrases, decision and error
// keywords, and code identifiers, then floored or capped by the importance
// hint and clamped to [0, 1].
const salienceBase = 0.25

var explicitPhrases = []string{
	"remember this", "remember that", "important", "don't forget", "note this",
	"keep in mind", "for future reference",
}

var architectureKeywords = []string{
	"architecture", "decided", "decision", "chose", "chosen", "design",
	"approach", "strategy", "adr", "tradeoff",
}

var errorKeywords = []string{
	"error", "bug", "crash", "exception", "failure", "failed", "broken",
	"regression", "fix", "fixed",
}

// ScoreSalience computes the base importance for a new memory.
// importance is the optional user hint: "high", "medium", or "low".
func ScoreSalience(text, importance string) float64 {
	lower := strings.ToLower(text)
	score := salienceBase

	for _, p := range explicitPhrases {
		if strings.Contains(lower, p) {
			score += 0.3
			if score < 0.7 {
				score = 0.7
			}
			break
		}
	}
	if containsAny(lower, architectureKeywords) {
		score += 0.15
	}
	if containsAny(lower, errorKeywords) {
		score += 0.15
	}

	// Backticked terms and code-looking identifiers hint at technical
	// content worth keeping; +0.05 each, capped at +0.15.
	identifiers := backtickedRe.FindAllString(text, -1)
	identifiers = append(identifiers, codeIdentRe.FindAllString(text, -1)...)
	identBoost := 0.05 * float64(len(identifiers))
	if identBoost > 0.15 {
		identBoost = 0.15
	}
	score += identBoost

	switch strings.ToLower(importance) {
	case "high":
		if score < 0.8 {
			score = 0.8
		}
	case "medium":
		if score < 0.5 {
			score = 0.5
		}
	case "low":
		if score > 0.3 {
			score = 0.3
		}
	}

	return clampUnit(score)
}

var codeIdentRe = regexp.MustCompile(`\b[a-zA-Z_][a-zA-Z0-9_]*(?:\(\)|\.[a-zA-Z_][a-zA-Z0-9_]*\(|::[a-zA-Z_])`)

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// categoryPatterns maps categories to trigger keywords, checked in order so
// the more specific classes win.
var categoryPatterns = []struct {
	category string
	keywords []string
}{
	{"todo", []string{"todo", "fixme", "later", "pending", "need to", "should add"}},
	{"error", []string{"error", "bug", "crash", "exception", "broken", "regression"}},
	{"architecture", []string{"architecture", "decided", "decision", "chose", "design", "adr"}},
	{"pattern", []string{"pattern", "convention", "idiom", "style", "always use", "standard way"}},
	{"preference", []string{"prefer", "rather", "like to", "favorite", "instead of"}},
	{"learning", []string{"learned", "discovered", "turns out", "realized", "til"}},
	{"relationship", []string{"depends on", "relates to", "connected to", "linked to"}},
	{"context", []string{"currently", "working on", "in progress", "this session"}},
}

// SuggestCategory classifies a memory by deterministic keyword matching,
// defaulting to "note".
func SuggestCategory(title, content string) string {
	text := strings.ToLower(title + " " + content)
	for _, p := range categoryPatterns {
		if containsAny(text, p.keywords) {
			return p.category
		}
	}
	return "note"
}

// ExtractTags derives a deduplicated, lowercased tag set from key phrases and
// any caller-supplied tags.
func ExtractTags(title, content string, extra []string) []string {
	seen := make(map[string]bool)
	var tags []string
	add := func(t string) {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || len(t) > 60 || seen[t] {
			return
		}
		seen[t] = true
		tags = append(tags, t)
	}

	for _, t := range extra {
		add(t)
	}
	for _, p := range KeyPhrases(title + " " + content) {
		// Multi-word phrases become hyphenated tags.
		add(strings.Join(strings.Fields(p), "-"))
	}
	sort.Strings(tags)
	return tags
}
