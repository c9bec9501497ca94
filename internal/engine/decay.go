package engine

import (
	"math"
	"time"

	"github.com/michaelv2/claude-cortex-core/internal/store"
)

// Decay is a continuous exponential function of time since last access.
// Short-term memories decay per hour; long-term and episodic memories apply
// the same rate per day (~24x slower). Frequent access attenuates decay by
// up to 30%, saturating with access count.
const (
	// slowdownK scales the log2 access-count attenuation; the 0.3 cap is
	// reached at seven accesses.
	slowdownK   = 0.1
	slowdownCap = 0.3
)

// accessSlowdown returns the decay attenuation multiplier in [1.0, 1.3].
func accessSlowdown(accessCount int) float64 {
	if accessCount <= 0 {
		return 1.0
	}
	att := math.Log2(1+float64(accessCount)) * slowdownK
	if att > slowdownCap {
		att = slowdownCap
	}
	return 1.0 + att
}

// DecayedScore computes the current effective score for a memory at the
// given instant. The result is clamped to [0, salience].
func DecayedScore(m *store.Memory, now time.Time, rate float64) float64 {
	if rate <= 0 || rate >= 1 {
		rate = 0.995
	}
	elapsed := now.Sub(time.UnixMilli(m.LastAccessed))
	if elapsed < 0 {
		elapsed = 0
	}
	periods := elapsed.Hours()
	if m.Type == store.TypeLongTerm || m.Type == store.TypeEpisodic {
		periods /= 24
	}
	score := m.Salience * math.Pow(rate, periods) * accessSlowdown(m.AccessCount)
	if score > m.Salience {
		score = m.Salience
	}
	return clampUnit(score)
}

// DeletionThreshold returns the decayed score below which a memory of the
// given category becomes eligible for deletion.
func DeletionThreshold(category string) float64 {
	switch category {
	case "architecture":
		return 0.15
	case "pattern", "preference":
		return 0.20
	case "note", "todo":
		return 0.25
	default:
		// error, learning, context, relationship, custom
		return 0.22
	}
}

// promotionEligible reports whether a short-term memory qualifies for
// long-term promotion: either salience at threshold with at least one
// access, or old enough that its decayed score still holds the threshold.
func promotionEligible(m *store.Memory, decayed float64, threshold, minRetentionHours float64, now time.Time) bool {
	if m.Type != store.TypeShortTerm {
		return false
	}
	if m.Salience >= threshold && m.AccessCount >= 1 {
		return true
	}
	ageHours := now.Sub(time.UnixMilli(m.CreatedAt)).Hours()
	return ageHours >= minRetentionHours && decayed >= threshold
}
