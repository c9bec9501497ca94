package engine

import (
	"math"
	"testing"
	"time"

	"github.com/michaelv2/claude-cortex-core/internal/store"
)

func TestAccessSlowdown(t *testing.T) {
	if got := accessSlowdown(0); got != 1.0 {
		t.Errorf("accessSlowdown(0) = %v, want 1.0", got)
	}
	prev := 1.0
	for _, n := range []int{1, 2, 5, 7, 100, 10000} {
		got := accessSlowdown(n)
		if got < prev {
			t.Errorf("accessSlowdown(%d) = %v, decreased below %v", n, got, prev)
		}
		if got > 1.3 {
			t.Errorf("accessSlowdown(%d) = %v, want <= 1.3", n, got)
		}
		prev = got
	}
}

func TestDecayedScoreShortTerm(t *testing.T) {
	now := time.Now()
	m := &store.Memory{
		Type:         store.TypeShortTerm,
		Salience:     0.3,
		LastAccessed: now.Add(-200 * time.Hour).UnixMilli(),
		CreatedAt:    now.Add(-200 * time.Hour).UnixMilli(),
	}
	got := DecayedScore(m, now, 0.995)
	want := 0.3 * math.Pow(0.995, 200)
	if math.Abs(got-want) > 0.001 {
		t.Errorf("DecayedScore = %v, want ~%v", got, want)
	}
}

func TestDecayedScoreLongTermSlower(t *testing.T) {
	now := time.Now()
	short := &store.Memory{
		Type:         store.TypeShortTerm,
		Salience:     0.8,
		LastAccessed: now.Add(-100 * time.Hour).UnixMilli(),
	}
	long := &store.Memory{
		Type:         store.TypeLongTerm,
		Salience:     0.8,
		LastAccessed: now.Add(-100 * time.Hour).UnixMilli(),
	}
	episodic := &store.Memory{
		Type:         store.TypeEpisodic,
		Salience:     0.8,
		LastAccessed: now.Add(-100 * time.Hour).UnixMilli(),
	}

	s := DecayedScore(short, now, 0.995)
	l := DecayedScore(long, now, 0.995)
	ep := DecayedScore(episodic, now, 0.995)
	if l <= s {
		t.Errorf("long-term decayed %v, want slower than short-term %v", l, s)
	}
	if ep != l {
		t.Errorf("episodic decay %v != long-term decay %v", ep, l)
	}
}

func TestDecayedScoreNeverExceedsSalience(t *testing.T) {
	now := time.Now()
	// Heavy access attenuation must not push the score above salience.
	m := &store.Memory{
		Type:         store.TypeShortTerm,
		Salience:     0.5,
		AccessCount:  50,
		LastAccessed: now.Add(-1 * time.Minute).UnixMilli(),
	}
	got := DecayedScore(m, now, 0.995)
	if got > m.Salience {
		t.Errorf("DecayedScore = %v, want <= salience %v", got, m.Salience)
	}
	if got < 0 || got > 1 {
		t.Errorf("DecayedScore = %v, out of unit range", got)
	}
}

func TestDeletionThresholds(t *testing.T) {
	tests := []struct {
		category string
		want     float64
	}{
		{"architecture", 0.15},
		{"pattern", 0.20},
		{"preference", 0.20},
		{"error", 0.22},
		{"learning", 0.22},
		{"context", 0.22},
		{"relationship", 0.22},
		{"custom", 0.22},
		{"note", 0.25},
		{"todo", 0.25},
	}
	for _, tt := range tests {
		if got := DeletionThreshold(tt.category); got != tt.want {
			t.Errorf("DeletionThreshold(%s) = %v, want %v", tt.category, got, tt.want)
		}
	}
}

func TestPromotionEligible(t *testing.T) {
	now := time.Now()
	fresh := &store.Memory{
		Type:         store.TypeShortTerm,
		Salience:     0.8,
		AccessCount:  1,
		CreatedAt:    now.UnixMilli(),
		LastAccessed: now.UnixMilli(),
	}
	if !promotionEligible(fresh, 0.8, 0.6, 24, now) {
		t.Error("salient accessed memory should be eligible")
	}

	unaccessed := &store.Memory{
		Type:         store.TypeShortTerm,
		Salience:     0.8,
		CreatedAt:    now.UnixMilli(),
		LastAccessed: now.UnixMilli(),
	}
	if promotionEligible(unaccessed, 0.8, 0.6, 24, now) {
		t.Error("fresh unaccessed memory should not be eligible")
	}

	// Old enough with a decayed score still above threshold.
	aged := &store.Memory{
		Type:         store.TypeShortTerm,
		Salience:     0.9,
		CreatedAt:    now.Add(-48 * time.Hour).UnixMilli(),
		LastAccessed: now.Add(-48 * time.Hour).UnixMilli(),
	}
	if !promotionEligible(aged, 0.7, 0.6, 24, now) {
		t.Error("aged still-salient memory should be eligible")
	}

	longTerm := &store.Memory{Type: store.TypeLongTerm, Salience: 0.9, AccessCount: 5}
	if promotionEligible(longTerm, 0.9, 0.6, 24, now) {
		t.Error("long-term memory cannot be promoted again")
	}
}
