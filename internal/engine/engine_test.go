package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/michaelv2/claude-cortex-core/internal/config"
	"github.com/michaelv2/claude-cortex-core/internal/memerr"
	"github.com/michaelv2/claude-cortex-core/internal/store"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	cfg := config.Default()
	cfg.Project = "demo"
	e := New(db, cfg, zap.NewNop())
	t.Cleanup(func() {
		e.Stop()
		db.Close()
	})
	return e
}

// drain waits for every queued background task to finish.
func drain(e *Engine) {
	done := make(chan struct{})
	e.tasks <- func() { close(done) }
	<-done
}

func floatPtr(v float64) *float64 { return &v }

func TestAddAndRecall(t *testing.T) {
	e := newTestEngine(t)

	id, err := e.AddMemory(AddRequest{
		Title:      "Use PostgreSQL",
		Content:    "We chose PostgreSQL for ACID.",
		Category:   "architecture",
		Importance: "high",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	results, err := e.SearchMemories(SearchRequest{Query: "postgres"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, id, results[0].Memory.ID)
	assert.Equal(t, "architecture", results[0].Memory.Category)
	assert.Greater(t, results[0].Relevance, 0.5)
}

func TestAddMemoryContentBoundary(t *testing.T) {
	e := newTestEngine(t)

	exact := strings.Repeat("a", maxContentBytes)
	id, err := e.AddMemory(AddRequest{Title: "exact", Content: exact})
	require.NoError(t, err)
	m, err := e.db.GetMemory(id)
	require.NoError(t, err)
	assert.Equal(t, exact, m.Content)

	over := strings.Repeat("b", maxContentBytes+1)
	id, err = e.AddMemory(AddRequest{Title: "over", Content: over})
	require.NoError(t, err)
	m, err = e.db.GetMemory(id)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(m.Content), maxContentBytes)
	assert.True(t, strings.HasSuffix(m.Content, truncationMarker))
}

func TestAddMemoryStrictMode(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.AddMemory(AddRequest{
		Title:   "too big",
		Content: strings.Repeat("x", maxContentBytes+1),
		Strict:  true,
	})
	require.Error(t, err)
	assert.Equal(t, memerr.CodeContentTooLarge, memerr.CodeOf(err))
}

func TestAddMemoryMalformedTags(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.AddMemory(AddRequest{
		Title:   "tagged",
		Content: "content",
		Tags:    []string{"ok", "bad\ntag"},
	})
	require.Error(t, err)
	assert.Equal(t, memerr.CodeInvalidQuery, memerr.CodeOf(err))
}

func TestAutoLinkOnInsert(t *testing.T) {
	e := newTestEngine(t)

	first, err := e.AddMemory(AddRequest{Title: "JWT tokens", Content: "Auth uses JWT."})
	require.NoError(t, err)
	_, err = e.AddMemory(AddRequest{Title: "JWT expiry", Content: "JWT expiry is 24h."})
	require.NoError(t, err)

	related, err := e.GetRelated(first)
	require.NoError(t, err)
	require.NotEmpty(t, related["related"], "expected an auto-created related edge")
	assert.GreaterOrEqual(t, related["related"][0].Strength, 0.2)
}

func TestEmptyQueryOrdersByDecayedScore(t *testing.T) {
	e := newTestEngine(t)

	for _, s := range []float64{0.4, 0.9, 0.6} {
		_, err := e.AddMemory(AddRequest{
			Title:    "entry",
			Content:  "entry content",
			Category: "note",
			Salience: floatPtr(s),
		})
		require.NoError(t, err)
	}

	results, err := e.SearchMemories(SearchRequest{})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t,
			results[i-1].Memory.DecayedScore, results[i].Memory.DecayedScore,
			"results not ordered by decayed score")
	}
}

func TestFTSSpecialCharacterTitles(t *testing.T) {
	e := newTestEngine(t)

	titles := []string{
		"cache/evict + ttl",
		"a-b:c*d^e",
		"(parens) & pipes | dots.",
		"curly {braces}, commas",
		`title with "quotes" inside`,
	}
	for _, title := range titles {
		_, err := e.AddMemory(AddRequest{Title: title, Content: "body for " + title})
		require.NoError(t, err, "insert %q", title)
	}
	for _, title := range titles {
		results, err := e.SearchMemories(SearchRequest{Query: title, IncludeDecayed: true})
		require.NoError(t, err, "search %q must not raise INVALID_QUERY", title)
		found := false
		for _, r := range results {
			if r.Memory.Title == title {
				found = true
				assert.Greater(t, r.Relevance, 0.0)
			}
		}
		assert.True(t, found, "search for %q did not return the memory", title)
	}
}

func TestSearchReinforcement(t *testing.T) {
	e := newTestEngine(t)

	a, err := e.AddMemory(AddRequest{Title: "deploy pipeline", Content: "The deploy pipeline ships on tag."})
	require.NoError(t, err)
	b, err := e.AddMemory(AddRequest{Title: "deploy rollback", Content: "Rollback the deploy with one command."})
	require.NoError(t, err)

	_, err = e.SearchMemories(SearchRequest{Query: "deploy"})
	require.NoError(t, err)
	drain(e)

	ma, err := e.db.GetMemory(a)
	require.NoError(t, err)
	mb, err := e.db.GetMemory(b)
	require.NoError(t, err)
	assert.Equal(t, 1, ma.AccessCount, "top result not reinforced")
	assert.Equal(t, 1, mb.AccessCount, "second result not reinforced")

	// Memories retrieved together link together.
	link, err := e.db.GetLink(a, b, store.RelRelated)
	require.NoError(t, err)
	if link == nil {
		link, err = e.db.GetLink(b, a, store.RelRelated)
		require.NoError(t, err)
	}
	require.NotNil(t, link, "expected a co-retrieval edge")
}

func TestSearchMinSalienceFilter(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.AddMemory(AddRequest{Title: "weak deploy note", Content: "deploy detail", Salience: floatPtr(0.3)})
	require.NoError(t, err)
	strong, err := e.AddMemory(AddRequest{Title: "strong deploy rule", Content: "deploy rule", Salience: floatPtr(0.9)})
	require.NoError(t, err)

	results, err := e.SearchMemories(SearchRequest{Query: "deploy", MinSalience: 0.5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, strong, results[0].Memory.ID)
}

func TestProjectScope(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.AddMemory(AddRequest{Title: "demo secret", Content: "only for demo project"})
	require.NoError(t, err)
	_, err = e.AddMemory(AddRequest{Title: "global wisdom", Content: "applies everywhere", Project: "other", Scope: store.ScopeGlobal})
	require.NoError(t, err)

	results, err := e.SearchMemories(SearchRequest{})
	require.NoError(t, err)
	require.Len(t, results, 1, "foreign project memory leaked into scope")

	results, err = e.SearchMemories(SearchRequest{IncludeGlobal: true})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestDBNotInitialized(t *testing.T) {
	var e *Engine
	_, err := e.SearchMemories(SearchRequest{})
	assert.Equal(t, memerr.CodeDBNotInit, memerr.CodeOf(err))
}
