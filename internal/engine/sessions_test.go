package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelv2/claude-cortex-core/internal/memerr"
	"github.com/michaelv2/claude-cortex-core/internal/store"
)

func TestSessionLifecycle(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.AddMemory(AddRequest{
		Title: "DB choice", Content: "we decided on postgres",
		Category: "architecture", Salience: floatPtr(0.8),
	})
	require.NoError(t, err)

	info, err := e.StartSession("")
	require.NoError(t, err)
	require.NotEmpty(t, info.SessionID)
	assert.Equal(t, "demo", info.Project)
	require.NotNil(t, info.Context)
	assert.Equal(t, 1, info.Context.TotalMemories)
	require.NotEmpty(t, info.Context.KeyDecisions)
	assert.Equal(t, "DB choice", info.Context.KeyDecisions[0].Title)

	_, err = e.AddMemory(AddRequest{Title: "during", Content: "made while the session ran"})
	require.NoError(t, err)

	stats, err := e.EndSession(info.SessionID, "wired up the database layer")
	require.NoError(t, err)
	// The in-session insert plus the episodic summary itself.
	assert.Equal(t, 2, stats.MemoriesCreated)

	// The summary landed as an episodic memory.
	counts, err := e.db.CountByType()
	require.NoError(t, err)
	assert.Equal(t, 1, counts[store.TypeEpisodic])
}

func TestEndSessionUnknown(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.EndSession("missing-session", "")
	require.Error(t, err)
	assert.Equal(t, memerr.CodeSessionNotFound, memerr.CodeOf(err))
}

func TestGetContextSections(t *testing.T) {
	e := newTestEngine(t)

	seed := []AddRequest{
		{Title: "Event bus", Content: "decided on NATS", Category: "architecture", Salience: floatPtr(0.9)},
		{Title: "Minor idea", Content: "decided nothing yet", Category: "architecture", Salience: floatPtr(0.3)},
		{Title: "Error style", Content: "wrap with context", Category: "pattern", Salience: floatPtr(0.5)},
		{Title: "Ship docs", Content: "todo: write the readme", Category: "todo"},
	}
	for _, req := range seed {
		_, err := e.AddMemory(req)
		require.NoError(t, err)
	}

	summary, err := e.GetContext("", "")
	require.NoError(t, err)

	require.Len(t, summary.KeyDecisions, 1, "only salience >= 0.6 architecture entries are decisions")
	assert.Equal(t, "Event bus", summary.KeyDecisions[0].Title)
	require.Len(t, summary.Patterns, 1)
	require.Len(t, summary.Pending, 1)
	assert.Equal(t, 4, summary.TotalMemories)
	assert.Len(t, summary.Recent, 4)
}

func TestStats(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.AddMemory(AddRequest{Title: "one", Content: "alpha", Category: "note"})
	require.NoError(t, err)
	_, err = e.AddMemory(AddRequest{Title: "two", Content: "beta", Category: "error", Type: store.TypeLongTerm})
	require.NoError(t, err)

	stats, err := e.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByType[store.TypeShortTerm])
	assert.Equal(t, 1, stats.ByType[store.TypeLongTerm])
	assert.Equal(t, 1, stats.ByCategory["note"])
	assert.Equal(t, 1, stats.ByCategory["error"])
}
