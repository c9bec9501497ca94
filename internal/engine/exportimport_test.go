package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportImportRoundtrip(t *testing.T) {
	src := newTestEngine(t)

	titles := []string{"first fact", "second fact", "third fact"}
	for _, title := range titles {
		_, err := src.AddMemory(AddRequest{
			Title:    title,
			Content:  "content of " + title,
			Category: "note",
			Tags:     []string{"exported"},
			Salience: floatPtr(0.7),
		})
		require.NoError(t, err)
	}

	exported, err := src.Export("")
	require.NoError(t, err)
	require.Len(t, exported, 3)
	data, err := json.Marshal(exported)
	require.NoError(t, err)

	dst := newTestEngine(t)
	count, err := dst.Import(data)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	reexported, err := dst.Export("")
	require.NoError(t, err)
	require.Len(t, reexported, 3)

	want := make(map[string]string)
	for _, m := range exported {
		want[m.Title] = m.Content
	}
	for _, m := range reexported {
		assert.Equal(t, want[m.Title], m.Content)
		assert.Contains(t, m.Tags, "exported")
	}
}

func TestImportIdempotent(t *testing.T) {
	src := newTestEngine(t)
	_, err := src.AddMemory(AddRequest{Title: "only one", Content: "body", Salience: floatPtr(0.6)})
	require.NoError(t, err)

	exported, err := src.Export("")
	require.NoError(t, err)
	data, err := json.Marshal(exported)
	require.NoError(t, err)

	dst := newTestEngine(t)
	count, err := dst.Import(data)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Same payload again: duplicates are silently skipped.
	count, err = dst.Import(data)
	require.NoError(t, err)
	assert.Zero(t, count)

	stats, err := dst.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
}

func TestImportRejectsGarbage(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Import([]byte("not json"))
	require.Error(t, err)
}

func TestExportProjectIncludesTransferableGlobals(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.AddMemory(AddRequest{Title: "project fact", Content: "belongs to demo"})
	require.NoError(t, err)
	_, err = e.AddMemory(AddRequest{
		Title: "portable fact", Content: "travels between projects",
		Project: "other", Scope: "global", Transferable: true,
	})
	require.NoError(t, err)
	_, err = e.AddMemory(AddRequest{
		Title: "pinned fact", Content: "global but not exported",
		Project: "other", Scope: "global",
	})
	require.NoError(t, err)

	exported, err := e.Export("demo")
	require.NoError(t, err)
	require.Len(t, exported, 2)
	names := []string{exported[0].Title, exported[1].Title}
	assert.Contains(t, names, "project fact")
	assert.Contains(t, names, "portable fact")
}
