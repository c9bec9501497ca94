package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelv2/claude-cortex-core/internal/memerr"
)

func TestAccessMemoryReinforces(t *testing.T) {
	e := newTestEngine(t)

	id, err := e.AddMemory(AddRequest{Title: "remembered", Content: "a detail", Salience: floatPtr(0.5)})
	require.NoError(t, err)

	m, err := e.AccessMemory(id)
	require.NoError(t, err)
	assert.Equal(t, 1, m.AccessCount)
	assert.Greater(t, m.Salience, 0.5)

	// The boost diminishes with each access.
	m2, err := e.AccessMemory(id)
	require.NoError(t, err)
	assert.Less(t, m2.Salience-m.Salience, m.Salience-0.5)
}

func TestAccessMemoryNotFound(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.AccessMemory(404)
	require.Error(t, err)
	assert.Equal(t, memerr.CodeMemoryNotFound, memerr.CodeOf(err))
}

func TestCoAccessCreatesHebbianLink(t *testing.T) {
	e := newTestEngine(t)

	a, err := e.AddMemory(AddRequest{Title: "first topic", Content: "unrelated alpha"})
	require.NoError(t, err)
	b, err := e.AddMemory(AddRequest{Title: "second topic", Content: "unrelated beta"})
	require.NoError(t, err)

	_, err = e.AccessMemory(a)
	require.NoError(t, err)
	_, err = e.AccessMemory(b)
	require.NoError(t, err)

	related, err := e.GetRelated(a)
	require.NoError(t, err)
	assert.NotEmpty(t, related["related"], "co-accessed memories should link")
}

func TestForgetDryRunAndConfirm(t *testing.T) {
	e := newTestEngine(t)

	for i := 0; i < 3; i++ {
		_, err := e.AddMemory(AddRequest{
			Title:    fmt.Sprintf("todo %d", i),
			Content:  fmt.Sprintf("task number %d", i),
			Category: "todo",
		})
		require.NoError(t, err)
	}

	res, err := e.Forget(ForgetRequest{Category: "todo", DryRun: true})
	require.NoError(t, err)
	assert.Len(t, res.Preview, 3)
	assert.Zero(t, res.Deleted)

	res, err = e.Forget(ForgetRequest{Category: "todo"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Deleted)
}

func TestForgetBulkDeleteBlocked(t *testing.T) {
	e := newTestEngine(t)

	for i := 0; i < 51; i++ {
		_, err := e.AddMemory(AddRequest{
			Title:    fmt.Sprintf("note %d", i),
			Content:  fmt.Sprintf("filler body %d", i),
			Category: "note",
		})
		require.NoError(t, err)
	}

	_, err := e.Forget(ForgetRequest{Category: "note"})
	require.Error(t, err)
	assert.Equal(t, memerr.CodeBulkDeleteBlocked, memerr.CodeOf(err))

	res, err := e.Forget(ForgetRequest{Category: "note", Confirm: true})
	require.NoError(t, err)
	assert.Equal(t, 51, res.Deleted)
}
