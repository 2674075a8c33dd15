package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTallyVotes(t *testing.T) {
	t.Run("single winner", func(t *testing.T) {
		w := tallyVotes(map[string]string{"a": "x", "b": "x", "c": "y"})

		assert.Equal(t, "x", w.Single)
		assert.Empty(t, w.Tied)
	})

	t.Run("two-way tie", func(t *testing.T) {
		w := tallyVotes(map[string]string{"a": "x", "b": "y"})

		assert.Empty(t, w.Single)
		assert.ElementsMatch(t, []string{"x", "y"}, w.Tied)
	})

	t.Run("unanimous", func(t *testing.T) {
		w := tallyVotes(map[string]string{"a": "x", "b": "x", "c": "x", "d": "x"})

		assert.Equal(t, "x", w.Single)
	})

	t.Run("three-way tie", func(t *testing.T) {
		w := tallyVotes(map[string]string{"a": "x", "b": "y", "c": "z"})

		assert.ElementsMatch(t, []string{"x", "y", "z"}, w.Tied)
	})

	t.Run("single voter", func(t *testing.T) {
		w := tallyVotes(map[string]string{"a": "b"})

		assert.Equal(t, "b", w.Single)
	})
}

func TestWinnerMarshalJSON(t *testing.T) {
	single, err := json.Marshal(Winner{Single: "alice"})
	require.NoError(t, err)
	assert.Equal(t, `"alice"`, string(single))

	tied, err := json.Marshal(Winner{Tied: []string{"alice", "bob"}})
	require.NoError(t, err)
	assert.Equal(t, `["alice","bob"]`, string(tied))
}
