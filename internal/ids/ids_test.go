package ids_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quantumlayer-dev/agentmesh/internal/ids"
)

func TestNewProducesValidID(t *testing.T) {
	id := ids.New(ids.KindTask)
	assert.True(t, ids.Valid(id))
	assert.Contains(t, id, "task_")
}

func TestNewIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := ids.New(ids.KindAgent)
		assert.False(t, seen[id], "duplicate id generated: %s", id)
		seen[id] = true
	}
}

func TestValidRejectsEmptyAndBadChars(t *testing.T) {
	assert.False(t, ids.Valid(""))
	assert.False(t, ids.Valid("has a space"))
	assert.False(t, ids.Valid("has/slash"))
	assert.True(t, ids.Valid("task_123_abc"))
}
