package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToggleItemID(t *testing.T) {
	assert.Equal(t, []string{"a"}, toggleItemID(nil, "a"))
	assert.Equal(t, []string{"a", "b"}, toggleItemID([]string{"b"}, "a"))
	assert.Equal(t, []string{"b"}, toggleItemID([]string{"a", "b"}, "a"))

	ids := []string{"x", "y"}
	assert.Equal(t, ids, toggleItemID(toggleItemID(ids, "z"), "z"))
	assert.Equal(t, []string{"x", "y"}, ids, "input must not be modified")
}

func TestNormalizeItemIDs(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, normalizeItemIDs([]string{"b", "a", "", "b"}))
	assert.Equal(t, []string{}, normalizeItemIDs(nil))
}

func TestProgressTable_Get(t *testing.T) {
	table := ProgressTable{"g": {CompletedItemIDs: []string{"a"}, Progress: 50}}

	r := table.Get("g")
	r.CompletedItemIDs[0] = "mutated"
	assert.Equal(t, "a", table["g"].CompletedItemIDs[0])

	assert.Equal(t, ZeroRecord(), table.Get("other"))
	_, ok := table["other"]
	assert.False(t, ok, "get-or-default must not insert")
}

func TestNewRecord(t *testing.T) {
	r := newRecord([]string{"b", "a", "a"}, 4, fixedNow)
	assert.Equal(t, []string{"a", "b"}, r.CompletedItemIDs)
	assert.Equal(t, 50, r.Progress)
	assert.Equal(t, fixedNow, *r.LastUpdated)
	assert.Equal(t, ToggleResult{CompletedItemIDs: []string{"a", "b"}, ProgressPercent: 50}, r.Result())
}
