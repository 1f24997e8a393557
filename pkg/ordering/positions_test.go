package ordering

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/szsalyi/customization-poc-sub000/pkg/models"
)

func TestAppendPosition(t *testing.T) {
	tests := []struct {
		name       string
		currentMax int64
		expected   int64
	}{
		{name: "empty scope starts at gap step", currentMax: 0, expected: 10},
		{name: "negative max treated as empty", currentMax: -5, expected: 10},
		{name: "appends one gap past max", currentMax: 30, expected: 40},
		{name: "works with non-aligned max", currentMax: 37, expected: 47},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AppendPosition(tt.currentMax))
		})
	}
}

func TestBetween(t *testing.T) {
	tests := []struct {
		name     string
		lo, hi   int64
		expected int64
		ok       bool
	}{
		{name: "midpoint of wide gap", lo: 10, hi: 20, expected: 15, ok: true},
		{name: "before first item", lo: 0, hi: 10, expected: 5, ok: true},
		{name: "gap of two", lo: 10, hi: 12, expected: 11, ok: true},
		{name: "adjacent positions have no room", lo: 10, hi: 11, ok: false},
		{name: "equal positions have no room", lo: 10, hi: 10, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Between(tt.lo, tt.hi)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expected, got)
				assert.Greater(t, got, tt.lo)
				assert.Less(t, got, tt.hi)
			}
		})
	}
}

func TestNeedsCompaction(t *testing.T) {
	assert.False(t, NeedsCompaction(nil))
	assert.False(t, NeedsCompaction([]int64{10}))
	assert.False(t, NeedsCompaction([]int64{10, 20, 30}))
	assert.False(t, NeedsCompaction([]int64{10, 12, 14}))
	assert.True(t, NeedsCompaction([]int64{10, 11, 20}))
	assert.True(t, NeedsCompaction([]int64{10, 10, 20}))
}

func TestPlan(t *testing.T) {
	entries := func(pairs ...any) []models.SortableEntry {
		var out []models.SortableEntry
		for i := 0; i < len(pairs); i += 2 {
			out = append(out, models.SortableEntry{
				DomainID: pairs[i].(string),
				Position: int64(pairs[i+1].(int)),
			})
		}
		return out
	}

	t.Run("renumbers crowded scope", func(t *testing.T) {
		plan := Plan(entries("a", 1, "b", 2, "c", 3))
		assert.Equal(t, []Renumber{
			{DomainID: "a", Position: 10},
			{DomainID: "b", Position: 20},
			{DomainID: "c", Position: 30},
		}, plan)
	})

	t.Run("already compact scope yields no writes", func(t *testing.T) {
		assert.Empty(t, Plan(entries("a", 10, "b", 20, "c", 30)))
	})

	t.Run("only drifted entries are rewritten", func(t *testing.T) {
		plan := Plan(entries("a", 10, "b", 15, "c", 30))
		assert.Equal(t, []Renumber{{DomainID: "b", Position: 20}}, plan)
	})

	t.Run("relative order is preserved for ties", func(t *testing.T) {
		// ties arrive pre-sorted by domain_id, matching list order
		plan := Plan(entries("a", 15, "b", 15, "c", 15))
		assert.Equal(t, []Renumber{
			{DomainID: "a", Position: 10},
			{DomainID: "b", Position: 20},
			{DomainID: "c", Position: 30},
		}, plan)
	})

	t.Run("empty scope", func(t *testing.T) {
		assert.Empty(t, Plan(nil))
	})
}
