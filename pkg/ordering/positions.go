// Package ordering implements the gap-based position scheme for sortables.
// Positions are spaced integers so that moving an item is a single-row write:
// the new position is chosen between its new neighbors (or beyond an end)
// without touching any sibling. Gaps shrink under repeated fine-grained
// reordering; Plan produces the renumbering that reclaims spacing.
package ordering

import (
	"github.com/szsalyi/customization-poc-sub000/pkg/models"
)

// GapStep is the spacing between freshly assigned positions.
const GapStep int64 = 10

// MinGap is the adjacent-gap threshold below which a scope is considered
// worth compacting. Compaction is never required for correctness.
const MinGap int64 = 2

// AppendPosition returns the position for an item added without an explicit
// position: one gap past the current maximum, or the first slot when the
// scope is empty.
func AppendPosition(currentMax int64) int64 {
	if currentMax <= 0 {
		return GapStep
	}
	return currentMax + GapStep
}

// Between returns a position strictly between lo and hi, and whether such an
// integer exists. lo may be 0 to mean "before the first item".
func Between(lo, hi int64) (int64, bool) {
	if hi-lo < 2 {
		return 0, false
	}
	return lo + (hi-lo)/2, true
}

// NeedsCompaction reports whether any adjacent pair in the ordered position
// slice is closer than MinGap, including duplicate positions.
func NeedsCompaction(positions []int64) bool {
	for i := 1; i < len(positions); i++ {
		if positions[i]-positions[i-1] < MinGap {
			return true
		}
	}
	return false
}

// Renumber is one position rewrite inside a compaction plan.
type Renumber struct {
	DomainID string
	Position int64
}

// Plan renumbers the given entries (already in list order: position ASC,
// domain_id ASC) to GapStep, 2*GapStep, ... preserving relative order. Entries
// whose position is already correct are omitted, so replaying a plan against
// an already-compacted scope yields no writes.
func Plan(entries []models.SortableEntry) []Renumber {
	var plan []Renumber
	next := GapStep
	for _, entry := range entries {
		if entry.Position != next {
			plan = append(plan, Renumber{DomainID: entry.DomainID, Position: next})
		}
		next += GapStep
	}
	return plan
}
