package models

import "time"

// SortableEntry is one item in a user's custom ordering of a domain type.
// Positions are gap-spaced integers: reordering writes a single row and never
// renumbers siblings. Positions are not unique; list order is
// position ASC, domain_id ASC.
type SortableEntry struct {
	IdentityID int64      `json:"-" db:"identity_id"`
	DomainType DomainType `json:"domain_type" db:"domain_type"`
	DomainID   string     `json:"domain_id" db:"domain_id"`
	Position   int64      `json:"position" db:"position"`
	Version    int64      `json:"-" db:"version"`
	ETag       string     `json:"etag" db:"-"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// AddSortableRequest appends or inserts a new item into the ordering.
// Position omitted means "append after the current maximum".
type AddSortableRequest struct {
	DomainID string `json:"domain_id" validate:"required,max=64"`
	Position *int64 `json:"position,omitempty"`
}

// ReorderSortableRequest moves a single existing item to a new position.
type ReorderSortableRequest struct {
	Position    int64  `json:"position" validate:"required"`
	ExpectedTag string `json:"expected_tag,omitempty"`
}

// SortableListResponse is the ordered view of one scope.
type SortableListResponse struct {
	DomainType DomainType      `json:"domain_type"`
	Items      []SortableEntry `json:"items"`
	ETag       string          `json:"etag"`
}

// SortableEntryResponse wraps a single entry.
type SortableEntryResponse struct {
	Entry SortableEntry `json:"entry"`
}

// CompactResponse reports the result of a compaction run.
type CompactResponse struct {
	DomainType DomainType `json:"domain_type"`
	Renumbered int        `json:"renumbered"`
}
