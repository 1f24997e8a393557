package models

import (
	"time"
)

// IdentityKind distinguishes retail callers (single external id) from corporate
// callers (primary + secondary external id).
type IdentityKind string

const (
	IdentityKindRetail IdentityKind = "retail"
	IdentityKindCorp   IdentityKind = "corp"
)

// DomainType identifies which externally-owned entity family a favorite or
// sortable row refers to. The domain id itself is never validated here.
type DomainType string

const (
	DomainTypeAccount DomainType = "account"
	DomainTypePartner DomainType = "partner"
)

// IsValid reports whether the domain type is one of the known families.
func (d DomainType) IsValid() bool {
	return d == DomainTypeAccount || d == DomainTypePartner
}

// Identity maps an externally-supplied identifier pair to the internal numeric
// handle that owns all preference, favorite and sortable rows.
// Invariant: (primary_external_id, secondary_external_id) unique;
// secondary_external_id is present iff kind = corp.
type Identity struct {
	ID                  int64        `json:"id" db:"id"`
	PrimaryExternalID   string       `json:"primary_external_id" db:"primary_external_id"`
	SecondaryExternalID *string      `json:"secondary_external_id,omitempty" db:"secondary_external_id"`
	Kind                IdentityKind `json:"kind" db:"kind"`
	Active              bool         `json:"active" db:"active"`
	CreatedAt           time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at" db:"updated_at"`
}

// IdentityResponse wraps an identity for API responses.
type IdentityResponse struct {
	Identity Identity `json:"identity"`
}
