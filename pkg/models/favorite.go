package models

import "time"

// FavoriteEntry marks one external entity as a favorite of an identity.
// (identity_id, domain_type, domain_id) is unique; favoriting twice is a no-op.
type FavoriteEntry struct {
	IdentityID int64      `json:"-" db:"identity_id"`
	DomainType DomainType `json:"domain_type" db:"domain_type"`
	DomainID   string     `json:"domain_id" db:"domain_id"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// SetFavoriteRequest forces the favorite state of a single entity.
type SetFavoriteRequest struct {
	Favorite bool `json:"favorite"`
}

// ToggleFavoriteRequest flips the favorite state of a single entity.
type ToggleFavoriteRequest struct {
	DomainID string `json:"domain_id" validate:"required,max=64"`
}

// ToggleFavoriteResponse reports the state after the toggle.
type ToggleFavoriteResponse struct {
	DomainType DomainType `json:"domain_type"`
	DomainID   string     `json:"domain_id"`
	Favorite   bool       `json:"favorite"`
}

// FavoriteListResponse lists favorites newest first.
type FavoriteListResponse struct {
	DomainType DomainType      `json:"domain_type"`
	Items      []FavoriteEntry `json:"items"`
}
