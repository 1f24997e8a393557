package models

import "time"

// PreferenceEntry is a single key/value setting scoped to (identity, key,
// compat_version). At most one value exists per key per version per user.
type PreferenceEntry struct {
	IdentityID    int64     `json:"-" db:"identity_id"`
	Key           string    `json:"key" db:"key"`
	Value         string    `json:"value" db:"value"`
	CompatVersion string    `json:"compat_version" db:"compat_version"`
	Version       int64     `json:"-" db:"version"`
	ETag          string    `json:"etag" db:"-"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// UpsertPreferenceRequest creates or overwrites a single preference value.
type UpsertPreferenceRequest struct {
	Key           string `json:"key" validate:"required,max=128"`
	Value         string `json:"value" validate:"required"`
	CompatVersion string `json:"compat_version" validate:"required,max=32"`
	ExpectedTag   string `json:"expected_tag,omitempty"`
}

// BatchPreferenceRequest applies several preference upserts atomically.
type BatchPreferenceRequest struct {
	CompatVersion string                 `json:"compat_version" validate:"required,max=32"`
	Entries       []BatchPreferenceEntry `json:"entries" validate:"required,min=1,dive"`
	Mode          BatchMode              `json:"mode,omitempty"`
}

// BatchPreferenceEntry is one key/value pair inside a preference batch.
type BatchPreferenceEntry struct {
	Key         string `json:"key" validate:"required,max=128"`
	Value       string `json:"value" validate:"required"`
	ExpectedTag string `json:"expected_tag,omitempty"`
}

// PreferenceListResponse is the ordered key/value view for one compat version.
type PreferenceListResponse struct {
	CompatVersion string            `json:"compat_version"`
	Items         []PreferenceEntry `json:"items"`
	ETag          string            `json:"etag"`
}

// CompatVersionListResponse lists the compat versions a user has stored
// preferences under.
type CompatVersionListResponse struct {
	Versions []string `json:"versions"`
}
