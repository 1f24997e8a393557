// Package preference stores key/value settings scoped to
// (identity, key, compat_version).
package preference

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/szsalyi/customization-poc-sub000/pkg/database"
	"github.com/szsalyi/customization-poc-sub000/pkg/errs"
	"github.com/szsalyi/customization-poc-sub000/pkg/models"
	"github.com/szsalyi/customization-poc-sub000/pkg/tracing"
)

const preferenceColumns = "identity_id, key, value, compat_version, version, created_at, updated_at"

// Repository handles preference persistence.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new preference repository.
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// List returns all preferences for one compat version, ordered by key.
func (r *Repository) List(ctx context.Context, identityID int64, compatVersion string) ([]models.PreferenceEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "preference.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(preferenceColumns)
	sb.From("preferences")
	sb.Where(
		sb.Equal("identity_id", identityID),
		sb.Equal("compat_version", compatVersion),
	)
	sb.OrderBy("key ASC")

	query, args := sb.Build()
	var entries []models.PreferenceEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"identity_id": identityID, "compat_version": compatVersion}).Error("Failed to list preferences")
		return nil, errs.Internal("failed to list preferences")
	}
	return entries, nil
}

// ListVersions returns the compat versions the identity has preferences under.
func (r *Repository) ListVersions(ctx context.Context, identityID int64) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "preference.Repository.ListVersions")
	defer span.End()

	query := `
		SELECT DISTINCT compat_version
		FROM preferences
		WHERE identity_id = $1
		ORDER BY compat_version
	`
	var versions []string
	if err := r.db.SelectContext(ctx, &versions, query, identityID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"identity_id": identityID}).Error("Failed to list compat versions")
		return nil, errs.Internal("failed to list compat versions")
	}
	return versions, nil
}

// Get returns one preference, or nil when absent.
func (r *Repository) Get(ctx context.Context, identityID int64, key, compatVersion string) (*models.PreferenceEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "preference.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(preferenceColumns)
	sb.From("preferences")
	sb.Where(
		sb.Equal("identity_id", identityID),
		sb.Equal("key", key),
		sb.Equal("compat_version", compatVersion),
	)

	query, args := sb.Build()
	var entry models.PreferenceEntry
	if err := r.db.GetContext(ctx, &entry, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"identity_id": identityID, "key": key}).Error("Failed to get preference")
		return nil, errs.Internal("failed to get preference")
	}
	return &entry, nil
}

// Upsert writes one preference value keyed on its natural key. The write is a
// single atomic INSERT..ON CONFLICT; replaying the same value reports
// unchanged and bumps nothing.
func (r *Repository) Upsert(ctx context.Context, identityID int64, key, value, compatVersion string) (*models.PreferenceEntry, models.OperationOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, "preference.Repository.Upsert")
	defer span.End()

	now := time.Now().UTC()

	query := `
		INSERT INTO preferences (identity_id, key, value, compat_version, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 1, $5, $5)
		ON CONFLICT (identity_id, compat_version, key)
		DO UPDATE SET
			value = EXCLUDED.value,
			version = preferences.version + 1,
			updated_at = EXCLUDED.updated_at
		WHERE preferences.value IS DISTINCT FROM EXCLUDED.value
		RETURNING ` + preferenceColumns + `, (xmax = 0) AS inserted
	`

	var result struct {
		models.PreferenceEntry
		Inserted bool `db:"inserted"`
	}
	err := r.db.GetContext(ctx, &result, query, identityID, key, value, compatVersion, now)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			// conflict row already carries this exact value
			existing, getErr := r.Get(ctx, identityID, key, compatVersion)
			if getErr != nil {
				return nil, "", getErr
			}
			if existing == nil {
				return nil, "", errs.Internal("preference vanished during upsert")
			}
			return existing, models.OutcomeUnchanged, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"identity_id": identityID, "key": key}).Error("Failed to upsert preference")
		return nil, "", errs.Internal("failed to upsert preference")
	}

	outcome := models.OutcomeUpdated
	if result.Inserted {
		outcome = models.OutcomeCreated
	}
	return &result.PreferenceEntry, outcome, nil
}

// UpdateWithVersion is the compare-and-swap variant: the write applies only
// when the stored version matches. Zero rows affected means either a missing
// row or a token mismatch; the caller distinguishes via Get.
func (r *Repository) UpdateWithVersion(ctx context.Context, identityID int64, key, value, compatVersion string, expectedVersion int64) (*models.PreferenceEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "preference.Repository.UpdateWithVersion")
	defer span.End()

	query := `
		UPDATE preferences
		SET value = $1, version = version + 1, updated_at = $2
		WHERE identity_id = $3 AND key = $4 AND compat_version = $5 AND version = $6
		RETURNING ` + preferenceColumns + `
	`

	var entry models.PreferenceEntry
	err := r.db.GetContext(ctx, &entry, query, value, time.Now().UTC(), identityID, key, compatVersion, expectedVersion)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			existing, getErr := r.Get(ctx, identityID, key, compatVersion)
			if getErr != nil {
				return nil, getErr
			}
			if existing == nil {
				return nil, errs.ItemNotFound(key)
			}
			return nil, errs.PreconditionFailed(key)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"identity_id": identityID, "key": key}).Error("Failed to update preference")
		return nil, errs.Internal("failed to update preference")
	}
	return &entry, nil
}

// Delete removes one preference.
func (r *Repository) Delete(ctx context.Context, identityID int64, key, compatVersion string) error {
	ctx, span := tracing.StartSpan(ctx, "preference.Repository.Delete")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("preferences")
	sb.Where(
		sb.Equal("identity_id", identityID),
		sb.Equal("key", key),
		sb.Equal("compat_version", compatVersion),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"identity_id": identityID, "key": key}).Error("Failed to delete preference")
		return errs.Internal("failed to delete preference")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errs.ItemNotFound(key)
	}
	return nil
}
