// Package favorite stores per-identity favorite flags on domain objects.
package favorite

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

const favoriteColumns = "identity_id, domain_type, domain_id, created_at"

// Repository handles favorite persistence.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new favorite repository.
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// List returns the favorites in one scope, newest first.
func (r *Repository) List(ctx context.Context, identityID int64, domainType models.DomainType) ([]models.FavoriteEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "favorite.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(favoriteColumns)
	sb.From("favorites")
	sb.Where(
		sb.Equal("identity_id", identityID),
		sb.Equal("domain_type", domainType),
	)
	sb.OrderBy("created_at DESC", "domain_id ASC")

	query, args := sb.Build()
	var entries []models.FavoriteEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"identity_id": identityID, "domain_type": domainType}).Error("Failed to list favorites")
		return nil, errs.Internal("failed to list favorites")
	}
	return entries, nil
}

// IsFavorite reports whether the domain object is flagged.
func (r *Repository) IsFavorite(ctx context.Context, identityID int64, domainType models.DomainType, domainID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "favorite.Repository.IsFavorite")
	defer span.End()

	query := `
		SELECT EXISTS (
			SELECT 1 FROM favorites
			WHERE identity_id = $1 AND domain_type = $2 AND domain_id = $3
		)
	`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, identityID, domainType, domainID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"identity_id": identityID, "domain_id": domainID}).Error("Failed to check favorite")
		return false, errs.Internal("failed to check favorite")
	}
	return exists, nil
}

// Set forces the flag to a target state. Both directions are idempotent:
// flagging an existing favorite and clearing an absent one are no-ops.
func (r *Repository) Set(ctx context.Context, identityID int64, domainType models.DomainType, domainID string, favorite bool) (changed bool, err error) {
	ctx, span := tracing.StartSpan(ctx, "favorite.Repository.Set")
	defer span.End()

	if favorite {
		query := `
			INSERT INTO favorites (identity_id, domain_type, domain_id, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (identity_id, domain_type, domain_id) DO NOTHING
		`
		result, execErr := r.db.ExecContext(ctx, query, identityID, domainType, domainID, time.Now().UTC())
		if execErr != nil {
			r.logger.WithContext(ctx).WithError(execErr).WithFields(map[string]any{"identity_id": identityID, "domain_id": domainID}).Error("Failed to set favorite")
			return false, errs.Internal("failed to set favorite")
		}
		rows, _ := result.RowsAffected()
		return rows > 0, nil
	}

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("favorites")
	sb.Where(
		sb.Equal("identity_id", identityID),
		sb.Equal("domain_type", domainType),
		sb.Equal("domain_id", domainID),
	)

	query, args := sb.Build()
	result, execErr := r.db.ExecContext(ctx, query, args...)
	if execErr != nil {
		r.logger.WithContext(ctx).WithError(execErr).WithFields(map[string]any{"identity_id": identityID, "domain_id": domainID}).Error("Failed to clear favorite")
		return false, errs.Internal("failed to clear favorite")
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// Toggle flips the flag and returns the resulting state. The insert-first
// shape keeps the flip atomic under concurrent toggles: exactly one of the
// two statements changes a row.
func (r *Repository) Toggle(ctx context.Context, identityID int64, domainType models.DomainType, domainID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "favorite.Repository.Toggle")
	defer span.End()

	txCtx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return false, errs.Unavailable(err)
	}
	defer tx.Rollback(ctx)

	insert := `
		INSERT INTO favorites (identity_id, domain_type, domain_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (identity_id, domain_type, domain_id) DO NOTHING
	`
	result, err := tx.ExecContext(txCtx, insert, identityID, domainType, domainID, time.Now().UTC())
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"identity_id": identityID, "domain_id": domainID}).Error("Failed to toggle favorite")
		return false, errs.Internal("failed to toggle favorite")
	}

	inserted, _ := result.RowsAffected()
	if inserted == 0 {
		del := `
			DELETE FROM favorites
			WHERE identity_id = $1 AND domain_type = $2 AND domain_id = $3
		`
		if _, err := tx.ExecContext(txCtx, del, identityID, domainType, domainID); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"identity_id": identityID, "domain_id": domainID}).Error("Failed to toggle favorite")
			return false, errs.Internal("failed to toggle favorite")
		}
	}

	if err := tx.Commit(txCtx); err != nil {
		return false, errs.Unavailable(err)
	}
	return inserted > 0, nil
}
