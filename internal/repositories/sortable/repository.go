// Package sortable persists per-identity ordered collections. Order is
// encoded as gapped integer positions; reading always sorts position ASC with
// domain_id as the deterministic tiebreak, so a single-row position write is
// enough to move one item.
package sortable

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/szsalyi/customization-poc-sub000/pkg/database"
	"github.com/szsalyi/customization-poc-sub000/pkg/errs"
	"github.com/szsalyi/customization-poc-sub000/pkg/models"
	"github.com/szsalyi/customization-poc-sub000/pkg/ordering"
	"github.com/szsalyi/customization-poc-sub000/pkg/tracing"
)

const sortableColumns = "identity_id, domain_type, domain_id, position, version, created_at, updated_at"

// Repository handles sortable persistence.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new sortable repository.
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// List returns every entry in the scope in display order.
func (r *Repository) List(ctx context.Context, identityID int64, domainType models.DomainType) ([]models.SortableEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "sortable.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(sortableColumns)
	sb.From("sortables")
	sb.Where(
		sb.Equal("identity_id", identityID),
		sb.Equal("domain_type", domainType),
	)
	sb.OrderBy("position ASC", "domain_id ASC")

	query, args := sb.Build()
	var entries []models.SortableEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"identity_id": identityID, "domain_type": domainType}).Error("Failed to list sortables")
		return nil, errs.Internal("failed to list sortables")
	}
	return entries, nil
}

// Get returns one entry, or nil when absent.
func (r *Repository) Get(ctx context.Context, identityID int64, domainType models.DomainType, domainID string) (*models.SortableEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "sortable.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(sortableColumns)
	sb.From("sortables")
	sb.Where(
		sb.Equal("identity_id", identityID),
		sb.Equal("domain_type", domainType),
		sb.Equal("domain_id", domainID),
	)

	query, args := sb.Build()
	var entry models.SortableEntry
	if err := r.db.GetContext(ctx, &entry, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"identity_id": identityID, "domain_id": domainID}).Error("Failed to get sortable")
		return nil, errs.Internal("failed to get sortable")
	}
	return &entry, nil
}

// MaxPosition returns the highest position in the scope, 0 when empty.
func (r *Repository) MaxPosition(ctx context.Context, identityID int64, domainType models.DomainType) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "sortable.Repository.MaxPosition")
	defer span.End()

	query := `
		SELECT COALESCE(MAX(position), 0)
		FROM sortables
		WHERE identity_id = $1 AND domain_type = $2
	`
	var max int64
	if err := r.db.GetContext(ctx, &max, query, identityID, domainType); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"identity_id": identityID, "domain_type": domainType}).Error("Failed to read max position")
		return 0, errs.Internal("failed to read max position")
	}
	return max, nil
}

// Insert adds a new entry. An existing entry with the same domain id is a
// DuplicateItem; the ON CONFLICT DO NOTHING shape turns the race between two
// concurrent adds into exactly one winner.
func (r *Repository) Insert(ctx context.Context, identityID int64, domainType models.DomainType, domainID string, position int64) (*models.SortableEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "sortable.Repository.Insert")
	defer span.End()

	query := `
		INSERT INTO sortables (identity_id, domain_type, domain_id, position, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 1, $5, $5)
		ON CONFLICT (identity_id, domain_type, domain_id) DO NOTHING
		RETURNING ` + sortableColumns + `
	`

	var entry models.SortableEntry
	err := r.db.GetContext(ctx, &entry, query, identityID, domainType, domainID, position, time.Now().UTC())
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, errs.DuplicateItem(domainID)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"identity_id": identityID, "domain_id": domainID}).Error("Failed to insert sortable")
		return nil, errs.Internal("failed to insert sortable")
	}
	return &entry, nil
}

// UpdatePosition moves one entry. expectedVersion > 0 makes the write a
// compare-and-swap; zero rows then means either a missing row or a stale
// token, distinguished with a follow-up read.
func (r *Repository) UpdatePosition(ctx context.Context, identityID int64, domainType models.DomainType, domainID string, position int64, expectedVersion int64) (*models.SortableEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "sortable.Repository.UpdatePosition")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("sortables")
	sb.Set(
		sb.Assign("position", position),
		"version = version + 1",
		sb.Assign("updated_at", time.Now().UTC()),
	)
	where := []string{
		sb.Equal("identity_id", identityID),
		sb.Equal("domain_type", domainType),
		sb.Equal("domain_id", domainID),
	}
	if expectedVersion > 0 {
		where = append(where, sb.Equal("version", expectedVersion))
	}
	sb.Where(where...)

	query, args := sb.Build()
	query += " RETURNING " + sortableColumns

	var entry models.SortableEntry
	err := r.db.GetContext(ctx, &entry, query, args...)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			existing, getErr := r.Get(ctx, identityID, domainType, domainID)
			if getErr != nil {
				return nil, getErr
			}
			if existing == nil {
				return nil, errs.ItemNotFound(domainID)
			}
			return nil, errs.PreconditionFailed(domainID)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"identity_id": identityID, "domain_id": domainID}).Error("Failed to update sortable position")
		return nil, errs.Internal("failed to update sortable position")
	}
	return &entry, nil
}

// Delete removes one entry. expectedVersion > 0 makes it conditional.
func (r *Repository) Delete(ctx context.Context, identityID int64, domainType models.DomainType, domainID string, expectedVersion int64) error {
	ctx, span := tracing.StartSpan(ctx, "sortable.Repository.Delete")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("sortables")
	where := []string{
		sb.Equal("identity_id", identityID),
		sb.Equal("domain_type", domainType),
		sb.Equal("domain_id", domainID),
	}
	if expectedVersion > 0 {
		where = append(where, sb.Equal("version", expectedVersion))
	}
	sb.Where(where...)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"identity_id": identityID, "domain_id": domainID}).Error("Failed to delete sortable")
		return errs.Internal("failed to delete sortable")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		existing, getErr := r.Get(ctx, identityID, domainType, domainID)
		if getErr != nil {
			return getErr
		}
		if existing == nil {
			return errs.ItemNotFound(domainID)
		}
		return errs.PreconditionFailed(domainID)
	}
	return nil
}

// SnapshotForUpdate reads the whole scope in display order with row locks
// held, pinning it for the rest of the transaction. Callers must be inside an
// open transaction.
func (r *Repository) SnapshotForUpdate(ctx context.Context, identityID int64, domainType models.DomainType) ([]models.SortableEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "sortable.Repository.SnapshotForUpdate")
	defer span.End()

	if !database.HasOpenTx(ctx) {
		return nil, errs.Internal("sortable snapshot requires an open transaction")
	}

	query := `
		SELECT ` + sortableColumns + `
		FROM sortables
		WHERE identity_id = $1 AND domain_type = $2
		ORDER BY position ASC, domain_id ASC
		FOR UPDATE
	`
	var entries []models.SortableEntry
	if err := r.db.SelectContext(ctx, &entries, query, identityID, domainType); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"identity_id": identityID, "domain_type": domainType}).Error("Failed to snapshot sortables")
		return nil, errs.Internal("failed to snapshot sortables")
	}
	return entries, nil
}

// Renumber applies a compaction plan. Renumbering is a maintenance rewrite,
// not a user edit, so versions bump to invalidate stale tokens.
func (r *Repository) Renumber(ctx context.Context, identityID int64, domainType models.DomainType, plan []ordering.Renumber) error {
	ctx, span := tracing.StartSpan(ctx, "sortable.Repository.Renumber")
	defer span.End()

	now := time.Now().UTC()
	query := `
		UPDATE sortables
		SET position = $1, version = version + 1, updated_at = $2
		WHERE identity_id = $3 AND domain_type = $4 AND domain_id = $5
	`
	for _, step := range plan {
		if _, err := r.db.ExecContext(ctx, query, step.Position, now, identityID, domainType, step.DomainID); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"identity_id": identityID, "domain_id": step.DomainID}).Error("Failed to renumber sortable")
			return errs.Internal("failed to renumber sortables")
		}
	}
	return nil
}
