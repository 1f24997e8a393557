// Package identity resolves external identifier pairs to the internal numeric
// handle that owns all customization rows.
package identity

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/szsalyi/customization-poc-sub000/pkg/database"
	"github.com/szsalyi/customization-poc-sub000/pkg/errs"
	"github.com/szsalyi/customization-poc-sub000/pkg/models"
	"github.com/szsalyi/customization-poc-sub000/pkg/tracing"
)

const identityColumns = "id, primary_external_id, secondary_external_id, kind, active, created_at, updated_at"

// nullSecondary is the sentinel the unique index folds NULL secondaries to.
const nullSecondary = "00000000-0000-0000-0000-000000000000"

// Repository handles identity persistence and resolution.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new identity repository.
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// ValidateExternalID checks UUID lexical form before any store access.
func ValidateExternalID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errs.InvalidIdentifier(id)
	}
	return nil
}

// Resolve maps an external identifier pair to the internal handle. When no
// active identity matches and allowCreate is set, one is created; resolution
// plus insert is a single conditional statement so concurrent first contact
// for the same pair cannot create two handles.
func (r *Repository) Resolve(ctx context.Context, primary string, secondary *string, allowCreate bool) (*models.Identity, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Repository.Resolve")
	defer span.End()

	if err := ValidateExternalID(primary); err != nil {
		return nil, err
	}
	if secondary != nil {
		if err := ValidateExternalID(*secondary); err != nil {
			return nil, err
		}
	}

	if !allowCreate {
		existing, err := r.GetByExternalPair(ctx, primary, secondary)
		if err != nil {
			return nil, err
		}
		if existing == nil || !existing.Active {
			return nil, errs.IdentityNotFound()
		}
		return existing, nil
	}

	kind := models.IdentityKindRetail
	if secondary != nil {
		kind = models.IdentityKindCorp
	}

	now := time.Now().UTC()

	// Single atomic insert-if-absent. The no-op DO UPDATE makes the row come
	// back through RETURNING on conflict; (xmax = 0) distinguishes the insert.
	query := `
		INSERT INTO identities (primary_external_id, secondary_external_id, kind, active, created_at, updated_at)
		VALUES ($1, $2, $3, TRUE, $4, $4)
		ON CONFLICT (primary_external_id, COALESCE(secondary_external_id, '` + nullSecondary + `'::uuid))
		DO UPDATE SET updated_at = identities.updated_at
		RETURNING ` + identityColumns + `, (xmax = 0) AS inserted
	`

	var result struct {
		models.Identity
		Inserted bool `db:"inserted"`
	}
	if err := r.db.GetContext(ctx, &result, query, primary, secondary, kind, now); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"primary_external_id": primary}).Error("Failed to resolve identity")
		return nil, errs.Internal("failed to resolve identity")
	}

	if !result.Active {
		// a deactivated identity is never resolved; its rows await cleanup
		return nil, errs.IdentityNotFound()
	}

	if result.Inserted {
		r.logger.WithContext(ctx).WithFields(map[string]any{"identity_id": result.ID, "kind": kind}).Info("Created identity")
	}
	return &result.Identity, nil
}

// GetByExternalPair returns the identity matching the pair, or nil.
func (r *Repository) GetByExternalPair(ctx context.Context, primary string, secondary *string) (*models.Identity, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Repository.GetByExternalPair")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(identityColumns)
	sb.From("identities")
	where := []string{sb.Equal("primary_external_id", primary)}
	if secondary != nil {
		where = append(where, sb.Equal("secondary_external_id", *secondary))
	} else {
		where = append(where, sb.IsNull("secondary_external_id"))
	}
	sb.Where(where...)
	sb.Limit(1)

	query, args := sb.Build()
	var identity models.Identity
	if err := r.db.GetContext(ctx, &identity, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"primary_external_id": primary}).Error("Failed to get identity by external pair")
		return nil, errs.Internal("failed to get identity")
	}
	return &identity, nil
}

// GetByID returns the identity for an internal handle, or nil.
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Identity, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(identityColumns)
	sb.From("identities")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var identity models.Identity
	if err := r.db.GetContext(ctx, &identity, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"identity_id": id}).Error("Failed to get identity")
		return nil, errs.Internal("failed to get identity")
	}
	return &identity, nil
}

// Deactivate marks an identity inactive. Its rows stay in place until Delete.
func (r *Repository) Deactivate(ctx context.Context, id int64) error {
	ctx, span := tracing.StartSpan(ctx, "identity.Repository.Deactivate")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("identities")
	sb.Set(sb.Assign("active", false), sb.Assign("updated_at", time.Now().UTC()))
	sb.Where(sb.Equal("id", id), sb.Equal("active", true))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"identity_id": id}).Error("Failed to deactivate identity")
		return errs.Internal("failed to deactivate identity")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errs.IdentityNotFound()
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"identity_id": id}).Info("Deactivated identity")
	return nil
}

// Delete removes an identity and, in the same transaction, every preference,
// favorite and sortable row it owns. The cascade is explicit here rather than
// delegated to ON DELETE clauses so the ownership contract is visible and the
// per-table counts can be reported.
func (r *Repository) Delete(ctx context.Context, id int64) (map[string]int64, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Repository.Delete")
	defer span.End()

	txCtx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, errs.Unavailable(err)
	}
	defer tx.Rollback(ctx)

	counts := make(map[string]int64)
	for _, table := range []string{"preferences", "favorites", "sortables"} {
		result, err := tx.ExecContext(txCtx, "DELETE FROM "+table+" WHERE identity_id = $1", id)
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"identity_id": id, "table": table}).Error("Failed to cascade delete identity rows")
			return nil, errs.Internal("failed to delete identity data")
		}
		counts[table], _ = result.RowsAffected()
	}

	result, err := tx.ExecContext(txCtx, "DELETE FROM identities WHERE id = $1", id)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"identity_id": id}).Error("Failed to delete identity")
		return nil, errs.Internal("failed to delete identity")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, errs.IdentityNotFound()
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, errs.Unavailable(err)
	}

	fields := map[string]any{"identity_id": id}
	for table, count := range counts {
		fields[table] = count
	}
	r.logger.WithContext(ctx).WithFields(fields).Info("Deleted identity and owned rows")
	return counts, nil
}
