// Package batch applies many customization mutations as one atomic unit of
// work. All writes in a batch share a single transaction: the first failing
// operation rolls back everything already applied and surfaces as a
// BatchFailed error naming the offender. Replaying a committed batch is safe
// because every write is keyed on its natural key and unchanged writes are
// detected instead of re-applied.
package batch

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/szsalyi/customization-poc-sub000/internal/repositories/preference"
	"github.com/szsalyi/customization-poc-sub000/internal/repositories/sortable"
	"github.com/szsalyi/customization-poc-sub000/pkg/database"
	"github.com/szsalyi/customization-poc-sub000/pkg/errs"
	"github.com/szsalyi/customization-poc-sub000/pkg/etag"
	"github.com/szsalyi/customization-poc-sub000/pkg/models"
	"github.com/szsalyi/customization-poc-sub000/pkg/tracing"
)

// Coordinator owns the transaction around multi-item mutations. Repositories
// participate through the transaction carried on the context, so the
// coordinator is the only place that commits.
type Coordinator struct {
	db        database.DB
	sortables *sortable.Repository
	prefs     *preference.Repository
	logger    ectologger.Logger
}

// NewCoordinator creates a batch coordinator.
func NewCoordinator(db database.DB, sortables *sortable.Repository, prefs *preference.Repository, logger ectologger.Logger) *Coordinator {
	return &Coordinator{db: db, sortables: sortables, prefs: prefs, logger: logger}
}

// ApplySortables applies a sortable batch atomically. ifMatch, when not empty,
// is a collection-wide precondition checked against the scope as it exists at
// the start of the transaction. ReplaceAll deletes every row in the scope that
// the batch does not name.
func (c *Coordinator) ApplySortables(ctx context.Context, identityID int64, domainType models.DomainType, req models.BatchSortableRequest, ifMatch string) (*models.BatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "batch.Coordinator.ApplySortables")
	defer span.End()

	if !req.Mode.IsValid() {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown batch mode %q", req.Mode)
	}
	if err := validateSortableOps(req.Operations); err != nil {
		return nil, err
	}

	txCtx, tx, err := c.db.GetTx(ctx, nil)
	if err != nil {
		return nil, errs.Unavailable(err)
	}
	defer tx.Rollback(ctx)

	snapshot, err := c.sortables.SnapshotForUpdate(txCtx, identityID, domainType)
	if err != nil {
		return nil, err
	}

	if ifMatch != "" && !etag.Match(etag.Normalize(ifMatch), collectionTag(snapshot)) {
		return nil, errs.PreconditionFailed("")
	}

	existing := make(map[string]models.SortableEntry, len(snapshot))
	for _, entry := range snapshot {
		existing[entry.DomainID] = entry
	}

	result := &models.BatchResult{Results: make([]models.OperationResult, 0, len(req.Operations))}
	named := make(map[string]bool, len(req.Operations))

	for _, op := range req.Operations {
		named[op.DomainID] = true
		res, opErr := c.applySortableOp(txCtx, identityID, domainType, op, req.Mode, existing)
		if opErr != nil {
			c.logger.WithContext(ctx).WithError(opErr).WithFields(map[string]any{"identity_id": identityID, "domain_id": op.DomainID}).Warn("Batch operation failed, rolling back")
			return nil, errs.BatchFailed(op.DomainID, opErr)
		}
		result.Append(res)
	}

	if req.ReplaceAll {
		for _, entry := range snapshot {
			if named[entry.DomainID] {
				continue
			}
			if err := c.sortables.Delete(txCtx, identityID, domainType, entry.DomainID, 0); err != nil {
				return nil, errs.BatchFailed(entry.DomainID, err)
			}
			result.Append(models.OperationResult{DomainID: entry.DomainID, Outcome: models.OutcomeDeleted})
		}
	}

	// Final state read inside the transaction so the returned collection token
	// is exactly what a follow-up read would compute.
	final, err := c.sortables.List(txCtx, identityID, domainType)
	if err != nil {
		return nil, err
	}
	result.ETag = collectionTag(final)

	if err := tx.Commit(txCtx); err != nil {
		return nil, errs.Unavailable(err)
	}

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"identity_id": identityID,
		"domain_type": domainType,
		"created":     result.Summary.Created,
		"updated":     result.Summary.Updated,
		"deleted":     result.Summary.Deleted,
		"unchanged":   result.Summary.Unchanged,
	}).Info("Applied sortable batch")
	return result, nil
}

// applySortableOp classifies and applies one operation against the locked
// snapshot. The snapshot map is the truth for existence checks; the repository
// does the actual writes.
func (c *Coordinator) applySortableOp(txCtx context.Context, identityID int64, domainType models.DomainType, op models.SortableOperation, mode models.BatchMode, existing map[string]models.SortableEntry) (models.OperationResult, error) {
	current, found := existing[op.DomainID]

	var expectedVersion int64
	if op.ExpectedTag != "" {
		version, err := etag.ParseVersion(etag.Normalize(op.ExpectedTag))
		if err != nil {
			return models.OperationResult{}, errs.PreconditionFailed(op.DomainID)
		}
		if !found {
			return models.OperationResult{}, errs.ItemNotFound(op.DomainID)
		}
		if version != current.Version {
			return models.OperationResult{}, errs.PreconditionFailed(op.DomainID)
		}
		expectedVersion = version
	}

	if op.Delete {
		if !found {
			// deleting an absent item is a no-op so batch replay stays safe
			return models.OperationResult{DomainID: op.DomainID, Outcome: models.OutcomeUnchanged}, nil
		}
		if err := c.sortables.Delete(txCtx, identityID, domainType, op.DomainID, expectedVersion); err != nil {
			return models.OperationResult{}, err
		}
		return models.OperationResult{DomainID: op.DomainID, Outcome: models.OutcomeDeleted}, nil
	}

	if !found {
		if mode == models.BatchModeUpdateOnly {
			return models.OperationResult{}, errs.UnknownItem(op.DomainID)
		}
		entry, err := c.sortables.Insert(txCtx, identityID, domainType, op.DomainID, op.Position)
		if err != nil {
			return models.OperationResult{}, err
		}
		existing[op.DomainID] = *entry
		return models.OperationResult{DomainID: op.DomainID, Outcome: models.OutcomeCreated, Position: entry.Position, ETag: etag.FromVersion(entry.Version)}, nil
	}

	if current.Position == op.Position {
		return models.OperationResult{DomainID: op.DomainID, Outcome: models.OutcomeUnchanged, Position: current.Position, ETag: etag.FromVersion(current.Version)}, nil
	}

	entry, err := c.sortables.UpdatePosition(txCtx, identityID, domainType, op.DomainID, op.Position, expectedVersion)
	if err != nil {
		return models.OperationResult{}, err
	}
	existing[op.DomainID] = *entry
	return models.OperationResult{DomainID: op.DomainID, Outcome: models.OutcomeUpdated, Position: entry.Position, ETag: etag.FromVersion(entry.Version)}, nil
}

// ApplyPreferences applies a preference batch atomically under one compat
// version. Mode update_only fails the whole batch on the first key that does
// not exist yet.
func (c *Coordinator) ApplyPreferences(ctx context.Context, identityID int64, req models.BatchPreferenceRequest) (*models.BatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "batch.Coordinator.ApplyPreferences")
	defer span.End()

	if !req.Mode.IsValid() {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown batch mode %q", req.Mode)
	}
	if err := validatePreferenceEntries(req.Entries); err != nil {
		return nil, err
	}

	txCtx, tx, err := c.db.GetTx(ctx, nil)
	if err != nil {
		return nil, errs.Unavailable(err)
	}
	defer tx.Rollback(ctx)

	result := &models.BatchResult{Results: make([]models.OperationResult, 0, len(req.Entries))}

	for _, entry := range req.Entries {
		res, opErr := c.applyPreferenceOp(txCtx, identityID, req.CompatVersion, entry, req.Mode)
		if opErr != nil {
			c.logger.WithContext(ctx).WithError(opErr).WithFields(map[string]any{"identity_id": identityID, "key": entry.Key}).Warn("Batch operation failed, rolling back")
			return nil, errs.BatchFailed(entry.Key, opErr)
		}
		result.Append(res)
	}

	final, err := c.prefs.List(txCtx, identityID, req.CompatVersion)
	if err != nil {
		return nil, err
	}
	items := make([]etag.Item, len(final))
	for i, p := range final {
		items[i] = etag.Item{DomainID: p.Key, Version: p.Version}
	}
	result.ETag = etag.Collection(items)

	if err := tx.Commit(txCtx); err != nil {
		return nil, errs.Unavailable(err)
	}

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"identity_id":    identityID,
		"compat_version": req.CompatVersion,
		"created":        result.Summary.Created,
		"updated":        result.Summary.Updated,
		"unchanged":      result.Summary.Unchanged,
	}).Info("Applied preference batch")
	return result, nil
}

func (c *Coordinator) applyPreferenceOp(txCtx context.Context, identityID int64, compatVersion string, entry models.BatchPreferenceEntry, mode models.BatchMode) (models.OperationResult, error) {
	if entry.ExpectedTag != "" {
		version, err := etag.ParseVersion(etag.Normalize(entry.ExpectedTag))
		if err != nil {
			return models.OperationResult{}, errs.PreconditionFailed(entry.Key)
		}
		updated, err := c.prefs.UpdateWithVersion(txCtx, identityID, entry.Key, entry.Value, compatVersion, version)
		if err != nil {
			return models.OperationResult{}, err
		}
		return models.OperationResult{DomainID: entry.Key, Outcome: models.OutcomeUpdated, ETag: etag.FromVersion(updated.Version)}, nil
	}

	if mode == models.BatchModeUpdateOnly {
		current, err := c.prefs.Get(txCtx, identityID, entry.Key, compatVersion)
		if err != nil {
			return models.OperationResult{}, err
		}
		if current == nil {
			return models.OperationResult{}, errs.UnknownItem(entry.Key)
		}
	}

	stored, outcome, err := c.prefs.Upsert(txCtx, identityID, entry.Key, entry.Value, compatVersion)
	if err != nil {
		return models.OperationResult{}, err
	}
	return models.OperationResult{DomainID: entry.Key, Outcome: outcome, ETag: etag.FromVersion(stored.Version)}, nil
}

func validateSortableOps(ops []models.SortableOperation) error {
	seen := make(map[string]bool, len(ops))
	for _, op := range ops {
		if seen[op.DomainID] {
			return errs.DuplicateItem(op.DomainID)
		}
		seen[op.DomainID] = true
		if !op.Delete && op.Position <= 0 {
			return errs.InvalidPosition(op.Position)
		}
	}
	return nil
}

func validatePreferenceEntries(entries []models.BatchPreferenceEntry) error {
	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if seen[entry.Key] {
			return errs.DuplicateItem(entry.Key)
		}
		seen[entry.Key] = true
	}
	return nil
}

func collectionTag(entries []models.SortableEntry) string {
	items := make([]etag.Item, len(entries))
	for i, entry := range entries {
		items[i] = etag.Item{DomainID: entry.DomainID, Version: entry.Version}
	}
	return etag.Collection(items)
}
