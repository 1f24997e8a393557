// Package sorting is the ordering engine over sortable scopes. It owns the
// gap-position math for single-item edits and the locked maintenance pass
// that restores spacing when repeated reorders have consumed the gaps.
package sorting

import (
	"context"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/szsalyi/customization-poc-sub000/internal/repositories/sortable"
	"github.com/szsalyi/customization-poc-sub000/pkg/database"
	"github.com/szsalyi/customization-poc-sub000/pkg/errs"
	"github.com/szsalyi/customization-poc-sub000/pkg/etag"
	"github.com/szsalyi/customization-poc-sub000/pkg/models"
	"github.com/szsalyi/customization-poc-sub000/pkg/ordering"
	"github.com/szsalyi/customization-poc-sub000/pkg/redis"
	"github.com/szsalyi/customization-poc-sub000/pkg/tracing"
)

const (
	compactLockTTL     = 30 * time.Second
	compactLockTimeout = 5 * time.Second
)

// Engine implements single-item ordering operations and compaction.
// Multi-item mutations go through the batch coordinator instead.
type Engine struct {
	db     database.DB
	repo   *sortable.Repository
	locker *redis.Locker
	logger ectologger.Logger
}

// NewEngine creates a sorting engine. locker may be nil in single-instance
// deployments; compaction then runs without the cross-instance guard.
func NewEngine(db database.DB, repo *sortable.Repository, locker *redis.Locker, logger ectologger.Logger) *Engine {
	return &Engine{db: db, repo: repo, locker: locker, logger: logger}
}

// List returns the scope in display order with per-item and collection tokens.
func (e *Engine) List(ctx context.Context, identityID int64, domainType models.DomainType) (*models.SortableListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "sorting.Engine.List")
	defer span.End()

	entries, err := e.repo.List(ctx, identityID, domainType)
	if err != nil {
		return nil, err
	}

	items := make([]etag.Item, len(entries))
	for i := range entries {
		entries[i].ETag = etag.FromVersion(entries[i].Version)
		items[i] = etag.Item{DomainID: entries[i].DomainID, Version: entries[i].Version}
	}

	return &models.SortableListResponse{
		DomainType: domainType,
		Items:      entries,
		ETag:       etag.Collection(items),
	}, nil
}

// Add inserts a new item. Without an explicit position it appends one gap
// past the current maximum. Two concurrent appends may land on the same
// position; that is fine, list order falls back to domain_id.
func (e *Engine) Add(ctx context.Context, identityID int64, domainType models.DomainType, req models.AddSortableRequest) (*models.SortableEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "sorting.Engine.Add")
	defer span.End()

	var position int64
	if req.Position != nil {
		if *req.Position <= 0 {
			return nil, errs.InvalidPosition(*req.Position)
		}
		position = *req.Position
	} else {
		max, err := e.repo.MaxPosition(ctx, identityID, domainType)
		if err != nil {
			return nil, err
		}
		position = ordering.AppendPosition(max)
	}

	entry, err := e.repo.Insert(ctx, identityID, domainType, req.DomainID, position)
	if err != nil {
		return nil, err
	}
	entry.ETag = etag.FromVersion(entry.Version)
	return entry, nil
}

// Reorder moves one item to an explicit position. The write touches exactly
// one row; siblings keep their positions.
func (e *Engine) Reorder(ctx context.Context, identityID int64, domainType models.DomainType, domainID string, req models.ReorderSortableRequest) (*models.SortableEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "sorting.Engine.Reorder")
	defer span.End()

	if req.Position <= 0 {
		return nil, errs.InvalidPosition(req.Position)
	}

	var expectedVersion int64
	if req.ExpectedTag != "" {
		version, err := etag.ParseVersion(etag.Normalize(req.ExpectedTag))
		if err != nil {
			return nil, errs.PreconditionFailed(domainID)
		}
		expectedVersion = version
	}

	entry, err := e.repo.UpdatePosition(ctx, identityID, domainType, domainID, req.Position, expectedVersion)
	if err != nil {
		return nil, err
	}
	entry.ETag = etag.FromVersion(entry.Version)
	return entry, nil
}

// PositionBetween computes a position between two existing items, for clients
// that address moves by neighbors rather than raw positions. ok is false when
// the gap is exhausted and the scope needs compaction first.
func (e *Engine) PositionBetween(ctx context.Context, identityID int64, domainType models.DomainType, afterID, beforeID string) (int64, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "sorting.Engine.PositionBetween")
	defer span.End()

	var lo, hi int64
	if afterID != "" {
		after, err := e.repo.Get(ctx, identityID, domainType, afterID)
		if err != nil {
			return 0, false, err
		}
		if after == nil {
			return 0, false, errs.ItemNotFound(afterID)
		}
		lo = after.Position
	}
	if beforeID != "" {
		before, err := e.repo.Get(ctx, identityID, domainType, beforeID)
		if err != nil {
			return 0, false, err
		}
		if before == nil {
			return 0, false, errs.ItemNotFound(beforeID)
		}
		hi = before.Position
	} else {
		max, err := e.repo.MaxPosition(ctx, identityID, domainType)
		if err != nil {
			return 0, false, err
		}
		return ordering.AppendPosition(max), true, nil
	}

	position, ok := ordering.Between(lo, hi)
	return position, ok, nil
}

// Remove deletes one item. Remaining positions are left untouched; the gaps
// they leave behind are reclaimed by the next compaction.
func (e *Engine) Remove(ctx context.Context, identityID int64, domainType models.DomainType, domainID, expectedTag string) error {
	ctx, span := tracing.StartSpan(ctx, "sorting.Engine.Remove")
	defer span.End()

	var expectedVersion int64
	if expectedTag != "" {
		version, err := etag.ParseVersion(etag.Normalize(expectedTag))
		if err != nil {
			return errs.PreconditionFailed(domainID)
		}
		expectedVersion = version
	}

	return e.repo.Delete(ctx, identityID, domainType, domainID, expectedVersion)
}

// Compact renumbers the scope back to full gap spacing, preserving order.
// The scope is locked twice over: a Redis lock keeps other instances out, and
// the row locks of the snapshot keep concurrent single-item edits out.
// Compacting an already-compact scope writes nothing.
func (e *Engine) Compact(ctx context.Context, identityID int64, domainType models.DomainType) (*models.CompactResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "sorting.Engine.Compact")
	defer span.End()

	run := func() (*models.CompactResponse, error) {
		return e.compactLocked(ctx, identityID, domainType)
	}

	if e.locker == nil {
		return run()
	}

	key := compactLockKey(identityID, domainType)
	lock, err := e.locker.TryAcquire(ctx, key, compactLockTTL, compactLockTimeout)
	if err != nil {
		return nil, errs.Unavailable(err)
	}
	defer lock.Release(ctx)

	return run()
}

func (e *Engine) compactLocked(ctx context.Context, identityID int64, domainType models.DomainType) (*models.CompactResponse, error) {
	txCtx, tx, err := e.db.GetTx(ctx, nil)
	if err != nil {
		return nil, errs.Unavailable(err)
	}
	defer tx.Rollback(ctx)

	snapshot, err := e.repo.SnapshotForUpdate(txCtx, identityID, domainType)
	if err != nil {
		return nil, err
	}

	plan := ordering.Plan(snapshot)
	if len(plan) > 0 {
		if err := e.repo.Renumber(txCtx, identityID, domainType, plan); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, errs.Unavailable(err)
	}

	if len(plan) > 0 {
		e.logger.WithContext(ctx).WithFields(map[string]any{
			"identity_id": identityID,
			"domain_type": domainType,
			"renumbered":  len(plan),
		}).Info("Compacted sortable scope")
	}
	return &models.CompactResponse{DomainType: domainType, Renumbered: len(plan)}, nil
}

func compactLockKey(identityID int64, domainType models.DomainType) string {
	return "compact:" + string(domainType) + ":" + strconv.FormatInt(identityID, 10)
}
