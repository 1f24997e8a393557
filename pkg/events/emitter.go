// Package events emits change notifications after customization writes
// commit. Emission is best effort: a failed publish is logged and never fails
// the request, since the store is the source of truth.
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/szsalyi/customization-poc-sub000/pkg/kafka"
	"github.com/szsalyi/customization-poc-sub000/pkg/models"
	"github.com/szsalyi/customization-poc-sub000/pkg/tracing"
)

const (
	EventPreferenceUpdated = "customization.preference.updated"
	EventPreferenceDeleted = "customization.preference.deleted"
	EventFavoriteToggled   = "customization.favorite.toggled"
	EventSortableChanged   = "customization.sortable.changed"
	EventSortableCompacted = "customization.sortable.compacted"
	EventBatchApplied      = "customization.batch.applied"
	EventIdentityDeleted   = "customization.identity.deleted"
)

// Emitter publishes change events for committed writes.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates an event emitter. producer may be nil, which disables
// emission entirely.
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{producer: producer, logger: logger}
}

func (e *Emitter) emit(ctx context.Context, event *kafka.ChangeEvent) {
	if e.producer == nil {
		return
	}
	if err := e.producer.PublishChangeEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": event.EventType,
		}).Error("Failed to emit change event")
	}
}

// EmitPreferenceUpdated reports one committed preference write.
func (e *Emitter) EmitPreferenceUpdated(ctx context.Context, identityID int64, entry *models.PreferenceEntry) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitPreferenceUpdated")
	defer span.End()

	data, _ := json.Marshal(entry)
	e.emit(ctx, &kafka.ChangeEvent{
		EventType:  EventPreferenceUpdated,
		IdentityID: identityID,
		Scope:      entry.CompatVersion,
		Subject:    entry.Key,
		Data:       data,
	})
}

// EmitPreferenceDeleted reports one committed preference delete.
func (e *Emitter) EmitPreferenceDeleted(ctx context.Context, identityID int64, key, compatVersion string) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitPreferenceDeleted")
	defer span.End()

	e.emit(ctx, &kafka.ChangeEvent{
		EventType:  EventPreferenceDeleted,
		IdentityID: identityID,
		Scope:      compatVersion,
		Subject:    key,
	})
}

// EmitFavoriteToggled reports a favorite flag flip and its resulting state.
func (e *Emitter) EmitFavoriteToggled(ctx context.Context, identityID int64, domainType models.DomainType, domainID string, favorite bool) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitFavoriteToggled")
	defer span.End()

	data, _ := json.Marshal(map[string]bool{"favorite": favorite})
	e.emit(ctx, &kafka.ChangeEvent{
		EventType:  EventFavoriteToggled,
		IdentityID: identityID,
		Scope:      string(domainType),
		Subject:    domainID,
		Data:       data,
	})
}

// EmitSortableChanged reports one committed single-item ordering change.
func (e *Emitter) EmitSortableChanged(ctx context.Context, identityID int64, domainType models.DomainType, domainID string) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitSortableChanged")
	defer span.End()

	e.emit(ctx, &kafka.ChangeEvent{
		EventType:  EventSortableChanged,
		IdentityID: identityID,
		Scope:      string(domainType),
		Subject:    domainID,
	})
}

// EmitSortableCompacted reports a committed compaction run.
func (e *Emitter) EmitSortableCompacted(ctx context.Context, identityID int64, domainType models.DomainType, renumbered int) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitSortableCompacted")
	defer span.End()

	data, _ := json.Marshal(map[string]int{"renumbered": renumbered})
	e.emit(ctx, &kafka.ChangeEvent{
		EventType:  EventSortableCompacted,
		IdentityID: identityID,
		Scope:      string(domainType),
		Data:       data,
	})
}

// EmitBatchApplied reports one committed batch with its outcome summary.
func (e *Emitter) EmitBatchApplied(ctx context.Context, identityID int64, scope string, result *models.BatchResult) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitBatchApplied")
	defer span.End()

	data, _ := json.Marshal(result.Summary)
	e.emit(ctx, &kafka.ChangeEvent{
		EventType:  EventBatchApplied,
		IdentityID: identityID,
		Scope:      scope,
		Data:       data,
	})
}

// EmitIdentityDeleted reports a committed identity purge.
func (e *Emitter) EmitIdentityDeleted(ctx context.Context, identityID int64, counts map[string]int64) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitIdentityDeleted")
	defer span.End()

	data, _ := json.Marshal(counts)
	e.emit(ctx, &kafka.ChangeEvent{
		EventType:  EventIdentityDeleted,
		IdentityID: identityID,
		Data:       data,
	})
}
