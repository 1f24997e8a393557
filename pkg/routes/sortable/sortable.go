// Package sortable exposes the ordering API: single-item edits, the atomic
// batch endpoint and the compaction maintenance endpoint.
package sortable

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/szsalyi/customization-poc-sub000/pkg/appctx"
	"github.com/szsalyi/customization-poc-sub000/pkg/batch"
	"github.com/szsalyi/customization-poc-sub000/pkg/events"
	"github.com/szsalyi/customization-poc-sub000/pkg/metrics"
	"github.com/szsalyi/customization-poc-sub000/pkg/models"
	"github.com/szsalyi/customization-poc-sub000/pkg/sorting"
	"github.com/szsalyi/customization-poc-sub000/pkg/tracing"
)

var validate = validator.New()

// Register registers sortable routes.
func Register(g *echo.Group) {
	g.GET("/:domainType", List)
	g.POST("/:domainType", Add)
	g.PUT("/:domainType/:domainID", Reorder)
	g.DELETE("/:domainType/:domainID", Remove)
	g.POST("/:domainType/batch", Batch)
	g.POST("/:domainType/compact", Compact)
}

func domainType(c echo.Context) (models.DomainType, error) {
	dt := models.DomainType(c.Param("domainType"))
	if !dt.IsValid() {
		return "", httperror.NewHTTPError(http.StatusBadRequest, "unknown domain type")
	}
	return dt, nil
}

// List returns the scope in display order. The collection token goes out both
// in the body and as the ETag header for If-Match round-trips.
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "sortable_handler.List")
	defer span.End()

	dt, err := domainType(c)
	if err != nil {
		return err
	}
	identityID := appctx.GetIdentityID(ctx)

	ctx, engine, err := ectoinject.GetContext[*sorting.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get sorting engine")
	}

	response, err := engine.List(ctx, identityID, dt)
	if err != nil {
		return err
	}

	c.Response().Header().Set("ETag", `"`+response.ETag+`"`)
	return c.JSON(http.StatusOK, response)
}

// Add inserts one item, appending when no position is given.
func Add(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "sortable_handler.Add")
	defer span.End()

	dt, err := domainType(c)
	if err != nil {
		return err
	}
	identityID := appctx.GetIdentityID(ctx)

	var req models.AddSortableRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, engine, err := ectoinject.GetContext[*sorting.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get sorting engine")
	}

	entry, err := engine.Add(ctx, identityID, dt, req)
	if err != nil {
		return err
	}

	if ctx, emitter, emitErr := ectoinject.GetContext[*events.Emitter](ctx); emitErr == nil {
		emitter.EmitSortableChanged(ctx, identityID, dt, entry.DomainID)
	}

	c.Response().Header().Set("ETag", `"`+entry.ETag+`"`)
	return c.JSON(http.StatusCreated, models.SortableEntryResponse{Entry: *entry})
}

// Reorder moves one item. If-Match (or expected_tag) makes it conditional.
func Reorder(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "sortable_handler.Reorder")
	defer span.End()

	dt, err := domainType(c)
	if err != nil {
		return err
	}
	identityID := appctx.GetIdentityID(ctx)
	domainID := c.Param("domainID")

	var req models.ReorderSortableRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if header := c.Request().Header.Get("If-Match"); header != "" {
		req.ExpectedTag = header
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, engine, err := ectoinject.GetContext[*sorting.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get sorting engine")
	}

	entry, err := engine.Reorder(ctx, identityID, dt, domainID, req)
	if err != nil {
		return err
	}

	if ctx, emitter, emitErr := ectoinject.GetContext[*events.Emitter](ctx); emitErr == nil {
		emitter.EmitSortableChanged(ctx, identityID, dt, domainID)
	}

	c.Response().Header().Set("ETag", `"`+entry.ETag+`"`)
	return c.JSON(http.StatusOK, models.SortableEntryResponse{Entry: *entry})
}

// Remove deletes one item from the ordering.
func Remove(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "sortable_handler.Remove")
	defer span.End()

	dt, err := domainType(c)
	if err != nil {
		return err
	}
	identityID := appctx.GetIdentityID(ctx)
	domainID := c.Param("domainID")

	ctx, engine, err := ectoinject.GetContext[*sorting.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get sorting engine")
	}

	if err := engine.Remove(ctx, identityID, dt, domainID, c.Request().Header.Get("If-Match")); err != nil {
		return err
	}

	if ctx, emitter, emitErr := ectoinject.GetContext[*events.Emitter](ctx); emitErr == nil {
		emitter.EmitSortableChanged(ctx, identityID, dt, domainID)
	}

	return c.NoContent(http.StatusNoContent)
}

// Batch applies many ordering mutations atomically. An If-Match header guards
// the whole scope against concurrent edits since the caller last read it.
func Batch(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "sortable_handler.Batch")
	defer span.End()

	dt, err := domainType(c)
	if err != nil {
		return err
	}
	identityID := appctx.GetIdentityID(ctx)

	var req models.BatchSortableRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !req.Mode.IsValid() {
		return httperror.NewHTTPError(http.StatusBadRequest, "unknown batch mode")
	}

	ctx, coordinator, err := ectoinject.GetContext[*batch.Coordinator](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get batch coordinator")
	}

	result, err := coordinator.ApplySortables(ctx, identityID, dt, req, c.Request().Header.Get("If-Match"))
	if err != nil {
		metrics.BatchesTotal.WithLabelValues("sortable", "rolled_back").Inc()
		return err
	}
	metrics.RecordBatchResult("sortable", result.Summary.Created, result.Summary.Updated, result.Summary.Deleted, result.Summary.Unchanged)

	if ctx, emitter, emitErr := ectoinject.GetContext[*events.Emitter](ctx); emitErr == nil {
		emitter.EmitBatchApplied(ctx, identityID, string(dt), result)
	}

	c.Response().Header().Set("ETag", `"`+result.ETag+`"`)
	return c.JSON(http.StatusOK, result)
}

// Compact renumbers the scope to full gap spacing. Safe to call at any time;
// an already-compact scope reports zero renumbered rows.
func Compact(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "sortable_handler.Compact")
	defer span.End()

	dt, err := domainType(c)
	if err != nil {
		return err
	}
	identityID := appctx.GetIdentityID(ctx)

	ctx, engine, err := ectoinject.GetContext[*sorting.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get sorting engine")
	}

	response, err := engine.Compact(ctx, identityID, dt)
	if err != nil {
		metrics.CompactionsTotal.WithLabelValues("failed").Inc()
		return err
	}
	metrics.CompactionsTotal.WithLabelValues("committed").Inc()
	metrics.CompactionRenumbered.Observe(float64(response.Renumbered))

	if response.Renumbered > 0 {
		if ctx, emitter, emitErr := ectoinject.GetContext[*events.Emitter](ctx); emitErr == nil {
			emitter.EmitSortableCompacted(ctx, identityID, dt, response.Renumbered)
		}
	}

	return c.JSON(http.StatusOK, response)
}
