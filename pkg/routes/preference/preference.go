// Package preference exposes the key/value preference API. All routes run
// behind the identity middleware, so the resolved handle is on the context.
package preference

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	preferencerepo "github.com/szsalyi/customization-poc-sub000/internal/repositories/preference"
	"github.com/szsalyi/customization-poc-sub000/pkg/appctx"
	"github.com/szsalyi/customization-poc-sub000/pkg/batch"
	"github.com/szsalyi/customization-poc-sub000/pkg/etag"
	"github.com/szsalyi/customization-poc-sub000/pkg/events"
	"github.com/szsalyi/customization-poc-sub000/pkg/metrics"
	"github.com/szsalyi/customization-poc-sub000/pkg/models"
	"github.com/szsalyi/customization-poc-sub000/pkg/tracing"
)

var validate = validator.New()

// Register registers preference routes.
func Register(g *echo.Group) {
	g.GET("", ListVersions)
	g.GET("/:compatVersion", List)
	g.PUT("/:compatVersion/:key", Upsert)
	g.DELETE("/:compatVersion/:key", Delete)
	g.POST("/:compatVersion/batch", Batch)
}

// ListVersions returns the compat versions the caller has preferences under.
func ListVersions(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "preference_handler.ListVersions")
	defer span.End()

	identityID := appctx.GetIdentityID(ctx)

	ctx, repo, err := ectoinject.GetContext[*preferencerepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	versions, err := repo.ListVersions(ctx, identityID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.CompatVersionListResponse{Versions: versions})
}

// List returns every preference under one compat version, ordered by key.
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "preference_handler.List")
	defer span.End()

	identityID := appctx.GetIdentityID(ctx)
	compatVersion := c.Param("compatVersion")

	ctx, repo, err := ectoinject.GetContext[*preferencerepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	entries, err := repo.List(ctx, identityID, compatVersion)
	if err != nil {
		return err
	}

	items := make([]etag.Item, len(entries))
	for i := range entries {
		entries[i].ETag = etag.FromVersion(entries[i].Version)
		items[i] = etag.Item{DomainID: entries[i].Key, Version: entries[i].Version}
	}
	collection := etag.Collection(items)

	c.Response().Header().Set("ETag", `"`+collection+`"`)
	return c.JSON(http.StatusOK, models.PreferenceListResponse{
		CompatVersion: compatVersion,
		Items:         entries,
		ETag:          collection,
	})
}

// Upsert writes one preference value. An If-Match header (or expected_tag in
// the body) turns the write into a compare-and-swap against the stored token.
func Upsert(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "preference_handler.Upsert")
	defer span.End()

	identityID := appctx.GetIdentityID(ctx)

	var req models.UpsertPreferenceRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.Key = c.Param("key")
	req.CompatVersion = c.Param("compatVersion")
	if header := c.Request().Header.Get("If-Match"); header != "" {
		req.ExpectedTag = header
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*preferencerepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	var entry *models.PreferenceEntry
	status := http.StatusOK
	if req.ExpectedTag != "" {
		version, parseErr := etag.ParseVersion(etag.Normalize(req.ExpectedTag))
		if parseErr != nil {
			metrics.PreconditionFailuresTotal.WithLabelValues("preference").Inc()
			return httperror.NewHTTPError(http.StatusPreconditionFailed, "malformed version token")
		}
		entry, err = repo.UpdateWithVersion(ctx, identityID, req.Key, req.Value, req.CompatVersion, version)
	} else {
		var outcome models.OperationOutcome
		entry, outcome, err = repo.Upsert(ctx, identityID, req.Key, req.Value, req.CompatVersion)
		if outcome == models.OutcomeCreated {
			status = http.StatusCreated
		}
	}
	if err != nil {
		return err
	}
	entry.ETag = etag.FromVersion(entry.Version)

	if ctx, emitter, emitErr := ectoinject.GetContext[*events.Emitter](ctx); emitErr == nil {
		emitter.EmitPreferenceUpdated(ctx, identityID, entry)
	}

	c.Response().Header().Set("ETag", `"`+entry.ETag+`"`)
	return c.JSON(status, entry)
}

// Delete removes one preference.
func Delete(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "preference_handler.Delete")
	defer span.End()

	identityID := appctx.GetIdentityID(ctx)
	key := c.Param("key")
	compatVersion := c.Param("compatVersion")

	ctx, repo, err := ectoinject.GetContext[*preferencerepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	if err := repo.Delete(ctx, identityID, key, compatVersion); err != nil {
		return err
	}

	if ctx, emitter, emitErr := ectoinject.GetContext[*events.Emitter](ctx); emitErr == nil {
		emitter.EmitPreferenceDeleted(ctx, identityID, key, compatVersion)
	}

	return c.NoContent(http.StatusNoContent)
}

// Batch applies several preference writes as one atomic unit.
func Batch(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "preference_handler.Batch")
	defer span.End()

	identityID := appctx.GetIdentityID(ctx)

	var req models.BatchPreferenceRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.CompatVersion = c.Param("compatVersion")

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, coordinator, err := ectoinject.GetContext[*batch.Coordinator](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get batch coordinator")
	}

	result, err := coordinator.ApplyPreferences(ctx, identityID, req)
	if err != nil {
		metrics.BatchesTotal.WithLabelValues("preference", "rolled_back").Inc()
		return err
	}
	metrics.RecordBatchResult("preference", result.Summary.Created, result.Summary.Updated, result.Summary.Deleted, result.Summary.Unchanged)

	if ctx, emitter, emitErr := ectoinject.GetContext[*events.Emitter](ctx); emitErr == nil {
		emitter.EmitBatchApplied(ctx, identityID, req.CompatVersion, result)
	}

	c.Response().Header().Set("ETag", `"`+result.ETag+`"`)
	return c.JSON(http.StatusOK, result)
}
