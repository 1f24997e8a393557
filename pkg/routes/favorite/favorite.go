// Package favorite exposes the favorite-flag API.
package favorite

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	favoriterepo "github.com/szsalyi/customization-poc-sub000/internal/repositories/favorite"
	"github.com/szsalyi/customization-poc-sub000/pkg/appctx"
	"github.com/szsalyi/customization-poc-sub000/pkg/events"
	"github.com/szsalyi/customization-poc-sub000/pkg/models"
	"github.com/szsalyi/customization-poc-sub000/pkg/tracing"
)

var validate = validator.New()

// Register registers favorite routes.
func Register(g *echo.Group) {
	g.GET("/:domainType", List)
	g.POST("/:domainType/toggle", Toggle)
	g.PUT("/:domainType/:domainID", Set)
	g.DELETE("/:domainType/:domainID", Clear)
}

func domainType(c echo.Context) (models.DomainType, error) {
	dt := models.DomainType(c.Param("domainType"))
	if !dt.IsValid() {
		return "", httperror.NewHTTPError(http.StatusBadRequest, "unknown domain type")
	}
	return dt, nil
}

// List returns the caller's favorites in one scope, newest first.
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "favorite_handler.List")
	defer span.End()

	dt, err := domainType(c)
	if err != nil {
		return err
	}
	identityID := appctx.GetIdentityID(ctx)

	ctx, repo, err := ectoinject.GetContext[*favoriterepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	entries, err := repo.List(ctx, identityID, dt)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.FavoriteListResponse{DomainType: dt, Items: entries})
}

// Toggle flips the favorite flag and reports the resulting state.
func Toggle(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "favorite_handler.Toggle")
	defer span.End()

	dt, err := domainType(c)
	if err != nil {
		return err
	}
	identityID := appctx.GetIdentityID(ctx)

	var req models.ToggleFavoriteRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*favoriterepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	favorite, err := repo.Toggle(ctx, identityID, dt, req.DomainID)
	if err != nil {
		return err
	}

	if ctx, emitter, emitErr := ectoinject.GetContext[*events.Emitter](ctx); emitErr == nil {
		emitter.EmitFavoriteToggled(ctx, identityID, dt, req.DomainID, favorite)
	}

	return c.JSON(http.StatusOK, models.ToggleFavoriteResponse{
		DomainType: dt,
		DomainID:   req.DomainID,
		Favorite:   favorite,
	})
}

// Set forces the flag to the requested state. Idempotent in both directions.
func Set(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "favorite_handler.Set")
	defer span.End()

	dt, err := domainType(c)
	if err != nil {
		return err
	}
	identityID := appctx.GetIdentityID(ctx)
	domainID := c.Param("domainID")

	var req models.SetFavoriteRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, repo, err := ectoinject.GetContext[*favoriterepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	changed, err := repo.Set(ctx, identityID, dt, domainID, req.Favorite)
	if err != nil {
		return err
	}

	if changed {
		if ctx, emitter, emitErr := ectoinject.GetContext[*events.Emitter](ctx); emitErr == nil {
			emitter.EmitFavoriteToggled(ctx, identityID, dt, domainID, req.Favorite)
		}
	}

	return c.JSON(http.StatusOK, models.ToggleFavoriteResponse{
		DomainType: dt,
		DomainID:   domainID,
		Favorite:   req.Favorite,
	})
}

// Clear removes the flag. Clearing an absent flag is a no-op.
func Clear(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "favorite_handler.Clear")
	defer span.End()

	dt, err := domainType(c)
	if err != nil {
		return err
	}
	identityID := appctx.GetIdentityID(ctx)
	domainID := c.Param("domainID")

	ctx, repo, err := ectoinject.GetContext[*favoriterepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	changed, err := repo.Set(ctx, identityID, dt, domainID, false)
	if err != nil {
		return err
	}

	if changed {
		if ctx, emitter, emitErr := ectoinject.GetContext[*events.Emitter](ctx); emitErr == nil {
			emitter.EmitFavoriteToggled(ctx, identityID, dt, domainID, false)
		}
	}

	return c.NoContent(http.StatusNoContent)
}
