// Package profile exposes the identity lifecycle: inspect the resolved
// identity, deactivate it, and purge all rows it owns. These routes resolve
// without auto-provisioning, so an unknown caller gets a 404 instead of a
// freshly created handle.
package profile

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	identityrepo "github.com/szsalyi/customization-poc-sub000/internal/repositories/identity"
	"github.com/szsalyi/customization-poc-sub000/pkg/appctx"
	"github.com/szsalyi/customization-poc-sub000/pkg/errs"
	"github.com/szsalyi/customization-poc-sub000/pkg/events"
	"github.com/szsalyi/customization-poc-sub000/pkg/models"
	"github.com/szsalyi/customization-poc-sub000/pkg/tracing"
)

// Register registers profile routes.
func Register(g *echo.Group) {
	g.GET("", Get)
	g.DELETE("", Deactivate)
	g.DELETE("/data", Purge)
}

func resolve(c echo.Context) (*models.Identity, error) {
	ctx := c.Request().Context()

	primary := appctx.GetPrimaryExternalID(ctx)
	if primary == "" {
		return nil, httperror.NewHTTPError(http.StatusUnauthorized, "X-Customer-Id header is required")
	}
	var secondary *string
	if s := appctx.GetSecondaryExternalID(ctx); s != "" {
		secondary = &s
	}

	if err := identityrepo.ValidateExternalID(primary); err != nil {
		return nil, err
	}
	if secondary != nil {
		if err := identityrepo.ValidateExternalID(*secondary); err != nil {
			return nil, err
		}
	}

	ctx, repo, err := ectoinject.GetContext[*identityrepo.Repository](ctx)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get identity repository")
	}
	c.SetRequest(c.Request().WithContext(ctx))

	// Deactivated identities still resolve here: deactivate-then-purge is the
	// normal offboarding sequence.
	resolved, err := repo.GetByExternalPair(ctx, primary, secondary)
	if err != nil {
		return nil, err
	}
	if resolved == nil {
		return nil, errs.IdentityNotFound()
	}
	return resolved, nil
}

// Get returns the caller's resolved identity.
func Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "profile_handler.Get")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	resolved, err := resolve(c)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.IdentityResponse{Identity: *resolved})
}

// Deactivate marks the identity inactive. Its data stays until purged.
func Deactivate(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "profile_handler.Deactivate")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	resolved, err := resolve(c)
	if err != nil {
		return err
	}

	ctx, repo, err := ectoinject.GetContext[*identityrepo.Repository](c.Request().Context())
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get identity repository")
	}

	if err := repo.Deactivate(ctx, resolved.ID); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// Purge deletes the identity and every row it owns in one transaction.
func Purge(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "profile_handler.Purge")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	resolved, err := resolve(c)
	if err != nil {
		return err
	}

	ctx, repo, err := ectoinject.GetContext[*identityrepo.Repository](c.Request().Context())
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get identity repository")
	}

	counts, err := repo.Delete(ctx, resolved.ID)
	if err != nil {
		return err
	}

	if ctx, emitter, emitErr := ectoinject.GetContext[*events.Emitter](ctx); emitErr == nil {
		emitter.EmitIdentityDeleted(ctx, resolved.ID, counts)
	}

	return c.JSON(http.StatusOK, map[string]any{"deleted": counts})
}
