package middleware

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/szsalyi/customization-poc-sub000/internal/repositories/identity"
	"github.com/szsalyi/customization-poc-sub000/pkg/appctx"
	"github.com/szsalyi/customization-poc-sub000/pkg/metrics"
)

// Identity resolves the caller's external identifier pair to the internal
// handle and stores it on the request context. With allowCreate the first
// contact of an unknown pair provisions its identity; customization routes
// run in this mode so a brand-new user can write settings immediately.
func Identity(allowCreate bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			primary := appctx.GetPrimaryExternalID(ctx)
			if primary == "" {
				return httperror.NewHTTPError(http.StatusUnauthorized, HeaderCustomerID+" header is required")
			}
			var secondary *string
			if s := appctx.GetSecondaryExternalID(ctx); s != "" {
				secondary = &s
			}

			ctx, repo, err := ectoinject.GetContext[*identity.Repository](ctx)
			if err != nil {
				return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get identity repository")
			}

			resolved, err := repo.Resolve(ctx, primary, secondary, allowCreate)
			if err != nil {
				metrics.IdentitiesResolvedTotal.WithLabelValues("failed").Inc()
				return err
			}
			metrics.IdentitiesResolvedTotal.WithLabelValues("resolved").Inc()

			ctx = appctx.SetIdentityID(ctx, resolved.ID)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}
