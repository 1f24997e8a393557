package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/szsalyi/customization-poc-sub000/pkg/appctx"
)

const (
	// HeaderCustomerID carries the caller's primary external identifier.
	HeaderCustomerID = "X-Customer-Id"
	// HeaderCorporateID carries the secondary external identifier, present
	// only for corporate callers.
	HeaderCorporateID = "X-Corporate-Id"
)

// Context copies the gateway identification headers onto the request context.
// The service trusts these headers; authentication happens upstream.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}

			ctx := req.Context()
			ctx = appctx.SetRequestID(ctx, requestID)
			ctx = appctx.SetMethod(ctx, req.Method)
			ctx = appctx.SetRoute(ctx, req.URL.Path)
			ctx = appctx.SetRemoteIP(ctx, c.RealIP())
			ctx = appctx.SetPrimaryExternalID(ctx, req.Header.Get(HeaderCustomerID))
			ctx = appctx.SetSecondaryExternalID(ctx, req.Header.Get(HeaderCorporateID))

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
