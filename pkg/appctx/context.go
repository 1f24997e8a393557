// Package appctx carries per-request values: the request id and the caller's
// external identifier pair as supplied by the gateway. The resolved internal
// handle is stored here too so a request resolves identity at most once.
package appctx

import "context"

type contextKey string

var (
	requestIDKey   = contextKey("X-Request-Id")
	methodKey      = contextKey("X-Method")
	routeKey       = contextKey("X-Route")
	remoteIPKey    = contextKey("X-Remote-Ip")
	primaryIDKey   = contextKey("X-Customer-Id")
	secondaryIDKey = contextKey("X-Corporate-Id")
	identityIDKey  = contextKey("identity-id")
)

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	value, ok := ctx.Value(requestIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, methodKey, method)
}

func GetMethod(ctx context.Context) string {
	value, ok := ctx.Value(methodKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, routeKey, route)
}

func GetRoute(ctx context.Context) string {
	value, ok := ctx.Value(routeKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetRemoteIP(ctx context.Context, remoteIP string) context.Context {
	return context.WithValue(ctx, remoteIPKey, remoteIP)
}

func GetRemoteIP(ctx context.Context) string {
	value, ok := ctx.Value(remoteIPKey).(string)
	if !ok {
		return ""
	}
	return value
}

// SetPrimaryExternalID stores the caller's primary external id (customer id).
func SetPrimaryExternalID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, primaryIDKey, id)
}

func GetPrimaryExternalID(ctx context.Context) string {
	value, ok := ctx.Value(primaryIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

// SetSecondaryExternalID stores the caller's secondary external id. Present
// only for corporate callers.
func SetSecondaryExternalID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, secondaryIDKey, id)
}

func GetSecondaryExternalID(ctx context.Context) string {
	value, ok := ctx.Value(secondaryIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

// SetIdentityID stores the resolved internal handle for the request.
func SetIdentityID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, identityIDKey, id)
}

// GetIdentityID returns the resolved internal handle, or 0 when the request
// has not been resolved yet.
func GetIdentityID(ctx context.Context) int64 {
	value, ok := ctx.Value(identityIDKey).(int64)
	if !ok {
		return 0
	}
	return value
}
