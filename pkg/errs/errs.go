// Package errs defines the error taxonomy of the customization service on top
// of ectoerror HTTP errors. Every error carries a stable machine-readable code
// in its meta so callers can branch without parsing messages.
package errs

import (
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

const (
	CodeInvalidIdentifier  = "invalid_identifier"
	CodeInvalidPosition    = "invalid_position"
	CodeIdentityNotFound   = "identity_not_found"
	CodeItemNotFound       = "item_not_found"
	CodeUnknownItem        = "unknown_item"
	CodeDuplicateItem      = "duplicate_item"
	CodePreconditionFailed = "precondition_failed"
	CodeBatchFailed        = "batch_failed"
	CodeUnavailable        = "unavailable"
)

func withCode(status int, code string, format string, args ...any) error {
	err := httperror.NewHTTPErrorf(status, format, args...)
	httpErr := httperror.ToHTTPError(err)
	if httpErr.Meta == nil {
		httpErr.Meta = map[string]any{}
	}
	httpErr.Meta["code"] = code
	return httpErr
}

// InvalidIdentifier rejects a malformed external identifier before any store access.
func InvalidIdentifier(id string) error {
	return withCode(http.StatusBadRequest, CodeInvalidIdentifier, "identifier %q is not a valid UUID", id)
}

// InvalidPosition rejects a non-positive sortable position.
func InvalidPosition(position int64) error {
	return withCode(http.StatusBadRequest, CodeInvalidPosition, "position %d must be greater than zero", position)
}

// IdentityNotFound signals that no identity matches the external pair and
// creation was not allowed.
func IdentityNotFound() error {
	return withCode(http.StatusNotFound, CodeIdentityNotFound, "identity not found")
}

// ItemNotFound signals that (scope, domain_id) has no row.
func ItemNotFound(domainID string) error {
	return withCode(http.StatusNotFound, CodeItemNotFound, "item %q not found in scope", domainID)
}

// UnknownItem fails an update_only batch that targets a missing row.
func UnknownItem(domainID string) error {
	return withCode(http.StatusNotFound, CodeUnknownItem, "item %q does not exist and mode is update_only", domainID)
}

// DuplicateItem signals a uniqueness violation on add.
func DuplicateItem(domainID string) error {
	return withCode(http.StatusConflict, CodeDuplicateItem, "item %q already exists in scope", domainID)
}

// PreconditionFailed signals an optimistic-concurrency token mismatch. The
// caller must refetch and retry with the current token.
func PreconditionFailed(domainID string) error {
	if domainID == "" {
		return withCode(http.StatusPreconditionFailed, CodePreconditionFailed, "version token mismatch")
	}
	return withCode(http.StatusPreconditionFailed, CodePreconditionFailed, "version token mismatch for item %q", domainID)
}

// BatchFailed wraps the failing sub-operation of a rolled-back batch so the
// caller can correct and resubmit the whole batch.
func BatchFailed(domainID string, cause error) error {
	status := http.StatusConflict
	if httperror.IsHTTPError(cause) {
		status = httperror.GetStatusCode(cause)
	}
	err := withCode(status, CodeBatchFailed, "batch rolled back: operation on %q failed: %v", domainID, cause)
	httpErr := httperror.ToHTTPError(err)
	httpErr.Meta["failed_item"] = domainID
	if httperror.IsHTTPError(cause) {
		if causeMeta := httperror.ToHTTPError(cause).Meta; causeMeta != nil {
			if code, ok := causeMeta["code"]; ok {
				httpErr.Meta["cause"] = code
			}
		}
	}
	return httpErr
}

// Unavailable reports a storage or transport fault. Blind retry of the same
// batch is safe because every write is keyed on its natural key.
func Unavailable(cause error) error {
	return withCode(http.StatusServiceUnavailable, CodeUnavailable, "storage unavailable: %v", cause)
}

// Internal is the fallback for unexpected store failures.
func Internal(format string, args ...any) error {
	return httperror.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf(format, args...))
}

// Code extracts the taxonomy code from an error, or "" if it has none.
func Code(err error) string {
	if err == nil || !httperror.IsHTTPError(err) {
		return ""
	}
	httpErr := httperror.ToHTTPError(err)
	if httpErr.Meta == nil {
		return ""
	}
	code, _ := httpErr.Meta["code"].(string)
	return code
}

// Is reports whether err carries the given taxonomy code.
func Is(err error, code string) bool {
	return Code(err) == code
}
