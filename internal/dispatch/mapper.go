// ABOUTME: Total exception mapper normalizing any failure into a wire error object
// ABOUTME: Ordered category checks with an internal-error fallback

package dispatch

import (
	"errors"

	"github.com/harper/rpcbridge/internal/rpc"
)

// ExceptionMapper converts any failure into an ErrorObject. Execute is
// total: every error maps to something, unrecognized ones to InternalError.
// Debug opts in to internal detail on fallback errors; it is never emitted
// by default.
type ExceptionMapper struct {
	Debug bool
}

// Execute classifies err against an ordered list of recognized categories.
// Already-classified RPC errors are checked first so a wrapped validation
// or auth failure that was deliberately assigned a code is not reclassified
// by a broader check further down.
func (m *ExceptionMapper) Execute(err error) *rpc.ErrorObject {
	var rpcErr *rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Object()
	}

	var authn *rpc.AuthenticationError
	if errors.As(err, &authn) {
		return rpc.NewUnauthorized(authn.Reason).Object()
	}

	var authz *rpc.AuthorizationError
	if errors.As(err, &authz) {
		return rpc.NewForbidden(authz.Reason).Object()
	}

	var notFound *rpc.NotFoundError
	if errors.As(err, &notFound) {
		return rpc.NewResourceNotFound(notFound.Resource).Object()
	}

	var rateLimit *rpc.RateLimitError
	if errors.As(err, &rateLimit) {
		return rpc.NewTooManyRequests(rateLimit.Reason).Object()
	}

	var validation *rpc.ValidationError
	if errors.As(err, &validation) {
		return rpc.NewInvalidParams("", validation.Fields).Object()
	}

	fallback := rpc.NewInternalError("").Object()
	if m.Debug {
		data := rpc.NewMap().Set("detail", rpc.String(err.Error()))
		fallback.Data = &data
	}
	return fallback
}
