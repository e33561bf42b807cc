// ABOUTME: Protocol-neutral request, response, and error-object message types
// ABOUTME: Implements notification semantics and reserved error code classification

package rpc

// Version is the envelope version both protocols advertise on the JSON side.
const Version = "2.0"

// Standard error codes shared by both envelopes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// Implementation-defined server error band, -32099..-32000.
	CodeServerError        = -32000
	CodeUnauthorized       = -32001
	CodeForbidden          = -32002
	CodeResourceNotFound   = -32003
	CodeTooManyRequests    = -32004
	CodeServiceUnavailable = -32005

	serverErrorMin = -32099
	serverErrorMax = -32000
)

// Request is a single inbound or outbound call. A nil ID marks a
// notification; an explicit null ID (sent as the JSON null literal) is kept
// as a non-nil Null value and echoed back verbatim.
type Request struct {
	Version string
	ID      *Value
	Method  string
	Params  *Value
}

// IsNotification reports whether no response is expected for this request.
func (r *Request) IsNotification() bool {
	return r.ID == nil
}

// Response carries exactly one of Result or Error. Both absent together with
// an absent ID is the acknowledgement shape for a notification.
type Response struct {
	Version string
	ID      *Value
	Result  *Value
	Error   *ErrorObject
}

// ErrorObject is the wire-level error shape shared by both envelopes.
type ErrorObject struct {
	Code    int
	Message string
	Data    *Value
}

// IsClientError reports whether code is one of the caller-fault codes.
func IsClientError(code int) bool {
	switch code {
	case CodeInvalidRequest, CodeMethodNotFound, CodeInvalidParams:
		return true
	}
	return false
}

// IsServerError reports whether code is a server-fault code: parse and
// internal errors plus the reserved -32099..-32000 band. Disjoint from
// IsClientError and not exhaustive; application codes outside the reserved
// range are neither.
func IsServerError(code int) bool {
	if code == CodeParseError || code == CodeInternalError {
		return true
	}
	return code >= serverErrorMin && code <= serverErrorMax
}

// NewResponse builds a success response echoing the request ID.
func NewResponse(id *Value, result *Value) Response {
	return Response{Version: Version, ID: id, Result: result}
}

// NewErrorResponse builds an error response echoing the request ID.
func NewErrorResponse(id *Value, errObj *ErrorObject) Response {
	return Response{Version: Version, ID: id, Error: errObj}
}
