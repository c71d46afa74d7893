package textsynth

import "github.com/elikoga/textsynth/internal/core"

// Error is returned by every operation. Match on Type:
//
//	var tsErr *textsynth.Error
//	if errors.As(err, &tsErr) && tsErr.IsRateLimited() {
//		// back off
//	}
type Error = core.Error

// ErrorType is the closed set of failure kinds.
type ErrorType = core.ErrorType

const (
	ErrorTypeConfiguration = core.ErrorTypeConfiguration
	ErrorTypeNetwork       = core.ErrorTypeNetwork
	ErrorTypeHTTPStatus    = core.ErrorTypeHTTPStatus
	ErrorTypeDecode        = core.ErrorTypeDecode
)

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	return core.AsError(err)
}

// ErrorTypeOf returns the type of err, or "" when err did not come from the client.
func ErrorTypeOf(err error) ErrorType {
	return core.ErrorTypeOf(err)
}
