package domain

import "errors"

// Domain errors
var (
	ErrUnauthenticated     = errors.New("sign in required")
	ErrRouteNotFound       = errors.New("route record not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrInsufficientBalance = errors.New("insufficient points")
	ErrPayloadTooLarge     = errors.New("photo is larger than 5MB")
	ErrInvalidMediaType    = errors.New("photo must be an image")
	ErrUploadFailed        = errors.New("photo upload failed")
	ErrConfigUnavailable   = errors.New("remote config unavailable")
	ErrStoreUnavailable    = errors.New("data store unavailable")
	ErrInvalidRoute        = errors.New("invalid route submission")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrUnsupportedProvider = errors.New("unsupported identity provider")
	ErrInternalError       = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrRouteNotFound) || errors.Is(err, ErrUserNotFound)
}

// IsValidationError reports whether err was raised before any mutation
// because the caller's input was rejected.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRoute) || errors.Is(err, ErrInvalidRequest)
}
