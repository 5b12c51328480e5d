// Package errors defines the tagged error type used to carry ISCC Hub
// validation and sequencing failures from the core packages out to the API
// boundary, where a single adapter maps them to HTTP status codes.
package errors

import "fmt"

// ErrorType provides a coarse category for ApiErrors. Each maps to exactly
// one HTTP status code at the API boundary.
type ErrorType int

const (
	InternalServer ErrorType = iota
	Validation
	InvalidFormat
	InvalidLength
	InvalidHex
	InvalidIscc
	TimestampOutOfRange
	NonceMismatch
	InvalidSignature
	NonceReuse
	DuplicateDeclaration
	SequencerError
	NotFound
	Unauthorized
)

// ApiError represents a structured ISCC Hub API error: a machine-readable
// Type/Code, an optional Field the error pertains to, a human Detail
// message, and any contextual key/value pairs the error response schema
// requires (existing_iscc_id, existing_actor, resource_type, resource_id).
type ApiError struct {
	Type    ErrorType
	Detail  string
	Field   string
	Context map[string]string
}

func (ae *ApiError) Error() string {
	return ae.Detail
}

// Code returns the machine-readable error code string for the taxonomy in
// spec.md §7 (e.g. "invalid_signature", "nonce_reuse").
func (ae *ApiError) Code() string {
	switch ae.Type {
	case Validation:
		return "validation_failed"
	case InvalidFormat:
		return "invalid_format"
	case InvalidLength:
		return "invalid_length"
	case InvalidHex:
		return "invalid_hex"
	case InvalidIscc:
		return "invalid_iscc"
	case TimestampOutOfRange:
		return "timestamp_out_of_range"
	case NonceMismatch:
		return "nonce_mismatch"
	case InvalidSignature:
		return "invalid_signature"
	case NonceReuse:
		return "nonce_reuse"
	case DuplicateDeclaration:
		return "duplicate_declaration"
	case SequencerError:
		return "sequencer_error"
	case NotFound:
		return "not_found"
	case Unauthorized:
		return "unauthorized"
	default:
		return "internal_server_error"
	}
}

// New is a convenience function for creating a new ApiError.
func New(errType ErrorType, field string, msg string, args ...interface{}) error {
	return &ApiError{
		Type:   errType,
		Detail: fmt.Sprintf(msg, args...),
		Field:  field,
	}
}

// WithContext attaches contextual response keys (e.g. existing_iscc_id) to
// an ApiError and returns it, for chaining at the call site.
func WithContext(err error, kv map[string]string) error {
	if ae, ok := err.(*ApiError); ok {
		ae.Context = kv
	}
	return err
}

// Is reports whether err is an *ApiError of the given type.
func Is(err error, errType ErrorType) bool {
	ae, ok := err.(*ApiError)
	if !ok {
		return false
	}
	return ae.Type == errType
}

func InternalServerError(msg string, args ...interface{}) error {
	return New(InternalServer, "", msg, args...)
}

func ValidationError(field, msg string, args ...interface{}) error {
	return New(Validation, field, msg, args...)
}

func InvalidFormatError(field, msg string, args ...interface{}) error {
	return New(InvalidFormat, field, msg, args...)
}

func InvalidLengthError(field, msg string, args ...interface{}) error {
	return New(InvalidLength, field, msg, args...)
}

func InvalidHexError(field, msg string, args ...interface{}) error {
	return New(InvalidHex, field, msg, args...)
}

func InvalidIsccError(msg string, args ...interface{}) error {
	return New(InvalidIscc, "iscc_code", msg, args...)
}

func TimestampOutOfRangeError(msg string, args ...interface{}) error {
	return New(TimestampOutOfRange, "timestamp", msg, args...)
}

func NonceMismatchError(msg string, args ...interface{}) error {
	return New(NonceMismatch, "nonce", msg, args...)
}

func InvalidSignatureError(msg string, args ...interface{}) error {
	return New(InvalidSignature, "", msg, args...)
}

func NonceReuseError(msg string, args ...interface{}) error {
	return New(NonceReuse, "nonce", msg, args...)
}

// DuplicateDeclarationError builds a 409 duplicate_declaration error with the
// existing iscc_id/actor context the response schema requires.
func DuplicateDeclarationError(existingIsccID, existingActor string) error {
	err := New(DuplicateDeclaration, "datahash", "datahash already has a declaration")
	return WithContext(err, map[string]string{
		"existing_iscc_id": existingIsccID,
		"existing_actor":   existingActor,
	})
}

func SequencerFailureError(msg string, args ...interface{}) error {
	return New(SequencerError, "", msg, args...)
}

// NotFoundError builds a 404 not_found error with resource_type/resource_id
// context.
func NotFoundError(resourceType, resourceID, msg string, args ...interface{}) error {
	err := New(NotFound, "", msg, args...)
	return WithContext(err, map[string]string{
		"resource_type": resourceType,
		"resource_id":   resourceID,
	})
}

func UnauthorizedError(msg string, args ...interface{}) error {
	return New(Unauthorized, "", msg, args...)
}
