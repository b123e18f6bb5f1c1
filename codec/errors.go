package codec

import "github.com/pkg/errors"

var (
	// ErrConfiguration is returned when a handler configuration cannot be
	// turned into a registry. No entry of such a registry can be trusted, so
	// the whole registry is rejected.
	ErrConfiguration = errors.New("invalid handler configuration")

	// ErrUnknownType is returned when a token's runtime type has no handler.
	ErrUnknownType = errors.New("no handler registered for token type")

	// ErrInvalidTag is returned when a frame carries a tag outside the
	// registry. The stream cannot be framed past this point.
	ErrInvalidTag = errors.New("invalid handler tag")

	// ErrMalformedPayload is returned when a handler cannot interpret the
	// payload bytes of a frame.
	ErrMalformedPayload = errors.New("malformed token payload")
)
