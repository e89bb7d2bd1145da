package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrBufferExhausted is returned by Reader when a read runs past the end.
	ErrBufferExhausted = errors.New("buffer exhausted")

	// ErrMalformedResponse covers unknown response types and truncated mandatory fields.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrUnsupportedModBlock is returned when a GoldSource mod block is cut short.
	ErrUnsupportedModBlock = errors.New("unsupported mod block")

	// ErrInvalidRequest is returned by DecodeInfoRequest for anything but an info request.
	ErrInvalidRequest = errors.New("invalid info request")
)

// malformed wraps a read failure on a named field.
func malformed(field string, err error) error {
	return fmt.Errorf("%w: reading %s: %w", ErrMalformedResponse, field, err)
}
