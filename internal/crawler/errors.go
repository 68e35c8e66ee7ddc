package crawler

import "errors"

var (
	// ErrUnreachable indicates a network failure, timeout or server error
	// fetching the target.
	ErrUnreachable = errors.New("target unreachable")

	// ErrTooLarge indicates the content exceeded the configured size
	// ceiling.
	ErrTooLarge = errors.New("content exceeds size ceiling")

	// ErrUnsupportedFormat indicates the target has no registered parser.
	ErrUnsupportedFormat = errors.New("unsupported content format")
)
