package shared

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by this module matches exactly one
// of them with errors.Is.
var (
	ErrConfiguration       = errors.New("configuration error")
	ErrResourceUnavailable = errors.New("resource unavailable")
	ErrMalformedFrame      = errors.New("malformed frame")
	ErrProtocolViolation   = errors.New("protocol violation")
	ErrPartialWrite        = errors.New("partial write")
)

var (
	ErrEmptyConfiguration     = fmt.Errorf("%w: zero size", ErrConfiguration)
	ErrNoUnits                = fmt.Errorf("%w: no units to merge", ErrConfiguration)
	ErrTooManyUnits           = fmt.Errorf("%w: unit count exceeds limit", ErrConfiguration)
	ErrSourceUnavailable      = fmt.Errorf("%w: source cannot be opened", ErrResourceUnavailable)
	ErrDestinationUnavailable = fmt.Errorf("%w: destination cannot be created", ErrResourceUnavailable)
	ErrInvalidUnit            = fmt.Errorf("%w: unit length exceeds payload", ErrMalformedFrame)
	ErrHeaderTooShort         = fmt.Errorf("%w: header too short", ErrProtocolViolation)
	ErrTruncatedPayload       = fmt.Errorf("%w: payload shorter than data length", ErrProtocolViolation)
	ErrSessionMismatch        = fmt.Errorf("%w: session id mismatch", ErrProtocolViolation)
	ErrIndexOutOfRange        = fmt.Errorf("%w: packet index out of range", ErrProtocolViolation)
	ErrEmptyPayload           = fmt.Errorf("%w: zero data length", ErrProtocolViolation)
)

var (
	ErrIncompleteSession = fmt.Errorf("%w: session has missing units", ErrPartialWrite)
)
