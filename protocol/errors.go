package protocol

import "errors"

var (
	ErrShortHeader    = errors.New("protocol: short frame header")
	ErrBadVersion     = errors.New("protocol: unsupported version")
	ErrBadType        = errors.New("protocol: unknown message type")
	ErrLengthTooSmall = errors.New("protocol: total length smaller than header")
	ErrLengthTooLarge = errors.New("protocol: total length exceeds maximum")
	ErrCapacity       = errors.New("protocol: message capacity exceeded")
	ErrBadControl     = errors.New("protocol: malformed control payload")
)
