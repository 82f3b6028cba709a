package transport

import "errors"

var (
	ErrInvalidTarget  = errors.New("transport: target address out of range")
	ErrInvalidType    = errors.New("transport: only user messages can be posted")
	ErrInvalidFrame   = errors.New("transport: frame header does not fit its buffer")
	ErrInvalidAddress = errors.New("transport: invalid network address")
	ErrInvalidOptions = errors.New("transport: invalid options")
	ErrClosed         = errors.New("transport: closed")
	ErrRunning        = errors.New("transport: already running")

	// Protocol violations, fatal for the offending connection
	ErrAlreadyBound      = errors.New("transport: address already bound to another connection")
	ErrSelfAddress       = errors.New("transport: peer claims our own address")
	ErrUnexpectedControl = errors.New("transport: unexpected control message")
	ErrUserBeforeReady   = errors.New("transport: user message before handshake completed")
	ErrControlWrongAttr  = errors.New("transport: control message not valid for connection side")
)
