package errors

import "errors"

// Component lifecycle.
var (
	ErrAlreadyStarted = errors.New("component already started")
	ErrNotStarted     = errors.New("component not started")
	ErrAlreadyStopped = errors.New("component already stopped")
)

// Connection and networking.
var (
	ErrNoConnection      = errors.New("no connection available")
	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionTimeout = errors.New("connection timeout")
)

// Analysis graph construction.
var (
	ErrArenaExhausted   = errors.New("arena exhausted")
	ErrGraphMalformed   = errors.New("analysis graph malformed")
	ErrSemanticError    = errors.New("expression semantic error")
	ErrFilterPattern    = errors.New("invalid filter pattern")
	ErrSizeMismatch     = errors.New("input size mismatch")
	ErrUnknownOperator  = errors.New("unknown operator type")
	ErrConditionBitsSet = errors.New("condition bits already assigned")
)

// Readout data.
var (
	ErrInvalidFrame  = errors.New("invalid readout frame")
	ErrFrameTooShort = errors.New("readout frame truncated")
	ErrEventIndex    = errors.New("event index out of range")
	ErrModuleIndex   = errors.New("module index out of range")
)

// Export stream.
var (
	ErrExportDisabled = errors.New("export sink disabled after write error")
	ErrExportCorrupt  = errors.New("export stream corrupt")
)

// Configuration.
var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)
