package lua

import "errors"

// Errors for Lua state operations.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrBadEntryShape is returned when plugin entry code does not return
	// a setup function.
	ErrBadEntryShape = errors.New("plugin entry must return a setup function")

	// ErrBadSetupResult is returned when a setup function returns
	// something other than nil, a cleanup function, or a table with a
	// dispose function.
	ErrBadSetupResult = errors.New("setup must return nil, a function, or a table with a dispose function")
)
