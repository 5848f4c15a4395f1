package lua

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// LoadEntry executes plugin entry code and returns its setup function.
// The entry contract: the chunk must return a function. Any other shape is
// a load-time error.
func LoadEntry(s *State, code, chunkName string) (*lua.LFunction, error) {
	results, err := s.DoString(code, chunkName)
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("%s: %w: chunk returned nothing", chunkName, ErrBadEntryShape)
	}
	fn, ok := results[0].(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("%s: %w: chunk returned %s", chunkName, ErrBadEntryShape, results[0].Type())
	}
	return fn, nil
}

// Dispose is the cleanup hook a setup function may hand back to the host.
type Dispose func() error

// RunSetup calls setup(api, info) and interprets its result. Accepted
// results: nil (no dispose hook), a function, or a table exposing a
// "dispose" function. Anything else fails the load.
func RunSetup(s *State, setup *lua.LFunction, api, info lua.LValue) (Dispose, error) {
	results, err := s.CallFunction(setup, api, info)
	if err != nil {
		return nil, err
	}

	if len(results) == 0 || results[0] == lua.LNil {
		return nil, nil
	}

	switch v := results[0].(type) {
	case *lua.LFunction:
		return makeDispose(s, v), nil
	case *lua.LTable:
		d := v.RawGetString("dispose")
		if d == lua.LNil {
			return nil, nil
		}
		fn, ok := d.(*lua.LFunction)
		if !ok {
			return nil, fmt.Errorf("%w: dispose is %s", ErrBadSetupResult, d.Type())
		}
		return makeDispose(s, fn), nil
	default:
		return nil, fmt.Errorf("%w: got %s", ErrBadSetupResult, results[0].Type())
	}
}

// makeDispose wraps a Lua function as a host-callable dispose hook. Calling
// it after the state is closed is a no-op.
func makeDispose(s *State, fn *lua.LFunction) Dispose {
	return func() error {
		if s.IsClosed() {
			return nil
		}
		_, err := s.CallFunction(fn)
		return err
	}
}
