package command

import "errors"

// ErrUnknownAction marks a payload whose discriminant does not match any
// known variant. Such commands are reported as errored, never executed.
var ErrUnknownAction = errors.New("unknown command action")
