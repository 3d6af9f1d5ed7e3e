package dispatch

import "errors"

// ErrTimeout is reported when Race gives up waiting on a Func.
var ErrTimeout = errors.New("execution timed out")
