package bridge

import "errors"

var (
	// ErrConfigMissing reports an unusable run setup: the command script is
	// absent or the working-directory root is unset.
	ErrConfigMissing = errors.New("bridge: configuration missing")

	// ErrPermissionDenied reports working storage or a script file that
	// exists but cannot be prepared for the engine.
	ErrPermissionDenied = errors.New("bridge: permission denied")

	// ErrNullResult reports a result buffer that is absent or empty after
	// the final reshape. Data-integrity failure, never recoverable.
	ErrNullResult = errors.New("bridge: null result buffer")
)
