package bridge

import (
	bridgeerrors "github.com/vango-dev/bridge/internal/errors"
)

// Sentinel errors. Compare with errors.Is; matching is by error code, so
// wrapped and freshly constructed instances compare equal.
var (
	// ErrConnect wraps a transport's connect failure.
	ErrConnect = bridgeerrors.New("B001")

	// ErrClosed is returned by Send after the connection was torn down.
	ErrClosed = bridgeerrors.New("B002")

	// ErrAlreadyInstalled is returned by a second Install on one session.
	ErrAlreadyInstalled = bridgeerrors.New("B020")

	// ErrConnecting is returned by Use and Install when they are re-entered
	// while the session's connect is still running.
	ErrConnecting = bridgeerrors.New("B024")

	// ErrUnmounted is returned by Install and Use after Unmount.
	ErrUnmounted = bridgeerrors.New("B021")

	// ErrHandleReleased is returned by Send on a released handle.
	ErrHandleReleased = bridgeerrors.New("B022")

	// ErrNilHandler is returned when a session is installed without a handler.
	ErrNilHandler = bridgeerrors.Newf(bridgeerrors.CategoryLifecycle, "bridge: nil handler")

	// ErrNilTransport is returned when a session has no transport to connect with.
	ErrNilTransport = bridgeerrors.Newf(bridgeerrors.CategoryLifecycle, "bridge: nil transport")
)
