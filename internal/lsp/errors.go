package lsp

import "errors"

// Fatal at startup.
var (
	// ErrLaunch means the server process could not be started or exited
	// within the launch grace window.
	ErrLaunch = errors.New("language server launch failed")
	// ErrInitializationTimeout means the initialize request got no response in time.
	ErrInitializationTimeout = errors.New("language server initialization timed out")
	// ErrInitializationFailure means the server answered initialize with an error.
	ErrInitializationFailure = errors.New("language server initialization failed")
)

// Returned per query.
var (
	// ErrNotInitialized means a request was issued before the handshake completed.
	ErrNotInitialized = errors.New("language server session not initialized")
	// ErrProcessDead means the server process is gone. It matches
	// ErrNotInitialized under errors.Is.
	ErrProcessDead error = processDeadError{}
	// ErrRequestTimeout means a request exceeded its bound. The request is not
	// retracted; a late response is discarded by the transport.
	ErrRequestTimeout = errors.New("request timed out")
)

type processDeadError struct{}

func (processDeadError) Error() string { return "language server process is not running" }

func (processDeadError) Is(target error) bool { return target == ErrNotInitialized }
