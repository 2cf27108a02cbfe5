// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import "errors"

var (
	// ErrMissingRunnerFactory is returned when a supervisor has no way to
	// build streamer managers.
	ErrMissingRunnerFactory = errors.New("runner factory is required")

	// ErrServerNotStarted is returned when trying to shutdown a server that hasn't started
	ErrServerNotStarted = errors.New("server not started")

	// ErrSupervisorStopped is returned when enqueueing after shutdown.
	ErrSupervisorStopped = errors.New("supervisor stopped")
)
