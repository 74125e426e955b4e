package instance

import "errors"

var (
	// ErrSpawn is returned when the operating system could not start the process.
	ErrSpawn = errors.New("instance: spawn failed")
	// ErrPrematureExit is returned when the process exits before it is ready.
	ErrPrematureExit = errors.New("instance: process exited before ready")
	// ErrReadinessTimeout is returned when the probe budget runs out with no readiness signal.
	ErrReadinessTimeout = errors.New("instance: timed out waiting for readiness")
	// ErrAlreadyRun is returned by a second call to Run on the same Supervisor.
	ErrAlreadyRun = errors.New("instance: already run")
)
