// Package execer abstracts launching and terminating one external Unix
// process. It knows nothing about benchmarks, jobs or scheduling; it is at
// the level of os/exec, not exec-as-a-service, which lets the pool be tested
// against simulated processes (cf. pool/execer/execers).
package execer

import (
	"io"
	"time"
)

// Command describes one process invocation.
type Command struct {
	// Argv is the executable path followed by its arguments.
	Argv []string
	// Dir is the working directory for the process. Empty means inherit.
	Dir string

	Stdout io.Writer
	Stderr io.Writer
}

type ProcessState int

const (
	UNKNOWN ProcessState = iota
	RUNNING
	// COMPLETE means the process exited on its own; the exit code may still
	// be non-zero.
	COMPLETE
	// FAILED means the process did not exit on its own (aborted, killed, or
	// its exit status could not be determined).
	FAILED
)

func (s ProcessState) IsDone() bool {
	return s == COMPLETE || s == FAILED
}

func (s ProcessState) String() string {
	switch s {
	case RUNNING:
		return "RUNNING"
	case COMPLETE:
		return "COMPLETE"
	case FAILED:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

type Execer interface {
	Exec(command Command) (Process, error)
}

type Process interface {
	// Wait blocks until the process exits and returns its final status.
	Wait() ProcessStatus

	// Abort requests a graceful stop (SIGTERM or equivalent), waits up to
	// grace for the process to exit, then forcefully kills it. Safe to call
	// concurrently with Wait and safe to call on an already finished process.
	Abort(grace time.Duration) ProcessStatus

	// Kill forcefully terminates the process with no grace period. The wait
	// for the process to be reaped is bounded.
	Kill() ProcessStatus

	// Pid of the underlying process, for logging.
	Pid() int
}

type ProcessStatus struct {
	State    ProcessState
	ExitCode int
	Error    string
}
