package pool

import (
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/lumais/hicbem/pool/execer"
)

// JobState tracks a job through its lifecycle. Terminal states are sinks:
// a job passes through Pending -> [Delayed] -> Running -> terminal exactly
// once.
type JobState int

const (
	Pending JobState = iota
	Delayed
	Running
	Completed
	TimedOut
	Failed
	Cancelled
)

func (s JobState) Terminal() bool {
	switch s {
	case Completed, TimedOut, Failed, Cancelled:
		return true
	}
	return false
}

func (s JobState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Delayed:
		return "delayed"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case TimedOut:
		return "timedout"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Callback is a side effect hook attached to a Job. Errors (and panics) are
// logged at the call site and never affect the job or the pool.
type Callback func(*Job) error

// Job describes one external-process invocation plus its run state. The
// descriptive fields must not be modified after the job is submitted.
type Job struct {
	// Name uniquely identifies the job among the pool's tracked jobs.
	Name string
	// Task optionally groups this job with related ones. Back-reference
	// only; the pool makes no scheduling decisions based on it.
	Task *Task
	// Workdir is the working directory for the spawned process and must
	// exist at submission time. Empty means inherit the current directory.
	Workdir string
	// Argv is the executable path plus arguments, opaque to the pool.
	// Callers conventionally prepend a resource tracer here (cf.
	// bench.Traced); the pool neither knows nor cares.
	Argv []string
	// Timeout bounds the run, measured from the actual (post-delay) spawn
	// time. Zero means unbounded.
	Timeout time.Duration
	// ExpectTimeout marks a timeout as an expected outcome to be reported
	// as informational rather than as an error. Either way the job ends up
	// TimedOut.
	ExpectTimeout bool
	// OnStart is invoked once the process has been spawned.
	OnStart Callback
	// OnDone is invoked once on any terminal transition except cancellation
	// before the process was started.
	OnDone Callback
	// StartDelay postpones the spawn after a worker slot has been reserved,
	// e.g. to let a shared input file finish being written by a prior job.
	StartDelay time.Duration

	// Optional destinations for the process output.
	Stdout io.Writer
	Stderr io.Writer

	mu      sync.Mutex
	state   JobState
	tstart  time.Time
	elapsed time.Duration

	// Run bookkeeping below is owned by the pool coordinator.
	proc       execer.Process
	timedOut   bool
	swept      bool
	aborting   bool
	cancelCh   chan struct{}
	cancelOnce sync.Once
}

// State returns the job's current lifecycle state.
func (j *Job) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// StartTime returns the actual spawn time (after StartDelay), the origin
// from which Timeout is measured. Zero until the job reaches Running.
func (j *Job) StartTime() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.tstart
}

// Elapsed returns the recorded wall-clock run duration. Zero until the job
// reaches a terminal state.
func (j *Job) Elapsed() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.elapsed
}

func (j *Job) setState(s JobState) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = s
}

func (j *Job) markStarted(t time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.tstart = t
	j.state = Running
}

func (j *Job) setElapsed(d time.Duration) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.elapsed = d
}

// cancelDelay aborts a pending spawn delay. Idempotent.
func (j *Job) cancelDelay() {
	j.cancelOnce.Do(func() { close(j.cancelCh) })
}

func (j *Job) logFields() log.Fields {
	fields := log.Fields{"job": j.Name}
	if j.Task != nil {
		fields["task"] = j.Task.Name
	}
	return fields
}

// runCallback invokes cb shielding the coordinator from its errors and
// panics.
func runCallback(what string, cb Callback, j *Job) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(j.logFields()).Errorf("Panic in %s callback: %v", what, r)
		}
	}()
	if err := cb(j); err != nil {
		log.WithFields(j.logFields()).Errorf("Error in %s callback: %v", what, err)
	}
}
