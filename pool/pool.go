// Package pool runs external executables as jobs under a bounded-concurrency
// scheduler with per-job timeouts, deferred starts, graceful-then-forceful
// termination and signal-safe teardown. It drives long-running benchmark
// pipelines (network generators, clustering algorithms, evaluators) and is
// agnostic to what a job's executable actually does.
//
// A single coordinator goroutine owns the pending queue and the active-job
// table; submissions, spawn results, process exits and shutdown requests all
// reach it as messages, so no pool state is ever mutated from an
// asynchronous context.
package pool

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/lumais/hicbem/common/stats"
	"github.com/lumais/hicbem/pool/execer"
)

const (
	// DefaultTick is the monitoring loop interval for liveness and timeout
	// checks.
	DefaultTick = 1 * time.Second
	// DefaultAbortGrace is how long a timed-out process gets between
	// SIGTERM and SIGKILL.
	DefaultAbortGrace = 10 * time.Second
	// DefaultJoinGrace is the shorter unified grace used when a Join
	// deadline forces termination of the remaining jobs.
	DefaultJoinGrace = 5 * time.Second
)

var (
	// ErrNotOpen is returned by Execute when the pool is draining or closed.
	ErrNotOpen = errors.New("pool is not open for submissions")
	// ErrDeadline is returned by Join when the deadline elapsed and the
	// remaining jobs had to be dropped or force-terminated.
	ErrDeadline = errors.New("join deadline elapsed, remaining jobs terminated")
)

// DefaultCapacity leaves one CPU for the coordinator and the caller.
func DefaultCapacity() int {
	if n := runtime.NumCPU(); n > 1 {
		return n - 1
	}
	return 1
}

type lifecycle int

const (
	stateOpen lifecycle = iota
	stateDraining
	stateClosed
)

// Config parameterizes an ExecPool. Zero timing values fall back to the
// defaults above.
type Config struct {
	// Capacity is the maximum number of concurrently held worker slots.
	// A slot is held for the full Delayed+Running span of a job.
	Capacity int
	// Execer spawns the actual processes.
	Execer execer.Execer
	// Stat receives scheduling metrics. The zero Receiver discards them.
	Stat stats.Receiver

	Tick       time.Duration
	AbortGrace time.Duration
	JoinGrace  time.Duration
}

// ExecPool is the bounded-concurrency scheduler. Create with New, submit
// with Execute, block on drain with Join, and stop everything dead with
// Teardown (typically from a signal handler). After Join the pool is
// reusable; after Teardown it is closed for good.
type ExecPool struct {
	capacity   int
	exec       execer.Execer
	stat       stats.Receiver
	tick       time.Duration
	abortGrace time.Duration
	joinGrace  time.Duration

	reqCh chan interface{}
	// closed when the coordinator exits (teardown complete and drained)
	doneCh chan struct{}
}

// Coordinator-owned scheduling state; only the loop goroutine touches it.
type poolState struct {
	state   lifecycle
	pending []*Job
	// active holds every job occupying a worker slot: delayed, running and
	// aborting jobs alike. len(active) never exceeds capacity.
	active  map[string]*Job
	tracked map[string]*Job
	waiters []chan struct{}
}

// Coordinator messages.
type submitReq struct {
	job      *Job
	resultCh chan error
}
type spawnResult struct {
	job       *Job
	proc      execer.Process
	err       error
	cancelled bool
}
type exitResult struct {
	job    *Job
	status execer.ProcessStatus
}
type joinReq struct {
	drainedCh chan struct{}
	resultCh  chan error
}
type sweepReq struct {
	doneCh chan struct{}
}
type teardownReq struct {
	doneCh chan struct{}
}

func New(config Config) *ExecPool {
	p := &ExecPool{
		capacity:   config.Capacity,
		exec:       config.Execer,
		stat:       config.Stat,
		tick:       config.Tick,
		abortGrace: config.AbortGrace,
		joinGrace:  config.JoinGrace,
		reqCh:      make(chan interface{}),
		doneCh:     make(chan struct{}),
	}
	if p.capacity <= 0 {
		p.capacity = DefaultCapacity()
	}
	if p.tick <= 0 {
		p.tick = DefaultTick
	}
	if p.abortGrace <= 0 {
		p.abortGrace = DefaultAbortGrace
	}
	if p.joinGrace <= 0 {
		p.joinGrace = DefaultJoinGrace
	}
	go p.loop()
	return p
}

// Execute enqueues the job and returns without waiting for its launch or
// completion. It fails only on precondition violations: empty or duplicate
// name, empty argv, missing workdir, or a pool that is not open.
func (p *ExecPool) Execute(job *Job) error {
	if job.Name == "" {
		return errors.New("job name must not be empty")
	}
	if len(job.Argv) == 0 {
		return errors.Errorf("job %q has no command", job.Name)
	}
	if job.Workdir != "" {
		fi, err := os.Stat(job.Workdir)
		if err != nil {
			return errors.Wrapf(err, "workdir of job %q", job.Name)
		}
		if !fi.IsDir() {
			return errors.Errorf("workdir %q of job %q is not a directory", job.Workdir, job.Name)
		}
	}

	resultCh := make(chan error)
	select {
	case p.reqCh <- submitReq{job, resultCh}:
		return <-resultCh
	case <-p.doneCh:
		return ErrNotOpen
	}
}

// Join blocks until all submitted work has drained, or until timeout
// elapses (zero means wait indefinitely). On the deadline path all pending
// jobs are cancelled without running, every active job is force-terminated
// after a short grace, and ErrDeadline is returned. Either way the active
// table is empty when Join returns and the pool accepts submissions again.
func (p *ExecPool) Join(timeout time.Duration) error {
	drainedCh := make(chan struct{})
	resultCh := make(chan error)
	select {
	case p.reqCh <- joinReq{drainedCh, resultCh}:
	case <-p.doneCh:
		// Torn down: drained by definition.
		return nil
	}
	if err := <-resultCh; err != nil {
		return err
	}

	var deadlineCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadlineCh = timer.C
	}
	select {
	case <-drainedCh:
		return nil
	case <-p.doneCh:
		return nil
	case <-deadlineCh:
	}

	log.WithFields(log.Fields{
		"timeout": timeout,
	}).Warn("Join deadline elapsed, sweeping remaining jobs")
	sweptCh := make(chan struct{})
	select {
	case p.reqCh <- sweepReq{sweptCh}:
		<-sweptCh
	case <-p.doneCh:
		return nil
	}
	select {
	case <-drainedCh:
	case <-p.doneCh:
	}
	return ErrDeadline
}

// Teardown kills every tracked process with no grace period, cancels all
// pending jobs and closes the pool. It is idempotent, safe to call from a
// signal-handling goroutine concurrently with everything else, and returns
// only once no child processes survive.
func (p *ExecPool) Teardown() {
	doneCh := make(chan struct{})
	select {
	case p.reqCh <- teardownReq{doneCh}:
		<-doneCh
	case <-p.doneCh:
		return
	}
	<-p.doneCh
}

// Summary reports the running totals accumulated so far.
func (p *ExecPool) Summary() Summary {
	return Summary{
		Submitted: p.stat.Counter("submitted").Count(),
		Completed: p.stat.Counter("completed").Count(),
		TimedOut:  p.stat.Counter("timedout").Count(),
		Failed:    p.stat.Counter("failed").Count(),
		Cancelled: p.stat.Counter("cancelled").Count(),
	}
}

// loop is the coordinator: the only goroutine that mutates pending/active.
func (p *ExecPool) loop() {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	s := &poolState{
		active:  make(map[string]*Job),
		tracked: make(map[string]*Job),
	}
	for {
		select {
		case req := <-p.reqCh:
			switch r := req.(type) {
			case submitReq:
				r.resultCh <- p.submit(s, r.job)
			case spawnResult:
				p.handleSpawn(s, r)
			case exitResult:
				p.reap(s, r.job, r.status)
			case joinReq:
				p.handleJoin(s, r)
			case sweepReq:
				p.sweep(s, p.joinGrace)
				close(r.doneCh)
			case teardownReq:
				log.Info("Tearing down the execution pool")
				p.sweep(s, 0)
				s.state = stateClosed
				close(r.doneCh)
			}
		case <-ticker.C:
			p.checkTimeouts(s)
		}

		p.stat.Gauge("pendingJobs").Update(int64(len(s.pending)))
		p.stat.Gauge("activeJobs").Update(int64(len(s.active)))

		if drained(s) {
			for _, w := range s.waiters {
				close(w)
			}
			s.waiters = nil
			if s.state == stateDraining {
				s.state = stateOpen
			}
			if s.state == stateClosed {
				close(p.doneCh)
				return
			}
		}
	}
}

func drained(s *poolState) bool {
	return len(s.pending) == 0 && len(s.active) == 0
}

func (p *ExecPool) submit(s *poolState, j *Job) error {
	if s.state != stateOpen {
		return ErrNotOpen
	}
	if _, ok := s.tracked[j.Name]; ok {
		return errors.Errorf("job %q is already tracked", j.Name)
	}
	j.setState(Pending)
	j.cancelCh = make(chan struct{})
	s.tracked[j.Name] = j
	if j.Task != nil {
		j.Task.add(j.Name)
	}
	s.pending = append(s.pending, j)
	p.stat.Counter("submitted").Inc(1)
	p.admit(s)
	return nil
}

// admit pops pending jobs into free worker slots in FIFO order. A slot is
// reserved for the whole Delayed+Running span, so concurrency stays bounded
// predictably even during start delays.
func (p *ExecPool) admit(s *poolState) {
	for len(s.pending) > 0 && len(s.active) < p.capacity && s.state != stateClosed {
		j := s.pending[0]
		s.pending = s.pending[1:]
		s.active[j.Name] = j
		if j.StartDelay > 0 {
			j.setState(Delayed)
		}
		go p.launch(j)
	}
}

// launch runs outside the coordinator: it honors the start delay, spawns the
// process and fires OnStart, then reports the outcome back to the loop.
func (p *ExecPool) launch(j *Job) {
	if j.StartDelay > 0 {
		delay := time.NewTimer(j.StartDelay)
		select {
		case <-delay.C:
		case <-j.cancelCh:
			delay.Stop()
			p.reqCh <- spawnResult{job: j, cancelled: true}
			return
		}
	}

	j.markStarted(time.Now())
	proc, err := p.exec.Exec(execer.Command{
		Argv:   j.Argv,
		Dir:    j.Workdir,
		Stdout: j.Stdout,
		Stderr: j.Stderr,
	})
	if err != nil {
		p.reqCh <- spawnResult{job: j, err: err}
		return
	}
	log.WithFields(j.logFields()).WithFields(log.Fields{
		"pid":  proc.Pid(),
		"argv": fmt.Sprintf("%q", j.Argv),
	}).Info("Job started")
	if j.OnStart != nil {
		runCallback("OnStart", j.OnStart, j)
	}
	p.reqCh <- spawnResult{job: j, proc: proc}
}

func (p *ExecPool) handleSpawn(s *poolState, r spawnResult) {
	j := r.job
	switch {
	case r.cancelled:
		// Cancelled before the process was started: no callbacks fire.
		j.setState(Cancelled)
		p.stat.Counter("cancelled").Inc(1)
		p.release(s, j)
	case r.err != nil:
		j.setElapsed(time.Since(j.StartTime()))
		if j.swept {
			// The sweep already decided cancellation; the failed spawn just
			// means there is nothing left to stop.
			j.setState(Cancelled)
			p.stat.Counter("cancelled").Inc(1)
			log.WithFields(j.logFields()).Warn("Job cancelled")
			p.release(s, j)
			return
		}
		j.setState(Failed)
		p.stat.Counter("failed").Inc(1)
		log.WithFields(j.logFields()).Errorf("Job failed to spawn: %v", r.err)
		if j.OnDone != nil {
			runCallback("OnDone", j.OnDone, j)
		}
		p.release(s, j)
	default:
		j.proc = r.proc
		if j.swept {
			// A sweep or teardown raced with the spawn; stop it right away.
			j.aborting = true
			grace := p.joinGrace
			if s.state == stateClosed {
				grace = 0
			}
			go stopProc(r.proc, grace)
		}
		go p.watch(j, r.proc)
	}
}

// watch blocks on the process and feeds its exit back to the coordinator.
func (p *ExecPool) watch(j *Job, proc execer.Process) {
	st := proc.Wait()
	p.reqCh <- exitResult{job: j, status: st}
}

// checkTimeouts runs on every tick: any running job past its deadline gets
// the graceful-then-forceful termination sequence.
func (p *ExecPool) checkTimeouts(s *poolState) {
	now := time.Now()
	for _, j := range s.active {
		if j.proc == nil || j.aborting || j.swept || j.Timeout <= 0 {
			continue
		}
		if now.Sub(j.StartTime()) <= j.Timeout {
			continue
		}
		j.aborting = true
		j.timedOut = true
		log.WithFields(j.logFields()).WithFields(log.Fields{
			"timeout": j.Timeout,
			"pid":     j.proc.Pid(),
		}).Infof("Job exceeded timeout, terminating")
		go stopProc(j.proc, p.abortGrace)
	}
}

func stopProc(proc execer.Process, grace time.Duration) {
	if grace > 0 {
		proc.Abort(grace)
	} else {
		proc.Kill()
	}
}

// reap records the terminal state of an exited job, releases its slot,
// fires OnDone and admits the next pending job.
func (p *ExecPool) reap(s *poolState, j *Job, st execer.ProcessStatus) {
	elapsed := time.Since(j.StartTime())
	j.setElapsed(elapsed)

	var final JobState
	switch {
	case j.timedOut:
		final = TimedOut
	case j.swept:
		final = Cancelled
	case st.State == execer.COMPLETE && st.ExitCode == 0:
		final = Completed
	default:
		final = Failed
	}
	j.setState(final)

	fields := j.logFields()
	fields["elapsed"] = FmtHMS(elapsed)
	switch final {
	case Completed:
		p.stat.Counter("completed").Inc(1)
		log.WithFields(fields).Info("Job completed")
	case TimedOut:
		p.stat.Counter("timedout").Inc(1)
		if j.ExpectTimeout {
			log.WithFields(fields).Infof("Job terminated by the timeout (%v)", j.Timeout)
		} else {
			log.WithFields(fields).Errorf("Job terminated by the timeout (%v)", j.Timeout)
		}
	case Cancelled:
		p.stat.Counter("cancelled").Inc(1)
		log.WithFields(fields).Warn("Job cancelled")
	default:
		p.stat.Counter("failed").Inc(1)
		log.WithFields(fields).WithFields(log.Fields{
			"exitCode": st.ExitCode,
			"error":    st.Error,
		}).Error("Job failed")
	}
	p.stat.Histogram("jobRuntimeMs").Update(int64(elapsed / time.Millisecond))

	if j.OnDone != nil {
		runCallback("OnDone", j.OnDone, j)
	}
	p.release(s, j)
}

func (p *ExecPool) release(s *poolState, j *Job) {
	delete(s.active, j.Name)
	delete(s.tracked, j.Name)
	p.admit(s)
}

func (p *ExecPool) handleJoin(s *poolState, r joinReq) {
	if drained(s) {
		r.resultCh <- nil
		close(r.drainedCh)
		return
	}
	if s.state == stateOpen {
		s.state = stateDraining
	}
	s.waiters = append(s.waiters, r.drainedCh)
	r.resultCh <- nil
}

// sweep drops all pending jobs without callbacks and initiates termination
// of every active job: zero grace closes the pool path (teardown), non-zero
// is the join-deadline path.
func (p *ExecPool) sweep(s *poolState, grace time.Duration) {
	for _, j := range s.pending {
		j.setState(Cancelled)
		p.stat.Counter("cancelled").Inc(1)
		delete(s.tracked, j.Name)
		log.WithFields(j.logFields()).Warn("Pending job dropped")
	}
	s.pending = nil

	for _, j := range s.active {
		if j.swept {
			continue
		}
		j.swept = true
		j.cancelDelay()
		if j.proc == nil {
			continue
		}
		proc := j.proc
		switch {
		case !j.aborting:
			j.aborting = true
			go stopProc(proc, grace)
		case grace == 0:
			// Already riding out a timeout grace window; a teardown
			// preempts it.
			go proc.Kill()
		default:
			go killAfter(proc, grace)
		}
	}
}

// killAfter bounds an abort already in flight: the process is killed
// outright once the shorter sweep grace elapses, unless it exited first.
func killAfter(proc execer.Process, grace time.Duration) {
	time.Sleep(grace)
	proc.Kill()
}
