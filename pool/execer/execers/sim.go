// Package execers provides simulated implementations of pool/execer for
// tests, so scheduling behavior can be exercised without real processes.
package execers

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lumais/hicbem/pool/execer"
)

func NewSimExecer() *SimExecer {
	return &SimExecer{resumeCh: make(chan struct{})}
}

// SimExecer execs by simulating running argv.
// Each arg in command.Argv is simulated in order. Valid args are:
//   complete <exitcode int>
//     exit with exitcode
//   sleep <millis int>
//     sleep for millis milliseconds
//   pause
//     block until Resume() is called (or the process is aborted)
// Args starting with "#" are ignored.
// SimExecer additionally tracks the number of concurrently live simulated
// processes, which tests use to verify scheduling bounds.
type SimExecer struct {
	resumeCh chan struct{}

	mu           sync.Mutex
	live         int
	maxLive      int
	started      int
	startTimes   []time.Time
	startedNames []string
}

// Resume unblocks one process blocked on a "pause" step.
func (e *SimExecer) Resume() {
	e.resumeCh <- struct{}{}
}

// MaxLive returns the maximum number of simulated processes that were ever
// live simultaneously.
func (e *SimExecer) MaxLive() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxLive
}

// Started returns how many processes were ever started.
func (e *SimExecer) Started() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

// StartTimes returns the times at which processes were started, in start
// order.
func (e *SimExecer) StartTimes() []time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	res := make([]time.Time, len(e.startTimes))
	copy(res, e.startTimes)
	return res
}

// StartedDirs returns the working directories of started commands, in start
// order. The pool tests use Command.Dir as a per-job label.
func (e *SimExecer) StartedDirs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	res := make([]string, len(e.startedNames))
	copy(res, e.startedNames)
	return res
}

func (e *SimExecer) Exec(command execer.Command) (execer.Process, error) {
	steps, err := e.parse(command.Argv)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.live++
	e.started++
	if e.live > e.maxLive {
		e.maxLive = e.live
	}
	e.startTimes = append(e.startTimes, time.Now())
	e.startedNames = append(e.startedNames, command.Dir)
	e.mu.Unlock()

	p := &simProcess{abortCh: make(chan struct{}), doneCh: make(chan struct{})}
	p.status.State = execer.RUNNING
	go func() {
		p.run(steps)
		e.mu.Lock()
		e.live--
		e.mu.Unlock()
	}()
	return p, nil
}

func (e *SimExecer) parse(argv []string) ([]simStep, error) {
	steps := make([]simStep, 0, len(argv))
	for _, arg := range argv {
		s, err := e.parseArg(arg)
		if err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, nil
}

func (e *SimExecer) parseArg(arg string) (simStep, error) {
	if strings.HasPrefix(arg, "#") {
		return &noopStep{}, nil
	}
	splits := strings.SplitN(arg, " ", 2)
	opcode, rest := splits[0], ""
	if len(splits) == 2 {
		rest = splits[1]
	}
	switch opcode {
	case "complete":
		i, err := strconv.Atoi(rest)
		if err != nil {
			return nil, fmt.Errorf("error parsing <n> in complete <n>: %v", err)
		}
		return &completeStep{i}, nil
	case "sleep":
		i, err := strconv.Atoi(rest)
		if err != nil {
			return nil, fmt.Errorf("error parsing <n> in sleep <n>: %v", err)
		}
		return &sleepStep{time.Duration(i) * time.Millisecond}, nil
	case "pause":
		return &pauseStep{e.resumeCh}, nil
	}
	return nil, fmt.Errorf("can't simulate arg: %v", arg)
}

type simProcess struct {
	mu      sync.Mutex
	status  execer.ProcessStatus
	abortCh chan struct{}
	doneCh  chan struct{}
	aborted bool
}

func (p *simProcess) run(steps []simStep) {
	st := execer.ProcessStatus{State: execer.COMPLETE}
	for _, step := range steps {
		interrupted := false
		st, interrupted = step.run(st, p.abortCh)
		if interrupted || st.State.IsDone() {
			break
		}
	}
	p.setStatus(st)
	close(p.doneCh)
}

func (p *simProcess) setStatus(status execer.ProcessStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status.State.IsDone() {
		return
	}
	p.status = status
}

func (p *simProcess) Pid() int { return 0 }

func (p *simProcess) Wait() execer.ProcessStatus {
	<-p.doneCh
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *simProcess) Abort(grace time.Duration) execer.ProcessStatus {
	return p.stop()
}

func (p *simProcess) Kill() execer.ProcessStatus {
	return p.stop()
}

func (p *simProcess) stop() execer.ProcessStatus {
	p.mu.Lock()
	if !p.aborted {
		p.aborted = true
		p.status = execer.ProcessStatus{State: execer.FAILED, ExitCode: -1, Error: "aborted"}
		close(p.abortCh)
	}
	st := p.status
	p.mu.Unlock()
	<-p.doneCh
	return st
}

type simStep interface {
	// run the step, returning the updated status and whether the process was
	// interrupted mid-step.
	run(status execer.ProcessStatus, abortCh chan struct{}) (execer.ProcessStatus, bool)
}

type noopStep struct{}

func (s *noopStep) run(status execer.ProcessStatus, _ chan struct{}) (execer.ProcessStatus, bool) {
	return status, false
}

type completeStep struct {
	exitCode int
}

func (s *completeStep) run(status execer.ProcessStatus, _ chan struct{}) (execer.ProcessStatus, bool) {
	status.ExitCode = s.exitCode
	status.State = execer.COMPLETE
	return status, false
}

type sleepStep struct {
	duration time.Duration
}

func (s *sleepStep) run(status execer.ProcessStatus, abortCh chan struct{}) (execer.ProcessStatus, bool) {
	select {
	case <-time.After(s.duration):
		return status, false
	case <-abortCh:
		return status, true
	}
}

type pauseStep struct {
	resumeCh chan struct{}
}

func (s *pauseStep) run(status execer.ProcessStatus, abortCh chan struct{}) (execer.ProcessStatus, bool) {
	select {
	case <-s.resumeCh:
		return status, false
	case <-abortCh:
		return status, true
	}
}
