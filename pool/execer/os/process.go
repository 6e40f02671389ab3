package os

import (
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	log "github.com/sirupsen/logrus"

	"github.com/lumais/hicbem/pool/execer"
)

// How often the abort path polls the process for a natural exit, and the
// bound on waiting for a SIGKILLed process to be reaped.
const (
	abortPollInterval = 100 * time.Millisecond
	killWaitBound     = 2 * time.Second
)

var errStillRunning = fmt.Errorf("process still running")

// Implements pool/execer.Process. A single reaper goroutine owns cmd.Wait;
// doneCh closes once the process has been reaped, so Wait, Abort and Kill
// can all observe the exit without touching cmd state concurrently.
type process struct {
	cmd    *exec.Cmd
	doneCh chan struct{}

	mutex   sync.Mutex
	reaping bool
	waitErr error
	result  *execer.ProcessStatus
}

func (p *process) Pid() int {
	return p.cmd.Process.Pid
}

// ensureReaper starts the goroutine calling cmd.Wait, exactly once. waitErr
// is settled before doneCh closes.
func (p *process) ensureReaper() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.reaping {
		return
	}
	p.reaping = true
	go func() {
		err := p.cmd.Wait()
		p.mutex.Lock()
		p.waitErr = err
		p.mutex.Unlock()
		close(p.doneCh)
	}()
}

// waitStatus maps the error from cmd.Wait to a final status. An exit of the
// process on its own is COMPLETE whatever the exit code; FAILED means the
// exit code could not be determined.
func waitStatus(err error) execer.ProcessStatus {
	var result execer.ProcessStatus
	if err == nil {
		result.State = execer.COMPLETE
		result.ExitCode = 0
		return result
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			result.State = execer.COMPLETE
			result.ExitCode = status.ExitStatus()
			return result
		}
		result.State = execer.FAILED
		result.Error = "could not find WaitStatus from exitErr.Sys()"
		return result
	}
	result.State = execer.FAILED
	result.Error = err.Error()
	return result
}

// status returns the settled result, deriving it from the reaped process
// when no termination path recorded one first. Call only once doneCh is
// closed or result is known to be set.
func (p *process) status() execer.ProcessStatus {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.result == nil {
		result := waitStatus(p.waitErr)
		p.result = &result
	}
	return *p.result
}

func (p *process) appendError(msg string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.result != nil {
		p.result.Error += msg
	}
}

// Wait blocks until the process has been reaped and returns its final
// status. If the process was aborted or killed first, the status recorded
// by that path wins.
func (p *process) Wait() execer.ProcessStatus {
	p.ensureReaper()
	<-p.doneCh
	return p.status()
}

// Abort attempts SIGTERM allowing for graceful exit, then SIGKILLs the whole
// process group if the process is still alive after the grace window. The
// process mutex is not held while waiting, so a concurrent Kill can cut the
// window short.
func (p *process) Abort(grace time.Duration) execer.ProcessStatus {
	p.mutex.Lock()
	if p.result != nil {
		st := *p.result
		p.mutex.Unlock()
		return st
	}
	p.result = &execer.ProcessStatus{
		State:    execer.FAILED,
		ExitCode: -1,
		Error:    "aborted",
	}
	p.mutex.Unlock()
	p.ensureReaper()

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		log.WithFields(log.Fields{
			"pid":   p.cmd.Process.Pid,
			"error": err,
		}).Error("Error aborting command via SIGTERM, escalating to SIGKILL")
		p.killAndWait("SIGTERM undeliverable")
		return p.status()
	}
	log.WithFields(log.Fields{
		"pid":   p.cmd.Process.Pid,
		"grace": grace,
	}).Info("Aborting process via SIGTERM")

	// Poll for the exit until the grace window elapses.
	poll := backoff.WithMaxRetries(backoff.NewConstantBackOff(abortPollInterval),
		uint64(grace/abortPollInterval))
	err := backoff.Retry(func() error {
		select {
		case <-p.doneCh:
			return nil
		default:
			return errStillRunning
		}
	}, poll)
	if err != nil {
		p.killAndWait(fmt.Sprintf("grace window (%v) elapsed", grace))
		p.appendError(" (SIGKILL)")
	} else {
		log.WithFields(log.Fields{
			"pid": p.cmd.Process.Pid,
		}).Info("Process finished via SIGTERM")
		p.appendError(" (SIGTERM)")
	}
	return p.status()
}

// Kill forcefully terminates the process group with no grace period. It
// escalates even when an Abort is riding out its grace window.
func (p *process) Kill() execer.ProcessStatus {
	p.mutex.Lock()
	if p.result == nil {
		p.result = &execer.ProcessStatus{
			State:    execer.FAILED,
			ExitCode: -1,
			Error:    "killed",
		}
	}
	p.mutex.Unlock()

	select {
	case <-p.doneCh:
		// Already reaped, nothing left to kill.
		return p.status()
	default:
	}
	p.killAndWait("killed with no grace period")
	return p.status()
}

// killAndWait SIGKILLs the process and all processes in its group, then
// waits a bounded time for the reaper to collect it. Safe to call from
// concurrent termination paths.
func (p *process) killAndWait(reason string) {
	pid := p.cmd.Process.Pid
	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		log.WithFields(log.Fields{
			"pid":   pid,
			"error": err,
		}).Error("Error finding pgid")
	} else {
		defer cleanupProcs(pgid)
	}

	p.appendError(" " + reason)
	if err := p.cmd.Process.Kill(); err != nil {
		log.WithFields(log.Fields{
			"pid":   pid,
			"error": err,
		}).Error("Couldn't kill process, will still attempt pgid cleanup")
	}

	p.ensureReaper()
	select {
	case <-p.doneCh:
	case <-time.After(killWaitBound):
		log.WithFields(log.Fields{
			"pid": pid,
		}).Error("Killed process was not reaped within bound")
	}
}
