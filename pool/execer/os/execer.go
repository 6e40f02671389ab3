// Package os implements pool/execer on top of os/exec for real Unix
// processes. Children are placed in their own process group so that
// termination reaches the whole tree an executable may spawn.
package os

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/lumais/hicbem/pool/execer"
)

// Implements pool/execer.Execer
type osExecer struct{}

func NewExecer() execer.Execer {
	return &osExecer{}
}

func (e *osExecer) Exec(command execer.Command) (execer.Process, error) {
	if len(command.Argv) == 0 {
		return nil, fmt.Errorf("no command specified")
	}

	cmd := exec.Command(command.Argv[0], command.Argv[1:]...)
	cmd.Dir = command.Dir
	cmd.Env = os.Environ()
	cmd.Stdout = command.Stdout
	cmd.Stderr = command.Stderr

	// Sets pgid of all child processes to cmd's pid
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"pid":  cmd.Process.Pid,
		"argv": command.Argv,
		"dir":  command.Dir,
	}).Debug("Started process")

	return &process{cmd: cmd, doneCh: make(chan struct{})}, nil
}

// Kill the process group rooted at pgid, assuming no child called setpgid
// on its own.
func cleanupProcs(pgid int) error {
	err := syscall.Kill(-pgid, syscall.SIGKILL)
	if err != nil && err != syscall.ESRCH {
		log.WithFields(log.Fields{
			"pgid":  pgid,
			"error": err,
		}).Error("Error cleaning up pgid")
		return err
	}
	return nil
}
