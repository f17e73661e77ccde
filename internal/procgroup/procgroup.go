// Package procgroup signals encoder subprocesses as a whole process group.
package procgroup

import (
	"errors"
	"os/exec"
)

// ErrProcessNotFound is returned for an invalid pid
var ErrProcessNotFound = errors.New("process not found")

// Set configures the command to start in a new process group.
// Terminal signals aimed at the parent then no longer reach the child,
// and Terminate/Kill reach every process the child spawned.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// Terminate asks the process group led by pid to exit (SIGTERM).
// A group that is already gone is not an error.
func Terminate(pid int) error {
	return signal(pid, false)
}

// Kill force-kills the process group led by pid (SIGKILL).
func Kill(pid int) error {
	return signal(pid, true)
}
