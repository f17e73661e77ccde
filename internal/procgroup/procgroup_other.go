//go:build !unix

package procgroup

import (
	"os"
	"os/exec"
)

func set(cmd *exec.Cmd) {}

func signal(pid int, force bool) error {
	if pid <= 0 {
		return ErrProcessNotFound
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	if force {
		return proc.Kill()
	}
	return proc.Signal(os.Interrupt)
}
