//go:build unix

package procgroup

import (
	"errors"
	"os/exec"
	"syscall"
)

func set(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

func signal(pid int, force bool) error {
	if pid <= 0 {
		return ErrProcessNotFound
	}

	sig := syscall.SIGTERM
	if force {
		sig = syscall.SIGKILL
	}

	// -pid targets the group; the child is its leader since Setpgid.
	err := syscall.Kill(-pid, sig)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}

	// Fall back to the leader alone if the group cannot be signalled
	err = syscall.Kill(pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
