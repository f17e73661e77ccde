//go:build linux

package procgroup

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitExit(t *testing.T, cmd *exec.Cmd, timeout time.Duration) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		t.Fatalf("process %d did not exit within %s", cmd.Process.Pid, timeout)
		return nil
	}
}

// alive reports whether pid exists and is not a zombie
func alive(pid int) bool {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}
	i := bytes.LastIndexByte(data, ')')
	fields := strings.Fields(string(data[i+1:]))
	return len(fields) > 0 && fields[0] != "Z"
}

func TestTerminateReachesWholeGroup(t *testing.T) {
	cmd := exec.Command("sh", "-c", "sleep 100 & echo $!; wait")
	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err)
	Set(cmd)
	require.NoError(t, cmd.Start())

	pid := cmd.Process.Pid
	pgid, err := syscall.Getpgid(pid)
	require.NoError(t, err)
	require.Equal(t, pid, pgid, "PID should be PGID leader")

	line, err := bufio.NewReader(stdout).ReadString('\n')
	require.NoError(t, err)
	child, err := strconv.Atoi(strings.TrimSpace(line))
	require.NoError(t, err)
	require.True(t, alive(child))

	require.NoError(t, Terminate(pid))
	_ = waitExit(t, cmd, 2*time.Second)

	require.Eventually(t, func() bool {
		return !alive(child)
	}, 2*time.Second, 20*time.Millisecond, "background child should have received SIGTERM")
}

func TestKillWhenTermIsIgnored(t *testing.T) {
	// SIG_IGN survives exec, so the sleep ignores SIGTERM too
	cmd := exec.Command("sh", "-c", "trap '' TERM; sleep 100")
	Set(cmd)
	require.NoError(t, cmd.Start())
	time.Sleep(100 * time.Millisecond)

	pid := cmd.Process.Pid
	require.NoError(t, Terminate(pid))

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-done:
		t.Fatal("process should have survived SIGTERM")
	case <-time.After(200 * time.Millisecond):
	}

	require.NoError(t, Kill(pid))
	select {
	case err := <-done:
		var exitErr *exec.ExitError
		require.ErrorAs(t, err, &exitErr)
		status, ok := exitErr.Sys().(syscall.WaitStatus)
		if ok {
			assert.True(t, status.Signaled(), "process should be signaled")
			assert.Equal(t, syscall.SIGKILL, status.Signal())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("process survived SIGKILL")
	}
}

func TestSignalInvalidPid(t *testing.T) {
	assert.ErrorIs(t, Terminate(0), ErrProcessNotFound)
	assert.ErrorIs(t, Kill(-1), ErrProcessNotFound)
}

func TestSignalAlreadyGone(t *testing.T) {
	cmd := exec.Command("true")
	Set(cmd)
	require.NoError(t, cmd.Start())
	require.NoError(t, cmd.Wait())

	assert.NoError(t, Terminate(cmd.Process.Pid))
	assert.NoError(t, Kill(cmd.Process.Pid))
}
