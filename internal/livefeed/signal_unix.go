//go:build unix

package livefeed

import (
	"os/exec"
	"syscall"
)

func suspend(cmd *exec.Cmd) {
	if cmd != nil && cmd.Process != nil {
		cmd.Process.Signal(syscall.SIGSTOP)
	}
}

func resume(cmd *exec.Cmd) {
	if cmd != nil && cmd.Process != nil {
		cmd.Process.Signal(syscall.SIGCONT)
	}
}
