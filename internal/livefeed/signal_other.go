//go:build !unix

package livefeed

import "os/exec"

// Pausing an external player is not supported here; only the queue holds.
func suspend(cmd *exec.Cmd) {}

func resume(cmd *exec.Cmd) {}
