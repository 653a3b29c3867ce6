//go:build windows

package process

import (
	"os/exec"
	"syscall"
)

func setpgid(cmd *exec.Cmd) {}

func killGroup(cmd *exec.Cmd, sig syscall.Signal) {
	cmd.Process.Kill()
}
