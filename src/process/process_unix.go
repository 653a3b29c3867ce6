//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// setpgid puts cmd in its own process group so killGroup can reach any children it spawns too.
func setpgid(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// killGroup signals the whole process group rooted at cmd.
func killGroup(cmd *exec.Cmd, sig syscall.Signal) {
	syscall.Kill(-cmd.Process.Pid, sig)
}
