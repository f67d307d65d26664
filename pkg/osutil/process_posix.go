//go:build unix

package osutil

import (
	"os/exec"
	"syscall"
)

// KillGroupOnCancel runs cmd in its own process group and makes context
// cancellation kill the whole group, so scripts that spawn children do not
// outlive their timeout. Call before cmd.Start.
func KillGroupOnCancel(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
