//go:build windows

package osutil

import (
	"os"
	"os/exec"
)

// KillGroupOnCancel kills the process on context cancellation. Windows has
// no process groups, so children of the process may survive.
func KillGroupOnCancel(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Kill)
	}
}
