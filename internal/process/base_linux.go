//go:build linux

package process

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr makes the child receive SIGTERM when the test binary
// dies, so a killed `go test` does not leave ganache listening on its port.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Pdeathsig: syscall.SIGTERM,
	}
}
