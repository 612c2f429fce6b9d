package netutil

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"

	"github.com/giantswarm/chainenv/internal/sentinel"
)

// ErrPortInUse is returned by CheckPortFree when another listener holds the
// port.
const ErrPortInUse = sentinel.Error("port already in use")

// CheckPortFree binds host:port and closes the listener at once. It fails
// with ErrPortInUse if something else is listening there. The check is a
// snapshot: the port may be taken again before the caller binds it.
func CheckPortFree(host string, port int) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	l, err := net.Listen("tcp", addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("%w: %s: %w", ErrPortInUse, addr, err)
		}
		return fmt.Errorf("check port %s: %w", addr, err)
	}
	if err := l.Close(); err != nil {
		return fmt.Errorf("release port check listener %s: %w", addr, err)
	}
	return nil
}
