package process

import (
	"time"
)

// Stoppable is a process that can be stopped and have its resources closed.
type Stoppable interface {
	Stop(timeout time.Duration) error
	Close()
}

// StopCloseAndNil stops *p, closes it and sets *p to nil. It is safe to call
// with a nil p or a nil *p.
//
// Close and the nil-out happen even when Stop fails: a process in an unknown
// state must still give up its file handles. The Stop error is returned.
//
//	var proc *ganache.Process
//	// ... start proc ...
//	err := process.StopCloseAndNil(&proc, 10*time.Second)
func StopCloseAndNil[P interface {
	*E
	Stoppable
}, E any](p *P, timeout time.Duration) error {
	if p == nil || *p == nil {
		return nil
	}
	defer func() {
		(*p).Close()
		*p = nil
	}()
	return (*p).Stop(timeout)
}
