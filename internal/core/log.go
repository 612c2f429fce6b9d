package core

import (
	"log/slog"
	"sync/atomic"
)

// logger holds the logger installed with SetLogger; nil means "use the
// default". Named logger so it does not shadow package log.
var logger atomic.Pointer[slog.Logger]

// fallback caches slog.Default().With("component", "chainenv") after the
// first Logger call. SetLogger clears it so a later slog.SetDefault is
// picked up.
var fallback atomic.Pointer[slog.Logger]

// Logger returns the logger used for registry and instance messages. Safe
// for concurrent use.
func Logger() *slog.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	if l := fallback.Load(); l != nil {
		return l
	}
	l := slog.Default().With("component", "chainenv")
	if fallback.CompareAndSwap(nil, l) {
		return l
	}
	if winner := fallback.Load(); winner != nil {
		return winner
	}
	return l
}

// SetLogger installs l for all subsequent instances. nil restores the
// default derived from slog.Default(). Instances capture the logger when
// they are created.
func SetLogger(l *slog.Logger) {
	logger.Store(l)
	fallback.Store(nil)
}
