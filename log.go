package chainenv

import (
	"log/slog"

	"github.com/giantswarm/chainenv/internal/core"
)

// SetLogger replaces the package-level logger used by chainenv.
// This allows applications to integrate chainenv logging with their own
// logging infrastructure. The provided logger should already have any
// desired attributes; chainenv only adds per-sandbox "network" and "port"
// attributes.
//
// If l is nil, the logger resets to the default: slog.Default() with a
// "component" attribute. Call SetLogger(nil) after slog.SetDefault() to
// pick up changes.
//
// Registries and sandboxes capture the logger when they are created, so
// call SetLogger before NewRegistry (e.g., in TestMain before m.Run).
//
// Example:
//
//	chainenv.SetLogger(myLogger.With("component", "chainenv"))
func SetLogger(l *slog.Logger) {
	core.SetLogger(l)
}
