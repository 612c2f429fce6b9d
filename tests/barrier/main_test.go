//go:build integration

package barrier_test

import (
	"testing"

	"github.com/giantswarm/chainenv"
	"github.com/giantswarm/chainenv/tests/internal/testutil"
)

// registry is private to this package so the release barrier sees only the
// sandboxes created here.
var registry *chainenv.Registry

// basePort keeps this package's networks clear of the ports used by the main
// integration package, which `go test ./tests/...` runs in parallel.
const basePort = 21111

func TestMain(m *testing.M) {
	testutil.SetupAndRun(m, &registry, "chainenv-barrier-*",
		chainenv.WithMaxInstances(2),
		chainenv.WithBasePort(basePort),
	)
}
