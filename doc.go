// Package chainenv provides disposable smart-contract test environments.
//
// Each sandbox runs a private ganache network, stages a copy of a truffle
// project into its own workspace, compiles the contracts and runs the
// project's migrations against that network. Sandboxes initialize in the
// background; every value they produce can be requested right away and is
// delivered as soon as it exists.
//
// # Basic Usage
//
//	import "github.com/giantswarm/chainenv"
//
//	ctx := context.Background()
//
//	reg := chainenv.NewRegistry()
//	defer reg.Close()
//
//	sb, err := reg.New(
//	    chainenv.WithProjectDir("./contracts-project"),
//	    chainenv.WithCopyPaths("node_modules/openzeppelin-solidity"),
//	    chainenv.WithExtract("MetaCoin", "ConvertLib"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sb.Close(ctx)
//
//	addrs, err := sb.Addresses(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client, err := sb.Client(ctx)
//	// Bind contracts at addrs["MetaCoin"] with client...
//
// # Parallel Testing
//
// Every sandbox gets its own port, network id and workspace, so tests may
// create sandboxes concurrently. WithMaxInstances caps how many sandboxes
// a registry keeps open at once:
//
//	reg := chainenv.NewRegistry(chainenv.WithMaxInstances(4))
//
//	for i := 0; i < 4; i++ {
//	    t.Run(fmt.Sprintf("test-%d", i), func(t *testing.T) {
//	        t.Parallel()
//	        sb, err := reg.New(chainenv.WithProjectDir(dir))
//	        if err != nil {
//	            t.Fatal(err)
//	        }
//	        t.Cleanup(func() { _ = sb.Close(context.Background()) })
//	        // ...
//	    })
//	}
//
// # Shutdown
//
// Networks are stopped together: a sandbox's Close does not stop its
// network until every sandbox of the same registry has been closed. A
// sandbox whose initialization failed stops its network right away but
// still has to be closed.
//
// # Compile Cache
//
// WithArtifactCache stores compiled artifacts keyed by a hash of the
// Solidity sources and compiler settings, so sandboxes of an unchanged
// project skip the compiler after the first build.
package chainenv
