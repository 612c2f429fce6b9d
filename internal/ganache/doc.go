// Package ganache provides process management for the ganache Ethereum test
// network.
//
// It covers construction, startup with a deterministic account seed, TCP
// readiness polling on the listen port, optional forwarding of the network's
// stdout to a line sink, and graceful shutdown via SIGTERM. Launcher combines
// these steps into a single call that yields a releasable Server.
package ganache
