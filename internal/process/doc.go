// Package process supervises the external binaries a sandbox depends on.
//
// BaseProcess owns a long-running child (the ganache network) with log files,
// a single cmd.Wait goroutine and SIGTERM-then-SIGKILL shutdown. Run executes
// one-shot tool invocations (truffle compile, truffle migrate) and streams
// their stdout line by line. WaitReady polls a readiness check while watching
// for early process exit.
package process
