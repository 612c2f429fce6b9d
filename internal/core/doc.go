// Package core implements sandbox lifecycle orchestration.
//
// An Instance drives a strictly sequential seven-stage pipeline (workspace,
// configure, network, attach, publisher, compile, deploy). Each stage
// settles the Deferred attributes it produces as soon as it succeeds; a
// failing stage rejects every attribute still pending with one *StageError.
//
// A Registry hands out capacity, ports and network ids, and implements the
// shutdown barrier: networks are released only once every instance that
// started one has requested closure.
package core
