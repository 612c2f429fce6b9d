// Package artifactcache provides a content-addressable cache of compiled
// contract artifacts for chainenv.
//
// Entries are keyed by a deterministic SHA256 hash of the project's contract
// sources and compiler settings and stored in a SQLite database. On a cache
// miss the wrapped compiler runs under a cross-process file lock so that
// concurrent sandboxes compiling identical sources do the work once; on a hit
// the stored build files are written back into the workspace build directory
// so later migrations find them.
package artifactcache
