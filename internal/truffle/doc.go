// Package truffle compiles and migrates a staged project with the truffle CLI.
//
// Both operations first write the project's network file so that the
// project's truffle-config.js can resolve the sandbox network; its path is
// exported to the tool as NetworkFileEnv.
package truffle
