// Package project models a staged truffle project: its optional chainenv.yaml
// settings, the network entry the sandbox binds it to, and the compiled
// contract artifacts found in its build directory.
package project
