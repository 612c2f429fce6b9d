// Package netutil issues the per-instance network identity: a listen port and
// a network id, both unique for the lifetime of the process.
package netutil

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
)

// maxIDRetries bounds how many random ids NewNetworkID draws before giving up.
// With 32 bits of randomness a collision is already rare; more than a handful
// in a row means the random source is broken.
const maxIDRetries = 16

// maxPort is the highest valid TCP port.
const maxPort = 65535

// claimSet records every port and network id handed out by the allocators
// that share it.
type claimSet struct {
	mu    sync.Mutex
	ports map[int]struct{}
	ids   map[string]struct{}
}

func newClaimSet() *claimSet {
	return &claimSet{
		ports: make(map[int]struct{}),
		ids:   make(map[string]struct{}),
	}
}

// claimPort reports whether port was free and, if so, marks it taken.
func (c *claimSet) claimPort(port int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.ports[port]; ok {
		return false
	}
	c.ports[port] = struct{}{}
	return true
}

// claimID reports whether id was free and, if so, marks it taken.
func (c *claimSet) claimID(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.ids[id]; ok {
		return false
	}
	c.ids[id] = struct{}{}
	return true
}

// issued is shared by every Allocator built with NewAllocator, so two
// allocators in one process never return the same port or network id, even
// when their base ports overlap.
var issued = newClaimSet()

// Allocator hands out monotonically increasing ports and random network ids.
//
// Ports start at the base given to NewAllocator. A port or id already issued
// by any Allocator in the process is skipped, so neither is ever reused.
// Network ids are random 4-byte tokens rendered as "0x%08x".
//
// Allocator is safe for concurrent use.
type Allocator struct {
	next   atomic.Int64
	claims *claimSet

	// read is the random source. Replaced in tests.
	read func([]byte) (int, error)
}

// NewAllocator returns an Allocator whose first port is basePort, or the
// next port after it not yet issued in this process.
// Panics if basePort is outside the valid TCP port range.
func NewAllocator(basePort int) *Allocator {
	return newAllocator(basePort, issued)
}

func newAllocator(basePort int, claims *claimSet) *Allocator {
	if basePort <= 0 || basePort > maxPort {
		panic(fmt.Sprintf("chainenv: base port must be in 1..65535, got %d", basePort))
	}
	a := &Allocator{
		claims: claims,
		read:   rand.Read,
	}
	a.next.Store(int64(basePort))
	return a
}

// NextPort returns the lowest port at or above the counter that no Allocator
// has issued yet, and advances the counter past it.
// Panics once the counter runs past 65535.
func (a *Allocator) NextPort() int {
	for {
		p := int(a.next.Add(1) - 1)
		if p > maxPort {
			panic("chainenv: port range exhausted")
		}
		if a.claims.claimPort(p) {
			return p
		}
	}
}

// NewNetworkID returns a network id that no Allocator has returned before.
func (a *Allocator) NewNetworkID() (string, error) {
	var buf [4]byte
	for range maxIDRetries {
		if _, err := a.read(buf[:]); err != nil {
			return "", fmt.Errorf("read random network id: %w", err)
		}
		id := fmt.Sprintf("0x%08x", binary.BigEndian.Uint32(buf[:]))
		if a.claims.claimID(id) {
			return id, nil
		}
	}
	return "", fmt.Errorf("allocate unique network id: exhausted %d attempts", maxIDRetries)
}
