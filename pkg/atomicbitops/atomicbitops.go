// Package atomicbitops provides typed atomic values used to publish state
// across the host/device boundary without a lock. Every store performed
// through Uint32 is a release; every load is an acquire, matching the
// producer/consumer memory-visibility contract described for the command
// ring.
package atomicbitops

import "sync/atomic"

// Uint32 is an atomically accessed uint32. The zero value is 0.
//
// Uint32 must not be copied after first use.
type Uint32 struct {
	v atomic.Uint32
}

// Load is analogous to atomic.LoadUint32, and acquires any state published
// by a preceding Store.
func (u *Uint32) Load() uint32 {
	return u.v.Load()
}

// Store is analogous to atomic.StoreUint32, and releases any writes that
// precede it in program order.
func (u *Uint32) Store(val uint32) {
	u.v.Store(val)
}

// Add is analogous to atomic.AddUint32.
func (u *Uint32) Add(delta uint32) uint32 {
	return u.v.Add(delta)
}

// CompareAndSwap is analogous to atomic.CompareAndSwapUint32.
func (u *Uint32) CompareAndSwap(old, new uint32) bool {
	return u.v.CompareAndSwap(old, new)
}

// Uint64 is an atomically accessed uint64. The zero value is 0.
type Uint64 struct {
	v atomic.Uint64
}

// Load is analogous to atomic.LoadUint64.
func (u *Uint64) Load() uint64 {
	return u.v.Load()
}

// Store is analogous to atomic.StoreUint64.
func (u *Uint64) Store(val uint64) {
	u.v.Store(val)
}

// Add is analogous to atomic.AddUint64.
func (u *Uint64) Add(delta uint64) uint64 {
	return u.v.Add(delta)
}
