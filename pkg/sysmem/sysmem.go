// Package sysmem implements the host side of the command ring: reserving
// space at its back, writing bytes into it, and publishing how far the
// write pointer has advanced. It never talks to hardware directly — all
// reads and writes of the ring's backing memory go through an injected
// Cluster, so tests can run against a plain byte slice.
package sysmem

import (
	"fmt"

	"hostq.dev/hostq/pkg/atomicbitops"
	"hostq.dev/hostq/pkg/devcmd"
)

// Cluster is the collaborator that actually owns the shared memory the
// ring lives in. A real implementation talks to the huge page mapping; the
// tests in this module use an in-memory one (see sysmemtest).
type Cluster interface {
	WriteSysmemVec(words []uint32, byteOffset uint32) error
	ReadSysmemVec(byteOffset uint32, numBytes uint32) ([]uint32, error)
}

// Writer tracks the ring's write pointer and pushes bytes into it on
// behalf of the command objects in package command. One Writer is bound to
// one Cluster and one ring size for its whole lifetime, mirroring a command
// queue owning exactly one device.
//
// WrPtr is kept in 16-byte units, matching the on-device representation the
// dispatcher polls; WrPtrBytes converts back to a byte offset for callers.
type Writer struct {
	cluster  Cluster
	ringSize uint32

	wrPtr    atomicbitops.Uint32
	wrToggle atomicbitops.Uint32
}

// NewWriter creates a Writer whose write pointer starts at CQStart, the
// first byte past the ring's reserved pointer block.
func NewWriter(cluster Cluster, ringSize uint32) *Writer {
	w := &Writer{cluster: cluster, ringSize: ringSize}
	w.wrPtr.Store(devcmd.CQStart >> 4)
	return w
}

// WrPtrBytes is the current write pointer as a byte offset into the ring.
// A Store made by PushBack in another goroutine is guaranteed visible here.
func (w *Writer) WrPtrBytes() uint32 { return w.wrPtr.Load() << 4 }

// WrToggle is the current wrap-toggle bit: it flips every time the write
// pointer returns to the ring base, letting the on-device consumer tell a
// fresh lap of the ring apart from a stale one.
func (w *Writer) WrToggle() uint32 { return w.wrToggle.Load() }

// ReserveBack asserts that nBytes are available at the back of the ring.
// The real dispatcher enforces flow control by blocking the producer core
// until the on-device consumer has drained enough space; that consumer is
// not modeled here; callers (package queue) are responsible for never
// requesting more than fits before the ring wraps, and this is the
// last-resort check that catches it if they don't.
func (w *Writer) ReserveBack(nBytes uint32) {
	if w.WrPtrBytes()+nBytes > w.ringSize {
		panic(fmt.Sprintf("sysmem: reserve of %d bytes at offset %d overruns a %d-byte ring", nBytes, w.WrPtrBytes(), w.ringSize))
	}
}

// Write copies bytes into the ring at the given byte offset. offset must be
// 4-byte aligned since the underlying transport moves whole words.
func (w *Writer) Write(bytes []byte, offset uint32) error {
	if offset%4 != 0 {
		return fmt.Errorf("sysmem: write offset %d is not 4-byte aligned", offset)
	}
	words := make([]uint32, (len(bytes)+3)/4)
	padded := bytes
	if rem := len(bytes) % 4; rem != 0 {
		padded = append(append([]byte(nil), bytes...), make([]byte, 4-rem)...)
	}
	for i := range words {
		words[i] = uint32(padded[i*4]) | uint32(padded[i*4+1])<<8 | uint32(padded[i*4+2])<<16 | uint32(padded[i*4+3])<<24
	}
	return w.cluster.WriteSysmemVec(words, offset)
}

// PushBack advances the write pointer by nBytes, releasing every write
// made before it so the consumer that acquires the new pointer sees them.
// If the new pointer would land exactly at the ring's end, it wraps back to
// CQStart and the toggle bit flips — the effect of committing a Wrap
// command, which pads out to precisely that boundary.
func (w *Writer) PushBack(nBytes uint32) {
	next := w.wrPtr.Load() + nBytes>>4
	if next<<4 >= w.ringSize {
		next = devcmd.CQStart >> 4
		w.wrToggle.Store(w.wrToggle.Load() ^ 1)
	}
	w.wrPtr.Store(next)
}

// RingSize is the total size in bytes of the ring this writer manages.
func (w *Writer) RingSize() uint32 { return w.ringSize }

// ClusterHandle returns the collaborator backing this writer's ring, so command
// objects that need to read data back out of the ring (a completed
// ReadBuffer's payload, a Finish acknowledgement) can share it.
func (w *Writer) ClusterHandle() Cluster { return w.cluster }
