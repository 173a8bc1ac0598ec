// Package sysmemtest provides an in-memory sysmem.Cluster for tests, a
// plain byte slice standing in for the huge page a real cluster would map
// from the device.
package sysmemtest

import (
	"fmt"

	"hostq.dev/hostq/pkg/devcmd"
	"hostq.dev/hostq/pkg/wire"
)

// MemoryCluster is a sysmem.Cluster backed by a single allocated buffer,
// with no real on-device dispatcher on the other end. Reads see whatever
// was last written, except for one simplification: a Finish command's
// header is recognized on arrival and instantly acknowledged, so a queue
// built on this cluster behaves as if paired with a dispatcher that drains
// the ring the moment anything lands in it. Recognition is by shape only:
// any single write of exactly NumBytesInDeviceCommand bytes whose first
// word has bit 0 set is treated as a Finish header, which a Wrap command
// of exactly that size also matches. That is the only device
// behavior this fake simulates; it exists so package tests can exercise
// CommandQueue.Finish without a real device.
type MemoryCluster struct {
	mem []byte
}

func NewMemoryCluster(size uint32) *MemoryCluster {
	return &MemoryCluster{mem: make([]byte, size)}
}

func (c *MemoryCluster) WriteSysmemVec(words []uint32, byteOffset uint32) error {
	end := byteOffset + uint32(len(words))*4
	if int(end) > len(c.mem) {
		return fmt.Errorf("sysmemtest: write of %d words at offset %d overruns %d-byte memory", len(words), byteOffset, len(c.mem))
	}
	copy(c.mem[byteOffset:end], wire.WordsToBytes(words))

	if len(words) == devcmd.NumBytesInDeviceCommand/4 && words[0]&1 != 0 {
		copy(c.mem[devcmd.HostCQFinishPtr:devcmd.HostCQFinishPtr+4], wire.WordsToBytes([]uint32{1}))
	}
	return nil
}

func (c *MemoryCluster) ReadSysmemVec(byteOffset uint32, numBytes uint32) ([]uint32, error) {
	end := byteOffset + numBytes
	if int(end) > len(c.mem) {
		return nil, fmt.Errorf("sysmemtest: read of %d bytes at offset %d overruns %d-byte memory", numBytes, byteOffset, len(c.mem))
	}
	return wire.BytesToWords(c.mem[byteOffset:end]), nil
}

// Bytes exposes the raw backing memory for assertions in tests.
func (c *MemoryCluster) Bytes() []byte { return c.mem }
