package queue

import (
	"context"
	"testing"

	"hostq.dev/hostq/pkg/device"
	"hostq.dev/hostq/pkg/devcmd"
	"hostq.dev/hostq/pkg/sysmem/sysmemtest"
)

type fakeDevice struct {
	*device.FakeDevice
}

func newFakeDevice() *fakeDevice {
	dispatchCores := []device.CoreCoord{{X: 0, Y: 0}, {X: 1, Y: 0}}
	return &fakeDevice{FakeDevice: device.NewFakeDevice(device.CoreCoord{X: 5, Y: 5}, dispatchCores)}
}

func (d *fakeDevice) CompileProgram(ctx context.Context, prog *device.Program) error { return nil }
func (d *fakeDevice) ConfigureDeviceWithProgram(ctx context.Context, prog *device.Program) error {
	return nil
}
func (d *fakeDevice) WriteL1(ctx context.Context, logicalCore device.CoreCoord, addr uint32, words []uint32) error {
	return nil
}
func (d *fakeDevice) LaunchDirect(ctx context.Context, physicalCore device.CoreCoord, msg [4]uint32) error {
	return nil
}

func newTestQueue(t *testing.T, ringSize uint32) (*CommandQueue, *sysmemtest.MemoryCluster, *fakeDevice) {
	t.Helper()
	cluster := sysmemtest.NewMemoryCluster(ringSize)
	dev := newFakeDevice()
	q, err := New(context.Background(), dev, cluster, ringSize)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return q, cluster, dev
}

func TestEnqueueWriteThenReadBufferRoundTrip(t *testing.T) {
	q, _, dev := newTestQueue(t, 1<<20)
	buf, err := dev.AllocateBuffer(64, 32, device.BufferKindDRAM)
	if err != nil {
		t.Fatalf("AllocateBuffer: %v", err)
	}
	src := []uint32{1, 2, 3, 4, 5, 6, 7, 8}
	if err := q.EnqueueWriteBuffer(buf, src, false); err != nil {
		t.Fatalf("EnqueueWriteBuffer: %v", err)
	}

	var dst []uint32
	if err := q.EnqueueReadBuffer(buf, &dst, true); err != nil {
		t.Fatalf("EnqueueReadBuffer: %v", err)
	}
	if len(dst) != int(buf.Size()/4) {
		t.Fatalf("read back %d words, want %d", len(dst), buf.Size()/4)
	}
}

// TestEnqueueWriteThenReadBufferRoundTripUnalignedPageSize exercises a page
// size that is not itself a multiple of 32, so the ring must reserve and
// advance by the padded transfer size rather than the buffer's raw size.
func TestEnqueueWriteThenReadBufferRoundTripUnalignedPageSize(t *testing.T) {
	q, _, dev := newTestQueue(t, 1<<20)
	const pageSize = 100
	const numPages = 40
	buf, err := dev.AllocateBuffer(pageSize*numPages, pageSize, device.BufferKindDRAM)
	if err != nil {
		t.Fatalf("AllocateBuffer: %v", err)
	}
	src := make([]uint32, pageSize*numPages/4)
	for i := range src {
		src[i] = uint32(i) + 1
	}
	if err := q.EnqueueWriteBuffer(buf, src, false); err != nil {
		t.Fatalf("EnqueueWriteBuffer: %v", err)
	}

	var dst []uint32
	if err := q.EnqueueReadBuffer(buf, &dst, true); err != nil {
		t.Fatalf("EnqueueReadBuffer: %v", err)
	}
	if len(dst) != len(src) {
		t.Fatalf("read back %d words, want %d", len(dst), len(src))
	}
}

// TestEnqueueWriteBufferAdvancesRingByPaddedSize guards against the ring
// write pointer under-advancing on an unaligned page size: if a command's
// footprint were computed from the buffer's raw, unpadded size, the pointer
// would land inside bytes the payload actually occupies, and the following
// command would overwrite them before the device ever reads them.
func TestEnqueueWriteBufferAdvancesRingByPaddedSize(t *testing.T) {
	q, _, dev := newTestQueue(t, 1<<20)
	const pageSize = 100
	const numPages = 8
	const paddedPageSize = 128 // align(100, 32)
	buf, err := dev.AllocateBuffer(pageSize*numPages, pageSize, device.BufferKindDRAM)
	if err != nil {
		t.Fatalf("AllocateBuffer: %v", err)
	}

	start := q.writer.WrPtrBytes()
	if err := q.EnqueueWriteBuffer(buf, make([]uint32, pageSize*numPages/4), false); err != nil {
		t.Fatalf("EnqueueWriteBuffer: %v", err)
	}

	want := start + devcmd.NumBytesInDeviceCommand + paddedPageSize*numPages
	if got := q.writer.WrPtrBytes(); got != want {
		t.Fatalf("write pointer = %d, want %d (raw buffer size would have given %d)",
			got, want, start+devcmd.NumBytesInDeviceCommand+buf.Size())
	}
}

func TestEnqueueReadBufferRejectsNonBlocking(t *testing.T) {
	q, _, dev := newTestQueue(t, 1<<20)
	buf, _ := dev.AllocateBuffer(32, 32, device.BufferKindDRAM)
	var dst []uint32
	if err := q.EnqueueReadBuffer(buf, &dst, false); err == nil {
		t.Fatal("expected error for non-blocking read")
	}
}

func TestEnqueueWriteBufferRejectsBlocking(t *testing.T) {
	q, _, dev := newTestQueue(t, 1<<20)
	buf, _ := dev.AllocateBuffer(32, 32, device.BufferKindDRAM)
	if err := q.EnqueueWriteBuffer(buf, []uint32{1}, true); err == nil {
		t.Fatal("expected error for blocking write")
	}
}

func TestEnqueueWriteBufferRejectsSystemMemoryDestination(t *testing.T) {
	q, _, dev := newTestQueue(t, 1<<20)
	buf, err := dev.AllocateBuffer(32, 32, device.BufferKindSystemMemory)
	if err != nil {
		t.Fatalf("AllocateBuffer: %v", err)
	}
	if err := q.EnqueueWriteBuffer(buf, []uint32{1}, false); err == nil {
		t.Fatal("expected error writing to a SYSTEM_MEMORY-kind buffer")
	}
}

// TestMaybeWrapPanicsOnOversizedCommand guards the fatal-assertion path: a
// command that cannot fit in the ring even after a wrap leaves no way to
// undo bytes already committed, so it must panic rather than return an
// error a caller could ignore and keep going.
func TestMaybeWrapPanicsOnOversizedCommand(t *testing.T) {
	ringSize := uint32(4096)
	q, _, _ := newTestQueue(t, ringSize)

	defer func() {
		if recover() == nil {
			t.Fatal("expected maybeWrap to panic on an oversized command")
		}
	}()
	_ = q.maybeWrap(ringSize)
}

func TestEnqueueProgramCachesSecondLaunch(t *testing.T) {
	q, _, dev := newTestQueue(t, 1<<20)
	cores := device.CoreRangeSet{Ranges: []device.CoreRange{{Start: device.CoreCoord{X: 0, Y: 0}, End: device.CoreCoord{X: 0, Y: 0}}}}
	prog := device.NewProgram(7)
	k := device.NewKernel(0, device.BRISC, cores)
	k.SetRuntimeArgs(device.CoreCoord{X: 0, Y: 0}, []uint32{1, 2})
	prog.AddKernel(k)

	if err := q.EnqueueProgram(context.Background(), prog, false); err != nil {
		t.Fatalf("first EnqueueProgram: %v", err)
	}
	q.mu.Lock()
	firstEntry := q.programCache[prog.ID()]
	q.mu.Unlock()

	if err := q.EnqueueProgram(context.Background(), prog, false); err != nil {
		t.Fatalf("second EnqueueProgram: %v", err)
	}
	q.mu.Lock()
	secondEntry := q.programCache[prog.ID()]
	q.mu.Unlock()

	if firstEntry != secondEntry {
		t.Error("second launch of the same program should reuse the cached entry, not recompile")
	}
	_ = dev
}

func TestFinishClearsDeviceFlag(t *testing.T) {
	q, cluster, _ := newTestQueue(t, 1<<20)
	if err := cluster.WriteSysmemVec([]uint32{1}, devcmd.HostCQFinishPtr); err != nil {
		t.Fatal(err)
	}
	if err := q.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	words, err := cluster.ReadSysmemVec(devcmd.HostCQFinishPtr, 4)
	if err != nil {
		t.Fatal(err)
	}
	if words[0] != 0 {
		t.Errorf("finish flag = %d, want 0 after Finish returns", words[0])
	}
}
