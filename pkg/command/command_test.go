package command

import (
	"testing"

	"hostq.dev/hostq/pkg/device"
	"hostq.dev/hostq/pkg/devcmd"
	"hostq.dev/hostq/pkg/programmap"
	"hostq.dev/hostq/pkg/sysmem"
	"hostq.dev/hostq/pkg/sysmem/sysmemtest"
)

func newWriter(ringSize uint32) (*sysmem.Writer, *sysmemtest.MemoryCluster) {
	cluster := sysmemtest.NewMemoryCluster(ringSize)
	return sysmem.NewWriter(cluster, ringSize), cluster
}

func TestWriteBufferThenReadBufferRoundTrip(t *testing.T) {
	ringSize := uint32(1 << 16)
	w, cluster := newWriter(ringSize)

	buf := device.NewBuffer(0x1000, 64, 32, device.BufferKindDRAM)
	src := []uint32{1, 2, 3, 4, 5, 6, 7, 8}
	wb := NewWriteBuffer(buf, src, w)
	if err := wb.Process(); err != nil {
		t.Fatalf("WriteBuffer.Process: %v", err)
	}
	if got := w.WrPtrBytes(); got != devcmd.CQStart+devcmd.NumBytesInDeviceCommand+buf.Size() {
		t.Errorf("write pointer after WriteBuffer = %d", got)
	}

	rb := NewReadBuffer(buf, w)
	if err := rb.Process(); err != nil {
		t.Fatalf("ReadBuffer.Process: %v", err)
	}
	if rb.ReplyAddr() == 0 {
		t.Error("ReplyAddr not set")
	}
	_ = cluster
}

func TestWriteBufferRejectsSystemMemoryDestination(t *testing.T) {
	w, _ := newWriter(1 << 16)
	buf := device.NewBuffer(0x1000, 64, 32, device.BufferKindSystemMemory)
	wb := NewWriteBuffer(buf, []uint32{1, 2}, w)
	if err := wb.Process(); err == nil {
		t.Fatal("expected an error writing to a SYSTEM_MEMORY-kind buffer")
	}
}

// TestCircularBufferSizingBelowFourPages exercises a page size large enough
// that fewer than 4 pages fit in the consumer circular buffer at all: the
// transfer stride must still come out to 1, never 0, and the producer page
// count must stay exactly twice the consumer's rather than being derived
// independently.
func TestCircularBufferSizingBelowFourPages(t *testing.T) {
	w, cluster := newWriter(1 << 20)
	const pageSize = 40000 // already a multiple of 32; ConsumerDataBufferSize/pageSize == 3
	buf := device.NewBuffer(0x1000, pageSize*3, pageSize, device.BufferKindDRAM)
	wb := NewWriteBuffer(buf, make([]uint32, pageSize*3/4), w)

	writePtr := w.WrPtrBytes()
	if err := wb.Process(); err != nil {
		t.Fatalf("WriteBuffer.Process: %v", err)
	}
	header, err := cluster.ReadSysmemVec(writePtr, devcmd.NumBytesInDeviceCommand)
	if err != nil {
		t.Fatal(err)
	}
	const (
		producerCBNumPagesWord = 28 / 4
		consumerCBNumPagesWord = 32 / 4
		transferNumPagesWord   = 36 / 4
	)
	if got := header[consumerCBNumPagesWord]; got != 3 {
		t.Errorf("consumer_cb_num_pages = %d, want 3", got)
	}
	if got := header[producerCBNumPagesWord]; got != 6 {
		t.Errorf("producer_cb_num_pages = %d, want 6 (2x consumer)", got)
	}
	if got := header[transferNumPagesWord]; got != 1 {
		t.Errorf("producer_consumer_transfer_num_pages = %d, want 1, not truncated to 0", got)
	}
}

func TestFinishSetsFlagWord(t *testing.T) {
	w, cluster := newWriter(1 << 16)
	writePtr := w.WrPtrBytes()
	f := NewFinish(w)
	if err := f.Process(); err != nil {
		t.Fatalf("Finish.Process: %v", err)
	}
	words, err := cluster.ReadSysmemVec(writePtr, 4)
	if err != nil {
		t.Fatal(err)
	}
	if words[0]&(1<<0) == 0 {
		t.Error("finish flag bit not set in command header")
	}
}

func TestWrapAdvancesToRingBase(t *testing.T) {
	ringSize := uint32(4096)
	w, _ := newWriter(ringSize)
	wr := NewWrap(w)
	if err := wr.Process(); err != nil {
		t.Fatalf("Wrap.Process: %v", err)
	}
	if got := w.WrPtrBytes(); got != devcmd.CQStart {
		t.Errorf("write pointer after wrap = %d, want %d", got, devcmd.CQStart)
	}
}

func TestProgramCommandFirstLaunchStalls(t *testing.T) {
	w, cluster := newWriter(1 << 16)
	dev := device.NewFakeDevice(device.CoreCoord{}, nil)
	prog := device.NewProgram(1)
	k := device.NewKernel(0, device.BRISC, device.CoreRangeSet{Ranges: []device.CoreRange{{
		Start: device.CoreCoord{X: 0, Y: 0}, End: device.CoreCoord{X: 0, Y: 0},
	}}})
	k.SetRuntimeArgs(device.CoreCoord{X: 0, Y: 0}, []uint32{42})
	prog.AddKernel(k)
	m := programmap.Build(dev, prog)

	dbuf := device.NewBuffer(0x5000, uint32(len(m.ProgramPages))*4, devcmd.ProgramPageSize, device.BufferKindDRAM)
	pc := NewProgram(dbuf, m, []uint32{42}, true, w)
	writePtr := w.WrPtrBytes()
	if err := pc.Process(); err != nil {
		t.Fatalf("Program.Process: %v", err)
	}
	words, err := cluster.ReadSysmemVec(writePtr, 4)
	if err != nil {
		t.Fatal(err)
	}
	if words[0]&(1<<1) == 0 {
		t.Error("stall flag bit not set on first launch")
	}
	if words[0]&(1<<2) == 0 {
		t.Error("is_program flag bit not set")
	}
}

func TestProgramCommandHostDataTransferPointsAtAppendedPayload(t *testing.T) {
	w, cluster := newWriter(1 << 16)
	dev := device.NewFakeDevice(device.CoreCoord{}, nil)
	prog := device.NewProgram(2)
	k := device.NewKernel(0, device.BRISC, device.CoreRangeSet{Ranges: []device.CoreRange{{
		Start: device.CoreCoord{X: 0, Y: 0}, End: device.CoreCoord{X: 0, Y: 0},
	}}})
	k.SetRuntimeArgs(device.CoreCoord{X: 0, Y: 0}, []uint32{7})
	prog.AddKernel(k)
	m := programmap.Build(dev, prog)

	dbuf := device.NewBuffer(0x6000, uint32(len(m.ProgramPages))*4, devcmd.ProgramPageSize, device.BufferKindDRAM)
	writePtr := w.WrPtrBytes()
	wantHostDataSrc := writePtr + devcmd.NumBytesInDeviceCommand

	pc := NewProgram(dbuf, m, []uint32{7}, true, w)
	if err := pc.Process(); err != nil {
		t.Fatalf("Program.Process: %v", err)
	}

	header, err := cluster.ReadSysmemVec(writePtr, devcmd.NumBytesInDeviceCommand)
	if err != nil {
		t.Fatal(err)
	}
	// The first buffer-transfer slot starts right after the 64-byte control
	// header; its first word is src_addr.
	gotSrcAddr := header[64/4]
	if gotSrcAddr != wantHostDataSrc {
		t.Errorf("host-data buffer transfer src_addr = %d, want %d", gotSrcAddr, wantHostDataSrc)
	}
}
