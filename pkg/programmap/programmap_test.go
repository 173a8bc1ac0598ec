package programmap

import (
	"testing"

	"hostq.dev/hostq/pkg/device"
)

func newTestDevice() *device.FakeDevice {
	return device.NewFakeDevice(device.CoreCoord{X: 1, Y: 1}, []device.CoreCoord{{X: 0, Y: 0}, {X: 0, Y: 1}})
}

func singleCore(c device.CoreCoord) device.CoreRangeSet {
	return device.CoreRangeSet{Ranges: []device.CoreRange{{Start: c, End: c}}}
}

func TestBuildTotalTransferBytesMatchesInputBytes(t *testing.T) {
	dev := newTestDevice()
	prog := device.NewProgram(1)

	k := device.NewKernel(0, device.BRISC, singleCore(device.CoreCoord{X: 0, Y: 0}))
	k.SetRuntimeArgs(device.CoreCoord{X: 0, Y: 0}, []uint32{1, 2, 3, 4})
	k.SetBinaries([]device.Binary{{Spans: []device.MemorySpan{{Dst: 0x100, Words: make([]uint32, 600)}}}})
	prog.AddKernel(k)

	m := Build(dev, prog)

	var gotProgramBytes uint32
	for _, tr := range m.ProgramPageTransfers {
		gotProgramBytes += tr.SizeInBytes
	}
	if want := uint32(600 * 4); gotProgramBytes != want {
		t.Errorf("program transfer bytes = %d, want %d", gotProgramBytes, want)
	}

	var gotHostBytes uint32
	for _, tr := range m.HostPageTransfers {
		gotHostBytes += tr.SizeInBytes
	}
	if want := uint32(4 * 4); gotHostBytes != want {
		t.Errorf("host transfer bytes = %d, want %d", gotHostBytes, want)
	}
}

func TestBuildSplitsTransfersAtPageBoundary(t *testing.T) {
	dev := newTestDevice()
	prog := device.NewProgram(2)

	k := device.NewKernel(0, device.NCRISC, singleCore(device.CoreCoord{X: 0, Y: 0}))
	// One span larger than a single ProgramPageSize page forces a split.
	k.SetBinaries([]device.Binary{{Spans: []device.MemorySpan{{Dst: 0x200, Words: make([]uint32, 1200)}}}})
	prog.AddKernel(k)

	m := Build(dev, prog)

	for _, tr := range m.ProgramPageTransfers {
		if tr.SizeInBytes > 2048 {
			t.Fatalf("transfer of %d bytes crosses a page boundary", tr.SizeInBytes)
		}
	}
	var total int
	for _, n := range m.NumTransfersInProgramPages {
		total += int(n)
	}
	if total != len(m.ProgramPageTransfers) {
		t.Errorf("sum of per-page transfer counts = %d, want %d", total, len(m.ProgramPageTransfers))
	}
}

func TestBuildMulticastsToEveryCoreInRange(t *testing.T) {
	dev := newTestDevice()
	prog := device.NewProgram(3)

	cores := device.CoreRangeSet{Ranges: []device.CoreRange{{Start: device.CoreCoord{X: 0, Y: 0}, End: device.CoreCoord{X: 1, Y: 0}}}}
	k := device.NewKernel(0, device.BRISC, cores)
	k.SetBinaries([]device.Binary{{Spans: []device.MemorySpan{{Dst: 0x300, Words: []uint32{1, 2, 3, 4}}}}})
	prog.AddKernel(k)

	m := Build(dev, prog)
	if len(m.ProgramPageTransfers) != 1 {
		t.Fatalf("got %d transfers, want 1 (a single multicast covering both cores)", len(m.ProgramPageTransfers))
	}
	if got := m.ProgramPageTransfers[0].NumReceivers; got != 2 {
		t.Errorf("NumReceivers = %d, want 2", got)
	}
}

func TestBuildNumWorkersCountsUnionOfCores(t *testing.T) {
	dev := newTestDevice()
	prog := device.NewProgram(4)
	k1 := device.NewKernel(0, device.BRISC, singleCore(device.CoreCoord{X: 0, Y: 0}))
	k2 := device.NewKernel(1, device.NCRISC, singleCore(device.CoreCoord{X: 0, Y: 1}))
	prog.AddKernel(k1)
	prog.AddKernel(k2)

	m := Build(dev, prog)
	if m.NumWorkers != 2 {
		t.Errorf("NumWorkers = %d, want 2", m.NumWorkers)
	}
}

func TestRebaseSpanDstHandlesLocalMemoryAndIRAM(t *testing.T) {
	dev := newTestDevice()
	prog := device.NewProgram(5)
	k := device.NewKernel(0, device.NCRISC, singleCore(device.CoreCoord{X: 0, Y: 0}))
	localDst := uint32(0x50) | 1<<28
	k.SetBinaries([]device.Binary{{Spans: []device.MemorySpan{{Dst: localDst, Words: []uint32{9}}}}})
	prog.AddKernel(k)

	m := Build(dev, prog)
	if len(m.ProgramPageTransfers) != 1 {
		t.Fatalf("got %d transfers, want 1", len(m.ProgramPageTransfers))
	}
	if got := m.ProgramPageTransfers[0].Dst; got&(1<<28) != 0 {
		t.Errorf("destination %#x still carries the local-memory bit", got)
	}

	iramProg := device.NewProgram(6)
	ki := device.NewKernel(0, device.NCRISC, singleCore(device.CoreCoord{X: 0, Y: 0}))
	iramDst := uint32(0x60) | 1<<29
	ki.SetBinaries([]device.Binary{{Spans: []device.MemorySpan{{Dst: iramDst, Words: []uint32{9}}}}})
	iramProg.AddKernel(ki)

	mi := Build(dev, iramProg)
	if len(mi.ProgramPageTransfers) != 1 {
		t.Fatalf("got %d IRAM transfers, want 1", len(mi.ProgramPageTransfers))
	}
	if got := mi.ProgramPageTransfers[0].Dst; got&(1<<29) != 0 {
		t.Errorf("destination %#x still carries the IRAM bit", got)
	}
}
