package device

// FakeDevice is an in-memory stand-in for the physical accelerator, used by
// package tests that need a Device collaborator without real hardware.
// Worker cores map 1:1 from logical to physical coordinates offset by a
// fixed translation, mimicking how a real device's NoC coordinates differ
// from the logical grid software addresses kernels by.
type FakeDevice struct {
	Translation CoreCoord
	Dispatch    []CoreCoord

	nextAddr map[BufferKind]uint32
}

func NewFakeDevice(translation CoreCoord, dispatchCores []CoreCoord) *FakeDevice {
	return &FakeDevice{
		Translation: translation,
		Dispatch:    dispatchCores,
		nextAddr:    map[BufferKind]uint32{},
	}
}

func (d *FakeDevice) WorkerCoreFromLogicalCore(c CoreCoord) CoreCoord {
	return CoreCoord{X: c.X + d.Translation.X, Y: c.Y + d.Translation.Y}
}

func (d *FakeDevice) DispatchCores() []CoreCoord {
	return d.Dispatch
}

// AllocateBuffer hands out monotonically increasing addresses per kind,
// page-aligned, good enough for a test double that never actually moves
// bytes anywhere.
func (d *FakeDevice) AllocateBuffer(size, pageSize uint32, kind BufferKind) (*Buffer, error) {
	addr := d.nextAddr[kind]
	if pageSize != 0 {
		addr = (addr + pageSize - 1) / pageSize * pageSize
	}
	d.nextAddr[kind] = addr + size
	return NewBuffer(addr, size, pageSize, kind), nil
}
