package dispatch

import (
	"context"
	"testing"

	"hostq.dev/hostq/pkg/device"
)

type fakeDevice struct {
	*device.FakeDevice
	compiled   int
	configured int
	l1Writes   map[uint32]uint32
	launched   []device.CoreCoord
}

func newFakeDevice(dispatchCores []device.CoreCoord) *fakeDevice {
	return &fakeDevice{
		FakeDevice: device.NewFakeDevice(device.CoreCoord{X: 10, Y: 10}, dispatchCores),
		l1Writes:   map[uint32]uint32{},
	}
}

func (d *fakeDevice) CompileProgram(ctx context.Context, prog *device.Program) error {
	d.compiled++
	return nil
}

func (d *fakeDevice) ConfigureDeviceWithProgram(ctx context.Context, prog *device.Program) error {
	d.configured++
	return nil
}

func (d *fakeDevice) WriteL1(ctx context.Context, logicalCore device.CoreCoord, addr uint32, words []uint32) error {
	d.l1Writes[addr] = words[0]
	return nil
}

func (d *fakeDevice) LaunchDirect(ctx context.Context, physicalCore device.CoreCoord, msg [4]uint32) error {
	d.launched = append(d.launched, physicalCore)
	return nil
}

func TestBootstrapLaunchesBothDispatchCores(t *testing.T) {
	dev := newFakeDevice([]device.CoreCoord{{X: 0, Y: 0}, {X: 1, Y: 0}})
	if err := Bootstrap(context.Background(), dev); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if dev.compiled != 1 || dev.configured != 1 {
		t.Errorf("compiled=%d configured=%d, want 1 and 1", dev.compiled, dev.configured)
	}
	if len(dev.launched) != 2 {
		t.Fatalf("launched %d cores, want 2", len(dev.launched))
	}
	want := []device.CoreCoord{{X: 10, Y: 10}, {X: 11, Y: 10}}
	for i, w := range want {
		if dev.launched[i] != w {
			t.Errorf("launched[%d] = %v, want %v", i, dev.launched[i], w)
		}
	}
}

func TestBootstrapFailsWithoutTwoDispatchCores(t *testing.T) {
	dev := newFakeDevice([]device.CoreCoord{{X: 0, Y: 0}})
	if err := Bootstrap(context.Background(), dev); err == nil {
		t.Fatal("expected error with only one dispatch core")
	}
}
