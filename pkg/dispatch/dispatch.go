// Package dispatch installs the producer and consumer kernels that turn a
// device from an idle grid of cores into something a command queue can
// enqueue work against. Bootstrap runs exactly once per device, before the
// first command is ever pushed into the ring.
package dispatch

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"hostq.dev/hostq/pkg/devcmd"
	"hostq.dev/hostq/pkg/device"
	"hostq.dev/hostq/pkg/log"
)

// Device is the subset of device control the bootstrap needs: compiling
// and installing the dispatch program, seeding its cores' L1 control
// words, and launching it directly rather than through the ring (which
// does not exist yet).
type Device interface {
	DispatchCores() []device.CoreCoord
	WorkerCoreFromLogicalCore(device.CoreCoord) device.CoreCoord
	CompileProgram(ctx context.Context, prog *device.Program) error
	ConfigureDeviceWithProgram(ctx context.Context, prog *device.Program) error
	WriteL1(ctx context.Context, logicalCore device.CoreCoord, addr uint32, words []uint32) error
	LaunchDirect(ctx context.Context, physicalCore device.CoreCoord, msg [4]uint32) error
}

// Bootstrap builds the two-kernel dispatch program, compiles and installs
// it, seeds the producer's ring pointers to CQStart, and launches both
// kernels directly. dev.DispatchCores must return at least two cores: the
// first is the producer, the second the consumer.
func Bootstrap(ctx context.Context, dev Device) error {
	entry := log.WithComponent("dispatch")

	cores := dev.DispatchCores()
	if len(cores) < 2 {
		return fmt.Errorf("dispatch: bootstrap needs at least 2 dispatch cores, got %d", len(cores))
	}
	producerLogical, consumerLogical := cores[0], cores[1]
	producerPhysical := dev.WorkerCoreFromLogicalCore(producerLogical)
	consumerPhysical := dev.WorkerCoreFromLogicalCore(consumerLogical)
	entry = entry.WithFields(logrus.Fields{
		"producer": producerPhysical,
		"consumer": consumerPhysical,
	})

	prog := newDispatchProgram(producerLogical, consumerLogical, producerPhysical, consumerPhysical)

	entry.Debug("compiling dispatch program")
	if err := dev.CompileProgram(ctx, prog); err != nil {
		return fmt.Errorf("dispatch: compile: %w", err)
	}
	if err := dev.ConfigureDeviceWithProgram(ctx, prog); err != nil {
		return fmt.Errorf("dispatch: configure: %w", err)
	}

	fifoAddr := (devcmd.HostCQFinishPtr + 32) >> 4
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dev.WriteL1(gctx, producerLogical, devcmd.CQReadPtr, []uint32{uint32(fifoAddr)}) })
	g.Go(func() error { return dev.WriteL1(gctx, producerLogical, devcmd.CQWritePtr, []uint32{uint32(fifoAddr)}) })
	g.Go(func() error { return dev.WriteL1(gctx, producerLogical, devcmd.CQReadToggle, []uint32{0}) })
	g.Go(func() error { return dev.WriteL1(gctx, producerLogical, devcmd.CQWriteToggle, []uint32{0}) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("dispatch: seed ring pointers: %w", err)
	}

	entry.Debug("launching producer and consumer kernels")
	launchMsg := [4]uint32{devcmd.DispatchModeDev, 0, 0, 0}
	if err := dev.LaunchDirect(ctx, producerPhysical, launchMsg); err != nil {
		return fmt.Errorf("dispatch: launch producer: %w", err)
	}
	if err := dev.LaunchDirect(ctx, consumerPhysical, launchMsg); err != nil {
		return fmt.Errorf("dispatch: launch consumer: %w", err)
	}
	entry.Info("dispatch bootstrap complete")
	return nil
}

// newDispatchProgram builds the two-kernel program the bootstrap installs.
// Each kernel receives the peer's physical coordinates as a compile-time
// define, plus the shared soft-reset address either can use to pulse the
// other, and a semaphore pair both kernels use to hand data off.
func newDispatchProgram(producerLogical, consumerLogical, producerPhysical, consumerPhysical device.CoreCoord) *device.Program {
	prog := device.NewProgram(0)

	producer := device.NewKernel(0, device.BRISC, device.CoreRangeSet{Ranges: []device.CoreRange{{Start: producerLogical, End: producerLogical}}})
	producer.Defines = map[string]string{
		"PEER_NOC_X": fmt.Sprintf("%d", consumerPhysical.X),
		"PEER_NOC_Y": fmt.Sprintf("%d", consumerPhysical.Y),
	}
	producer.CompileArgs = []uint32{devcmd.TensixSoftResetAddr}
	prog.AddKernel(producer)

	consumer := device.NewKernel(1, device.NCRISC, device.CoreRangeSet{Ranges: []device.CoreRange{{Start: consumerLogical, End: consumerLogical}}})
	consumer.Defines = map[string]string{
		"PEER_NOC_X": fmt.Sprintf("%d", producerPhysical.X),
		"PEER_NOC_Y": fmt.Sprintf("%d", producerPhysical.Y),
	}
	consumer.CompileArgs = []uint32{devcmd.TensixSoftResetAddr}
	prog.AddKernel(consumer)

	both := device.CoreRangeSet{Ranges: []device.CoreRange{
		{Start: producerLogical, End: producerLogical},
		{Start: consumerLogical, End: consumerLogical},
	}}
	// Producer starts 2 pages ahead of the consumer so the very first
	// relay can begin before either side has processed anything.
	prog.AddSemaphore(device.NewSemaphore(devcmd.CircularBufferConfigBase, 2, both))
	prog.AddSemaphore(device.NewSemaphore(devcmd.CircularBufferConfigBase+devcmd.SemaphoreAlignment, 0, both))

	return prog
}
