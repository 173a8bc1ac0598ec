package main

import (
	"context"
	"flag"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"hostq.dev/hostq/pkg/config"
	"hostq.dev/hostq/pkg/device"
	"hostq.dev/hostq/pkg/devcmd"
	"hostq.dev/hostq/pkg/log"
	"hostq.dev/hostq/pkg/queue"
	"hostq.dev/hostq/pkg/sysmem/sysmemtest"
)

// simDevice is the in-process stand-in simulate runs against: no real
// accelerator, just enough of the collaborator surface for a command queue
// to bootstrap and accept commands.
type simDevice struct {
	*device.FakeDevice
}

func (d *simDevice) CompileProgram(ctx context.Context, prog *device.Program) error { return nil }
func (d *simDevice) ConfigureDeviceWithProgram(ctx context.Context, prog *device.Program) error {
	return nil
}
func (d *simDevice) WriteL1(ctx context.Context, logicalCore device.CoreCoord, addr uint32, words []uint32) error {
	return nil
}
func (d *simDevice) LaunchDirect(ctx context.Context, physicalCore device.CoreCoord, msg [4]uint32) error {
	return nil
}

type simulateCommand struct {
	ringSize   uint64
	bufSize    uint64
	configPath string
}

func (*simulateCommand) Name() string { return "simulate" }
func (*simulateCommand) Synopsis() string {
	return "run a scripted write/read/finish sequence against an in-memory device"
}
func (*simulateCommand) Usage() string {
	return "simulate [-config path] [-ring-size N] [-buf-size N]\n  Bootstraps a command queue against an in-memory device and cluster,\n  writes a buffer, reads it back, and reports the round trip. -config\n  loads ring size and log level from a TOML file, overriding -ring-size.\n"
}

func (c *simulateCommand) SetFlags(f *flag.FlagSet) {
	f.Uint64Var(&c.ringSize, "ring-size", 1<<20, "command ring size in bytes")
	f.Uint64Var(&c.bufSize, "buf-size", 4096, "size in bytes of the scratch buffer to round-trip")
	f.StringVar(&c.configPath, "config", "", "path to a TOML config file overriding ring size and log level")
}

func (c *simulateCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	ringSize := uint32(c.ringSize)
	bufSize := uint32(c.bufSize)

	if c.configPath != "" {
		cfg, err := config.Load(c.configPath)
		if err != nil {
			printf("cqtool simulate: %v\n", err)
			return subcommands.ExitFailure
		}
		if cfg.ProgramPageSize != devcmd.ProgramPageSize {
			printf("cqtool simulate: config sets program_page_size=%d, but the dispatch wire format fixes it at %d\n",
				cfg.ProgramPageSize, devcmd.ProgramPageSize)
			return subcommands.ExitFailure
		}
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			printf("cqtool simulate: %v\n", err)
			return subcommands.ExitFailure
		}
		log.Base.SetLevel(level)
		ringSize = cfg.RingSize
	}

	cluster := sysmemtest.NewMemoryCluster(ringSize)
	dev := &simDevice{FakeDevice: device.NewFakeDevice(
		device.CoreCoord{X: 1, Y: 1},
		[]device.CoreCoord{{X: 0, Y: 0}, {X: 1, Y: 0}},
	)}

	cq, err := queue.New(ctx, dev, cluster, ringSize)
	if err != nil {
		printf("cqtool simulate: bootstrap: %v\n", err)
		return subcommands.ExitFailure
	}

	buf, err := dev.AllocateBuffer(bufSize, 32, device.BufferKindDRAM)
	if err != nil {
		printf("cqtool simulate: allocate: %v\n", err)
		return subcommands.ExitFailure
	}
	src := make([]uint32, bufSize/4)
	for i := range src {
		src[i] = uint32(i)
	}
	if err := cq.EnqueueWriteBuffer(buf, src, false); err != nil {
		printf("cqtool simulate: write: %v\n", err)
		return subcommands.ExitFailure
	}

	var dst []uint32
	if err := cq.EnqueueReadBuffer(buf, &dst, true); err != nil {
		printf("cqtool simulate: read: %v\n", err)
		return subcommands.ExitFailure
	}

	if err := cq.Finish(); err != nil {
		printf("cqtool simulate: finish: %v\n", err)
		return subcommands.ExitFailure
	}

	printf("wrote %d words, read back %d words\n", len(src), len(dst))
	return subcommands.ExitSuccess
}
