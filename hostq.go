// Package hostq is the public entry point for enqueuing work against an
// accelerator: reading and writing device buffers and launching compiled
// programs, all funneled through a single per-device CommandQueue.
//
// The free functions here mirror the shape most callers actually want —
// EnqueueReadBuffer(cq, buf, &dst, true) rather than cq.EnqueueReadBuffer —
// and are where a dispatch-mode sanity check would live if this module
// grew a second, non-device-dispatched execution mode; today there is only
// one, so the check is a fixed no-op.
package hostq

import (
	"context"

	"hostq.dev/hostq/pkg/device"
	"hostq.dev/hostq/pkg/queue"
	"hostq.dev/hostq/pkg/sysmem"
)

// CommandQueue re-exports queue.CommandQueue so callers of this package
// never need to import pkg/queue directly.
type CommandQueue = queue.CommandQueue

// NewCommandQueue bootstraps the on-device dispatcher and returns a queue
// ready to accept commands.
func NewCommandQueue(ctx context.Context, dev queue.Device, cluster sysmem.Cluster, ringSize uint32) (*CommandQueue, error) {
	return queue.New(ctx, dev, cluster, ringSize)
}

// EnqueueReadBuffer copies buf back from the device into dst, blocking
// until the bytes have arrived.
func EnqueueReadBuffer(cq *CommandQueue, buf *device.Buffer, dst *[]uint32, blocking bool) error {
	return cq.EnqueueReadBuffer(buf, dst, blocking)
}

// EnqueueWriteBuffer copies src into buf without waiting for the device to
// consume it.
func EnqueueWriteBuffer(cq *CommandQueue, buf *device.Buffer, src []uint32, blocking bool) error {
	return cq.EnqueueWriteBuffer(buf, src, blocking)
}

// EnqueueProgram launches prog without waiting for it to complete.
func EnqueueProgram(ctx context.Context, cq *CommandQueue, prog *device.Program, blocking bool) error {
	return cq.EnqueueProgram(ctx, prog, blocking)
}

// Finish blocks until every command enqueued so far has been drained by
// the device.
func Finish(cq *CommandQueue) error {
	return cq.Finish()
}
