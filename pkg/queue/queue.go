// Package queue implements the host-side command queue: the front door
// programs, buffer reads and buffer writes are enqueued through. It owns
// the ring's write side, the compiled-program cache, and the one-time
// dispatcher bootstrap that must run before anything else is enqueued.
package queue

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"hostq.dev/hostq/pkg/command"
	"hostq.dev/hostq/pkg/devcmd"
	"hostq.dev/hostq/pkg/device"
	"hostq.dev/hostq/pkg/dispatch"
	"hostq.dev/hostq/pkg/log"
	"hostq.dev/hostq/pkg/programmap"
	"hostq.dev/hostq/pkg/sysmem"
)

// minWrapHeadroom is the number of bytes at the ring's base that no command
// can use even after a wrap (the pointer block ahead of CQStart): a command
// larger than the ring size minus this cannot fit even after wrapping, a
// precondition violation the queue has no way to recover from once
// commands have already been written into the ring.
const minWrapHeadroom = 96

// Device is everything the queue needs from the accelerator: translating
// core coordinates, allocating device buffers for compiled program
// binaries, and the dispatcher bootstrap surface.
type Device interface {
	dispatch.Device
	programmap.Device
	AllocateBuffer(size, pageSize uint32, kind device.BufferKind) (*device.Buffer, error)
}

type programCacheEntry struct {
	deviceBuffer *device.Buffer
	transferMap  *programmap.Map
}

// CommandQueue is the single point every host operation against one device
// goes through. It is not safe to share a ring across two devices, and — as
// noted where the on-device dispatcher's own concurrency model is
// discussed — this implementation assumes a single goroutine drives
// enqueue calls; the program cache is still guarded by a mutex so a future
// worker-pool front end can serialize compiles without serializing ring
// writes.
type CommandQueue struct {
	device  Device
	cluster sysmem.Cluster
	writer  *sysmem.Writer

	mu           sync.Mutex
	programCache map[uint64]*programCacheEntry
	compileGroup singleflight.Group

	log *logrus.Entry
}

// New constructs a queue over dev and cluster with the given ring size,
// seeds the ring's pointer block, and runs the one-time dispatcher
// bootstrap. It must be called exactly once per device, before any command
// is enqueued.
func New(ctx context.Context, dev Device, cluster sysmem.Cluster, ringSize uint32) (*CommandQueue, error) {
	pointers := make([]uint32, devcmd.CQStart/4)
	pointers[0] = devcmd.CQStart >> 4
	if err := cluster.WriteSysmemVec(pointers, 0); err != nil {
		return nil, fmt.Errorf("queue: seed pointer block: %w", err)
	}

	if err := dispatch.Bootstrap(ctx, dev); err != nil {
		return nil, err
	}

	entry := log.WithComponent("queue")
	entry.WithField("ring_size", ringSize).Info("dispatcher bootstrap complete")

	return &CommandQueue{
		device:       dev,
		cluster:      cluster,
		writer:       sysmem.NewWriter(cluster, ringSize),
		programCache: map[uint64]*programCacheEntry{},
		log:          entry,
	}, nil
}

// maybeWrap inserts a Wrap command if cmdSize would not fit before the
// ring's end, so the caller's own command always starts at CQStart or
// later with room to spare. A command that cannot fit even after wrapping
// is a fatal precondition violation, not a recoverable runtime condition:
// there is no way to undo the writes already committed to the ring, so this
// panics rather than returning an error a caller could paper over.
func (q *CommandQueue) maybeWrap(cmdSize uint32) error {
	if q.writer.WrPtrBytes()+cmdSize < q.writer.RingSize() {
		return nil
	}
	if cmdSize > q.writer.RingSize()-minWrapHeadroom {
		panic(fmt.Sprintf("queue: command of %d bytes cannot fit in a %d-byte ring even after a wrap", cmdSize, q.writer.RingSize()))
	}
	return q.enqueue(command.NewWrap(q.writer), false)
}

func (q *CommandQueue) enqueue(cmd command.Command, blocking bool) error {
	if err := cmd.Process(); err != nil {
		return fmt.Errorf("queue: %s: %w", cmd.Kind(), err)
	}
	if blocking {
		return q.Finish()
	}
	return nil
}

// EnqueueReadBuffer copies buf back from the device into dst. Reads are
// always blocking: there is no host buffer to hand the caller before the
// bytes have actually arrived.
func (q *CommandQueue) EnqueueReadBuffer(buf *device.Buffer, dst *[]uint32, blocking bool) error {
	if !blocking {
		return fmt.Errorf("queue: EnqueueReadBuffer must be blocking")
	}
	paddedPageSize := devcmd.Align(buf.PageSize(), 32)
	cmdSize := devcmd.NumBytesInDeviceCommand + paddedPageSize*buf.NumPages()
	if err := q.maybeWrap(cmdSize); err != nil {
		return err
	}

	rb := command.NewReadBuffer(buf, q.writer)
	if err := q.enqueue(rb, true); err != nil {
		return err
	}

	words, err := q.cluster.ReadSysmemVec(rb.ReplyAddr(), paddedPageSize*buf.NumPages())
	if err != nil {
		return fmt.Errorf("queue: read reply: %w", err)
	}
	if paddedPageSize != buf.PageSize() {
		words = stripPagePadding(words, buf.PageSize(), paddedPageSize)
	}
	*dst = words
	return nil
}

// stripPagePadding removes the tail padding EnqueueReadBuffer's transport
// adds to round every page up to a 32-byte boundary, leaving exactly
// numPages*truePageSize/4 words.
func stripPagePadding(words []uint32, truePageSize, paddedPageSize uint32) []uint32 {
	trueWordsPerPage := truePageSize / 4
	paddedWordsPerPage := paddedPageSize / 4
	numPages := uint32(len(words)) / paddedWordsPerPage
	out := make([]uint32, 0, numPages*trueWordsPerPage)
	for p := uint32(0); p < numPages; p++ {
		start := p * paddedWordsPerPage
		out = append(out, words[start:start+trueWordsPerPage]...)
	}
	return out
}

// EnqueueWriteBuffer copies src into buf. Writes are always non-blocking:
// the queue does not wait for the device to actually consume them.
func (q *CommandQueue) EnqueueWriteBuffer(buf *device.Buffer, src []uint32, blocking bool) error {
	if blocking {
		return fmt.Errorf("queue: EnqueueWriteBuffer must be non-blocking")
	}
	if uint32(len(src))*4 > buf.Size() {
		return fmt.Errorf("queue: source of %d bytes exceeds buffer of %d bytes", len(src)*4, buf.Size())
	}
	paddedPageSize := devcmd.Align(buf.PageSize(), 32)
	cmdSize := devcmd.NumBytesInDeviceCommand + paddedPageSize*buf.NumPages()
	if err := q.maybeWrap(cmdSize); err != nil {
		return err
	}
	return q.enqueue(command.NewWriteBuffer(buf, src, q.writer), blocking)
}

// EnqueueProgram launches prog. The first time a given program ID is
// enqueued, its binary and transfer plan are compiled, pushed to a fresh
// device buffer, and cached; every later launch of the same ID reuses that
// buffer and plan, sending only fresh runtime args and circular buffer
// configs. Concurrent first-launches of the same program ID are coalesced
// so the compile and upload happen only once.
func (q *CommandQueue) EnqueueProgram(ctx context.Context, prog *device.Program, blocking bool) error {
	if blocking {
		return fmt.Errorf("queue: EnqueueProgram must be non-blocking")
	}

	entry, stall, err := q.programCacheEntry(ctx, prog)
	if err != nil {
		return err
	}
	if stall {
		q.log.WithField("program_id", prog.ID()).Debug("compiling and uploading program for the first time")
	}

	hostData := buildHostData(prog)
	cmdSize := devcmd.NumBytesInDeviceCommand + uint32(len(hostData))*4
	if err := q.maybeWrap(cmdSize); err != nil {
		return err
	}
	pc := command.NewProgram(entry.deviceBuffer, entry.transferMap, hostData, stall, q.writer)
	return q.enqueue(pc, blocking)
}

func (q *CommandQueue) programCacheEntry(ctx context.Context, prog *device.Program) (*programCacheEntry, bool, error) {
	q.mu.Lock()
	if entry, ok := q.programCache[prog.ID()]; ok {
		q.mu.Unlock()
		return entry, false, nil
	}
	q.mu.Unlock()

	key := fmt.Sprintf("%d", prog.ID())
	v, err, _ := q.compileGroup.Do(key, func() (any, error) {
		m := programmap.Build(q.device, prog)
		buf, err := q.device.AllocateBuffer(uint32(len(m.ProgramPages))*4, devcmd.ProgramPageSize, device.BufferKindDRAM)
		if err != nil {
			return nil, fmt.Errorf("queue: allocate program binary buffer: %w", err)
		}
		if len(m.ProgramPages) != 0 {
			if err := q.EnqueueWriteBuffer(buf, m.ProgramPages, false); err != nil {
				return nil, fmt.Errorf("queue: upload program binary: %w", err)
			}
		}
		entry := &programCacheEntry{deviceBuffer: buf, transferMap: m}
		q.mu.Lock()
		q.programCache[prog.ID()] = entry
		q.mu.Unlock()
		return entry, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*programCacheEntry), true, nil
}

// buildHostData assembles the per-launch payload that follows an
// EnqueueProgram command: every kernel's runtime args in kernel-ID order,
// each padded out to a 16-byte boundary, followed by every circular
// buffer's config words. Constructing it the same way for the same program
// state is what makes two launches of the same program byte-identical.
func buildHostData(prog *device.Program) []uint32 {
	var hostData []uint32
	for _, id := range prog.KernelIDs() {
		k := prog.Kernel(id)
		for _, ra := range k.RuntimeArgs() {
			hostData = append(hostData, ra.Args...)
			paddedWords := devcmd.Align(uint32(len(ra.Args))*4, 16) / 4
			for pad := paddedWords - uint32(len(ra.Args)); pad > 0; pad-- {
				hostData = append(hostData, 0)
			}
		}
	}
	for _, cb := range prog.CircularBuffers() {
		for _, idx := range cb.BufferIndices() {
			numPages := cb.NumPages(idx)
			pageSize := uint32(0)
			if numPages != 0 {
				pageSize = cb.Size() / numPages
			}
			hostData = append(hostData,
				cb.Address()>>4,
				cb.Size()>>4,
				numPages,
				pageSize>>4,
			)
		}
	}
	return hostData
}

// Finish enqueues a Finish command and blocks until the device reports it
// has drained the ring up to that point, then clears the flag it set.
func (q *CommandQueue) Finish() error {
	cmdSize := uint32(devcmd.NumBytesInDeviceCommand)
	if err := q.maybeWrap(cmdSize); err != nil {
		return err
	}
	if err := q.enqueue(command.NewFinish(q.writer), false); err != nil {
		return err
	}
	for {
		words, err := q.cluster.ReadSysmemVec(devcmd.HostCQFinishPtr, 4)
		if err != nil {
			return fmt.Errorf("queue: poll finish: %w", err)
		}
		if words[0] == 1 {
			break
		}
		runtime.Gosched()
	}
	return q.cluster.WriteSysmemVec([]uint32{0}, devcmd.HostCQFinishPtr)
}
