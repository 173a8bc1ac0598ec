// Package programmap compiles a device.Program into the paged transfer
// plan a single EnqueueProgram command replays: which bytes go to which
// NoC destinations, grouped into ProgramPageSize pages so the on-device
// consumer can relay them one page at a time through its circular buffer.
//
// The algorithm mirrors the reference dispatcher's page-transfer builder
// step for step — host-data pages first (runtime args, then circular
// buffer configs), then program-binary pages (kernel binaries rebased out
// of local memory and IRAM, then semaphores, then launch messages) — since
// the two page streams travel through different DeviceCommand buffer
// transfers and must stay in that relative order for the on-device state
// machine to find them.
package programmap

import (
	"fmt"

	"hostq.dev/hostq/pkg/devcmd"
	"hostq.dev/hostq/pkg/device"
)

const nocTransferAlignment = 16

// TransferInfo is one NoC multicast write the on-device consumer replays
// while draining a program page: how many bytes, to which local
// destination, multicast to how many receivers at which encoded NoC range.
type TransferInfo struct {
	SizeInBytes             uint32
	Dst                     uint32
	DstNocMulticastEncoding uint32
	NumReceivers            uint32
	LastMulticastInGroup    bool
}

// Map is the fully built transfer plan for one program: the flattened
// binary/config/launch-message page contents, plus, for each of the two
// page streams, the transfer list and the count of transfers per page.
type Map struct {
	NumWorkers uint32

	ProgramPages []uint32

	ProgramPageTransfers      []TransferInfo
	NumTransfersInProgramPages []uint32

	HostPageTransfers          []TransferInfo
	NumTransfersInHostDataPages []uint32
}

// Device is the subset of device state Build needs: translating a
// program's logical core coordinates into the physical coordinates a NoC
// multicast targets.
type Device interface {
	WorkerCoreFromLogicalCore(device.CoreCoord) device.CoreCoord
}

type multicastTarget struct {
	Encoding     uint32
	NumReceivers uint32
}

// builder accumulates the two page streams as transfers are appended,
// tracking the write cursor (src) and how many transfers have landed in
// the page currently being filled so a page-boundary crossing can be
// detected and recorded.
type builder struct {
	src                    uint32
	numTransfersWithinPage uint32
}

// update appends one transfer of numBytes to dst, splitting it at
// ProgramPageSize page boundaries so no single transfer instruction spans
// two pages: the consumer only ever has one page resident at a time. Every
// core in targets receives an identical copy of each split, encoded as a
// single multicast per split rather than one unicast per receiver.
func (b *builder) update(numBytes, dst uint32, transfers *[]TransferInfo, transfersPerPage *[]uint32, targets []multicastTarget) uint32 {
	for numBytes > 0 {
		bytesLeftInPage := devcmd.ProgramPageSize - (b.src % devcmd.ProgramPageSize)
		n := numBytes
		if bytesLeftInPage < n {
			n = bytesLeftInPage
		}
		for i, target := range targets {
			*transfers = append(*transfers, TransferInfo{
				SizeInBytes:             n,
				Dst:                     dst,
				DstNocMulticastEncoding: target.Encoding,
				NumReceivers:            target.NumReceivers,
				LastMulticastInGroup:    i == len(targets)-1,
			})
			b.numTransfersWithinPage++
		}
		b.src = devcmd.Align(b.src+n, nocTransferAlignment)
		dst += n
		numBytes -= n
		if b.src%devcmd.ProgramPageSize == 0 {
			*transfersPerPage = append(*transfersPerPage, b.numTransfersWithinPage)
			b.numTransfersWithinPage = 0
		}
	}
	return b.src
}

func (b *builder) flush(transfersPerPage *[]uint32) {
	if b.numTransfersWithinPage != 0 {
		*transfersPerPage = append(*transfersPerPage, b.numTransfersWithinPage)
		b.numTransfersWithinPage = 0
	}
}

// Build compiles prog against dev into a Map. dev is needed only to
// translate the logical core coordinates a program is authored against
// into the physical coordinates its NoC multicasts must target.
func Build(dev Device, prog *device.Program) *Map {
	m := &Map{NumWorkers: uint32(len(prog.LogicalCores()))}

	hostBuilder := &builder{}
	for _, kernelID := range prog.KernelIDs() {
		k := prog.Kernel(kernelID)
		dst := l1ArgBase(k.Processor())
		for _, ra := range k.RuntimeArgs() {
			physical := dev.WorkerCoreFromLogicalCore(ra.Core)
			encoding := getNocMulticastEncoding(physical, physical)
			numBytes := uint32(len(ra.Args)) * 4
			hostBuilder.update(numBytes, dst, &m.HostPageTransfers, &m.NumTransfersInHostDataPages,
				[]multicastTarget{{Encoding: encoding, NumReceivers: 1}})
		}
	}
	for _, cb := range prog.CircularBuffers() {
		targets := extractDstNocMulticastInfo(dev, cb.CoreRangeSet().Ranges)
		numBytes := uint32(devcmd.UINT32WordsPerCircularBufferConfig) * 4
		for _, index := range cb.BufferIndices() {
			dst := devcmd.CircularBufferConfigBase + uint32(index)*numBytes
			hostBuilder.update(numBytes, dst, &m.HostPageTransfers, &m.NumTransfersInHostDataPages, targets)
		}
	}
	hostBuilder.flush(&m.NumTransfersInHostDataPages)

	progBuilder := &builder{}
	for _, kernelID := range prog.KernelIDs() {
		k := prog.Kernel(kernelID)
		targets := extractDstNocMulticastInfo(dev, k.CoreRangeSet().Ranges)
		subProcessors := device.SubProcessorsFor(k.Processor())
		for i, bin := range k.Binaries() {
			sp := subProcessors[i%len(subProcessors)]
			for _, span := range bin.Spans {
				dst := rebaseSpanDst(span.Dst, sp)
				numBytes := uint32(len(span.Words)) * 4
				progBuilder.update(numBytes, dst, &m.ProgramPageTransfers, &m.NumTransfersInProgramPages, targets)
			}
		}
	}
	for _, sem := range prog.Semaphores() {
		targets := extractDstNocMulticastInfo(dev, sem.CoreRangeSet().Ranges)
		progBuilder.update(devcmd.SemaphoreAlignment, sem.Address(), &m.ProgramPageTransfers, &m.NumTransfersInProgramPages, targets)
	}
	for _, kg := range prog.KernelGroups() {
		kg.LaunchMsg[0] = devcmd.DispatchModeDev
		targets := extractDstNocMulticastInfo(dev, kg.CoreRanges.Ranges)
		progBuilder.update(16, devcmd.MailboxLaunchAddress, &m.ProgramPageTransfers, &m.NumTransfersInProgramPages, targets)
	}
	progBuilder.flush(&m.NumTransfersInProgramPages)

	m.ProgramPages = materializePages(prog, progBuilder.src)
	return m
}

// materializePages lays out the program-binary page stream's actual word
// content in the same order Build walked it in: binaries, then semaphore
// initial values, then launch messages. usedBytes is progBuilder's final
// cursor, which Build has already left 16-byte aligned; the page array is
// further padded out to a whole number of ProgramPageSize pages, since
// that is the unit the buffer transfer instruction moves.
func materializePages(prog *device.Program, usedBytes uint32) []uint32 {
	totalWords := devcmd.Align(usedBytes, devcmd.ProgramPageSize) / 4
	pages := make([]uint32, totalWords)
	idx := uint32(0)
	for _, kernelID := range prog.KernelIDs() {
		k := prog.Kernel(kernelID)
		for _, bin := range k.Binaries() {
			for _, span := range bin.Spans {
				copy(pages[idx:], span.Words)
				idx = devcmd.Align(idx*4+uint32(len(span.Words))*4, nocTransferAlignment) / 4
			}
		}
	}
	for _, sem := range prog.Semaphores() {
		pages[idx] = sem.InitialValue()
		idx += devcmd.SemaphoreAlignment / 4
	}
	for _, kg := range prog.KernelGroups() {
		copy(pages[idx:idx+4], kg.LaunchMsg[:])
		idx += 4
	}
	return pages
}

func l1ArgBase(p device.Processor) uint32 {
	switch p {
	case device.BRISC:
		return devcmd.BriscL1ArgBase
	case device.NCRISC:
		return devcmd.NcriscL1ArgBase
	case device.COMPUTE:
		return devcmd.TriscL1ArgBase
	default:
		panic(fmt.Sprintf("programmap: unknown processor %v", p))
	}
}

// rebaseSpanDst translates a compiled span's destination out of a
// sub-processor's private address space and into the L1 staging address
// the NoC multicast actually targets. Spans already addressed to shared L1
// pass through unchanged.
func rebaseSpanDst(dst uint32, sp device.SubProcessor) uint32 {
	switch {
	case dst&devcmd.MemLocalBase != 0:
		return devcmd.InitLocalL1Base(devcmd.SubProcessorIndex(sp)) + (dst &^ devcmd.MemLocalBase)
	case dst&devcmd.MemNCRISCIRAMBase != 0:
		return devcmd.InitIRAML1Base + (dst &^ devcmd.MemNCRISCIRAMBase)
	default:
		return dst
	}
}

func extractDstNocMulticastInfo(dev Device, ranges []device.CoreRange) []multicastTarget {
	targets := make([]multicastTarget, 0, len(ranges))
	for _, r := range ranges {
		topLeft := dev.WorkerCoreFromLogicalCore(r.Start)
		bottomRight := dev.WorkerCoreFromLogicalCore(r.End)
		targets = append(targets, multicastTarget{
			Encoding:     getNocMulticastEncoding(topLeft, bottomRight),
			NumReceivers: uint32(r.NumCores()),
		})
	}
	return targets
}

// getNocMulticastEncoding packs a rectangular NoC destination range into a
// single word: 6 bits per coordinate, enough to address any core grid this
// dispatcher targets.
func getNocMulticastEncoding(topLeft, bottomRight device.CoreCoord) uint32 {
	const bits = 6
	const mask = 1<<bits - 1
	return uint32(topLeft.X&mask) |
		uint32(topLeft.Y&mask)<<bits |
		uint32(bottomRight.X&mask)<<(2*bits) |
		uint32(bottomRight.Y&mask)<<(3*bits)
}
