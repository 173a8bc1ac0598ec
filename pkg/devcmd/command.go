package devcmd

import (
	"fmt"

	"hostq.dev/hostq/pkg/device"
	"hostq.dev/hostq/pkg/wire"
)

const (
	flagFinish    uint32 = 1 << 0
	flagStall     uint32 = 1 << 1
	flagIsProgram uint32 = 1 << 2
)

// BufferTransfer is one appended "move this buffer" instruction: a single
// contiguous, paged transfer between a source and a destination buffer.
type BufferTransfer struct {
	SrcAddr, DstAddr     uint32
	NumPages, PageSize   uint32
	SrcKind, DstKind     device.BufferKind
}

// WritePagePartial is one appended NoC multicast write instruction, one of
// the many that make up a program's page transfer list.
type WritePagePartial struct {
	NumBytes                uint32
	DstLocalAddr            uint32
	DstNocMulticastEncoding uint32
	NumReceivers            uint32
	LastInGroup             bool
}

// Command builds one fixed-size DeviceCommand: a control header, up to two
// buffer-transfer instructions, and a relay section of write-program-entry
// counts interleaved with write-page-partial instructions. The zero value
// is a ready-to-use, all-zero command — which is exactly the shape a Wrap
// command needs everywhere except its first flag word.
type Command struct {
	flags                            uint32
	pageSize                         uint32
	numPages                         uint32
	dataSize                         uint32
	producerCBSize, consumerCBSize   uint32
	producerCBNumPages               uint32
	consumerCBNumPages               uint32
	producerConsumerTransferNumPages uint32
	numWorkers                       uint32

	bufferTransfers []BufferTransfer
	relay           []byte
}

func (c *Command) SetFinish()    { c.flags |= flagFinish }
func (c *Command) SetStall()     { c.flags |= flagStall }
func (c *Command) SetIsProgram() { c.flags |= flagIsProgram }

// SetWrap marks this command as a ring wrap marker. Unlike the other flags,
// wrap does not share the word with anything else: the reference dispatcher
// reads a literal 1 in the first word, not a bit within it, so this
// overwrites rather than ORs.
func (c *Command) SetWrap() { c.flags = 1 }

func (c *Command) SetPageSize(v uint32)                         { c.pageSize = v }
func (c *Command) SetNumPages(v uint32)                         { c.numPages = v }
func (c *Command) SetDataSize(v uint32)                         { c.dataSize = v }
func (c *Command) SetProducerCBSize(v uint32)                   { c.producerCBSize = v }
func (c *Command) SetConsumerCBSize(v uint32)                   { c.consumerCBSize = v }
func (c *Command) SetProducerCBNumPages(v uint32)                { c.producerCBNumPages = v }
func (c *Command) SetConsumerCBNumPages(v uint32)                { c.consumerCBNumPages = v }
func (c *Command) SetProducerConsumerTransferNumPages(v uint32) { c.producerConsumerTransferNumPages = v }
func (c *Command) SetNumWorkers(v uint32)                       { c.numWorkers = v }

func (c *Command) DataSize() uint32 { return c.dataSize }

// AddBufferTransferInstruction appends one buffer-transfer instruction. No
// command the queue ever builds needs more than two: ReadBuffer and
// WriteBuffer each carry exactly one, EnqueueProgram up to two (host-data
// then program-binary). A third is a programming error, not a runtime
// condition callers can recover from.
func (c *Command) AddBufferTransferInstruction(t BufferTransfer) {
	if len(c.bufferTransfers) >= maxBufferTransfers {
		panic(fmt.Sprintf("devcmd: command already carries the maximum of %d buffer transfers", maxBufferTransfers))
	}
	c.bufferTransfers = append(c.bufferTransfers, t)
}

// WriteProgramEntry appends the "next n transfers" count that precedes a
// run of write-page-partial instructions in the relay section.
func (c *Command) WriteProgramEntry(n uint32) {
	c.growRelay(4)
	c.relay = wire.AppendUint32(c.relay, n)
}

// AddWritePagePartialInstruction appends one multicast-write instruction to
// the relay section.
func (c *Command) AddWritePagePartialInstruction(p WritePagePartial) {
	c.growRelay(writePagePartialBytes)
	c.relay = wire.AppendUint32(c.relay, p.NumBytes)
	c.relay = wire.AppendUint32(c.relay, p.DstLocalAddr)
	c.relay = wire.AppendUint32(c.relay, p.DstNocMulticastEncoding)
	c.relay = wire.AppendUint32(c.relay, p.NumReceivers)
	last := uint32(0)
	if p.LastInGroup {
		last = 1
	}
	c.relay = wire.AppendUint32(c.relay, last)
}

func (c *Command) growRelay(n int) {
	if len(c.relay)+n > instructionAreaBytes {
		panic(fmt.Sprintf("devcmd: relay section overflow: %d bytes would exceed the %d-byte capacity of a %d-byte command",
			len(c.relay)+n, instructionAreaBytes, NumBytesInDeviceCommand))
	}
}

// GetDesc serializes the command into exactly NumBytesInDeviceCommand
// bytes. Every word this command never used — unused buffer-transfer
// slots, the unused tail of the relay section — is left at zero, so a Wrap
// command (all zero but for its flag word) reads back as a long run of
// no-ops rather than garbage.
func (c *Command) GetDesc() []byte {
	buf := make([]byte, NumBytesInDeviceCommand)

	header := make([]byte, 0, headerControlBytes)
	header = wire.AppendUint32(header, c.flags)
	header = wire.AppendUint32(header, c.pageSize)
	header = wire.AppendUint32(header, c.numPages)
	header = wire.AppendUint32(header, c.dataSize)
	header = wire.AppendUint32(header, uint32(len(c.bufferTransfers)))
	header = wire.AppendUint32(header, c.producerCBSize)
	header = wire.AppendUint32(header, c.consumerCBSize)
	header = wire.AppendUint32(header, c.producerCBNumPages)
	header = wire.AppendUint32(header, c.consumerCBNumPages)
	header = wire.AppendUint32(header, c.producerConsumerTransferNumPages)
	header = wire.AppendUint32(header, c.numWorkers)
	copy(buf[:headerControlBytes], header)

	for i, t := range c.bufferTransfers {
		slot := make([]byte, 0, bufferTransferBytes)
		slot = wire.AppendUint32(slot, t.SrcAddr)
		slot = wire.AppendUint32(slot, t.DstAddr)
		slot = wire.AppendUint32(slot, t.NumPages)
		slot = wire.AppendUint32(slot, t.PageSize)
		slot = wire.AppendUint32(slot, uint32(t.SrcKind))
		slot = wire.AppendUint32(slot, uint32(t.DstKind))
		copy(buf[headerControlBytes+i*bufferTransferBytes:], slot)
	}

	copy(buf[instructionAreaOffset:], c.relay)
	return buf
}
