// Package devcmd builds the fixed-layout DeviceCommand header that precedes
// every payload written into the command ring, and holds the handful of
// compile-time constants that layout depends on. The exact word order and
// bit positions here are shared with the on-device dispatcher; nothing in
// this package may reorder a field without breaking that contract.
package devcmd

// HugePageSize is the size in bytes of the host-mapped command ring.
const HugePageSize = 1 << 30

// CQStart is the byte offset within the ring where the pointer block ends
// and the first command may begin. It must stay a multiple of 32 so every
// command placed at CQStart is itself 32-byte aligned.
const CQStart = 96

// HostCQFinishPtr is the byte offset the device writes 1 to once it has
// drained the ring up to and including a Finish command, and that the host
// resets to 0 after observing it. It sits 32 bytes before CQStart so that
// (HostCQFinishPtr+32)>>4 equals the producer's initial read/write pointer,
// CQStart>>4.
const HostCQFinishPtr = 64

// NumBytesInDeviceCommand is the fixed size of every serialized
// DeviceCommand, header plus appended instructions. It bounds the largest
// program a single EnqueueProgram command can describe; a program whose
// transfer list does not fit is a precondition violation, not something
// this package silently truncates.
const NumBytesInDeviceCommand = 8192

const (
	headerControlBytes     = 64
	maxBufferTransfers     = 2
	bufferTransferWords    = 6
	bufferTransferBytes    = bufferTransferWords * 4
	writePagePartialWords  = 5
	writePagePartialBytes  = writePagePartialWords * 4
	instructionAreaOffset  = headerControlBytes + maxBufferTransfers*bufferTransferBytes
	instructionAreaBytes   = NumBytesInDeviceCommand - instructionAreaOffset
)

// ProgramPageSize is the fixed page size EnqueueProgram paginates both
// host-data and program-binary transfers into.
const ProgramPageSize = 2048

// ConsumerDataBufferSize and ProducerDataBufferSize size the on-device
// circular buffers the consumer and producer dispatch cores relay pages
// through. They are shared between the ReadBuffer/WriteBuffer commands and
// EnqueueProgram; only the page size used to turn them into page counts
// differs.
const (
	ConsumerDataBufferSize = 128 * 1024
	ProducerDataBufferSize = 256 * 1024
)

// Local-memory and IRAM window bits. A destination address with
// MemLocalBase set targets a RISC-V core's private local memory rather than
// shared L1, and one with MemNCRISCIRAMBase set targets NCRISC's instruction
// RAM; both must be rebased to InitLocalL1Base/InitIRAML1Base before being
// used as a NoC destination, since local memory and IRAM are not themselves
// addressable over the NoC.
const (
	MemLocalBase      = 1 << 28
	MemNCRISCIRAMBase = 1 << 29
)

// InitLocalL1Base returns the L1 staging address a sub-processor's local
// memory window is rebased to before a NoC multicast write.
func InitLocalL1Base(sp SubProcessorIndex) uint32 {
	return 0x1000 + uint32(sp)*0x1000
}

// InitIRAML1Base is the L1 staging address NCRISC's IRAM window is rebased
// to; it is an NCRISC-only concern and independent of SubProcessorIndex.
const InitIRAML1Base = 0x6000

// SubProcessorIndex is the 0..2 index of a COMPUTE kernel's TRISC
// sub-binaries, or, for the single binary a BRISC/NCRISC kernel carries,
// the kernel's Processor value (0 for BRISC, 1 for NCRISC).
type SubProcessorIndex int

// L1 runtime-argument base addresses, one per processor kind.
const (
	BriscL1ArgBase  = 0x7000
	NcriscL1ArgBase = 0x7100
	TriscL1ArgBase  = 0x7200
)

// CircularBufferConfigBase is the L1 address of buffer index 0's circular
// buffer config entry; later indices follow at
// UINT32WordsPerCircularBufferConfig-word strides.
const CircularBufferConfigBase = 0x8000

// UINT32WordsPerCircularBufferConfig is the number of 32-bit words a single
// circular buffer's config entry occupies: address, total size, page
// count and page size, each right-shifted into 16-byte units except the
// page count.
const UINT32WordsPerCircularBufferConfig = 4

// SemaphoreAlignment is the L1 stride, in bytes, reserved per semaphore:
// one live word followed by padding out to a 16-byte boundary.
const SemaphoreAlignment = 16

// MailboxLaunchAddress is the fixed local L1 offset of a worker core's
// launch-message mailbox. Every kernel group's launch message targets this
// same local address; what varies per group is the NoC multicast
// destination, not the local offset.
const MailboxLaunchAddress = 0x9000

// DispatchModeDev tags a launch message as device-dispatch driven, the
// only mode the bootstrapped producer/consumer kernels understand.
const DispatchModeDev = 1

// TensixSoftResetAddr is the shared compile-time constant handed to both
// dispatch kernels so either can pulse the other's soft reset line.
const TensixSoftResetAddr = 0xFFB121B0

// Producer/consumer L1 control addresses used to seed the ring's read and
// write pointers during dispatcher bootstrap.
const (
	CQReadPtr     = 0xA000
	CQWritePtr    = 0xA004
	CQReadToggle  = 0xA008
	CQWriteToggle = 0xA00C
)

// Align rounds v up to the next multiple of n, matching the wraparound
// behavior of the unsigned arithmetic this layout was ported from: aligning
// an already-zero value returns zero rather than n.
func Align(v, n uint32) uint32 {
	return ((v - 1) | (n - 1)) + 1
}
