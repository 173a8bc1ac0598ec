// Package device models the host-side view of the accelerator: cores,
// buffers, kernels and the programs built out of them. None of these types
// talk to real hardware; they are the collaborator contracts the dispatch
// and command-queue packages are built against, with concrete in-memory
// implementations for tests.
package device

// Processor names the RISC-V core within a worker tile that a kernel runs
// on. COMPUTE kernels occupy all three TRISC cores and carry up to three
// binaries, one per sub-core.
type Processor int

const (
	BRISC Processor = iota
	NCRISC
	COMPUTE
)

func (p Processor) String() string {
	switch p {
	case BRISC:
		return "BRISC"
	case NCRISC:
		return "NCRISC"
	case COMPUTE:
		return "COMPUTE"
	default:
		return "unknown"
	}
}

// SubProcessor distinguishes the three TRISC cores a COMPUTE kernel's
// binaries target. For BRISC and NCRISC kernels there is exactly one
// sub-processor, equal to the kernel's own Processor.
type SubProcessor int

const (
	TRISC0 SubProcessor = iota
	TRISC1
	TRISC2
)

// SubProcessorsFor returns the sub-processors a kernel's binaries are
// indexed by: three for COMPUTE, one for everything else.
func SubProcessorsFor(p Processor) []SubProcessor {
	if p == COMPUTE {
		return []SubProcessor{TRISC0, TRISC1, TRISC2}
	}
	return []SubProcessor{SubProcessor(p)}
}

// CoreCoord is a single core's (x, y) position in logical or physical
// NoC-coordinate space, depending on context.
type CoreCoord struct {
	X, Y int
}

// CoreRange is an inclusive rectangle of cores.
type CoreRange struct {
	Start, End CoreCoord
}

// NumCores returns the number of cores the rectangle covers.
func (r CoreRange) NumCores() int {
	return (r.End.X - r.Start.X + 1) * (r.End.Y - r.Start.Y + 1)
}

// CoreRangeSet is a union of rectangles, the shape every kernel, circular
// buffer and semaphore placement is expressed in.
type CoreRangeSet struct {
	Ranges []CoreRange
}

// BufferKind identifies which memory a Buffer lives in.
type BufferKind int

const (
	BufferKindDRAM BufferKind = iota
	BufferKindL1
	BufferKindSystemMemory
)

// Buffer is a contiguous, page-addressable allocation in DRAM, L1 or host
// system memory.
type Buffer struct {
	address  uint32
	size     uint32
	pageSize uint32
	kind     BufferKind
}

// NewBuffer describes an already-allocated region; callers are responsible
// for actual allocation through whatever collaborator owns device memory.
func NewBuffer(address, size, pageSize uint32, kind BufferKind) *Buffer {
	return &Buffer{address: address, size: size, pageSize: pageSize, kind: kind}
}

func (b *Buffer) Address() uint32   { return b.address }
func (b *Buffer) Size() uint32      { return b.size }
func (b *Buffer) PageSize() uint32  { return b.pageSize }
func (b *Buffer) Kind() BufferKind  { return b.kind }
func (b *Buffer) NumPages() uint32  { return b.size / b.pageSize }

// MemorySpan is one contiguous run of binary words a kernel's compiled
// binary places at a fixed local address before any runtime remapping.
type MemorySpan struct {
	Dst   uint32
	Words []uint32
}

// Binary is one compiled image, addressed to a single sub-processor.
type Binary struct {
	Spans []MemorySpan
}

// RuntimeArgs pairs one logical core with the runtime argument words a
// kernel instance on that core should receive.
type RuntimeArgs struct {
	Core CoreCoord
	Args []uint32
}

// Kernel is one compiled RISC-V program bound to a processor and a set of
// cores. Iteration over a kernel's runtime args is always in the order they
// were added, so host-data payload construction is reproducible.
type Kernel struct {
	ID           int
	processor    Processor
	coreRangeSet CoreRangeSet
	runtimeArgs  []RuntimeArgs
	binaries     []Binary

	// Defines and CompileArgs are only meaningful to the compiler
	// collaborator; the command queue never reads them. They exist so the
	// dispatcher bootstrap can describe the producer/consumer kernels it
	// hands to CompileProgram.
	Defines     map[string]string
	CompileArgs []uint32
}

func NewKernel(id int, processor Processor, cores CoreRangeSet) *Kernel {
	return &Kernel{ID: id, processor: processor, coreRangeSet: cores}
}

func (k *Kernel) Processor() Processor        { return k.processor }
func (k *Kernel) CoreRangeSet() CoreRangeSet   { return k.coreRangeSet }
func (k *Kernel) RuntimeArgs() []RuntimeArgs   { return k.runtimeArgs }
func (k *Kernel) Binaries() []Binary           { return k.binaries }

// SetRuntimeArgs replaces the runtime args for core with args, appending a
// new entry the first time core is seen and preserving first-seen order on
// every later overwrite.
func (k *Kernel) SetRuntimeArgs(core CoreCoord, args []uint32) {
	for i := range k.runtimeArgs {
		if k.runtimeArgs[i].Core == core {
			k.runtimeArgs[i].Args = args
			return
		}
	}
	k.runtimeArgs = append(k.runtimeArgs, RuntimeArgs{Core: core, Args: args})
}

// SetBinaries installs the compiled images for the kernel, one per
// sub-processor as returned by SubProcessorsFor(k.Processor()).
func (k *Kernel) SetBinaries(binaries []Binary) {
	k.binaries = binaries
}

// CircularBuffer is a ring allocated in L1, shared by one or more buffer
// indices across a set of cores.
type CircularBuffer struct {
	address       uint32
	size          uint32
	coreRangeSet  CoreRangeSet
	bufferIndices []int
	numPages      map[int]uint32
}

func NewCircularBuffer(address, size uint32, cores CoreRangeSet) *CircularBuffer {
	return &CircularBuffer{address: address, size: size, coreRangeSet: cores, numPages: map[int]uint32{}}
}

func (cb *CircularBuffer) Address() uint32          { return cb.address }
func (cb *CircularBuffer) Size() uint32             { return cb.size }
func (cb *CircularBuffer) CoreRangeSet() CoreRangeSet { return cb.coreRangeSet }
func (cb *CircularBuffer) BufferIndices() []int     { return cb.bufferIndices }
func (cb *CircularBuffer) NumPages(index int) uint32 { return cb.numPages[index] }

// AddBufferIndex registers index as live on this circular buffer with the
// given page count, in the order indices are added.
func (cb *CircularBuffer) AddBufferIndex(index int, numPages uint32) {
	if _, ok := cb.numPages[index]; !ok {
		cb.bufferIndices = append(cb.bufferIndices, index)
	}
	cb.numPages[index] = numPages
}

// Semaphore is a single L1 word, multicast-initialized on every core in its
// range at program launch.
type Semaphore struct {
	address      uint32
	initialValue uint32
	coreRangeSet CoreRangeSet
}

func NewSemaphore(address, initialValue uint32, cores CoreRangeSet) *Semaphore {
	return &Semaphore{address: address, initialValue: initialValue, coreRangeSet: cores}
}

func (s *Semaphore) Address() uint32          { return s.address }
func (s *Semaphore) InitialValue() uint32     { return s.initialValue }
func (s *Semaphore) CoreRangeSet() CoreRangeSet { return s.coreRangeSet }

// KernelGroup is a maximal set of cores sharing one launch message: the
// same set of active processors, the same dispatch mode.
type KernelGroup struct {
	CoreRanges CoreRangeSet
	LaunchMsg  [4]uint32
}

// Program is the compiled, device-bound unit of work a command queue
// enqueues: a fixed set of kernels, circular buffers and semaphores, plus
// the kernel groups derived from how they overlap on cores.
type Program struct {
	id              uint64
	kernelIDs       []int
	kernels         map[int]*Kernel
	circularBuffers []*CircularBuffer
	semaphores      []*Semaphore
	kernelGroups    []*KernelGroup
	logicalCores    []CoreCoord
}

func NewProgram(id uint64) *Program {
	return &Program{id: id, kernels: map[int]*Kernel{}}
}

func (p *Program) ID() uint64                        { return p.id }
func (p *Program) KernelIDs() []int                   { return p.kernelIDs }
func (p *Program) Kernel(id int) *Kernel               { return p.kernels[id] }
func (p *Program) CircularBuffers() []*CircularBuffer { return p.circularBuffers }
func (p *Program) Semaphores() []*Semaphore           { return p.semaphores }
func (p *Program) KernelGroups() []*KernelGroup       { return p.kernelGroups }
func (p *Program) LogicalCores() []CoreCoord          { return p.logicalCores }

func (p *Program) AddKernel(k *Kernel) {
	p.kernelIDs = append(p.kernelIDs, k.ID)
	p.kernels[k.ID] = k
	p.addLogicalCores(k.coreRangeSet)
}

func (p *Program) AddCircularBuffer(cb *CircularBuffer) {
	p.circularBuffers = append(p.circularBuffers, cb)
}

func (p *Program) AddSemaphore(s *Semaphore) {
	p.semaphores = append(p.semaphores, s)
}

// SetKernelGroups installs the precomputed kernel groups; building the
// overlap partition itself is a compiler concern outside this model.
func (p *Program) SetKernelGroups(groups []*KernelGroup) {
	p.kernelGroups = groups
	for _, g := range groups {
		p.addLogicalCores(g.CoreRanges)
	}
}

func (p *Program) addLogicalCores(crs CoreRangeSet) {
	seen := map[CoreCoord]bool{}
	for _, c := range p.logicalCores {
		seen[c] = true
	}
	for _, r := range crs.Ranges {
		for x := r.Start.X; x <= r.End.X; x++ {
			for y := r.Start.Y; y <= r.End.Y; y++ {
				c := CoreCoord{X: x, Y: y}
				if !seen[c] {
					seen[c] = true
					p.logicalCores = append(p.logicalCores, c)
				}
			}
		}
	}
}
