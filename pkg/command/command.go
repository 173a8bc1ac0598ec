// Package command implements the closed set of command objects a command
// queue can enqueue: read a buffer back, write a buffer, run a program,
// wait for the ring to drain, or wrap around to the ring's start. Each is a
// concrete type rather than a subclass of some open Command base — the set
// is fixed by the wire protocol, so there is nothing an interface-based
// extension point would buy.
package command

// Kind identifies which of the fixed set of command objects a Command is.
type Kind int

const (
	KindReadBuffer Kind = iota
	KindWriteBuffer
	KindProgram
	KindFinish
	KindWrap
)

func (k Kind) String() string {
	switch k {
	case KindReadBuffer:
		return "ReadBuffer"
	case KindWriteBuffer:
		return "WriteBuffer"
	case KindProgram:
		return "Program"
	case KindFinish:
		return "Finish"
	case KindWrap:
		return "Wrap"
	default:
		return "unknown"
	}
}

// Command is anything the queue can hand to the ring: build its
// DeviceCommand, reserve room, write it, and publish the new write
// pointer.
type Command interface {
	Kind() Kind
	Process() error
}
