package command

import (
	"hostq.dev/hostq/pkg/devcmd"
	"hostq.dev/hostq/pkg/sysmem"
)

// Wrap pads the ring out to its end with a single command whose flag word
// marks it as a wrap and whose every other byte is zero, so the consumer
// sees nothing but no-ops until it reaches the ring base. Pushing it is
// what actually moves the write pointer back to CQStart.
type Wrap struct {
	Writer *sysmem.Writer
}

func NewWrap(w *sysmem.Writer) *Wrap { return &Wrap{Writer: w} }

func (c *Wrap) Kind() Kind { return KindWrap }

func (c *Wrap) Process() error {
	writePtr := c.Writer.WrPtrBytes()
	spaceLeft := c.Writer.RingSize() - writePtr

	var cmd devcmd.Command
	cmd.SetWrap()
	desc := cmd.GetDesc()

	// desc is NumBytesInDeviceCommand long and carries the flag word plus
	// zeros; the rest of the space to the ring's end is zero by construction.
	buf := make([]byte, spaceLeft)
	copy(buf, desc)

	c.Writer.ReserveBack(spaceLeft)
	if err := c.Writer.Write(buf, writePtr); err != nil {
		return err
	}
	c.Writer.PushBack(spaceLeft)
	return nil
}
