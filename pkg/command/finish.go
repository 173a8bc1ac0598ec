package command

import (
	"hostq.dev/hostq/pkg/devcmd"
	"hostq.dev/hostq/pkg/sysmem"
)

// Finish asks the on-device dispatcher to drain the ring up to this point
// and flip HostCQFinishPtr once it has. It carries no payload of its own;
// waiting for the flip and clearing it back to zero is the command queue's
// job, since only the queue knows when it has actually finished waiting.
type Finish struct {
	Writer *sysmem.Writer
}

func NewFinish(w *sysmem.Writer) *Finish { return &Finish{Writer: w} }

func (c *Finish) Kind() Kind { return KindFinish }

func (c *Finish) Process() error {
	writePtr := c.Writer.WrPtrBytes()
	var cmd devcmd.Command
	cmd.SetFinish()
	desc := cmd.GetDesc()

	c.Writer.ReserveBack(devcmd.NumBytesInDeviceCommand)
	if err := c.Writer.Write(desc, writePtr); err != nil {
		return err
	}
	c.Writer.PushBack(devcmd.NumBytesInDeviceCommand)
	return nil
}
