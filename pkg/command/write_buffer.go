package command

import (
	"fmt"

	"hostq.dev/hostq/pkg/device"
	"hostq.dev/hostq/pkg/devcmd"
	"hostq.dev/hostq/pkg/sysmem"
	"hostq.dev/hostq/pkg/wire"
)

// WriteBuffer copies host words into a device buffer: one DeviceCommand
// describing the transfer, followed immediately by the source words
// themselves.
type WriteBuffer struct {
	Buffer *device.Buffer
	Src    []uint32
	Writer *sysmem.Writer
}

func NewWriteBuffer(buf *device.Buffer, src []uint32, w *sysmem.Writer) *WriteBuffer {
	return &WriteBuffer{Buffer: buf, Src: src, Writer: w}
}

func (c *WriteBuffer) Kind() Kind { return KindWriteBuffer }

func (c *WriteBuffer) assemble(srcAddr uint32) *devcmd.Command {
	paddedPageSize := devcmd.Align(c.Buffer.PageSize(), 32)

	cmd := &devcmd.Command{}
	cmd.SetPageSize(paddedPageSize)
	cmd.SetNumPages(c.Buffer.NumPages())
	cmd.SetDataSize(paddedPageSize * c.Buffer.NumPages())
	cmd.AddBufferTransferInstruction(devcmd.BufferTransfer{
		SrcAddr:  srcAddr,
		DstAddr:  c.Buffer.Address(),
		NumPages: c.Buffer.NumPages(),
		PageSize: paddedPageSize,
		SrcKind:  device.BufferKindSystemMemory,
		DstKind:  c.Buffer.Kind(),
	})

	consumerCBNumPages, producerCBNumPages, transferNumPages := circularBufferSizing(paddedPageSize)
	cmd.SetConsumerCBNumPages(consumerCBNumPages)
	cmd.SetConsumerCBSize(consumerCBNumPages * paddedPageSize)
	cmd.SetProducerCBNumPages(producerCBNumPages)
	cmd.SetProducerCBSize(producerCBNumPages * paddedPageSize)
	cmd.SetProducerConsumerTransferNumPages(transferNumPages)
	return cmd
}

func (c *WriteBuffer) Process() error {
	if k := c.Buffer.Kind(); k != device.BufferKindDRAM && k != device.BufferKindL1 {
		return fmt.Errorf("command: write buffer: destination kind %v is not DRAM or L1", k)
	}

	writePtr := c.Writer.WrPtrBytes()
	srcAddr := writePtr + devcmd.NumBytesInDeviceCommand

	desc := c.assemble(srcAddr).GetDesc()
	pageSize := c.Buffer.PageSize()
	paddedPageSize := devcmd.Align(pageSize, 32)
	paddedDataSize := paddedPageSize * c.Buffer.NumPages()
	cmdSize := devcmd.NumBytesInDeviceCommand + paddedDataSize

	c.Writer.ReserveBack(cmdSize)
	if err := c.Writer.Write(desc, writePtr); err != nil {
		return err
	}

	if pageSize%32 != 0 && pageSize != c.Buffer.Size() {
		// Pages don't naturally land on 32-byte strides once concatenated,
		// so each is written at its own padded offset rather than as one
		// contiguous copy; the consumer reads them back at that same
		// padded stride.
		srcBytes := wire.WordsToBytes(c.Src)
		numPages := c.Buffer.NumPages()
		for p := uint32(0); p < numPages; p++ {
			page := srcBytes[p*pageSize : (p+1)*pageSize]
			if err := c.Writer.Write(page, srcAddr+p*paddedPageSize); err != nil {
				return err
			}
		}
	} else {
		if err := c.Writer.Write(wire.WordsToBytes(c.Src), srcAddr); err != nil {
			return err
		}
	}

	c.Writer.PushBack(cmdSize)
	return nil
}
