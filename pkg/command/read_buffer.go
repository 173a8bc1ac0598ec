package command

import (
	"hostq.dev/hostq/pkg/device"
	"hostq.dev/hostq/pkg/devcmd"
	"hostq.dev/hostq/pkg/sysmem"
)

// ReadBuffer copies a device buffer back into system memory, one
// DeviceCommand describing the transfer followed by the device's own
// reply written straight after it in the ring. Process only issues the
// command; pulling the reply back out of the ring and stripping any
// per-page padding is the command queue's job, since it is the queue that
// knows where in the ring the reply landed.
type ReadBuffer struct {
	Buffer *device.Buffer
	Writer *sysmem.Writer

	replyAddr uint32
}

func NewReadBuffer(buf *device.Buffer, w *sysmem.Writer) *ReadBuffer {
	return &ReadBuffer{Buffer: buf, Writer: w}
}

func (c *ReadBuffer) Kind() Kind { return KindReadBuffer }

// ReplyAddr is the ring byte offset the device's reply data lands at, valid
// once Process has returned successfully.
func (c *ReadBuffer) ReplyAddr() uint32 { return c.replyAddr }

func (c *ReadBuffer) assemble(replyAddr uint32) *devcmd.Command {
	paddedPageSize := devcmd.Align(c.Buffer.PageSize(), 32)

	cmd := &devcmd.Command{}
	cmd.SetStall()
	cmd.SetPageSize(paddedPageSize)
	cmd.SetNumPages(c.Buffer.NumPages())
	cmd.SetDataSize(paddedPageSize * c.Buffer.NumPages())
	cmd.AddBufferTransferInstruction(devcmd.BufferTransfer{
		SrcAddr:  c.Buffer.Address(),
		DstAddr:  replyAddr,
		NumPages: c.Buffer.NumPages(),
		PageSize: paddedPageSize,
		SrcKind:  c.Buffer.Kind(),
		DstKind:  device.BufferKindSystemMemory,
	})

	consumerCBNumPages, producerCBNumPages, transferNumPages := circularBufferSizing(paddedPageSize)
	cmd.SetConsumerCBNumPages(consumerCBNumPages)
	cmd.SetConsumerCBSize(consumerCBNumPages * paddedPageSize)
	cmd.SetProducerCBNumPages(producerCBNumPages)
	cmd.SetProducerCBSize(producerCBNumPages * paddedPageSize)
	cmd.SetProducerConsumerTransferNumPages(transferNumPages)
	return cmd
}

func (c *ReadBuffer) Process() error {
	writePtr := c.Writer.WrPtrBytes()
	replyAddr := writePtr + devcmd.NumBytesInDeviceCommand
	c.replyAddr = replyAddr

	desc := c.assemble(replyAddr).GetDesc()
	paddedDataSize := devcmd.Align(c.Buffer.PageSize(), 32) * c.Buffer.NumPages()
	cmdSize := devcmd.NumBytesInDeviceCommand + paddedDataSize

	c.Writer.ReserveBack(cmdSize)
	if err := c.Writer.Write(desc, writePtr); err != nil {
		return err
	}
	c.Writer.PushBack(cmdSize)
	return nil
}

// circularBufferSizing derives the consumer/producer circular buffer page
// counts and the per-relay transfer stride from a padded page size. Rounding
// consumer_cb_num_pages down to a multiple of 4 keeps the transfer stride an
// exact divisor; below that threshold there aren't enough pages to stride by
// 4, so the transfer stride is pinned to 1 rather than truncating to 0.
// producer_cb_num_pages is always exactly twice the (already-rounded)
// consumer count, never a second independent division — the two would not
// generally agree.
func circularBufferSizing(paddedPageSize uint32) (consumerCBNumPages, producerCBNumPages, transferNumPages uint32) {
	consumerCBNumPages = devcmd.ConsumerDataBufferSize / paddedPageSize
	if consumerCBNumPages >= 4 {
		consumerCBNumPages = (consumerCBNumPages / 4) * 4
		transferNumPages = consumerCBNumPages / 4
	} else {
		transferNumPages = 1
	}
	producerCBNumPages = consumerCBNumPages * 2
	return consumerCBNumPages, producerCBNumPages, transferNumPages
}
