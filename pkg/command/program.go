package command

import (
	"hostq.dev/hostq/pkg/device"
	"hostq.dev/hostq/pkg/devcmd"
	"hostq.dev/hostq/pkg/programmap"
	"hostq.dev/hostq/pkg/sysmem"
	"hostq.dev/hostq/pkg/wire"
)

// Program launches a compiled program: up to two buffer-transfer
// instructions (host-data pages, then program-binary pages), each followed
// by the write-program-entry/write-page-partial relay sequence
// programmap.Build precomputed for it, and finally the host-data payload
// itself appended after the command header.
//
// Stall is set the first time a program's binary and transfer plan are
// pushed to the device; every later launch of the same program can skip
// waiting for that upload to land before issuing runtime args, since the
// binary is already resident.
type Program struct {
	DeviceBuffer *device.Buffer
	Map          *programmap.Map
	HostData     []uint32
	Stall        bool
	Writer       *sysmem.Writer
}

func NewProgram(deviceBuffer *device.Buffer, m *programmap.Map, hostData []uint32, stall bool, w *sysmem.Writer) *Program {
	return &Program{DeviceBuffer: deviceBuffer, Map: m, HostData: hostData, Stall: stall, Writer: w}
}

func (c *Program) Kind() Kind { return KindProgram }

func (c *Program) assemble(hostDataSrc uint32) *devcmd.Command {
	cmd := &devcmd.Command{}
	cmd.SetIsProgram()
	cmd.SetNumWorkers(c.Map.NumWorkers)
	if c.Stall {
		cmd.SetStall()
	}

	numHostDataPages := uint32(len(c.Map.NumTransfersInHostDataPages))
	numProgramBinaryPages := uint32(len(c.Map.NumTransfersInProgramPages))
	cmd.SetPageSize(devcmd.ProgramPageSize)
	cmd.SetNumPages(numHostDataPages + numProgramBinaryPages)
	cmd.SetDataSize(devcmd.ProgramPageSize * numHostDataPages)

	if numHostDataPages != 0 {
		cmd.AddBufferTransferInstruction(devcmd.BufferTransfer{
			SrcAddr:  hostDataSrc,
			NumPages: numHostDataPages,
			PageSize: devcmd.ProgramPageSize,
			SrcKind:  device.BufferKindSystemMemory,
			DstKind:  device.BufferKindL1,
		})
		populateRelay(cmd, c.Map.NumTransfersInHostDataPages, c.Map.HostPageTransfers)
	}
	if numProgramBinaryPages != 0 {
		cmd.AddBufferTransferInstruction(devcmd.BufferTransfer{
			SrcAddr:  c.DeviceBuffer.Address(),
			NumPages: numProgramBinaryPages,
			PageSize: devcmd.ProgramPageSize,
			SrcKind:  c.DeviceBuffer.Kind(),
			DstKind:  device.BufferKindL1,
		})
		populateRelay(cmd, c.Map.NumTransfersInProgramPages, c.Map.ProgramPageTransfers)
	}

	producerCBNumPages := devcmd.ProducerDataBufferSize / devcmd.ProgramPageSize
	consumerCBNumPages := devcmd.ConsumerDataBufferSize / devcmd.ProgramPageSize
	cmd.SetProducerCBNumPages(uint32(producerCBNumPages))
	cmd.SetProducerCBSize(uint32(producerCBNumPages * devcmd.ProgramPageSize))
	cmd.SetConsumerCBNumPages(uint32(consumerCBNumPages))
	cmd.SetConsumerCBSize(uint32(consumerCBNumPages * devcmd.ProgramPageSize))
	// Unlike ReadBuffer/WriteBuffer, this is a fixed compile-time constant
	// for program launches, not derived from the CB page count.
	cmd.SetProducerConsumerTransferNumPages(4)
	return cmd
}

// populateRelay replays counts and transfers into cmd's relay section: one
// write-program-entry per page, immediately followed by exactly that many
// write-page-partial instructions.
func populateRelay(cmd *devcmd.Command, counts []uint32, transfers []programmap.TransferInfo) {
	i := 0
	for _, n := range counts {
		cmd.WriteProgramEntry(n)
		for k := uint32(0); k < n; k++ {
			t := transfers[i]
			cmd.AddWritePagePartialInstruction(devcmd.WritePagePartial{
				NumBytes:                t.SizeInBytes,
				DstLocalAddr:            t.Dst,
				DstNocMulticastEncoding: t.DstNocMulticastEncoding,
				NumReceivers:            t.NumReceivers,
				LastInGroup:             t.LastMulticastInGroup,
			})
			i++
		}
	}
}

func (c *Program) Process() error {
	writePtr := c.Writer.WrPtrBytes()
	hostDataSrc := writePtr + devcmd.NumBytesInDeviceCommand

	desc := c.assemble(hostDataSrc).GetDesc()
	cmdSize := devcmd.NumBytesInDeviceCommand + uint32(len(c.HostData))*4

	c.Writer.ReserveBack(cmdSize)
	if err := c.Writer.Write(desc, writePtr); err != nil {
		return err
	}
	if len(c.HostData) != 0 {
		if err := c.Writer.Write(wire.WordsToBytes(c.HostData), hostDataSrc); err != nil {
			return err
		}
	}
	c.Writer.PushBack(cmdSize)
	return nil
}
