package main

import (
	"context"
	"encoding/hex"
	"flag"

	"github.com/google/subcommands"

	"hostq.dev/hostq/pkg/wire"
)

type dumpCommand struct {
	hexBytes string
}

func (*dumpCommand) Name() string     { return "dump" }
func (*dumpCommand) Synopsis() string { return "decode a raw DeviceCommand header" }
func (*dumpCommand) Usage() string {
	return "dump -hex <hex-encoded bytes>\n  Decode the fixed control fields of a DeviceCommand header.\n"
}

func (c *dumpCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.hexBytes, "hex", "", "hex-encoded command bytes, at least 44 bytes (the control fields at the start of the 64-byte control header)")
}

func (c *dumpCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	raw, err := hex.DecodeString(c.hexBytes)
	if err != nil {
		printf("cqtool dump: invalid hex: %v\n", err)
		return subcommands.ExitFailure
	}
	if len(raw) < 44 {
		printf("cqtool dump: need at least 44 bytes of control fields, got %d\n", len(raw))
		return subcommands.ExitFailure
	}

	fields := []struct {
		name   string
		offset int
	}{
		{"flags", 0},
		{"page_size", 4},
		{"num_pages", 8},
		{"data_size", 12},
		{"num_buffer_transfers", 16},
		{"producer_cb_size", 20},
		{"consumer_cb_size", 24},
		{"producer_cb_num_pages", 28},
		{"consumer_cb_num_pages", 32},
		{"producer_consumer_transfer_num_pages", 36},
		{"num_workers", 40},
	}
	for _, f := range fields {
		printf("%-38s = %d\n", f.name, wire.LittleEndian.Uint32(raw[f.offset:]))
	}
	return subcommands.ExitSuccess
}
