// Command cqtool is a small operator utility for inspecting and exercising
// a host command queue outside of a real accelerator: decoding a raw
// DeviceCommand header, and running a scripted enqueue sequence against an
// in-memory device and cluster to sanity-check the plumbing end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"hostq.dev/hostq/pkg/log"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&dumpCommand{}, "")
	subcommands.Register(&simulateCommand{}, "")

	flag.Parse()
	if level, err := logrus.ParseLevel(os.Getenv("CQTOOL_LOG_LEVEL")); err == nil {
		log.Base.SetLevel(level)
	}
	os.Exit(int(subcommands.Execute(context.Background())))
}

func printf(format string, args ...any) { fmt.Fprintf(os.Stdout, format, args...) }
