package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/google/subcommands"

	"github.com/keks/blockdev"
	"github.com/keks/blockdev/platform"
)

type devicesCmd struct{}

func (*devicesCmd) Name() string     { return "devices" }
func (*devicesCmd) Usage() string    { return "devices\n" }
func (*devicesCmd) Synopsis() string { return "lists the registered block devices" }

func (*devicesCmd) SetFlags(*flag.FlagSet) {}

func (cmd *devicesCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(p *platform.Platform) error {
		return listDevices(p, os.Stdout)
	})
}

func listDevices(p *platform.Platform, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDRIVER\tSIZE\tLOWER")

	for _, d := range p.Registry.Devices() {
		size := "-"
		var n int64
		if err := p.Registry.Ioctl(d, blockdev.IoctlGetSize, &n); err == nil {
			size = humanize.IBytes(uint64(n))
		}

		lower := "-"
		if l, ok := d.Lower(); ok {
			lower = l.Name()
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Name(), driverName(d.Device()), size, lower)
	}

	return tw.Flush()
}

// driverName turns *flash.File into flash.File.
func driverName(dev blockdev.Device) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", dev), "*")
}
