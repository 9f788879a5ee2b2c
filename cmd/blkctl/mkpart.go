package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/google/subcommands"
	"github.com/pkg/errors"

	"github.com/keks/blockdev"
	"github.com/keks/blockdev/partition"
	"github.com/keks/blockdev/platform"
)

type mkpartCmd struct {
	size   string
	format bool
}

func (*mkpartCmd) Name() string  { return "mkpart" }
func (*mkpartCmd) Usage() string { return "mkpart -size SIZE [-format] DEVICE\n" }
func (*mkpartCmd) Synopsis() string {
	return "allocates a partition from the partition table on a device"
}

func (cmd *mkpartCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&cmd.size, "size", "", "partition size including its header, e.g. 64KiB")
	f.BoolVar(&cmd.format, "format", false, "write an empty partition table first")
}

func (cmd *mkpartCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 || cmd.size == "" {
		f.Usage()
		return subcommands.ExitUsageError
	}

	size, err := humanize.ParseBytes(cmd.size)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	return run(func(p *platform.Platform) error {
		return mkpart(p, f.Arg(0), int64(size), cmd.format, os.Stdout)
	})
}

func mkpart(p *platform.Platform, device string, size int64, format bool, w io.Writer) error {
	d, err := p.Registry.Lookup(device)
	if err != nil {
		return err
	}
	// the table would overwrite what the upper device keeps there
	if u, ok := d.Upper(); ok {
		return errors.Wrapf(blockdev.ErrLayered, "%s: in use by %s", device, u.Name())
	}

	var tbl *partition.Table
	if format {
		tbl, err = partition.NewTable(p.Registry, d)
	} else {
		tbl, err = partition.OpenTable(p.Registry, d)
	}
	if err != nil {
		return errors.Wrapf(err, "%s: partition table", device)
	}

	id, part, err := tbl.Allocate(size)
	if err != nil {
		return errors.Wrapf(err, "%s: allocate %s", device, humanize.IBytes(uint64(size)))
	}

	fmt.Fprintf(w, "%s: partition at %d, %s usable (%d in table)\n",
		device, id, humanize.IBytes(uint64(part.Size())), tbl.Len())

	return nil
}
