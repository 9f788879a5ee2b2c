package main

import (
	"context"
	"flag"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
	"github.com/google/subcommands"
	"github.com/pkg/errors"

	"github.com/keks/blockdev/platform"
)

type catCmd struct{}

func (*catCmd) Name() string     { return "cat" }
func (*catCmd) Usage() string    { return "cat FILE\n" }
func (*catCmd) Synopsis() string { return "copies a file's device contents to stdout" }

func (*catCmd) SetFlags(*flag.FlagSet) {}

func (cmd *catCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	return run(func(p *platform.Platform) error {
		return cat(p, f.Arg(0), os.Stdout)
	})
}

type putCmd struct{}

func (*putCmd) Name() string     { return "put" }
func (*putCmd) Usage() string    { return "put FILE\n" }
func (*putCmd) Synopsis() string { return "copies stdin to a file's device" }

func (*putCmd) SetFlags(*flag.FlagSet) {}

func (cmd *putCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	return run(func(p *platform.Platform) error {
		return put(p, f.Arg(0), os.Stdin)
	})
}

func cat(p *platform.Platform, name string, w io.Writer) error {
	f, err := p.Bridge.Open(name)
	if err != nil {
		return err
	}
	defer p.Bridge.Close(f)

	n, err := io.Copy(w, p.Bridge.Stream(f))
	glog.V(1).Infof("cat %s: %s", name, humanize.IBytes(uint64(n)))

	return errors.Wrap(err, name)
}

func put(p *platform.Platform, name string, r io.Reader) error {
	f, err := p.Bridge.Open(name)
	if err != nil {
		return err
	}
	defer p.Bridge.Close(f)

	n, err := io.Copy(p.Bridge.Stream(f), r)
	glog.V(1).Infof("put %s: %s", name, humanize.IBytes(uint64(n)))

	return errors.Wrap(err, name)
}
