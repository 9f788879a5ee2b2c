// blkctl brings up the block devices of a platform configuration and moves
// data through them.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/golang/glog"
	"github.com/google/subcommands"
	"github.com/pkg/errors"

	"github.com/keks/blockdev/config"
	"github.com/keks/blockdev/platform"
	"github.com/keks/blockdev/registry"
)

var configPath = flag.String("config", "blkctl.yaml", "platform configuration")

// bringUp builds the platform described by -config. Devices that fail to
// come up are reported and left out.
func bringUp() (*platform.Platform, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, errors.Wrap(err, *configPath)
	}
	config.Normalize(cfg)

	p, err := platform.Build(cfg, registry.Default())
	if p == nil {
		return nil, err
	}
	if err != nil {
		glog.Warningf("some devices are unavailable: %v", err)
	}

	return p, nil
}

// run brings the platform up, calls fn and tears the platform down again.
func run(fn func(*platform.Platform) error) subcommands.ExitStatus {
	p, err := bringUp()
	if err != nil {
		glog.Error(err)
		return subcommands.ExitFailure
	}

	err = fn(p)
	if cerr := p.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		glog.Error(err)
		return subcommands.ExitFailure
	}

	return subcommands.ExitSuccess
}

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&devicesCmd{}, "")
	subcommands.Register(&catCmd{}, "")
	subcommands.Register(&putCmd{}, "")
	subcommands.Register(&mkpartCmd{}, "")

	flag.Parse()
	status := subcommands.Execute(context.Background())
	glog.Flush()
	os.Exit(int(status))
}
