package registry

import "github.com/keks/blockdev"

// std is the process-wide registry. It is initialized once by Init and
// there is no way to reset it.
var std = New()

// Default returns the process-wide registry.
func Default() *Registry { return std }

// Register adds d to the process-wide registry.
func Register(d *blockdev.Descriptor) error { return std.Register(d) }

// Lookup finds name in the process-wide registry.
func Lookup(name string) (*blockdev.Descriptor, error) { return std.Lookup(name) }

// Init runs the startup sweep of the process-wide registry.
func Init() error { return std.Init() }
