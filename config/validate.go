package config

import (
	"github.com/pkg/errors"
)

// DefaultFlashName is the name a flash device gets when none is configured.
const DefaultFlashName = "hd/0"

func effectiveName(d DeviceConfig) string {
	if d.Name == "" && d.Driver == DriverFlash {
		return DefaultFlashName
	}

	return d.Name
}

// Validate checks configuration correctness.
// It does not mutate the configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil")
	}

	// devices declared so far; a partition may only sit on one of these
	declared := make(map[string]bool)

	for i, d := range cfg.Devices {
		name := effectiveName(d)
		if name == "" {
			return errors.Errorf("device #%d: name required", i)
		}
		if declared[name] {
			return errors.Errorf("device %q: declared twice", name)
		}

		if d.Size < 0 || d.BlockSize < 0 || d.Offset < 0 || d.TimeoutMs < 0 {
			return errors.Errorf("device %q: negative size, block_size, offset or timeout_ms", name)
		}

		switch d.Driver {
		case DriverFlash, DriverMemdisk:
			if d.Lower != "" || d.Endpoint != "" {
				return errors.Errorf("device %q: %s takes no lower or endpoint", name, d.Driver)
			}

		case DriverPartition:
			if d.Lower == "" {
				return errors.Errorf("device %q: partition requires lower", name)
			}
			if d.Lower == name {
				return errors.Errorf("device %q: partition layered on itself", name)
			}
			if !declared[d.Lower] {
				return errors.Errorf("device %q: lower %q must be declared before it", name, d.Lower)
			}
			if d.Size > 0 && d.Size+d.Offset < d.Offset {
				return errors.Errorf("device %q: window overflows", name)
			}

		case DriverModbus:
			if d.Endpoint == "" {
				return errors.Errorf("device %q: modbus requires endpoint", name)
			}
			if d.Registers == 0 {
				return errors.Errorf("device %q: modbus requires registers", name)
			}
			if int(d.Address)+int(d.Registers) > 1<<16 {
				return errors.Errorf("device %q: registers %d+%d exceed the address space", name, d.Address, d.Registers)
			}

		case "":
			return errors.Errorf("device %q: driver required", name)

		default:
			return errors.Errorf("device %q: unknown driver %q", name, d.Driver)
		}

		declared[name] = true
	}

	files := make(map[string]bool)
	for i, f := range cfg.Files {
		if f.Name == "" {
			return errors.Errorf("file #%d: name required", i)
		}
		if files[f.Name] {
			return errors.Errorf("file %q: declared twice", f.Name)
		}
		if !declared[f.Device] {
			return errors.Errorf("file %q: unknown device %q", f.Name, f.Device)
		}

		files[f.Name] = true
	}

	return nil
}
