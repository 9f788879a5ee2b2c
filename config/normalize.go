package config

const (
	DefaultBlockSize = 512
	DefaultTimeoutMs = 1000
)

// Normalize fills in defaults. It must be called only after Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	for i := range cfg.Devices {
		d := &cfg.Devices[i]

		d.Name = effectiveName(*d)

		switch d.Driver {
		case DriverFlash, DriverMemdisk:
			if d.BlockSize == 0 {
				d.BlockSize = DefaultBlockSize
			}
		case DriverModbus:
			if d.TimeoutMs == 0 {
				d.TimeoutMs = DefaultTimeoutMs
			}
		}
	}
}
