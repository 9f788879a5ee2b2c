// Package config describes a platform's block devices and file table.
package config

import (
	"bytes"
	"io"
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Drivers a device may name.
const (
	DriverFlash     = "flash"
	DriverMemdisk   = "memdisk"
	DriverPartition = "partition"
	DriverModbus    = "modbus"
)

type Config struct {
	Devices []DeviceConfig `yaml:"devices"`
	Files   []FileConfig   `yaml:"files"`
}

// ---- DEVICES ----

type DeviceConfig struct {
	Name   string `yaml:"name"`
	Driver string `yaml:"driver"`

	// flash, memdisk
	Backing   string `yaml:"backing"`
	Size      int64  `yaml:"size"`
	BlockSize int64  `yaml:"block_size"`

	// partition; size 0 reads the size from the partition header
	Lower  string `yaml:"lower"`
	Offset int64  `yaml:"offset"`

	// modbus
	Endpoint  string `yaml:"endpoint"`
	UnitID    uint8  `yaml:"unit_id"`
	Address   uint16 `yaml:"address"`
	Registers uint16 `yaml:"registers"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

func (d DeviceConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutMs) * time.Millisecond
}

// ---- FILES ----

type FileConfig struct {
	Name   string `yaml:"name"`
	Device string `yaml:"device"`
}

// FileTable maps file names to device names.
func (cfg *Config) FileTable() map[string]string {
	files := make(map[string]string, len(cfg.Files))
	for _, f := range cfg.Files {
		files[f.Name] = f.Device
	}

	return files
}

// Load reads the configuration at path.
func Load(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config")
	}

	cfg, err := Parse(data)
	return cfg, errors.Wrap(err, path)
}

// Parse decodes a YAML configuration. Unknown keys are rejected; an empty
// document is an empty configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "config")
	}

	return &cfg, nil
}
