// Package config loads the demo client's run-control file.
//
// The file is YAML and lives in the working directory as .<prog>rc:
//
//	coordinator: http://127.0.0.1:8080
//	data_file: data.txt
//	unit_size: 64KiB
//	block_size: 0
//	reply_cap: 4KiB
//	timeout: 30s
//
// Sizes accept plain byte counts or go-units suffixes. A missing file
// leaves the defaults in place. ISC_COORDINATOR, ISC_DATA_FILE,
// ISC_UNIT_SIZE, ISC_BLOCK_SIZE, ISC_REPLY_CAP and ISC_TIMEOUT override the
// file.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/docker/go-units"
	"github.com/grailbio/base/errors"
	"gopkg.in/yaml.v3"

	"github.com/dreamware/isc/internal/isc"
	"github.com/dreamware/isc/internal/layout"
)

// Size is a byte count written with an optional unit suffix.
type Size uint64

// ParseSize parses "4096", "64k" or "64KiB".
func ParseSize(s string) (Size, error) {
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("size %q", s), err)
	}
	if n < 0 {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("negative size %q", s))
	}
	return Size(n), nil
}

func (s Size) String() string { return units.BytesSize(float64(s)) }

func (s *Size) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return errors.E(errors.Invalid, fmt.Sprintf("line %d: size must be a scalar", n.Line))
	}
	v, err := ParseSize(n.Value)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s Size) MarshalYAML() (interface{}, error) { return s.String(), nil }

// Config is the client configuration.
type Config struct {
	Coordinator string `yaml:"coordinator"`
	DataFile    string `yaml:"data_file"`
	// UnitSize is the stripe unit of objects created by load.
	UnitSize Size `yaml:"unit_size"`
	// BlockSize is the traversal pass length. Zero means one stripe of
	// the object.
	BlockSize Size          `yaml:"block_size"`
	ReplyCap  Size          `yaml:"reply_cap"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Coordinator: "http://127.0.0.1:8080",
		DataFile:    "data.txt",
		UnitSize:    64 << 10,
		ReplyCap:    isc.DefaultReplyCap,
		Timeout:     30 * time.Second,
	}
}

// Path returns the run-control file name of prog.
func Path(prog string) string { return "." + prog + "rc" }

// Load reads the file at path over the defaults and applies environment
// overrides.
func Load(path string) (Config, error) {
	c := Default()
	b, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return c, errors.E(errors.Invalid, fmt.Sprintf("read %s", path), err)
	default:
		if err := c.decode(b); err != nil {
			return c, errors.E(fmt.Sprintf("parse %s", path), err)
		}
	}
	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func (c *Config) decode(b []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return errors.E(errors.Invalid, err)
	}
	return nil
}

// ApplyEnv overrides fields from ISC_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("ISC_COORDINATOR"); ok && v != "" {
		c.Coordinator = v
	}
	if v, ok := lookup("ISC_DATA_FILE"); ok && v != "" {
		c.DataFile = v
	}
	for _, f := range []struct {
		key string
		dst *Size
	}{
		{"ISC_UNIT_SIZE", &c.UnitSize},
		{"ISC_BLOCK_SIZE", &c.BlockSize},
		{"ISC_REPLY_CAP", &c.ReplyCap},
	} {
		v, ok := lookup(f.key)
		if !ok || v == "" {
			continue
		}
		n, err := ParseSize(v)
		if err != nil {
			return errors.E(f.key, err)
		}
		*f.dst = n
	}
	if v, ok := lookup("ISC_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.E(errors.Invalid, "ISC_TIMEOUT", err)
		}
		c.Timeout = d
	}
	return nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.Coordinator == "":
		return errors.E(errors.Invalid, "coordinator address missing")
	case c.UnitSize == 0:
		return errors.E(errors.Invalid, "unit_size must be positive")
	case c.BlockSize != 0 && c.BlockSize < layout.MinLength:
		return errors.E(errors.Invalid, fmt.Sprintf("block_size %v below %v", c.BlockSize, Size(layout.MinLength)))
	case c.ReplyCap == 0:
		return errors.E(errors.Invalid, "reply_cap must be positive")
	case c.Timeout < 0:
		return errors.E(errors.Invalid, "negative timeout")
	}
	return nil
}
