package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// File is the optional on-disk configuration. Every field is optional; values
// present in the file act as overrides over the environment.
//
// YAML example:
//
//	ipc:
//	  host: 127.0.0.1
//	  port: 40241
//	  token: secret
//	  timeoutMs: 30000
//	log:
//	  level: debug
//	  file: /tmp/mcp-1c.log
type File struct {
	IPC IPCSection `yaml:"ipc" toml:"ipc"`
	Log LogSection `yaml:"log" toml:"log"`

	path string
}

// IPCSection holds endpoint overrides.
type IPCSection struct {
	Host      string  `yaml:"host" toml:"host"`
	Port      int     `yaml:"port" toml:"port"`
	Token     *string `yaml:"token" toml:"token"`
	TimeoutMs int     `yaml:"timeoutMs" toml:"timeoutMs"`
}

// LogSection holds logging settings.
type LogSection struct {
	Level string `yaml:"level" toml:"level"`
	File  string `yaml:"file" toml:"file"`
}

// LoadFile reads a YAML (.yaml, .yml) or TOML (.toml) configuration file.
// Returns nil, nil if the file does not exist.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var f File
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), &f)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("failed to parse config %s: unknown keys %s", path, strings.Join(keys, ", "))
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q (want .yaml, .yml or .toml)", ext)
	}

	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	f.path = path
	return &f, nil
}

// Path returns the file the configuration was loaded from.
func (f *File) Path() string {
	return f.path
}

// Validate rejects values that can never be dialed.
func (f *File) Validate() error {
	var errs []error
	if f.IPC.Port != 0 && !validPort(f.IPC.Port) {
		errs = append(errs, fmt.Errorf("ipc.port %d out of range 1-65535", f.IPC.Port))
	}
	if f.IPC.TimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("ipc.timeoutMs %d must not be negative", f.IPC.TimeoutMs))
	}
	return errors.Join(errs...)
}

// Overrides converts the ipc section into endpoint overrides. Safe to call on
// a nil File.
func (f *File) Overrides() Overrides {
	if f == nil {
		return Overrides{}
	}
	o := Overrides{
		Host: f.IPC.Host,
		Port: f.IPC.Port,
	}
	if f.IPC.Token != nil {
		token := *f.IPC.Token
		o.Token = &token
	}
	if f.IPC.TimeoutMs > 0 {
		o.Timeout = time.Duration(f.IPC.TimeoutMs) * time.Millisecond
	}
	return o
}

// Merge returns o with every unset field taken from fallback.
func (o Overrides) Merge(fallback Overrides) Overrides {
	if o.Host == "" {
		o.Host = fallback.Host
	}
	if o.Port == 0 {
		o.Port = fallback.Port
	}
	if o.Token == nil {
		o.Token = fallback.Token
	}
	if o.Timeout == 0 {
		o.Timeout = fallback.Timeout
	}
	return o
}
