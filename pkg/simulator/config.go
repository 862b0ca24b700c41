// Package simulator holds what the bridge needs to know about the LFS installation.
package simulator

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	cfgFile   = "cfg.txt"
	layoutDir = "data/layout"

	outSimOpts = "ff"
)

var ErrInvalidConfig = errors.New("invalid LFS configuration")

// ConfigError reports a cfg.txt setting the bridge cannot work with.
type ConfigError struct {
	Setting string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid LFS configuration %q: %s", e.Setting, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// Output is one UDP output channel configured in cfg.txt
type Output struct {
	Mode int
	IP   string
	Port int
	Opts string
}

// Config is the OutSim/OutGauge part of an LFS installation configuration
type Config struct {
	Path     string
	OutSim   Output
	OutGauge Output
}

// LayoutDir is the directory LFS reads layouts from
func (c *Config) LayoutDir() string {
	return LayoutDir(c.Path)
}

func LayoutDir(lfsPath string) string {
	return filepath.Join(lfsPath, filepath.FromSlash(layoutDir))
}

// LayoutFile is the path of the layout file named name
func (c *Config) LayoutFile(name string) string {
	return filepath.Join(c.LayoutDir(), name+".lyt")
}

// LoadConfig reads <lfsPath>/cfg.txt and checks the bridge can receive telemetry with it.
func LoadConfig(lfsPath string) (*Config, error) {
	f, err := os.Open(filepath.Join(lfsPath, cfgFile))
	if err != nil {
		return nil, fmt.Errorf("unable to open LFS configuration: %w", err)
	}
	defer f.Close()

	cfg, err := ParseConfig(f)
	if err != nil {
		return nil, err
	}
	cfg.Path = lfsPath
	return cfg, nil
}

// ParseConfig reads the OutSim and OutGauge settings from a cfg.txt content. Settings are case-insensitive.
func ParseConfig(r io.Reader) (*Config, error) {
	settings := map[string]map[string]string{
		"outsim":   {},
		"outgauge": {},
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(strings.ToLower(scanner.Text()))
		if len(fields) != 3 {
			continue
		}
		if channel, ok := settings[fields[0]]; ok {
			channel[fields[1]] = fields[2]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("unable to read LFS configuration: %w", err)
	}

	outSim, err := parseOutput("OutSim", settings["outsim"])
	if err != nil {
		return nil, err
	}
	outGauge, err := parseOutput("OutGauge", settings["outgauge"])
	if err != nil {
		return nil, err
	}

	cfg := Config{OutSim: *outSim, OutGauge: *outGauge}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseOutput(channel string, settings map[string]string) (*Output, error) {
	var out Output
	var err error

	if out.Mode, err = atoi(channel+" Mode", settings["mode"]); err != nil {
		return nil, err
	}
	if out.Port, err = atoi(channel+" Port", settings["port"]); err != nil {
		return nil, err
	}
	out.IP = settings["ip"]
	out.Opts = settings["opts"]
	return &out, nil
}

func atoi(setting, value string) (int, error) {
	if value == "" {
		return 0, &ConfigError{Setting: setting, Reason: "missing"}
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, &ConfigError{Setting: setting, Reason: fmt.Sprintf("not a number: %v", value)}
	}
	return v, nil
}

func (c *Config) validate() error {
	if c.OutSim.Mode != 1 {
		return &ConfigError{Setting: "OutSim Mode", Reason: "must be set to 1"}
	}
	if c.OutGauge.Mode != 1 {
		return &ConfigError{Setting: "OutGauge Mode", Reason: "must be set to 1"}
	}
	if c.OutSim.Opts != outSimOpts {
		return &ConfigError{Setting: "OutSim Opts", Reason: fmt.Sprintf("must be set to %v", outSimOpts)}
	}
	if c.OutSim.Port <= 0 || c.OutGauge.Port <= 0 || c.OutSim.Port == c.OutGauge.Port {
		return &ConfigError{
			Setting: "Port",
			Reason:  fmt.Sprintf("ports must be unique and not 0, outsim: %d, outgauge: %d", c.OutSim.Port, c.OutGauge.Port),
		}
	}
	if c.OutSim.IP != c.OutGauge.IP {
		return &ConfigError{
			Setting: "IP",
			Reason:  fmt.Sprintf("outsim and outgauge addresses must be the same, outsim: %v, outgauge: %v", c.OutSim.IP, c.OutGauge.IP),
		}
	}
	return nil
}
