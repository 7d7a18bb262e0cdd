// Package config assembles scan options from defaults, an optional config
// file and command line flags, and turns them into a portscan.ScanConfig.
package config

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/glockie029/portsweep/internal/portscan"
	"github.com/glockie029/portsweep/internal/resolver"
)

var (
	// ErrInvalid marks any configuration problem found before scanning.
	ErrInvalid = errors.New("invalid configuration")

	// ErrProtocolConflict is returned when TCP and UDP are both requested.
	ErrProtocolConflict = errors.Wrap(ErrInvalid, "tcp and udp cannot both be selected, choose one")
)

const (
	DefaultStartPort   = 1
	DefaultEndPort     = 1000
	DefaultTimeout     = time.Second
	DefaultConcurrency = 500
)

// Options is the flattened view of every user facing setting.
// EndPort is inclusive here; ScanConfig converts it to an exclusive bound.
type Options struct {
	Target      string
	Mode        string
	Protocol    string
	TCP         bool
	UDP         bool
	StartPort   int
	EndPort     int
	Timeout     time.Duration
	Concurrency int
	Proxy       string
	JSON        bool
	Verbose     bool
	LogFile     string
	NoProgress  bool
}

// Default returns the options used when nothing else is specified.
func Default() Options {
	return Options{
		Mode:        string(resolver.ModeAuto),
		Protocol:    "tcp",
		StartPort:   DefaultStartPort,
		EndPort:     DefaultEndPort,
		Timeout:     DefaultTimeout,
		Concurrency: DefaultConcurrency,
	}
}

// fileOptions is the on-disk shape. Pointers distinguish "unset" from zero.
type fileOptions struct {
	Target      *string `yaml:"target" json:"target"`
	Mode        *string `yaml:"mode" json:"mode"`
	Protocol    *string `yaml:"protocol" json:"protocol"`
	StartPort   *int    `yaml:"start_port" json:"start_port"`
	EndPort     *int    `yaml:"end_port" json:"end_port"`
	Timeout     *string `yaml:"timeout" json:"timeout"`
	Concurrency *int    `yaml:"concurrency" json:"concurrency"`
	Proxy       *string `yaml:"proxy" json:"proxy"`
	LogFile     *string `yaml:"log_file" json:"log_file"`
}

// LoadFile overlays the settings found in path onto o.
// YAML is used for .yaml/.yml, JSON with comments for .json/.jsonc.
func LoadFile(path string, o *Options) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(ErrInvalid, "read config file: %v", err)
	}

	var fo fileOptions
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&fo); err != nil && !errors.Is(err, io.EOF) {
			return errors.Wrapf(ErrInvalid, "parse %s: %v", path, err)
		}
	case ".json", ".jsonc":
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&fo); err != nil {
			return errors.Wrapf(ErrInvalid, "parse %s: %v", path, err)
		}
	default:
		return errors.Wrapf(ErrInvalid, "unsupported config file extension %q (valid: .yaml, .yml, .json, .jsonc)", ext)
	}

	return fo.apply(o)
}

func (fo fileOptions) apply(o *Options) error {
	if fo.Target != nil {
		o.Target = *fo.Target
	}
	if fo.Mode != nil {
		o.Mode = *fo.Mode
	}
	if fo.Protocol != nil {
		o.Protocol = *fo.Protocol
	}
	if fo.StartPort != nil {
		o.StartPort = *fo.StartPort
	}
	if fo.EndPort != nil {
		o.EndPort = *fo.EndPort
	}
	if fo.Timeout != nil {
		d, err := ParseTimeout(*fo.Timeout)
		if err != nil {
			return err
		}
		o.Timeout = d
	}
	if fo.Concurrency != nil {
		o.Concurrency = *fo.Concurrency
	}
	if fo.Proxy != nil {
		o.Proxy = *fo.Proxy
	}
	if fo.LogFile != nil {
		o.LogFile = *fo.LogFile
	}
	return nil
}

// ParseTimeout accepts a Go duration ("1500ms") or a bare number of seconds ("2").
func ParseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalid, "invalid timeout %q", s)
	}
	return d, nil
}

// ResolvedProtocol folds the legacy --tcp/--udp switches and the protocol
// setting into a single value. Both switches at once is an error.
func (o Options) ResolvedProtocol() (portscan.Protocol, error) {
	switch {
	case o.TCP && o.UDP:
		return 0, ErrProtocolConflict
	case o.UDP:
		return portscan.ProtocolUDP, nil
	case o.TCP:
		return portscan.ProtocolTCP, nil
	}
	if o.Protocol == "" {
		return portscan.ProtocolTCP, nil
	}
	p, err := portscan.ParseProtocol(o.Protocol)
	if err != nil {
		return 0, errors.Wrap(ErrInvalid, err.Error())
	}
	return p, nil
}

// Validate checks everything that can be checked before resolving the target.
func (o Options) Validate() error {
	if strings.TrimSpace(o.Target) == "" {
		return errors.Wrap(ErrInvalid, "target is required")
	}
	if _, err := resolver.ParseMode(o.Mode); err != nil {
		return errors.Wrap(ErrInvalid, err.Error())
	}
	proto, err := o.ResolvedProtocol()
	if err != nil {
		return err
	}
	if o.Timeout <= 0 {
		return errors.Wrapf(ErrInvalid, "timeout must be positive, got %s", o.Timeout)
	}
	if o.StartPort < 1 || o.StartPort > portscan.MaxPort {
		return errors.Wrapf(ErrInvalid, "start port %d out of range (1-%d)", o.StartPort, portscan.MaxPort)
	}
	if o.EndPort < o.StartPort-1 || o.EndPort > portscan.MaxPort {
		return errors.Wrapf(ErrInvalid, "end port %d out of range (%d-%d)", o.EndPort, o.StartPort, portscan.MaxPort)
	}
	if o.Concurrency < 0 {
		return errors.Wrapf(ErrInvalid, "concurrency must not be negative, got %d", o.Concurrency)
	}
	if o.Proxy != "" && proto == portscan.ProtocolUDP {
		return errors.Wrap(ErrInvalid, "proxies only carry tcp, udp scans cannot use --proxy")
	}
	return nil
}

// ScanConfig validates o and builds the core config for the resolved address.
func (o Options) ScanConfig(address string) (portscan.ScanConfig, error) {
	if err := o.Validate(); err != nil {
		return portscan.ScanConfig{}, err
	}
	proto, _ := o.ResolvedProtocol()
	return portscan.ScanConfig{
		Target:      address,
		PortStart:   o.StartPort,
		PortEnd:     o.EndPort + 1,
		Protocol:    proto,
		Timeout:     o.Timeout,
		Concurrency: o.Concurrency,
	}, nil
}
