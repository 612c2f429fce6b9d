package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// FileName is the optional per-project settings file.
const FileName = "chainenv.yaml"

// NetworkFileName is written into the workspace for truffle-config.js to read.
const NetworkFileName = "chainenv-network.json"

// Defaults applied by Load to fields left unset.
const (
	DefaultBuildDir      = "build/contracts"
	DefaultContractsDir  = "contracts"
	DefaultMigrationsDir = "migrations"
	DefaultGas           = 6721975
	DefaultHost          = "127.0.0.1"
)

// Network is a deployment target entry.
type Network struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	NetworkID uint64 `json:"network_id"`
	From      string `json:"from,omitempty"`
	Gas       uint64 `json:"gas,omitempty"`
}

// Solc holds compiler settings passed through to truffle.
type Solc struct {
	Version   string `yaml:"version" json:"version,omitempty"`
	Optimizer bool   `yaml:"optimizer" json:"optimizer"`
	Runs      int    `yaml:"runs" json:"runs,omitempty"`
}

// Config is the configuration of one staged project.
type Config struct {
	// Dir is the workspace the project was loaded from.
	Dir     string `yaml:"-"`
	// Network names the entry in Networks that compile and deploy target.
	Network string `yaml:"-"`

	BuildDir      string `yaml:"build_directory"`
	ContractsDir  string `yaml:"contracts_directory"`
	MigrationsDir string `yaml:"migrations_directory"`
	Gas           uint64 `yaml:"gas"`
	GasPrice      uint64 `yaml:"gas_price"`
	Solc          Solc   `yaml:"solc"`

	Networks map[string]Network `yaml:"-"`

	// ImportPaths are workspace-relative files or directories staged next to
	// the project whose Solidity sources the contracts may import, such as
	// node_modules/openzeppelin-solidity.
	ImportPaths []string `yaml:"-"`
}

// Load reads FileName from dir when it exists and applies defaults. A missing
// file yields the default configuration. Unknown keys are rejected.
func Load(dir string) (*Config, error) {
	if dir == "" {
		return nil, errors.New("load project config: dir must not be empty")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("load project config: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("load project config: %s is not a directory", dir)
	}

	cfg := &Config{}
	path := filepath.Join(dir, FileName)
	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("open %s: %w", path, err)
	default:
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.Dir = dir
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.BuildDir == "" {
		c.BuildDir = DefaultBuildDir
	}
	if c.ContractsDir == "" {
		c.ContractsDir = DefaultContractsDir
	}
	if c.MigrationsDir == "" {
		c.MigrationsDir = DefaultMigrationsDir
	}
	if c.Gas == 0 {
		c.Gas = DefaultGas
	}
	if c.Networks == nil {
		c.Networks = make(map[string]Network)
	}
}

// Validate checks that directory settings stay inside the project.
func (c *Config) Validate() error {
	var errs []error
	for name, p := range map[string]string{
		"build_directory":      c.BuildDir,
		"contracts_directory":  c.ContractsDir,
		"migrations_directory": c.MigrationsDir,
	} {
		if !filepath.IsLocal(p) {
			errs = append(errs, fmt.Errorf("%s %q must be a relative path inside the project", name, p))
		}
	}
	if c.Solc.Runs < 0 {
		errs = append(errs, fmt.Errorf("solc.runs must not be negative, got %d", c.Solc.Runs))
	}
	// Map iteration order is random; keep messages stable.
	sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
	return errors.Join(errs...)
}

// Bind selects name as the target network.
func (c *Config) Bind(name string) {
	c.Network = name
}

// SetNetwork records the entry for name.
func (c *Config) SetNetwork(name string, n Network) {
	if c.Networks == nil {
		c.Networks = make(map[string]Network)
	}
	c.Networks[name] = n
}

// Target returns the entry of the bound network.
func (c *Config) Target() (Network, bool) {
	n, ok := c.Networks[c.Network]
	return n, ok
}

// BuildPath returns the absolute build directory.
func (c *Config) BuildPath() string {
	return filepath.Join(c.Dir, c.BuildDir)
}

// networkFile is the JSON document consumed by truffle-config.js.
type networkFile struct {
	Network       string `json:"network"`
	Host          string `json:"host"`
	Port          int    `json:"port"`
	NetworkID     uint64 `json:"network_id"`
	From          string `json:"from,omitempty"`
	Gas           uint64 `json:"gas"`
	GasPrice      uint64 `json:"gas_price,omitempty"`
	BuildDir      string `json:"contracts_build_directory"`
	ContractsDir  string `json:"contracts_directory"`
	MigrationsDir string `json:"migrations_directory"`
	Solc          Solc   `json:"solc"`
}

// WriteNetworkFile writes NetworkFileName into the project directory describing
// the bound network and returns its path.
func (c *Config) WriteNetworkFile() (string, error) {
	n, ok := c.Target()
	if !ok {
		return "", fmt.Errorf("write network file: network %q not configured", c.Network)
	}
	gas := n.Gas
	if gas == 0 {
		gas = c.Gas
	}
	doc := networkFile{
		Network:       c.Network,
		Host:          n.Host,
		Port:          n.Port,
		NetworkID:     n.NetworkID,
		From:          n.From,
		Gas:           gas,
		GasPrice:      c.GasPrice,
		BuildDir:      c.BuildPath(),
		ContractsDir:  filepath.Join(c.Dir, c.ContractsDir),
		MigrationsDir: filepath.Join(c.Dir, c.MigrationsDir),
		Solc:          c.Solc,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal network file: %w", err)
	}
	path := filepath.Join(c.Dir, NetworkFileName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write network file: %w", err)
	}
	return path, nil
}
