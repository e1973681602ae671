// Package config builds the immutable configuration value threaded
// explicitly into every component constructor (cmd/seqdag assembles it
// once at process start; nothing here is a package-level singleton),
// grounded on node.Config's default-then-override shape.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Config is seqdag's full tunable surface: the SEQDAG_* environment
// variables plus the on-disk config.toml fields they mirror.
type Config struct {
	DataDir           string  `toml:"data_dir"`
	Threads           int     `toml:"threads"`
	CompressionLevel  int     `toml:"compression_level"`
	FilterFPRate      float64 `toml:"filter_fp_rate"`
	SyncEndpoint      string  `toml:"sync_endpoint"`
	FetchConcurrency  int     `toml:"fetch_concurrency"`
	StrictAlphabet    bool    `toml:"strict_alphabet"`
	MerkleFanout      int     `toml:"merkle_fanout"`
	ChunkSoftSizeMB   int     `toml:"chunk_soft_size_mb"`
	ChunkHardCapCount int     `toml:"chunk_hard_cap_count"`
}

// DefaultDataDir mirrors node.DefaultDataDir: ~/.seqdag, falling back to a
// relative path if the home directory can't be resolved.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".seqdag"
	}
	return filepath.Join(home, ".seqdag")
}

// Default returns the baseline configuration before any env or file
// overlay is applied.
func Default() Config {
	return Config{
		DataDir:           DefaultDataDir(),
		Threads:           runtime.NumCPU(),
		CompressionLevel:  3,
		FilterFPRate:      0.01,
		SyncEndpoint:      "",
		FetchConcurrency:  8,
		StrictAlphabet:    false,
		MerkleFanout:      16,
		ChunkSoftSizeMB:   64,
		ChunkHardCapCount: 50_000,
	}
}

// envOverlay is the SEQDAG_* environment variable names and how each
// applies to a Config.
var envOverlay = []struct {
	name  string
	apply func(*Config, string) error
}{
	{"SEQDAG_DATA_DIR", func(c *Config, v string) error { c.DataDir = v; return nil }},
	{"SEQDAG_THREADS", func(c *Config, v string) error { return setInt(&c.Threads, v) }},
	{"SEQDAG_COMPRESSION_LEVEL", func(c *Config, v string) error { return setInt(&c.CompressionLevel, v) }},
	{"SEQDAG_FILTER_FP_RATE", func(c *Config, v string) error { return setFloat(&c.FilterFPRate, v) }},
	{"SEQDAG_SYNC_ENDPOINT", func(c *Config, v string) error { c.SyncEndpoint = v; return nil }},
	{"SEQDAG_FETCH_CONCURRENCY", func(c *Config, v string) error { return setInt(&c.FetchConcurrency, v) }},
}

// FromEnv overlays cfg with every SEQDAG_* variable that is set. Unset
// variables leave the prior value untouched.
func FromEnv(cfg Config) (Config, error) {
	for _, e := range envOverlay {
		v, ok := os.LookupEnv(e.name)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := e.apply(&cfg, v); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", e.name, err)
		}
	}
	return cfg, nil
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, v string) error {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return err
	}
	*dst = f
	return nil
}

// Load reads config.toml at path (layered on top of cfg), returning cfg
// unchanged if the file does not exist. A present but malformed file is an
// error: a corrupt config should not silently fall back to defaults.
func Load(path string, cfg Config) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as config.toml, for `seqdag init` to seed a base
// directory with its resolved configuration.
func Save(path string, cfg Config) error {
	raw, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(path, raw, 0o600)
}

// Validate rejects configurations that would make the rest of the system
// misbehave (mirrors node.ValidateConfig's shape: required fields, bounded
// ranges, not protocol-level parsing).
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("config: data_dir is required")
	}
	if cfg.Threads <= 0 {
		return fmt.Errorf("config: threads must be > 0")
	}
	if cfg.FilterFPRate <= 0 || cfg.FilterFPRate >= 1 {
		return fmt.Errorf("config: filter_fp_rate must be in (0,1)")
	}
	if cfg.FetchConcurrency <= 0 {
		return fmt.Errorf("config: fetch_concurrency must be > 0")
	}
	if cfg.MerkleFanout < 2 {
		return fmt.Errorf("config: merkle_fanout must be >= 2")
	}
	if cfg.ChunkSoftSizeMB <= 0 {
		return fmt.Errorf("config: chunk_soft_size_mb must be > 0")
	}
	if cfg.ChunkHardCapCount <= 0 {
		return fmt.Errorf("config: chunk_hard_cap_count must be > 0")
	}
	return nil
}
