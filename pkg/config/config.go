// Package config provides configuration types, defaults, and loading for
// meshql.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/chazu/meshql/pkg/kernel"
	"github.com/chazu/meshql/pkg/tracing"
)

// ErrInvalid is returned by Validate for out-of-range settings.
var ErrInvalid = errors.New("config: invalid setting")

// Config holds the settings shared by the CLI and the script engine.
type Config struct {
	// Level is the finest shape kind registered when a model is loaded.
	Level          string            `mapstructure:"level" yaml:"level"`
	Transfinite    TransfiniteConfig `mapstructure:"transfinite" yaml:"transfinite"`
	RecombineAngle float64           `mapstructure:"recombine_angle" yaml:"recombine_angle"`
	// EvalTimeout bounds one script evaluation.
	EvalTimeout time.Duration  `mapstructure:"eval_timeout" yaml:"eval_timeout"`
	Log         LogConfig      `mapstructure:"log" yaml:"log"`
	Generate    GenerateConfig `mapstructure:"generate" yaml:"generate"`
	Tracing     tracing.Config `mapstructure:"tracing" yaml:"tracing"`
}

// TransfiniteConfig holds the node budget used by automatic transfinite
// setup when a script does not pass one.
type TransfiniteConfig struct {
	MaxNodes int `mapstructure:"max_nodes" yaml:"max_nodes"`
	MinNodes int `mapstructure:"min_nodes" yaml:"min_nodes"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// GenerateConfig holds generation defaults.
type GenerateConfig struct {
	Dim int `mapstructure:"dim" yaml:"dim"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Level: kernel.KindVertex.String(),
		Transfinite: TransfiniteConfig{
			MaxNodes: 50,
			MinNodes: 1,
		},
		RecombineAngle: 45,
		EvalTimeout:    30 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Generate: GenerateConfig{Dim: 3},
		Tracing: tracing.Config{
			Enabled:     false,
			Exporter:    "stdout",
			ServiceName: "meshql",
		},
	}
}

// SetDefaults registers every default with v.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("level", d.Level)
	v.SetDefault("transfinite.max_nodes", d.Transfinite.MaxNodes)
	v.SetDefault("transfinite.min_nodes", d.Transfinite.MinNodes)
	v.SetDefault("recombine_angle", d.RecombineAngle)
	v.SetDefault("eval_timeout", d.EvalTimeout)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("generate.dim", d.Generate.Dim)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
}

// Load reads the YAML file at path over the defaults. An empty path yields
// the defaults.
func Load(path string) (Config, error) {
	v := viper.New()
	SetDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}
	return Unmarshal(v)
}

// Unmarshal decodes and validates the settings held by v.
func Unmarshal(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if _, err := c.ShapeLevel(); err != nil {
		return fmt.Errorf("%w: level: %v", ErrInvalid, err)
	}
	if c.Transfinite.MaxNodes < 1 {
		return fmt.Errorf("%w: transfinite.max_nodes must be at least 1, got %d", ErrInvalid, c.Transfinite.MaxNodes)
	}
	if c.Transfinite.MinNodes < 0 || c.Transfinite.MinNodes > c.Transfinite.MaxNodes {
		return fmt.Errorf("%w: transfinite.min_nodes must be in [0, %d], got %d",
			ErrInvalid, c.Transfinite.MaxNodes, c.Transfinite.MinNodes)
	}
	if c.RecombineAngle <= 0 || c.RecombineAngle > 90 {
		return fmt.Errorf("%w: recombine_angle must be in (0, 90], got %g", ErrInvalid, c.RecombineAngle)
	}
	if c.EvalTimeout <= 0 {
		return fmt.Errorf("%w: eval_timeout must be positive, got %s", ErrInvalid, c.EvalTimeout)
	}
	if c.Generate.Dim < 1 || c.Generate.Dim > 3 {
		return fmt.Errorf("%w: generate.dim must be 1, 2 or 3, got %d", ErrInvalid, c.Generate.Dim)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format must be text or json, got %q", ErrInvalid, c.Log.Format)
	}
	return nil
}

// ShapeLevel parses Level.
func (c Config) ShapeLevel() (kernel.ShapeKind, error) {
	return kernel.ParseShapeKind(c.Level)
}

// WriteDefault writes the default configuration to path, creating parent
// directories. An existing file is left untouched.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config: %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	d := Defaults()
	var doc yaml.Node
	if err := doc.Encode(d); err != nil {
		return fmt.Errorf("building config node: %w", err)
	}
	// Durations encode as nanoseconds; write them the way viper reads them.
	for i := 0; i < len(doc.Content)-1; i += 2 {
		if doc.Content[i].Value == "eval_timeout" {
			doc.Content[i+1] = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: d.EvalTimeout.String()}
		}
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
