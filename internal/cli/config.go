package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"github.com/organic-programming/calculate/internal/transport"
)

const (
	// DefaultConfigFile is read from the working directory when present.
	DefaultConfigFile = ".calculaterc"

	// ConfigEnv names an explicit config file.
	ConfigEnv = "CALCULATE_CONFIG"

	defaultTimeout = 10 * time.Second

	logFileMaxSizeMB  = 10
	logFileMaxBackups = 3
)

// Config is the optional .calculaterc file. Command-line flags take
// precedence over every key.
type Config struct {
	Format   Format        `yaml:"format"`
	Verbose  bool          `yaml:"verbose"`
	Timeout  time.Duration `yaml:"timeout"`
	LogLevel string        `yaml:"log_level"`
	LogFile  string        `yaml:"log_file"`
	Serve    ServeConfig   `yaml:"serve"`
}

// ServeConfig holds defaults for `calculate serve`.
type ServeConfig struct {
	Listen     string `yaml:"listen"`
	Reflection bool   `yaml:"reflection"`
}

// DefaultConfig is the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		Format:   FormatText,
		Timeout:  defaultTimeout,
		LogLevel: "info",
		Serve: ServeConfig{
			Listen:     transport.DefaultURI,
			Reflection: true,
		},
	}
}

// LoadConfig reads the config file at path. An empty path falls back to
// $CALCULATE_CONFIG and then to .calculaterc; only the implicit default
// file may be absent.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	explicit := true
	if path == "" {
		path = os.Getenv(ConfigEnv)
	}
	if path == "" {
		path = DefaultConfigFile
		explicit = false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	format, err := ParseFormat(string(c.Format))
	if err != nil {
		return err
	}
	c.Format = format

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if strings.TrimSpace(c.Serve.Listen) == "" {
		c.Serve.Listen = transport.DefaultURI
	}
	return nil
}

func parseLogLevel(value string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return 0, fmt.Errorf("invalid log_level %q", value)
	}
	return level, nil
}

// Logger builds the structured logger used by the serving facet.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLogLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// LogOutput returns where serving logs go: a size-rotated file when
// log_file is set, else fallback. The returned func closes the file.
func (c Config) LogOutput(fallback io.Writer) (io.Writer, func() error) {
	if strings.TrimSpace(c.LogFile) == "" {
		return fallback, func() error { return nil }
	}
	l := &lumberjack.Logger{
		Filename:   c.LogFile,
		MaxSize:    logFileMaxSizeMB,
		MaxBackups: logFileMaxBackups,
	}
	return l, l.Close
}
