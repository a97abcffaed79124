// Package config loads knolrecall settings from flags, a yaml file and the
// environment.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes environment overrides, e.g. KNOLRECALL_DB_PATH.
const EnvPrefix = "KNOLRECALL_"

type Config struct {
	DB     DBConfig     `koanf:"db"`
	Server ServerConfig `koanf:"server"`
	Log    LogConfig    `koanf:"log"`
	Repos  ReposConfig  `koanf:"repos"`
}

type DBConfig struct {
	Path string `koanf:"path" validate:"required"`
}

type ServerConfig struct {
	Addr string `koanf:"addr" validate:"required,hostname_port"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

type ReposConfig struct {
	Dir string `koanf:"dir" validate:"required"`
}

// RegisterFlags adds the configuration flags, with their defaults, to fs.
// Flag names use dashes where config keys use dots: --db-path sets db.path.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a yaml config file")
	fs.String("db-path", "knolrecall.db", "Path to the SQLite database file")
	fs.String("server-addr", "localhost:8080", "Address the HTTP server listens on")
	fs.String("log-level", "info", "Log level: debug, info, warn or error")
	fs.String("log-format", "text", "Log format: text or json")
	fs.String("repos-dir", "repos", "Directory holding checkouts of git decks")
}

// Load builds the configuration. Precedence, lowest first: flag defaults,
// the yaml file named by --config, KNOLRECALL_* variables, flags set on the
// command line.
func Load(fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path, _ := fs.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	envToKey := func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envToKey), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	// Flags left at their default only fill keys nothing else has set.
	if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, flagKey(fs)), nil); err != nil {
		return nil, fmt.Errorf("error loading flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// flagKeys maps configuration flags to config keys. Other flags on the
// same set (actions like --sync) are not configuration.
var flagKeys = map[string]string{
	"db-path":     "db.path",
	"server-addr": "server.addr",
	"log-level":   "log.level",
	"log-format":  "log.format",
	"repos-dir":   "repos.dir",
}

func flagKey(fs *pflag.FlagSet) func(*pflag.Flag) (string, interface{}) {
	return func(f *pflag.Flag) (string, interface{}) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	}
}

// NewLogger builds the slog logger described by cfg.
func NewLogger(cfg *Config, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
