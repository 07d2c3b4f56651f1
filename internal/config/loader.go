package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rileyhilliard/pb/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the default config file name.
	ConfigFileName = ".pb.yaml"
	// GlobalConfigDir is the directory for global config.
	GlobalConfigDir = ".config/pb"
	// GlobalConfigFile is the global config file name.
	GlobalConfigFile = "config.yaml"
	// EnvPrefix prefixes environment overrides, e.g. PB_REPETITIONS=5.
	EnvPrefix = "PB"
)

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"exe":             "exe",
	"repetitions":     "repetitions",
	"out":             "out",
	"log":             "log",
	"log-level":       "log_level",
	"max-parallel":    "max_parallel",
	"connect-timeout": "connect_timeout",
	"manifest":        "manifest",
}

// Find locates the config file using the search order:
// 1. Explicit path (from --config flag)
// 2. .pb.yaml in current directory
// 3. ~/.config/pb/config.yaml (global defaults)
//
// Returns the path to the config file, or empty string if not found.
func Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			if os.IsNotExist(err) {
				return "", errors.WrapWithCode(err, errors.ErrConfig,
					"Specified config file not found: "+explicit,
					"Check the path is correct")
			}
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot access config file: "+explicit,
				"Check file permissions")
		}
		return explicit, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot determine current directory",
			"Check directory permissions")
	}
	if local := filepath.Join(cwd, ConfigFileName); fileExists(local) {
		return local, nil
	}

	if home, err := os.UserHomeDir(); err == nil {
		if global := filepath.Join(home, GlobalConfigDir, GlobalConfigFile); fileExists(global) {
			return global, nil
		}
	}

	return "", nil
}

// Load builds the effective config. Precedence, highest first: flags the
// user set, PB_* environment variables, the config file at path (skipped
// when path is empty), built-in defaults.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if os.IsNotExist(err) {
				return nil, errors.WrapWithCode(err, errors.ErrConfig,
					"Config file not found: "+path,
					"Create it, or drop --config to use the defaults")
			}
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to read config file "+path,
				"Check the file is valid YAML")
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errors.WrapWithCode(err, errors.ErrConfig, "Couldn't bind --"+name, "")
				}
			}
		}
	}

	// Decode into a zero Config: defaults come from viper, and decoding
	// over a prefilled slice would keep stale trailing elements.
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config format",
			"Check the YAML syntax in "+path)
	}

	cfg.Exe = ExpandTilde(cfg.Exe)
	cfg.Out = ExpandTilde(cfg.Out)
	cfg.Log = ExpandTilde(cfg.Log)
	return &cfg, nil
}

// setDefaults registers every key so environment overrides and Unmarshal
// see the full schema.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("hosts", []string{})
	v.SetDefault("exe", d.Exe)
	v.SetDefault("repetitions", d.Repetitions)
	v.SetDefault("out", d.Out)
	v.SetDefault("log", d.Log)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("max_parallel", d.MaxParallel)
	v.SetDefault("connect_timeout", d.ConnectTimeout.String())
	v.SetDefault("strict_host_key_checking", d.StrictHostKeyChecking)
	v.SetDefault("manifest", d.Manifest)
	v.SetDefault("bench.args", d.Bench.Args)
	v.SetDefault("bench.result_file", d.Bench.ResultFile)
	v.SetDefault("lock.enabled", d.Lock.Enabled)
	v.SetDefault("lock.dir", d.Lock.Dir)
	v.SetDefault("lock.timeout", d.Lock.Timeout.String())
	v.SetDefault("lock.stale", d.Lock.Stale.String())
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
