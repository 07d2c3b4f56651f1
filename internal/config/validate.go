package config

import (
	"fmt"
	"strings"

	"github.com/rileyhilliard/pb/internal/errors"
)

// LogLevels are the accepted values for log_level.
var LogLevels = []string{"debug", "info", "warn", "error"}

// Validate checks the config for errors and returns structured error messages.
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Exe) == "" {
		return errors.New(errors.ErrConfig,
			"No benchmark executable configured",
			"Pass --exe <path> or set 'exe' in .pb.yaml")
	}

	if cfg.Repetitions < 1 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("repetitions must be at least 1, got %d", cfg.Repetitions),
			"Try -n 3")
	}

	if strings.TrimSpace(cfg.Out) == "" {
		return errors.New(errors.ErrConfig,
			"No output directory configured",
			"Pass --out <dir> or set 'out' in .pb.yaml")
	}

	if cfg.MaxParallel < 0 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("max_parallel can't be negative, got %d", cfg.MaxParallel),
			"Use 0 to run every host at once")
	}

	if cfg.ConnectTimeout <= 0 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("connect_timeout must be positive, got %s", cfg.ConnectTimeout),
			"Use a duration like 10s or 1m")
	}

	if !validLogLevel(cfg.LogLevel) {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Unknown log_level '%s'", cfg.LogLevel),
			"Use one of: "+strings.Join(LogLevels, ", "))
	}

	for _, h := range cfg.Hosts {
		if err := validateHost(h); err != nil {
			return err
		}
	}

	if err := validateBench(cfg.Bench); err != nil {
		return err
	}
	return validateLock(cfg.Lock)
}

// ValidateHosts checks the hosts that will actually be run.
func ValidateHosts(hosts []string) error {
	if len(hosts) == 0 {
		return errors.New(errors.ErrConfig,
			"No hosts to benchmark",
			"Pass hosts as arguments (pb run host1 host2) or list them under 'hosts' in .pb.yaml")
	}
	for _, h := range hosts {
		if err := validateHost(h); err != nil {
			return err
		}
	}
	return nil
}

func validateHost(host string) error {
	if strings.TrimSpace(host) == "" {
		return errors.New(errors.ErrConfig,
			"Empty host name",
			"Remove the blank entry from 'hosts'")
	}
	if strings.ContainsAny(host, " \t\n'\"") {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Host '%s' has whitespace or quotes in it", host),
			"Use a plain SSH destination like user@host or host:2222")
	}
	return nil
}

func validateBench(b BenchConfig) error {
	if len(b.Args) == 0 {
		return errors.New(errors.ErrConfig,
			"bench.args is empty",
			"Set it to the argv to run, e.g. [\"./bench\", \"--benchmark_out=${RESULT_FILE}\"]")
	}

	rf := b.ResultFile
	if rf == "" || rf == "." || rf == ".." || strings.ContainsAny(rf, `/\`) {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("bench.result_file '%s' must be a plain file name", rf),
			"It's read from the scratch directory, e.g. out.csv")
	}

	if unknown := unknownVars(b.Args); len(unknown) > 0 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("bench.args uses unknown variable(s): %s", strings.Join(unknown, ", ")),
			fmt.Sprintf("Available: ${%s}, ${%s}", VarRepetitions, VarResultFile))
	}
	return nil
}

func validateLock(l LockConfig) error {
	if !l.Enabled {
		return nil
	}
	if !strings.HasPrefix(l.Dir, "/") {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("lock.dir '%s' must be an absolute path on the hosts", l.Dir),
			"The default is /tmp")
	}
	if l.Timeout < 0 || l.Stale < 0 {
		return errors.New(errors.ErrConfig,
			"lock.timeout and lock.stale can't be negative",
			"Use 0 to fail at once (timeout) or never expire (stale)")
	}
	return nil
}

func validLogLevel(level string) bool {
	for _, l := range LogLevels {
		if strings.EqualFold(level, l) {
			return true
		}
	}
	return false
}
