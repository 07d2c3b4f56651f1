package config

import "time"

// Config represents the .pb.yaml configuration file.
type Config struct {
	// Hosts used when none are given on the command line.
	Hosts []string `yaml:"hosts" mapstructure:"hosts"`

	// Exe is the local benchmark executable staged to every host.
	Exe string `yaml:"exe" mapstructure:"exe"`

	// Repetitions is passed to the benchmark as ${REPETITIONS}.
	Repetitions int `yaml:"repetitions" mapstructure:"repetitions"`

	// Out is the local output directory for hosts.csv and bench-<host>.csv.
	Out string `yaml:"out" mapstructure:"out"`

	// Log is the verbose log file. The console gets LogLevel and up.
	Log      string `yaml:"log" mapstructure:"log"`
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`

	// MaxParallel caps concurrently running hosts. 0 means no cap.
	MaxParallel int `yaml:"max_parallel" mapstructure:"max_parallel"`

	ConnectTimeout        time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
	StrictHostKeyChecking bool          `yaml:"strict_host_key_checking" mapstructure:"strict_host_key_checking"`

	// Manifest controls writing run.yaml into Out.
	Manifest bool `yaml:"manifest" mapstructure:"manifest"`

	Bench BenchConfig `yaml:"bench" mapstructure:"bench"`
	Lock  LockConfig  `yaml:"lock" mapstructure:"lock"`
}

// BenchConfig describes how the staged executable is invoked.
type BenchConfig struct {
	// Args is the argv run inside the scratch directory. The executable is
	// staged as ./bench. ${REPETITIONS} and ${RESULT_FILE} are substituted.
	Args []string `yaml:"args" mapstructure:"args"`

	// ResultFile is the CSV the benchmark writes, relative to the scratch directory.
	ResultFile string `yaml:"result_file" mapstructure:"result_file"`
}

// LockConfig controls the per-host benchmark lock that keeps two runs from
// benchmarking the same host at once.
type LockConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir     string        `yaml:"dir" mapstructure:"dir"`         // Parent directory on the host
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"` // Wait for another holder; 0 fails at once
	Stale   time.Duration `yaml:"stale" mapstructure:"stale"`     // Remove holders older than this; 0 never
}

// DefaultBenchArgs runs a Google Benchmark binary with CSV output.
var DefaultBenchArgs = []string{
	"./bench",
	"--benchmark_out_format=csv",
	"--benchmark_out=${RESULT_FILE}",
	"--benchmark_repetitions=${REPETITIONS}",
}

// DefaultConfig returns a Config with the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Exe:                   "bench_syscalls",
		Repetitions:           3,
		Out:                   "out",
		Log:                   "pb.log",
		LogLevel:              "info",
		ConnectTimeout:        10 * time.Second,
		StrictHostKeyChecking: true,
		Manifest:              true,
		Bench: BenchConfig{
			Args:       append([]string(nil), DefaultBenchArgs...),
			ResultFile: "out.csv",
		},
		Lock: LockConfig{
			Enabled: true,
			Dir:     "/tmp",
			Timeout: 10 * time.Minute,
			Stale:   6 * time.Hour,
		},
	}
}
