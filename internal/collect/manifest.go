package collect

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rileyhilliard/pb/internal/errors"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the run description written next to hosts.csv.
const ManifestFile = "run.yaml"

// Manifest records what was run where, for reproducing or auditing a run.
type Manifest struct {
	RunID      string            `yaml:"run_id"`
	Started    time.Time         `yaml:"started"`
	Finished   time.Time         `yaml:"finished"`
	Executable Executable        `yaml:"executable"`
	Command    []string          `yaml:"command"`
	Hosts      []ManifestHost    `yaml:"hosts"`
	Failures   []ManifestFailure `yaml:"failures,omitempty"`
}

// Executable identifies the staged benchmark binary.
type Executable struct {
	Path   string `yaml:"path"`
	SHA256 string `yaml:"sha256"`
	Size   int64  `yaml:"size"`
	Human  string `yaml:"size_human"`
}

// ManifestHost is a host that produced results.
type ManifestHost struct {
	Host         string `yaml:"host"`
	Hostname     string `yaml:"hostname"`
	CPU          string `yaml:"cpu"`
	Cmdline      string `yaml:"cmdline"`
	PowerProfile string `yaml:"power_profile,omitempty"`
	Core         int    `yaml:"core"`
	Cores        int    `yaml:"cores"`
	File         string `yaml:"file"`
	Duration     string `yaml:"duration"`
}

// ManifestFailure is a host that didn't.
type ManifestFailure struct {
	Host     string `yaml:"host"`
	Error    string `yaml:"error"`
	Duration string `yaml:"duration"`
}

// DescribeExecutable hashes the payload that was staged from path.
func DescribeExecutable(path string, payload []byte) Executable {
	sum := sha256.Sum256(payload)
	return Executable{
		Path:   path,
		SHA256: hex.EncodeToString(sum[:]),
		Size:   int64(len(payload)),
		Human:  humanize.Bytes(uint64(len(payload))),
	}
}

// NewManifest builds a manifest with a fresh run ID.
func NewManifest(started, finished time.Time, exe Executable, command []string, s *Summary) *Manifest {
	m := &Manifest{
		RunID:      uuid.NewString(),
		Started:    started.UTC(),
		Finished:   finished.UTC(),
		Executable: exe,
		Command:    command,
		Hosts:      make([]ManifestHost, 0, len(s.Succeeded)),
	}
	for _, h := range s.Succeeded {
		m.Hosts = append(m.Hosts, ManifestHost{
			Host:         h.Host,
			Hostname:     h.Hostname,
			CPU:          h.CPUModel,
			Cmdline:      h.KernelCmdline,
			PowerProfile: h.PowerProfile,
			Core:         h.Core,
			Cores:        h.Cores,
			File:         h.File,
			Duration:     h.Duration.Round(time.Millisecond).String(),
		})
	}
	for _, f := range s.Failed {
		m.Failures = append(m.Failures, ManifestFailure{
			Host:     f.Host,
			Error:    errors.Summary(f.Err),
			Duration: f.Duration.Round(time.Millisecond).String(),
		})
	}
	return m
}

// WriteManifest writes m as YAML to path.
func WriteManifest(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrIO, "Couldn't encode the run manifest", "")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ioError(err, path)
	}
	return nil
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrIO, "Couldn't read "+path, "")
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrParse, "Couldn't parse "+path, "")
	}
	return &m, nil
}
