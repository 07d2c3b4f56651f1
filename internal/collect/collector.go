// Package collect consumes host completions and writes the run's output
// directory: hosts.csv with one metadata row per host, and the raw
// benchmark CSV of each host as bench-<hostname>.csv.
package collect

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rileyhilliard/pb/internal/dispatch"
	"github.com/rileyhilliard/pb/internal/errors"
	"github.com/rileyhilliard/pb/internal/logger"
)

const (
	// HostsFile is the metadata table inside the output directory.
	HostsFile = "hosts.csv"
	// HostsHeader is the first line of HostsFile.
	HostsHeader = "hostname,cpuinfo,cmdline"
)

// FileNameForHost returns the per-host raw CSV file name. The normalizer
// recovers the host from the text between the last '-' and ".csv".
func FileNameForHost(hostname string) string {
	return "bench-" + hostname + ".csv"
}

// Reporter is told about each host as its completion is handled.
type Reporter interface {
	HostDone(host, detail string, duration time.Duration)
	HostFailed(host string, err error, duration time.Duration)
}

type nopReporter struct{}

func (nopReporter) HostDone(string, string, time.Duration)  {}
func (nopReporter) HostFailed(string, error, time.Duration) {}

// HostRecord describes a host whose results were written.
type HostRecord struct {
	Host          string // Identifier the host was dialled with
	Hostname      string // Short hostname reported by the host
	CPUModel      string
	KernelCmdline string
	PowerProfile  string
	Core          int
	Cores         int
	File          string // Path of the raw CSV
	Duration      time.Duration
}

// HostFailure describes a host that produced no results.
type HostFailure struct {
	Host     string
	Err      error
	Duration time.Duration
}

// Summary is what Collect saw, in completion order.
type Summary struct {
	Succeeded []HostRecord
	Failed    []HostFailure
}

// OK reports whether every host succeeded.
func (s *Summary) OK() bool {
	return len(s.Failed) == 0
}

// Collector writes completions into an output directory. It is meant to be
// driven by a single goroutine.
type Collector struct {
	outDir   string
	log      logger.Logger
	reporter Reporter
}

// New creates a Collector. Nil log or reporter are replaced with no-ops.
func New(outDir string, log logger.Logger, reporter Reporter) *Collector {
	if log == nil {
		log = logger.Noop()
	}
	if reporter == nil {
		reporter = nopReporter{}
	}
	return &Collector{outDir: outDir, log: log, reporter: reporter}
}

// Collect reads the stream until it closes. Host failures are recorded in
// the summary and collection continues; a local I/O error stops collection
// and is returned along with the partial summary.
func (c *Collector) Collect(stream <-chan dispatch.Completion) (*Summary, error) {
	summary := &Summary{}

	if err := os.MkdirAll(c.outDir, 0o755); err != nil {
		return summary, errors.WrapWithCode(err, errors.ErrIO,
			"Couldn't create output directory "+c.outDir,
			"Pick a writable location with --out.")
	}

	hostsPath := filepath.Join(c.outDir, HostsFile)
	f, err := os.Create(hostsPath)
	if err != nil {
		return summary, errors.WrapWithCode(err, errors.ErrIO, "Couldn't create "+hostsPath, "")
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := writeLine(w, HostsHeader); err != nil {
		return summary, ioError(err, hostsPath)
	}

	seen := make(map[string]string) // hostname -> host that reported it
	for comp := range stream {
		if comp.Err != nil || comp.Result == nil {
			err := comp.Err
			if err == nil {
				err = errors.New(errors.ErrExec, "No result from "+comp.Host, "")
			}
			c.fail(summary, comp, err)
			continue
		}

		res := comp.Result
		if err := validateHostname(res.Hostname); err != nil {
			c.fail(summary, comp, err)
			continue
		}
		if prev, dup := seen[res.Hostname]; dup {
			c.fail(summary, comp, errors.New(errors.ErrIO,
				fmt.Sprintf("Hostname %s already reported by %s", res.Hostname, prev),
				"Two targets resolve to the same machine; list it once."))
			continue
		}
		seen[res.Hostname] = comp.Host
		if strings.Contains(res.Hostname, "-") {
			c.log.Warn("Hostname %s contains '-'; bench2tidy takes the host from after the last '-' of the file name",
				res.Hostname)
		}

		if err := writeLine(w, HostRow(res.Hostname, res.CPUModel, res.KernelCmdline)); err != nil {
			return summary, ioError(err, hostsPath)
		}

		benchPath := filepath.Join(c.outDir, FileNameForHost(res.Hostname))
		if err := os.WriteFile(benchPath, res.RawCSV, 0o644); err != nil {
			return summary, ioError(err, benchPath)
		}

		rec := HostRecord{
			Host:          comp.Host,
			Hostname:      res.Hostname,
			CPUModel:      res.CPUModel,
			KernelCmdline: res.KernelCmdline,
			PowerProfile:  res.PowerProfile,
			Core:          res.Core,
			Cores:         res.Cores,
			File:          benchPath,
			Duration:      comp.Duration(),
		}
		summary.Succeeded = append(summary.Succeeded, rec)
		c.log.Debug("Wrote %s (%d bytes) for %s", benchPath, len(res.RawCSV), comp.Host)
		c.reporter.HostDone(comp.Host, res.CPUModel, rec.Duration)
	}

	if err := f.Close(); err != nil {
		return summary, ioError(err, hostsPath)
	}
	return summary, nil
}

func (c *Collector) fail(summary *Summary, comp dispatch.Completion, err error) {
	summary.Failed = append(summary.Failed, HostFailure{Host: comp.Host, Err: err, Duration: comp.Duration()})
	c.log.Error("%s: %s", comp.Host, errors.Summary(err))
	c.reporter.HostFailed(comp.Host, err, comp.Duration())
}

// HostRow renders one hosts.csv line (without newline). cmdline is always
// quoted; cpuinfo only when it needs to be.
func HostRow(hostname, cpuinfo, cmdline string) string {
	return hostname + "," + csvField(cpuinfo, false) + "," + csvField(cmdline, true)
}

func csvField(s string, alwaysQuote bool) string {
	if alwaysQuote || strings.ContainsAny(s, ",\"\r\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

func validateHostname(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\") {
		return errors.New(errors.ErrParse,
			fmt.Sprintf("Host reported unusable hostname %q", name),
			"The hostname becomes part of a file name and can't be empty or contain '/'.")
	}
	return nil
}

// writeLine writes s and a newline, then flushes so the row is on disk
// before the next host is handled.
func writeLine(w *bufio.Writer, s string) error {
	if _, err := w.WriteString(s + "\n"); err != nil {
		return err
	}
	return w.Flush()
}

func ioError(err error, path string) error {
	return errors.WrapWithCode(err, errors.ErrIO, "Couldn't write "+path, "Check free space and permissions.")
}
