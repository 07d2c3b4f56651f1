// Package tidy turns raw per-host benchmark CSV files into one table with a
// leading host column and only per-repetition nanosecond rows.
package tidy

import (
	stderrors "errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rileyhilliard/pb/internal/errors"
)

const (
	// Header is the first line of the tidy table.
	Header = "host,name,iterations,real_ns,cpu_ns"

	// rawHeaderPrefix marks the start of the data section in a raw file.
	// Everything before it is benchmark preamble.
	rawHeaderPrefix = "name,iterations,real_time,cpu_time,time_unit"

	unitMarker = ",ns,"
)

// aggregateSuffixes are the summary rows added per benchmark when
// repetitions > 1. Only per-repetition samples are kept.
var aggregateSuffixes = []string{"_mean", "_median", "_stddev"}

// ErrBadFilename is returned when a file name doesn't carry a host as
// <prefix>-<host>.<ext>.
var ErrBadFilename = stderrors.New("file name doesn't match <prefix>-<host>.<ext>")

// HostFromFilename returns the text between the last '-' and the 4-char
// extension of the base name: "out/bench-alpha.csv" gives "alpha".
// Names with '-' in the host part lose everything before the last '-'.
func HostFromFilename(path string) (string, error) {
	base := filepath.Base(path)
	dash := strings.LastIndexByte(base, '-')
	if dash < 0 || len(base) < 4 || base[len(base)-4] != '.' {
		return "", fmt.Errorf("%w: %s", ErrBadFilename, path)
	}
	end := len(base) - 4
	if dash+1 >= end {
		return "", fmt.Errorf("%w: %s", ErrBadFilename, path)
	}
	return base[dash+1 : end], nil
}

// Row is one tidy output row.
type Row struct {
	Host   string
	Fields string // name,iterations,real_time,cpu_time from the raw row
}

func (r Row) String() string {
	return r.Host + "," + r.Fields
}

type state int

const (
	scanningHeader state = iota
	emittingRows
)

// Scanner converts the lines of one raw file. It starts in scanningHeader
// and switches to emittingRows on the raw header line; it never goes back.
type Scanner struct {
	host   string
	strict bool
	state  state
	line   int
	stats  Stats
}

// NewScanner creates a scanner that tags rows with host. In strict mode a
// data row without the ns unit marker is an error instead of being dropped.
func NewScanner(host string, strict bool) *Scanner {
	return &Scanner{host: host, strict: strict}
}

// Feed processes one line (without its newline) and reports whether it
// produced a row.
func (s *Scanner) Feed(line string) (Row, bool, error) {
	s.line++
	line = strings.TrimSuffix(line, "\r")

	if s.state == scanningHeader {
		if strings.HasPrefix(line, rawHeaderPrefix) {
			s.state = emittingRows
		}
		return Row{}, false, nil
	}

	if strings.TrimSpace(line) == "" {
		return Row{}, false, nil
	}
	if isAggregate(line) {
		s.stats.Aggregates++
		return Row{}, false, nil
	}

	prefix, ok := cutUnit(line)
	if !ok {
		if s.strict {
			return Row{}, false, errors.New(errors.ErrParse,
				fmt.Sprintf("line %d has no ns time unit: %s", s.line, line),
				"Run the benchmark with the default time unit, or drop --strict to skip such rows.")
		}
		s.stats.Dropped++
		return Row{}, false, nil
	}

	s.stats.Rows++
	return Row{Host: s.host, Fields: prefix}, true, nil
}

// SawHeader reports whether the raw header line was found.
func (s *Scanner) SawHeader() bool {
	return s.state == emittingRows
}

// Stats returns counts for the lines fed so far.
func (s *Scanner) Stats() Stats {
	return s.stats
}

// cutUnit returns the part of line before the right-most ",ns," (or a
// trailing ",ns").
func cutUnit(line string) (string, bool) {
	if i := strings.LastIndex(line, unitMarker); i >= 0 {
		return line[:i], true
	}
	if strings.HasSuffix(line, ",ns") {
		return line[:len(line)-3], true
	}
	return "", false
}

// isAggregate reports whether the row's name field ends in an aggregate
// suffix. The name may be double-quoted with "" escapes.
func isAggregate(line string) bool {
	name := nameField(line)
	for _, suffix := range aggregateSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

func nameField(line string) string {
	if !strings.HasPrefix(line, `"`) {
		name, _, _ := strings.Cut(line, ",")
		return name
	}
	var b strings.Builder
	for i := 1; i < len(line); i++ {
		if line[i] != '"' {
			b.WriteByte(line[i])
			continue
		}
		if i+1 < len(line) && line[i+1] == '"' {
			b.WriteByte('"')
			i++
			continue
		}
		break
	}
	return b.String()
}
