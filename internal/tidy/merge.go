package tidy

import (
	"bufio"
	"io"
	"os"

	"github.com/rileyhilliard/pb/internal/errors"
	"github.com/rileyhilliard/pb/internal/logger"
)

// maxLineSize bounds a single raw CSV line.
const maxLineSize = 1 << 20

// Options controls a merge.
type Options struct {
	Strict bool
	Log    logger.Logger
}

// Stats counts what a merge did.
type Stats struct {
	Files      int
	Rows       int // Rows written
	Aggregates int // mean/median/stddev rows skipped
	Dropped    int // Data rows without the ns marker
}

func (s *Stats) add(o Stats) {
	s.Rows += o.Rows
	s.Aggregates += o.Aggregates
	s.Dropped += o.Dropped
}

// Merge writes Header and then the rows of every file, files in the given
// order and lines in file order.
func Merge(w io.Writer, files []string, opts Options) (Stats, error) {
	log := opts.Log
	if log == nil {
		log = logger.Noop()
	}

	var stats Stats
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(Header + "\n"); err != nil {
		return stats, writeError(err)
	}

	for _, path := range files {
		host, err := HostFromFilename(path)
		if err != nil {
			return stats, errors.WrapWithCode(err, errors.ErrParse,
				"Can't tell the host from "+path,
				"Raw files are named bench-<host>.csv; the host is taken from after the last '-'.")
		}

		fs, sawHeader, err := mergeFile(bw, path, host, opts.Strict)
		stats.add(fs)
		if err != nil {
			return stats, err
		}
		if !sawHeader {
			if opts.Strict {
				return stats, errors.New(errors.ErrParse,
					"No benchmark header in "+path,
					"Expected a line starting with "+rawHeaderPrefix+". Was the benchmark run with --benchmark_out_format=csv?")
			}
			log.Warn("%s has no benchmark header; nothing taken from it", path)
		}
		stats.Files++
		log.Debug("%s: %d rows for %s (%d aggregates, %d dropped)", path, fs.Rows, host, fs.Aggregates, fs.Dropped)
	}

	if err := bw.Flush(); err != nil {
		return stats, writeError(err)
	}
	if stats.Dropped > 0 {
		log.Warn("Skipped %d rows without an ns time unit", stats.Dropped)
	}
	return stats, nil
}

func mergeFile(w *bufio.Writer, path, host string, strict bool) (Stats, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, false, errors.WrapWithCode(err, errors.ErrIO, "Couldn't read "+path, "")
	}
	defer f.Close()

	sc := NewScanner(host, strict)
	lines := bufio.NewScanner(f)
	lines.Buffer(make([]byte, 64*1024), maxLineSize)
	for lines.Scan() {
		row, ok, err := sc.Feed(lines.Text())
		if err != nil {
			return sc.Stats(), true, errors.WrapWithCode(err, errors.ErrParse, "Malformed row in "+path, "")
		}
		if !ok {
			continue
		}
		if _, err := w.WriteString(row.String() + "\n"); err != nil {
			return sc.Stats(), true, writeError(err)
		}
	}
	if err := lines.Err(); err != nil {
		return sc.Stats(), sc.SawHeader(), errors.WrapWithCode(err, errors.ErrIO, "Couldn't read "+path, "")
	}
	return sc.Stats(), sc.SawHeader(), nil
}

// WriteFile merges files into outPath ("-" for stdout). On failure the
// partial output file is removed.
func WriteFile(outPath string, files []string, opts Options) (Stats, error) {
	if outPath == "-" {
		return Merge(os.Stdout, files, opts)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return Stats{}, errors.WrapWithCode(err, errors.ErrIO, "Couldn't create "+outPath, "Pick a writable path with --out.")
	}

	stats, err := Merge(f, files, opts)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = writeError(cerr)
	}
	if err != nil {
		_ = os.Remove(outPath)
		return stats, err
	}
	return stats, nil
}

func writeError(err error) error {
	return errors.WrapWithCode(err, errors.ErrIO, "Couldn't write the tidy table", "Check free space and permissions.")
}
