// Package remote runs one benchmark on one host: stage the executable into a
// scratch directory, run it pinned to a single core, read the result file
// back and gather the host facts recorded next to it.
package remote

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rileyhilliard/pb/internal/errors"
	"github.com/rileyhilliard/pb/internal/lock"
	"github.com/rileyhilliard/pb/internal/logger"
	"github.com/rileyhilliard/pb/internal/util"
	"github.com/rileyhilliard/pb/pkg/sshutil"
)

// DefaultScratchTemplate is the mktemp template for per-run scratch dirs.
const DefaultScratchTemplate = "/tmp/pb.XXXXXX"

// stagedName is the file name the payload is written to inside the scratch
// directory. Commands refer to it as ./bench.
const stagedName = "bench"

// Job describes what to run on a host.
type Job struct {
	Payload    []byte   // Benchmark executable contents
	Command    []string // Argv run from inside the scratch directory
	ResultFile string   // File the benchmark writes, relative to the scratch directory
}

// Result is everything collected from one host.
type Result struct {
	Hostname      string
	CPUModel      string
	KernelCmdline string
	RawCSV        []byte
	PowerProfile  string // Empty when tuned-adm isn't available
	Core          int    // CPU the benchmark was pinned to
	Cores         int    // Online logical CPUs
}

// ExitStatusError is the cause attached to an EXEC error when the
// benchmark exits non-zero.
type ExitStatusError struct {
	Code   int
	Stderr string // Last few lines of stderr
}

func (e *ExitStatusError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return fmt.Sprintf("exit status %d: %s", e.Code, e.Stderr)
}

// Runner executes jobs over one SSH client.
type Runner struct {
	client          sshutil.SSHClient
	log             logger.Logger
	scratchTemplate string
	lockOpts        *lock.Options
}

// NewRunner creates a Runner. A nil log discards messages.
func NewRunner(client sshutil.SSHClient, log logger.Logger) *Runner {
	if log == nil {
		log = logger.Noop()
	}
	return &Runner{
		client:          client,
		log:             log,
		scratchTemplate: DefaultScratchTemplate,
	}
}

// WithLock makes Run hold the host's benchmark lock for the whole run.
func (r *Runner) WithLock(opts lock.Options) *Runner {
	r.lockOpts = &opts
	return r
}

// Run stages the payload, runs the command pinned to AffinityCore, and
// returns the result file plus host facts. The scratch directory is removed
// whether or not the run succeeds. The context is checked between remote
// commands; a benchmark already running is left to finish.
func (r *Runner) Run(ctx context.Context, job Job) (*Result, error) {
	host := r.client.GetHost()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.lockOpts != nil {
		l, err := lock.Acquire(ctx, r.client, *r.lockOpts, r.log)
		if err != nil {
			return nil, err
		}
		defer r.release(l)
	}

	out, err := r.exec("mktemp -d "+util.ShellQuote(r.scratchTemplate), nil, errors.ErrStage,
		"Couldn't create a scratch directory on "+host)
	if err != nil {
		return nil, err
	}
	dir := strings.TrimSpace(string(out))
	if dir == "" || !strings.HasPrefix(dir, "/") {
		return nil, errors.New(errors.ErrStage,
			fmt.Sprintf("mktemp on %s returned %q", host, dir),
			"Check /tmp is writable on the host.")
	}
	defer r.cleanup(dir)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	staged := dir + "/" + stagedName
	r.log.Debug("Staging %s to %s:%s", humanize.Bytes(uint64(len(job.Payload))), host, staged)
	if _, err := r.exec(fmt.Sprintf("cat > %s && chmod 755 %s", util.ShellQuote(staged), util.ShellQuote(staged)),
		bytes.NewReader(job.Payload), errors.ErrStage, "Couldn't copy the benchmark to "+host); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err = r.exec("getconf _NPROCESSORS_ONLN", nil, errors.ErrExec, "Couldn't count CPUs on "+host)
	if err != nil {
		return nil, err
	}
	cores, err := parseCores(out)
	if err != nil {
		return nil, err
	}
	core := AffinityCore(cores)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.runBenchmark(dir, core, job.Command); err != nil {
		return nil, err
	}

	rawCSV, err := r.exec("cat "+util.ShellQuote(dir+"/"+job.ResultFile), nil, errors.ErrExec,
		fmt.Sprintf("Benchmark on %s didn't write %s", host, job.ResultFile))
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := &Result{RawCSV: rawCSV, Core: core, Cores: cores}
	if err := r.gatherFacts(res); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Runner) runBenchmark(dir string, core int, command []string) error {
	host := r.client.GetHost()
	cmd := fmt.Sprintf("cd %s && taskset -c %d %s", util.ShellQuote(dir), core, util.ShellJoin(command))
	r.log.Info("Running on %s pinned to core %d", host, core)
	r.log.Debug("%s: %s", host, cmd)

	stdout := &lineLogger{log: r.log, prefix: host + ": "}
	var stderr tailBuffer
	code, err := r.client.ExecStream(cmd, stdout, &stderr)
	stdout.Flush()
	if err != nil {
		return wrapTransport(err, "Lost connection to "+host+" while the benchmark ran")
	}
	if code != 0 {
		return errors.WrapWithCode(&ExitStatusError{Code: code, Stderr: stderr.Tail(5)}, errors.ErrExec,
			fmt.Sprintf("Benchmark failed on %s", host),
			"Run the binary by hand on the host to see the full output.")
	}
	return nil
}

func (r *Runner) gatherFacts(res *Result) error {
	host := r.client.GetHost()

	out, err := r.exec("hostname", nil, errors.ErrExec, "Couldn't read the hostname of "+host)
	if err != nil {
		return err
	}
	res.Hostname = ShortHostname(string(out))
	if res.Hostname == "" {
		return errors.New(errors.ErrParse, "Empty hostname from "+host, "")
	}

	out, err = r.exec("cat /proc/cmdline", nil, errors.ErrExec, "Couldn't read /proc/cmdline on "+host)
	if err != nil {
		return err
	}
	res.KernelCmdline = strings.TrimSpace(string(out))

	out, err = r.exec("cat /proc/cpuinfo", nil, errors.ErrExec, "Couldn't read /proc/cpuinfo on "+host)
	if err != nil {
		return err
	}
	if res.CPUModel, err = ParseCPUModel(out); err != nil {
		return err
	}

	// tuned-adm is optional; anything other than a clean run means no profile.
	out, _, code, err := r.client.Exec("tuned-adm active")
	if err != nil || code != 0 {
		r.log.Debug("%s: no power profile (tuned-adm exit %d, err %v)", host, code, err)
		return nil
	}
	res.PowerProfile = ParsePowerProfile(out)
	return nil
}

// exec runs cmd and returns stdout. A non-zero exit becomes an error with
// the given code carrying stderr.
func (r *Runner) exec(cmd string, stdin io.Reader, code, message string) ([]byte, error) {
	var (
		stdout, stderr []byte
		exitCode       int
		err            error
	)
	if stdin != nil {
		stdout, stderr, exitCode, err = r.client.ExecInput(cmd, stdin)
	} else {
		stdout, stderr, exitCode, err = r.client.Exec(cmd)
	}
	if err != nil {
		return nil, wrapTransport(err, message)
	}
	if exitCode != 0 {
		return nil, errors.WrapWithCode(&ExitStatusError{Code: exitCode, Stderr: strings.TrimSpace(string(stderr))},
			code, message, "")
	}
	return stdout, nil
}

func (r *Runner) cleanup(dir string) {
	_, stderr, code, err := r.client.Exec("rm -rf " + util.ShellQuote(dir))
	if err != nil || code != 0 {
		r.log.Warn("Couldn't remove %s on %s: exit %d %s %v", dir, r.client.GetHost(), code,
			strings.TrimSpace(string(stderr)), err)
	}
}

func (r *Runner) release(l *lock.Lock) {
	if err := l.Release(); err != nil {
		r.log.Warn("Couldn't release the lock on %s: %s", r.client.GetHost(), errors.Summary(err))
	}
}

// wrapTransport keeps structured transport errors and marks anything else
// as an SSH failure.
func wrapTransport(err error, message string) error {
	if errors.IsCode(err, errors.ErrSSH) {
		return err
	}
	return errors.Wrap(err, message)
}

// lineLogger forwards benchmark stdout to the debug log one line at a time.
type lineLogger struct {
	log     logger.Logger
	prefix  string
	partial []byte
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.partial = append(l.partial, p...)
	for {
		i := bytes.IndexByte(l.partial, '\n')
		if i < 0 {
			break
		}
		l.log.Debug("%s%s", l.prefix, strings.TrimRight(string(l.partial[:i]), "\r"))
		l.partial = l.partial[i+1:]
	}
	return len(p), nil
}

// Flush logs any trailing text without a newline.
func (l *lineLogger) Flush() {
	if len(l.partial) > 0 {
		l.log.Debug("%s%s", l.prefix, string(l.partial))
		l.partial = nil
	}
}

// tailBuffer keeps stderr for error messages, bounded to the last 64KiB.
type tailBuffer struct {
	buf []byte
}

const tailLimit = 64 << 10

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > tailLimit {
		t.buf = t.buf[len(t.buf)-tailLimit:]
	}
	return len(p), nil
}

// Tail returns the last n non-empty lines joined with " | ".
func (t *tailBuffer) Tail(n int) string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(t.buf))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
