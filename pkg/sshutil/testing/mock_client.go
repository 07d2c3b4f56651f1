package testing

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/rileyhilliard/pb/pkg/sshutil"
)

// CommandResponse defines a canned response for a specific command pattern.
type CommandResponse struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Error    error
}

// Call is one command of an `a && b` chain as seen by a CommandHandler.
type Call struct {
	Cmd   string  // The single command, redirects stripped
	Dir   string  // Working directory set by a preceding cd, or ""
	Stdin []byte  // Input passed to ExecInput, nil otherwise
	FS    *MockFS // The remote filesystem
}

// CommandHandler computes a response from the call, e.g. a fake benchmark
// that writes its result file into Call.Dir.
type CommandHandler func(call Call) CommandResponse

// MockClient simulates an SSH connection for testing.
// It parses the shell commands a benchmark run issues and executes them
// against a virtual filesystem.
type MockClient struct {
	mu       sync.Mutex
	host     string
	address  string
	hostname string
	cores    int
	fs       *MockFS
	closed   bool
	tempSeq  int
	history  []string
	commands map[string]CommandResponse // pattern -> response, matched on the whole command
	handlers map[string]CommandHandler  // pattern -> handler, matched per chained command
}

var _ sshutil.SSHClient = (*MockClient)(nil)

// NewMockClient creates a mock SSH client with an empty filesystem.
// `hostname` prints host and `getconf _NPROCESSORS_ONLN` prints 8 until
// changed with SetHostname and SetCores.
func NewMockClient(host string) *MockClient {
	return &MockClient{
		host:     host,
		address:  host + ":22",
		hostname: host,
		cores:    8,
		fs:       NewMockFS(),
		commands: make(map[string]CommandResponse),
		handlers: make(map[string]CommandHandler),
	}
}

// Exec runs a command against the virtual filesystem.
func (m *MockClient) Exec(cmd string) (stdout, stderr []byte, exitCode int, err error) {
	return m.ExecInput(cmd, nil)
}

// ExecInput runs a command with stdin. Canned responses registered with
// SetCommandResponse win over everything else; otherwise the command is
// split on " && " and each part runs in order until one fails.
func (m *MockClient) ExecInput(cmd string, stdin io.Reader) (stdout, stderr []byte, exitCode int, err error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, nil, -1, errors.New("connection closed")
	}
	m.history = append(m.history, cmd)
	resp, ok := m.matchResponse(cmd)
	m.mu.Unlock()

	if ok {
		return resp.Stdout, resp.Stderr, resp.ExitCode, resp.Error
	}

	var input []byte
	if stdin != nil {
		if input, err = io.ReadAll(stdin); err != nil {
			return nil, nil, -1, err
		}
	}
	return m.runChain(cmd, input)
}

// ExecStream runs a command and writes output to the provided writers.
func (m *MockClient) ExecStream(cmd string, stdout, stderr io.Writer) (exitCode int, err error) {
	out, errOut, code, execErr := m.Exec(cmd)
	if execErr != nil {
		return -1, execErr
	}

	if stdout != nil && len(out) > 0 {
		stdout.Write(out)
	}
	if stderr != nil && len(errOut) > 0 {
		stderr.Write(errOut)
	}
	return code, nil
}

// Close marks the connection as closed.
func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (m *MockClient) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// GetHost returns the host name.
func (m *MockClient) GetHost() string {
	return m.host
}

// GetAddress returns the host:port address.
func (m *MockClient) GetAddress() string {
	return m.address
}

// SetCommandResponse registers a canned response for a command pattern.
// The pattern can be an exact string or a regex pattern.
func (m *MockClient) SetCommandResponse(pattern string, resp CommandResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands[pattern] = resp
}

// SetCommandHandler registers a handler for commands matching the regex
// pattern. Handlers see each part of an `a && b` chain separately.
func (m *MockClient) SetCommandHandler(pattern string, h CommandHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[pattern] = h
}

// SetHostname sets what `hostname` prints.
func (m *MockClient) SetHostname(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hostname = name
}

// SetCores sets what `getconf _NPROCESSORS_ONLN` prints.
func (m *MockClient) SetCores(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cores = n
}

// Commands returns every command passed to Exec, ExecInput or ExecStream.
func (m *MockClient) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.history...)
}

// GetFS returns the mock filesystem for direct manipulation in tests.
func (m *MockClient) GetFS() *MockFS {
	return m.fs
}

// matchResponse looks up a canned response. Caller holds m.mu.
func (m *MockClient) matchResponse(cmd string) (CommandResponse, bool) {
	if resp, ok := m.commands[cmd]; ok {
		return resp, true
	}
	for pattern, resp := range m.commands {
		if matched, _ := regexp.MatchString(pattern, cmd); matched {
			return resp, true
		}
	}
	return CommandResponse{}, false
}

func (m *MockClient) matchHandler(cmd string) CommandHandler {
	m.mu.Lock()
	defer m.mu.Unlock()
	for pattern, h := range m.handlers {
		if matched, _ := regexp.MatchString(pattern, cmd); matched {
			return h
		}
	}
	return nil
}

func (m *MockClient) runChain(cmd string, stdin []byte) ([]byte, []byte, int, error) {
	var stdout, stderr bytes.Buffer
	dir := ""
	for _, part := range strings.Split(cmd, " && ") {
		part = strings.TrimSuffix(strings.TrimSpace(part), " 2>/dev/null")
		part = strings.TrimSuffix(part, " 2>&1")

		var resp CommandResponse
		if h := m.matchHandler(part); h != nil {
			resp = h(Call{Cmd: part, Dir: dir, Stdin: stdin, FS: m.fs})
		} else {
			resp = m.builtin(part, &dir, stdin)
		}

		if resp.Error != nil {
			return nil, nil, -1, resp.Error
		}
		stdout.Write(resp.Stdout)
		stderr.Write(resp.Stderr)
		if resp.ExitCode != 0 {
			return stdout.Bytes(), stderr.Bytes(), resp.ExitCode, nil
		}
	}
	return stdout.Bytes(), stderr.Bytes(), 0, nil
}

// builtin handles the shell commands a benchmark run issues.
// Unknown commands succeed with no output.
func (m *MockClient) builtin(cmd string, dir *string, stdin []byte) CommandResponse {
	resolve := func(p string) string {
		if *dir != "" && !filepath.IsAbs(p) {
			return filepath.Join(*dir, p)
		}
		return p
	}

	switch {
	case strings.HasPrefix(cmd, "cd "):
		path := resolve(extractPath(strings.TrimPrefix(cmd, "cd ")))
		if !m.fs.IsDir(path) {
			return failure(fmt.Sprintf("cd: %s: No such file or directory", path))
		}
		*dir = path
		return CommandResponse{}

	case strings.HasPrefix(cmd, "mktemp"):
		return m.handleMktemp(cmd)

	case strings.HasPrefix(cmd, "cat >"):
		path := resolve(extractPath(strings.TrimPrefix(cmd, "cat >")))
		if path == "" {
			return failure("cat: missing output file")
		}
		_ = m.fs.WriteFile(path, stdin)
		return CommandResponse{}

	case strings.HasPrefix(cmd, "cat "):
		path := resolve(extractPath(strings.TrimPrefix(cmd, "cat ")))
		content, err := m.fs.ReadFile(path)
		if err != nil {
			return failure("cat: " + path + ": No such file or directory")
		}
		return CommandResponse{Stdout: content}

	case strings.HasPrefix(cmd, "chmod "):
		fields := strings.Fields(cmd)
		if len(fields) != 3 {
			return failure("chmod: missing operand")
		}
		mode, err := strconv.ParseUint(fields[1], 8, 32)
		if err != nil {
			return failure("chmod: invalid mode: " + fields[1])
		}
		path := resolve(extractPath(fields[2]))
		if err := m.fs.Chmod(path, os.FileMode(mode)); err != nil {
			return failure("chmod: cannot access '" + path + "': No such file or directory")
		}
		return CommandResponse{}

	case strings.HasPrefix(cmd, "rm -rf "):
		_ = m.fs.Remove(resolve(extractPath(strings.TrimPrefix(cmd, "rm -rf "))))
		return CommandResponse{}

	case strings.HasPrefix(cmd, "mkdir -p "):
		_ = m.fs.MkdirAll(resolve(extractPath(strings.TrimPrefix(cmd, "mkdir -p "))))
		return CommandResponse{}

	case strings.HasPrefix(cmd, "mkdir "):
		path := resolve(extractPath(strings.TrimPrefix(cmd, "mkdir ")))
		if err := m.fs.Mkdir(path); err != nil {
			return failure("mkdir: cannot create directory '" + path + "': File exists")
		}
		return CommandResponse{}

	case strings.HasPrefix(cmd, "test -f "):
		if m.fs.IsFile(resolve(extractPath(strings.TrimPrefix(cmd, "test -f ")))) {
			return CommandResponse{}
		}
		return CommandResponse{ExitCode: 1}

	case strings.HasPrefix(cmd, "test -d "):
		if m.fs.IsDir(resolve(extractPath(strings.TrimPrefix(cmd, "test -d ")))) {
			return CommandResponse{}
		}
		return CommandResponse{ExitCode: 1}

	case cmd == "hostname":
		m.mu.Lock()
		defer m.mu.Unlock()
		return CommandResponse{Stdout: []byte(m.hostname + "\n")}

	case cmd == "getconf _NPROCESSORS_ONLN":
		m.mu.Lock()
		defer m.mu.Unlock()
		return CommandResponse{Stdout: []byte(strconv.Itoa(m.cores) + "\n")}
	}

	return CommandResponse{}
}

// handleMktemp processes: mktemp [-d] [TEMPLATE]
func (m *MockClient) handleMktemp(cmd string) CommandResponse {
	fields := strings.Fields(cmd)
	isDir := false
	template := "/tmp/tmp.XXXXXX"
	for _, f := range fields[1:] {
		if f == "-d" {
			isDir = true
			continue
		}
		template = extractPath(f)
	}
	if !strings.Contains(template, "XXX") {
		return failure("mktemp: too few X's in template '" + template + "'")
	}

	m.mu.Lock()
	m.tempSeq++
	seq := m.tempSeq
	m.mu.Unlock()

	xs := template[strings.Index(template, "XXX"):]
	xs = xs[:len(xs)-len(strings.TrimLeft(xs, "X"))]
	path := strings.Replace(template, xs, fmt.Sprintf("%0*d", len(xs), seq), 1)

	if isDir {
		_ = m.fs.MkdirAll(path)
	} else {
		_ = m.fs.WriteFile(path, nil)
	}
	return CommandResponse{Stdout: []byte(path + "\n")}
}

func failure(msg string) CommandResponse {
	return CommandResponse{Stderr: []byte(msg + "\n"), ExitCode: 1}
}

// extractPath extracts a path from a command argument.
// Handles both quoted and unquoted paths.
func extractPath(arg string) string {
	arg = strings.TrimSpace(arg)

	if strings.HasPrefix(arg, "\"") {
		if end := strings.Index(arg[1:], "\""); end != -1 {
			return arg[1 : end+1]
		}
	}
	if strings.HasPrefix(arg, "'") {
		if end := strings.Index(arg[1:], "'"); end != -1 {
			return arg[1 : end+1]
		}
	}

	// Unquoted path - take first space-separated token
	parts := strings.Fields(arg)
	if len(parts) > 0 {
		return parts[0]
	}
	return ""
}
