package sshutil

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/rileyhilliard/pb/internal/errors"
	"golang.org/x/crypto/ssh"
)

// Exec runs a command on the remote host and returns the output.
// Returns stdout, stderr, exit code, and any error.
// Exit code is -1 if the command couldn't be executed at all.
func (c *Client) Exec(cmd string) (stdout, stderr []byte, exitCode int, err error) {
	return c.ExecInput(cmd, nil)
}

// ExecInput runs a command with stdin connected to the given reader.
// Used to stream a file to the remote side, e.g. `cat > path`.
func (c *Client) ExecInput(cmd string, stdin io.Reader) (stdout, stderr []byte, exitCode int, err error) {
	var stdoutBuf, stderrBuf bytes.Buffer
	exitCode, err = c.run(cmd, stdin, &stdoutBuf, &stderrBuf)
	if err != nil {
		return nil, nil, -1, err
	}
	return stdoutBuf.Bytes(), stderrBuf.Bytes(), exitCode, nil
}

// ExecStream runs a command and streams output to the provided writers.
// Returns the exit code and any error.
// Exit code is -1 if the command couldn't be executed at all.
func (c *Client) ExecStream(cmd string, stdout, stderr io.Writer) (exitCode int, err error) {
	return c.run(cmd, nil, stdout, stderr)
}

// run executes cmd in a fresh session. A non-zero exit is reported through
// the exit code, not as an error.
func (c *Client) run(cmd string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	session, err := c.newSSHSession()
	if err != nil {
		return -1, errors.WrapWithCode(err, errors.ErrSSH,
			"Failed to create SSH session",
			"Connection may have been closed. Try reconnecting.")
	}
	defer session.Close()

	session.Stdin = stdin
	session.Stdout = stdout
	session.Stderr = stderr

	if err := session.Run(cmd); err != nil {
		var exitErr *ssh.ExitError
		if stderrors.As(err, &exitErr) {
			return exitErr.ExitStatus(), nil
		}
		return -1, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Lost the session while running: %s", cmd),
			"The connection dropped mid-command. Check the host is still up.")
	}
	return 0, nil
}
