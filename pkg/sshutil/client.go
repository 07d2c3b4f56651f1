package sshutil

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kevinburke/ssh_config"
	"github.com/rileyhilliard/pb/internal/errors"
	"github.com/rileyhilliard/pb/internal/logger"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Client wraps an SSH connection with additional metadata.
type Client struct {
	*ssh.Client
	Host    string // The original host/alias used to connect
	Address string // The resolved address (host:port)
}

// Close closes the SSH connection.
func (c *Client) Close() error {
	if c.Client == nil {
		return nil
	}
	return c.Client.Close()
}

// GetHost returns the original host/alias used to connect.
func (c *Client) GetHost() string {
	return c.Host
}

// GetAddress returns the resolved host:port address.
func (c *Client) GetAddress() string {
	return c.Address
}

// Dialer opens SSH connections that share one host key policy.
// Building a Dialer is the transport's initialization step: known_hosts is
// loaded once so a broken setup fails before any host is contacted.
type Dialer struct {
	Timeout time.Duration

	hostKeyCallback ssh.HostKeyCallback
}

// NewDialer creates a Dialer. With strictHostKeys set, host keys are verified
// against ~/.ssh/known_hosts; otherwise verification is skipped.
func NewDialer(timeout time.Duration, strictHostKeys bool) (*Dialer, error) {
	d := &Dialer{Timeout: timeout}
	if !strictHostKeys {
		d.hostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // User explicitly disabled host key checking
		return d, nil
	}

	knownHostsPath := filepath.Join(homeDir(), ".ssh", "known_hosts")
	callback, err := createHostKeyCallback(knownHostsPath)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			"Couldn't load "+knownHostsPath,
			"Fix the file, or pass --insecure-ignore-host-key for throwaway lab hosts.")
	}
	d.hostKeyCallback = callback
	return d, nil
}

// Dial establishes an SSH connection to host, which may be an ssh_config
// alias, a hostname, user@hostname, or hostname:port.
func (d *Dialer) Dial(host string) (*Client, error) {
	settings := resolveSSHSettings(host)

	config, err := buildSSHConfig(settings, d.hostKeyCallback, d.Timeout)
	if err != nil {
		return nil, err
	}

	address := settings.address()
	conn, err := net.DialTimeout("tcp", address, d.Timeout)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Can't reach '%s' at %s", host, address),
			suggestionForDialError(err))
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		conn.Close()

		var hostKeyErr *HostKeyMismatchError
		if stderrors.As(err, &hostKeyErr) {
			return nil, errors.New(errors.ErrSSH, hostKeyErr.Error(), hostKeyErr.Suggestion())
		}
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("SSH handshake with '%s' didn't go through", host),
			suggestionForHandshakeError(err, settings.encryptedKeys))
	}

	return &Client{
		Client:  ssh.NewClient(sshConn, chans, reqs),
		Host:    host,
		Address: address,
	}, nil
}

// newSSHSession creates a new *ssh.Session for the exec methods.
func (c *Client) newSSHSession() (*ssh.Session, error) {
	return c.Client.NewSession()
}

// sshSettings holds resolved SSH connection parameters.
type sshSettings struct {
	hostname      string
	port          string
	user          string
	identityFile  string
	encryptedKeys []string // Keys that exist but need a passphrase
}

func (s *sshSettings) address() string {
	return net.JoinHostPort(s.hostname, s.port)
}

// matchWarningOnce limits the ssh_config Match warning to one per process.
var matchWarningOnce sync.Once

// resolveSSHSettings parses user@host:port and overlays ~/.ssh/config.
// PB_SSH_USER replaces the default login user when no user@ is given.
func resolveSSHSettings(host string) *sshSettings {
	settings := &sshSettings{
		port: "22",
		user: currentUser(),
	}

	if user, rest, ok := strings.Cut(host, "@"); ok {
		settings.user = user
		host = rest
	} else if u := os.Getenv("PB_SSH_USER"); u != "" {
		settings.user = u
	}

	if i := strings.LastIndex(host, ":"); i != -1 && isDigits(host[i+1:]) {
		settings.port = host[i+1:]
		host = host[:i]
	}
	settings.hostname = host

	// ssh_config can't parse Match blocks; only the part before the first
	// one is decoded.
	content, matchLine, err := preprocessSSHConfig(filepath.Join(homeDir(), ".ssh", "config"))
	if err != nil {
		return settings
	}
	cfg, err := ssh_config.Decode(bytes.NewReader(content))
	if err != nil {
		return settings
	}

	found := false
	lookup := func(key string, dst *string, transform func(string) string) {
		if v, _ := cfg.Get(host, key); v != "" {
			if transform != nil {
				v = transform(v)
			}
			*dst = v
			found = true
		}
	}
	lookup("HostName", &settings.hostname, nil)
	lookup("Port", &settings.port, nil)
	lookup("User", &settings.user, nil)
	lookup("IdentityFile", &settings.identityFile, expandPath)

	if matchLine > 0 && !found {
		matchWarningOnce.Do(func() {
			logger.Default().Warn("host '%s' not found in ~/.ssh/config before the Match block at line %d; "+
				"entries after it are ignored", host, matchLine)
		})
	}

	return settings
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// buildSSHConfig collects auth methods in order: agent, PB_SSH_KEY,
// the ssh_config IdentityFile, then the default key files. Keys that need a
// passphrase are recorded in settings.encryptedKeys for the error message.
func buildSSHConfig(settings *sshSettings, hostKeyCallback ssh.HostKeyCallback, timeout time.Duration) (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod

	tried := make(map[string]bool)
	tryKeyFile := func(keyPath string) {
		if keyPath == "" || tried[keyPath] {
			return
		}
		tried[keyPath] = true
		keyAuth, err := keyFileAuth(keyPath)
		if err != nil {
			var encErr *EncryptedKeyError
			if stderrors.As(err, &encErr) {
				settings.encryptedKeys = append(settings.encryptedKeys, keyPath)
			}
			return
		}
		authMethods = append(authMethods, keyAuth)
	}

	if agentAuth := sshAgentAuth(); agentAuth != nil {
		authMethods = append(authMethods, agentAuth)
	}
	tryKeyFile(os.Getenv("PB_SSH_KEY"))
	tryKeyFile(settings.identityFile)
	for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		tryKeyFile(filepath.Join(homeDir(), ".ssh", name))
	}

	if len(authMethods) == 0 {
		if len(settings.encryptedKeys) > 0 {
			return nil, errors.New(errors.ErrSSH,
				"Found SSH key(s) but they're encrypted: "+strings.Join(settings.encryptedKeys, ", "),
				addKeysSuggestion(settings.encryptedKeys))
		}
		return nil, errors.New(errors.ErrSSH,
			"No SSH auth methods available",
			"Check your keys are loaded: ssh-add -l")
	}

	return &ssh.ClientConfig{
		User:            settings.user,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}, nil
}

func addKeysSuggestion(keys []string) string {
	var sb strings.Builder
	sb.WriteString("Add your key(s) to the agent:\n")
	for _, key := range keys {
		fmt.Fprintf(&sb, "  ssh-add %s\n", key)
	}
	return sb.String()
}

// The agent connection is shared by every dial in the process.
var (
	agentConn     net.Conn
	agentClient   agent.ExtendedAgent
	agentConnOnce sync.Once
)

// sshAgentAuth returns agent auth when SSH_AUTH_SOCK points at an agent
// holding at least one key. An empty agent ahead of key files makes
// servers reject the login, so it is skipped.
func sshAgentAuth() ssh.AuthMethod {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil
	}

	agentConnOnce.Do(func() {
		conn, err := net.Dial("unix", socket)
		if err != nil {
			return
		}
		agentConn = conn
		agentClient = agent.NewClient(conn)
	})
	if agentClient == nil {
		return nil
	}

	signers, err := agentClient.Signers()
	if err != nil || len(signers) == 0 {
		return nil
	}
	return ssh.PublicKeysCallback(agentClient.Signers)
}

// CloseAgent closes the shared agent connection, if any.
func CloseAgent() {
	if agentConn != nil {
		agentConn.Close()
	}
}

// keyFileAuth loads a private key file. It returns EncryptedKeyError when
// the key needs a passphrase.
func keyFileAuth(keyPath string) (ssh.AuthMethod, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if stderrors.As(err, &missing) || bytes.Contains(key, []byte("ENCRYPTED")) {
			return nil, &EncryptedKeyError{Path: keyPath}
		}
		return nil, err
	}
	return ssh.PublicKeys(signer), nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

func currentUser() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "root"
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

func suggestionForDialError(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"):
		return "Is SSH running on that box? Try: ssh <host>"
	case strings.Contains(msg, "no route to host"), strings.Contains(msg, "network is unreachable"):
		return "Can't route to the host. Check your network connection."
	case strings.Contains(msg, "timeout"):
		return "Connection timed out. Host might be offline or blocked by a firewall."
	case strings.Contains(msg, "no such host"):
		return "The name doesn't resolve. Check the spelling or add it to ~/.ssh/config."
	default:
		return "Make sure the host is reachable: ping <host>"
	}
}

func suggestionForHandshakeError(err error, encryptedKeys []string) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "unable to authenticate"), strings.Contains(msg, "no supported methods"):
		if len(encryptedKeys) > 0 {
			return addKeysSuggestion(encryptedKeys)
		}
		return "Auth failed. Check your keys are loaded: ssh-add -l"
	case strings.Contains(msg, "host key"):
		return "Host key issue. Try connecting manually first: ssh <host>"
	default:
		return "Something went wrong during SSH setup. Try: ssh <host>"
	}
}

// EncryptedKeyError is returned when an SSH key requires a passphrase.
type EncryptedKeyError struct {
	Path string
}

func (e *EncryptedKeyError) Error() string {
	return fmt.Sprintf("SSH key at %s is encrypted (passphrase protected)", e.Path)
}

// HostKeyMismatchError reports a known_hosts entry that disagrees with the
// key the server presented.
type HostKeyMismatchError struct {
	Hostname     string
	ReceivedType string
	KnownHosts   string
	Want         []knownhosts.KnownKey
}

func (e *HostKeyMismatchError) Error() string {
	return fmt.Sprintf("host key mismatch for %s: server sent %s key", e.Hostname, e.ReceivedType)
}

// Suggestion returns the commands that refresh the known_hosts entry.
func (e *HostKeyMismatchError) Suggestion() string {
	host := e.Hostname
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	wantTypes := make([]string, 0, len(e.Want))
	for _, k := range e.Want {
		wantTypes = append(wantTypes, k.Key.Type())
	}
	known := "unknown"
	if len(wantTypes) > 0 {
		known = strings.Join(wantTypes, ", ")
	}

	return fmt.Sprintf("known_hosts has %s, server sent %s.\n"+
		"  If the host was reinstalled, drop the old entry:\n"+
		"    ssh-keygen -R %s -f %s",
		known, e.ReceivedType, host, e.KnownHosts)
}

// preprocessSSHConfig returns the config content before the first Match
// directive and the 1-based line of that directive (0 if none).
func preprocessSSHConfig(configPath string) ([]byte, int, error) {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, 0, err
	}

	lines := strings.Split(string(content), "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "match ") {
			return []byte(strings.Join(lines[:i], "\n")), i + 1, nil
		}
	}
	return content, 0, nil
}

// createHostKeyCallback wraps the knownhosts callback so key mismatches
// surface as HostKeyMismatchError. A missing known_hosts file is created.
func createHostKeyCallback(knownHostsPath string) (ssh.HostKeyCallback, error) {
	if _, err := os.Stat(knownHostsPath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(knownHostsPath), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create .ssh directory: %w", err)
		}
		if err := os.WriteFile(knownHostsPath, nil, 0o600); err != nil {
			return nil, fmt.Errorf("failed to create known_hosts: %w", err)
		}
	}

	callback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, err
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := callback(hostname, remote, key)
		var keyErr *knownhosts.KeyError
		if err != nil && stderrors.As(err, &keyErr) && len(keyErr.Want) > 0 {
			return &HostKeyMismatchError{
				Hostname:     hostname,
				ReceivedType: key.Type(),
				KnownHosts:   knownHostsPath,
				Want:         keyErr.Want,
			}
		}
		return err
	}, nil
}
