package diagnose

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/agent462/sshdoctor/internal/config"
	"github.com/agent462/sshdoctor/internal/pathutil"
)

// Sentinel errors letting the engine discriminate key-attempt failures
// that never reached the server.
var (
	ErrKeyMissing       = errors.New("key file not found")
	ErrKeyFormat        = errors.New("key file unreadable or malformed")
	ErrAgentUnavailable = errors.New("ssh agent unavailable")
)

// Authenticator performs single-method authentication attempts against
// a target. Each attempt opens a fresh connection so the outcome is
// attributable to exactly one credential.
type Authenticator interface {
	TryAgent(ctx context.Context, target config.Target) error
	TryKey(ctx context.Context, target config.Target, keyPath string) error
	TryPassword(ctx context.Context, target config.Target, password string) error
}

// DefaultAuthTimeout bounds a full authentication attempt.
const DefaultAuthTimeout = 30 * time.Second

// SSHAuthenticator implements Authenticator over golang.org/x/crypto/ssh.
type SSHAuthenticator struct {
	// HostKeyCallback verifies the server host key. Nil falls back to
	// the user's known_hosts file.
	HostKeyCallback ssh.HostKeyCallback
	Timeout         time.Duration
}

// TryAgent authenticates with keys held by the local SSH agent.
// ErrAgentUnavailable is returned when no agent is reachable or the
// agent holds no keys.
func (a *SSHAuthenticator) TryAgent(ctx context.Context, target config.Target) error {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return ErrAgentUnavailable
	}

	conn, err := net.Dial("unix", sock)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAgentUnavailable, err)
	}
	defer conn.Close()

	ag := agent.NewClient(conn)
	keys, err := ag.List()
	if err != nil || len(keys) == 0 {
		return ErrAgentUnavailable
	}

	return a.handshake(ctx, target, ssh.PublicKeysCallback(ag.Signers))
}

// TryKey authenticates with a single private key file. A missing file
// yields ErrKeyMissing; an unparsable one yields ErrKeyFormat. Any
// other failure came from the connection or the server.
func (a *SSHAuthenticator) TryKey(ctx context.Context, target config.Target, keyPath string) error {
	data, err := os.ReadFile(pathutil.ExpandHome(keyPath))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrKeyMissing, keyPath)
		}
		return fmt.Errorf("%w: %v", ErrKeyFormat, err)
	}

	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeyFormat, err)
	}

	return a.handshake(ctx, target, ssh.PublicKeys(signer))
}

// TryPassword authenticates with a password.
func (a *SSHAuthenticator) TryPassword(ctx context.Context, target config.Target, password string) error {
	return a.handshake(ctx, target, ssh.Password(password))
}

// handshake dials the target and performs the SSH handshake with a
// single auth method, then closes the connection. The handshake runs
// in a goroutine so context cancellation is honored.
func (a *SSHAuthenticator) handshake(ctx context.Context, target config.Target, method ssh.AuthMethod) error {
	hostKeyCallback, err := a.hostKeyCallback()
	if err != nil {
		return err
	}

	conf := &ssh.ClientConfig{
		User:            target.User,
		Auth:            []ssh.AuthMethod{method},
		HostKeyCallback: hostKeyCallback,
		Timeout:         a.timeout(),
	}

	dialer := net.Dialer{Timeout: a.timeout()}
	conn, err := dialer.DialContext(ctx, "tcp", target.Addr())
	if err != nil {
		return fmt.Errorf("dial %s: %w", target.Addr(), err)
	}

	type result struct {
		conn ssh.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		c, chans, reqs, err := ssh.NewClientConn(conn, target.Addr(), conf)
		if err != nil {
			done <- result{err: err}
			return
		}
		client := ssh.NewClient(c, chans, reqs)
		client.Close()
		done <- result{conn: c}
	}()

	select {
	case <-ctx.Done():
		conn.Close()
		return ctx.Err()
	case r := <-done:
		if r.err != nil {
			conn.Close()
			return r.err
		}
		return nil
	}
}

func (a *SSHAuthenticator) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if a.HostKeyCallback != nil {
		return a.HostKeyCallback, nil
	}
	return KnownHostsCallback()
}

func (a *SSHAuthenticator) timeout() time.Duration {
	if a.Timeout > 0 {
		return a.Timeout
	}
	return DefaultAuthTimeout
}

// KnownHostsCallback builds a host key callback from the user's
// known_hosts file.
func KnownHostsCallback() (ssh.HostKeyCallback, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}

	knownHostsPath := filepath.Join(home, ".ssh", "known_hosts")
	if !pathutil.Exists(knownHostsPath) {
		return nil, fmt.Errorf("no known_hosts file found at %s; use --insecure to skip host key verification", knownHostsPath)
	}

	callback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("parse known_hosts: %w", err)
	}
	return callback, nil
}

// DefaultKeyFiles lists the private key paths to try for a target, in
// priority order: the target's explicit identity file first, then the
// common default locations.
func DefaultKeyFiles(target config.Target) []string {
	var files []string
	if target.IdentityFile != "" {
		files = append(files, target.IdentityFile)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return files
	}
	for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		files = append(files, filepath.Join(home, ".ssh", name))
	}
	return files
}

// HasLocalKeyMaterial reports whether any candidate key file exists or
// an SSH agent socket is configured. It informs the auth-method
// detector's prompting recommendation.
func HasLocalKeyMaterial(target config.Target) bool {
	if os.Getenv("SSH_AUTH_SOCK") != "" {
		return true
	}
	for _, f := range DefaultKeyFiles(target) {
		if pathutil.Exists(f) {
			return true
		}
	}
	return false
}
