package diagnose

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/agent462/sshdoctor/internal/config"
	"github.com/agent462/sshdoctor/internal/sshtest"
)

func insecureAuth() *SSHAuthenticator {
	return &SSHAuthenticator{
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	}
}

func serverTarget(t *testing.T, s *sshtest.Server) config.Target {
	t.Helper()
	host, port := s.HostPort(t)
	return config.Target{Name: "test", Host: host, Port: port, User: "tester"}
}

func TestTryKey_Accepted(t *testing.T) {
	pub, keyPath := sshtest.GenerateKey(t)
	server := sshtest.Start(t, sshtest.WithPublicKey(pub))

	err := insecureAuth().TryKey(context.Background(), serverTarget(t, server), keyPath)
	if err != nil {
		t.Fatalf("authenticate with accepted key: %v", err)
	}
	if got := server.PublicKeyAttempts(); got == 0 {
		t.Error("server saw no public key attempt")
	}
}

func TestTryKey_Rejected(t *testing.T) {
	// Server trusts one key, the client offers another.
	trusted, _ := sshtest.GenerateKey(t)
	_, otherKeyPath := sshtest.GenerateKey(t)
	server := sshtest.Start(t, sshtest.WithPublicKey(trusted))

	err := insecureAuth().TryKey(context.Background(), serverTarget(t, server), otherKeyPath)
	if err == nil {
		t.Fatal("expected rejection for untrusted key")
	}
	if errors.Is(err, ErrKeyMissing) || errors.Is(err, ErrKeyFormat) {
		t.Errorf("server rejection misreported as a local key problem: %v", err)
	}
}

func TestTryKey_MissingFile(t *testing.T) {
	server := sshtest.Start(t)

	err := insecureAuth().TryKey(context.Background(), serverTarget(t, server), filepath.Join(t.TempDir(), "absent"))
	if !errors.Is(err, ErrKeyMissing) {
		t.Fatalf("err = %v, want ErrKeyMissing", err)
	}
	if got := server.PublicKeyAttempts(); got != 0 {
		t.Errorf("missing key file must not reach the server, got %d attempts", got)
	}
}

func TestTryKey_Malformed(t *testing.T) {
	server := sshtest.Start(t)

	badPath := filepath.Join(t.TempDir(), "garbage")
	if err := os.WriteFile(badPath, []byte("not a pem block"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	err := insecureAuth().TryKey(context.Background(), serverTarget(t, server), badPath)
	if !errors.Is(err, ErrKeyFormat) {
		t.Fatalf("err = %v, want ErrKeyFormat", err)
	}
}

func TestTryPassword_Accepted(t *testing.T) {
	server := sshtest.Start(t, sshtest.WithPassword("open-sesame"))

	err := insecureAuth().TryPassword(context.Background(), serverTarget(t, server), "open-sesame")
	if err != nil {
		t.Fatalf("authenticate with correct password: %v", err)
	}
	if got := server.PasswordAttempts(); got == 0 {
		t.Error("server saw no password attempt")
	}
}

func TestTryPassword_Rejected(t *testing.T) {
	server := sshtest.Start(t, sshtest.WithPassword("open-sesame"))

	err := insecureAuth().TryPassword(context.Background(), serverTarget(t, server), "wrong")
	if err == nil {
		t.Fatal("expected rejection for wrong password")
	}
}

func TestTryAgent_NoSocket(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")

	err := insecureAuth().TryAgent(context.Background(), config.Target{Host: "127.0.0.1", Port: 22, User: "tester"})
	if !errors.Is(err, ErrAgentUnavailable) {
		t.Fatalf("err = %v, want ErrAgentUnavailable", err)
	}
}

func TestHandshake_ContextCancelled(t *testing.T) {
	server := sshtest.Start(t, sshtest.WithPassword("pw"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := insecureAuth().TryPassword(ctx, serverTarget(t, server), "pw")
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestDefaultKeyFiles_IdentityFileFirst(t *testing.T) {
	target := config.Target{Host: "h", User: "u", IdentityFile: "/custom/key"}
	files := DefaultKeyFiles(target)
	if len(files) == 0 || files[0] != "/custom/key" {
		t.Fatalf("files = %v, want explicit identity file first", files)
	}
	if len(files) >= 2 && filepath.Base(files[1]) != "id_ed25519" {
		t.Errorf("files[1] = %s, want id_ed25519 before other defaults", files[1])
	}
}
