// Package sshtest provides an in-process SSH server for testing
// authentication behavior. The server records every authentication
// attempt so tests can assert on attempt ordering and counts.
package sshtest

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"golang.org/x/crypto/ssh"
)

// Server is a running in-process SSH server.
type Server struct {
	listener net.Listener
	done     chan struct{}

	mu                sync.Mutex
	publicKeyAttempts int
	passwordAttempts  int
}

// Config holds server options.
type Config struct {
	ClientPubKey ssh.PublicKey
	Password     string
	NoAuth       bool
}

// Option configures a test SSH server.
type Option func(*Config)

// WithPublicKey configures the server to accept the given public key.
func WithPublicKey(pub ssh.PublicKey) Option {
	return func(c *Config) { c.ClientPubKey = pub }
}

// WithPassword configures the server to accept the given password.
func WithPassword(pw string) Option {
	return func(c *Config) { c.Password = pw }
}

// WithNoAuth configures the server to accept any connection.
func WithNoAuth() Option {
	return func(c *Config) { c.NoAuth = true }
}

// Start launches an in-process SSH server and registers its shutdown
// with the test's cleanup. With no options it rejects every
// authentication attempt.
func Start(t *testing.T, opts ...Option) *Server {
	t.Helper()

	cfg := &Config{}
	for _, opt := range opts {
		opt(cfg)
	}

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	s := &Server{done: make(chan struct{})}

	serverConf := &ssh.ServerConfig{NoClientAuth: cfg.NoAuth}
	serverConf.AddHostKey(hostSigner)

	expected := []byte(nil)
	if cfg.ClientPubKey != nil {
		expected = cfg.ClientPubKey.Marshal()
	}
	serverConf.PublicKeyCallback = func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
		s.mu.Lock()
		s.publicKeyAttempts++
		s.mu.Unlock()
		if expected != nil && string(key.Marshal()) == string(expected) {
			return nil, nil
		}
		return nil, fmt.Errorf("unknown key")
	}
	serverConf.PasswordCallback = func(conn ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
		s.mu.Lock()
		s.passwordAttempts++
		s.mu.Unlock()
		if cfg.Password != "" && string(password) == cfg.Password {
			return nil, nil
		}
		return nil, fmt.Errorf("wrong password")
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s.listener = listener

	go func() {
		defer close(s.done)
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go handleConnection(conn, serverConf)
		}
	}()

	t.Cleanup(s.Close)
	return s
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// HostPort returns the server's host and numeric port.
func (s *Server) HostPort(t *testing.T) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(s.Addr())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	var port int
	fmt.Sscanf(portStr, "%d", &port)
	return host, port
}

// PublicKeyAttempts reports how many public-key authentications were tried.
func (s *Server) PublicKeyAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publicKeyAttempts
}

// PasswordAttempts reports how many password authentications were tried.
func (s *Server) PasswordAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.passwordAttempts
}

// Close shuts the server down and waits for the accept loop to exit.
func (s *Server) Close() {
	s.listener.Close()
	<-s.done
}

func handleConnection(conn net.Conn, config *ssh.ServerConfig) {
	defer conn.Close()

	sshConn, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		return
	}
	defer sshConn.Close()
	go ssh.DiscardRequests(reqs)

	// Authentication is all this server exists for; sessions are
	// accepted and immediately closed.
	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			newChan.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, requests, err := newChan.Accept()
		if err != nil {
			continue
		}
		go ssh.DiscardRequests(requests)
		ch.Close()
	}
}

// GenerateKey creates an ed25519 key pair and writes the private key to a
// temp file. Returns the public key and the path to the private key file.
func GenerateKey(t *testing.T) (ssh.PublicKey, string) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	privBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatalf("marshal private key: %v", err)
	}

	pemBlock := pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: privBytes,
	})

	dir := t.TempDir()
	keyPath := filepath.Join(dir, "id_ed25519")
	if err := os.WriteFile(keyPath, pemBlock, 0600); err != nil {
		t.Fatalf("write key file: %v", err)
	}

	return signer.PublicKey(), keyPath
}
