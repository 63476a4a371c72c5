package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/agent462/sshdoctor/internal/config"
	"github.com/agent462/sshdoctor/internal/credcache"
)

// CredentialStore records which auth method worked for a target so a
// later run can start from it. Password values are never written; only
// the fact that password auth succeeded is.
type CredentialStore struct {
	Path string
}

// StoredCredential is one remembered resolution.
type StoredCredential struct {
	Host    string `yaml:"host"`
	User    string `yaml:"user"`
	Method  string `yaml:"method"`
	KeyPath string `yaml:"key_path,omitempty"`
}

type storeFile struct {
	Credentials []StoredCredential `yaml:"credentials"`
}

// NewCredentialStore builds a store at the given path; empty uses the
// default location next to the config file.
func NewCredentialStore(path string) *CredentialStore {
	if path == "" {
		path = defaultStorePath()
	}
	return &CredentialStore{Path: path}
}

func defaultStorePath() string {
	cfgPath := config.DefaultConfigPath()
	if cfgPath == "" {
		return ""
	}
	return filepath.Join(filepath.Dir(cfgPath), "credentials.yaml")
}

// Record writes one resolution, replacing any earlier entry for the
// same host and user.
func (s *CredentialStore) Record(target config.Target, cred credcache.Credential) error {
	if s.Path == "" {
		return fmt.Errorf("no credential store path available")
	}

	file, err := s.load()
	if err != nil {
		return err
	}

	entry := StoredCredential{
		Host:   target.Host,
		User:   target.User,
		Method: string(cred.Type),
	}
	if cred.Type == credcache.TypeKey {
		entry.KeyPath = cred.Value
	}

	replaced := false
	for i, existing := range file.Credentials {
		if existing.Host == entry.Host && existing.User == entry.User {
			file.Credentials[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		file.Credentials = append(file.Credentials, entry)
	}

	return s.save(file)
}

// Lookup returns the remembered resolution for a host and user.
func (s *CredentialStore) Lookup(host, user string) (StoredCredential, bool, error) {
	file, err := s.load()
	if err != nil {
		return StoredCredential{}, false, err
	}
	for _, c := range file.Credentials {
		if c.Host == host && c.User == user {
			return c, true, nil
		}
	}
	return StoredCredential{}, false, nil
}

func (s *CredentialStore) load() (*storeFile, error) {
	file := &storeFile{}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return file, nil
		}
		return nil, fmt.Errorf("read credential store: %w", err)
	}
	if err := yaml.Unmarshal(data, file); err != nil {
		return nil, fmt.Errorf("parse credential store: %w", err)
	}
	return file, nil
}

func (s *CredentialStore) save(file *storeFile) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0700); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("marshal credential store: %w", err)
	}
	if err := os.WriteFile(s.Path, data, 0600); err != nil {
		return fmt.Errorf("write credential store: %w", err)
	}
	return nil
}
