package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/kevinburke/ssh_config"

	"github.com/agent462/sshdoctor/internal/pathutil"
)

// Target identifies the peer being diagnosed. It is immutable per attempt.
type Target struct {
	Name         string // original input, e.g. "deploy@web1:2222"
	Host         string // hostname or address to probe
	Port         int
	User         string
	IdentityFile string // explicit key path, if configured
}

// Addr returns the host:port dial address for the target.
func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

func (t Target) String() string {
	if t.User == "" {
		return t.Addr()
	}
	return fmt.Sprintf("%s@%s", t.User, t.Addr())
}

// ResolveTargets parses CLI target specs ("host", "user@host",
// "user@host:port") and fills in missing fields from the config file's
// per-host overrides, then ~/.ssh/config, then environment defaults.
func ResolveTargets(cfg *Config, specs []string) ([]Target, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("no targets specified: provide at least one host")
	}

	targets := make([]Target, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		if seen[spec] {
			continue
		}
		seen[spec] = true

		t, err := parseTargetSpec(spec)
		if err != nil {
			return nil, err
		}

		if cfg != nil {
			applyHostConfig(&t, cfg.Hosts)
		}
		MergeSSHConfig(&t)
		applyFallbacks(&t)

		targets = append(targets, t)
	}
	return targets, nil
}

// parseTargetSpec splits a target spec into user, host, and port.
// The user separator is the LAST "@" so usernames containing "@"
// remain unambiguous.
func parseTargetSpec(spec string) (Target, error) {
	t := Target{Name: spec, Host: spec}

	rest := spec
	if i := strings.LastIndex(rest, "@"); i >= 0 {
		if i == 0 {
			return Target{}, fmt.Errorf("invalid target %q: empty username", spec)
		}
		t.User = rest[:i]
		rest = rest[i+1:]
	}

	if host, portStr, err := net.SplitHostPort(rest); err == nil {
		port, perr := strconv.Atoi(portStr)
		if perr != nil || port < 1 || port > 65535 {
			return Target{}, fmt.Errorf("invalid target %q: bad port %q", spec, portStr)
		}
		t.Host = host
		t.Port = port
	} else {
		t.Host = rest
	}

	if t.Host == "" {
		return Target{}, fmt.Errorf("invalid target %q: empty host", spec)
	}
	return t, nil
}

// applyHostConfig applies config-file overrides. The lookup key is the
// host portion of the spec.
func applyHostConfig(t *Target, hosts map[string]HostConfig) {
	hc, ok := hosts[t.Host]
	if !ok {
		return
	}
	if hc.Hostname != "" {
		t.Host = hc.Hostname
	}
	if t.User == "" && hc.User != "" {
		t.User = hc.User
	}
	if t.Port == 0 && hc.Port > 0 {
		t.Port = hc.Port
	}
	if t.IdentityFile == "" && hc.IdentityFile != "" {
		t.IdentityFile = pathutil.ExpandHome(hc.IdentityFile)
	}
}

// MergeSSHConfig reads ~/.ssh/config and fills in User, Port, and
// IdentityFile for the target if they are not already set.
func MergeSSHConfig(t *Target) {
	if t.User == "" {
		if user := sshConfigGet(t.Host, "User"); user != "" {
			t.User = user
		}
	}

	if t.Port == 0 {
		if portStr := sshConfigGet(t.Host, "Port"); portStr != "" {
			if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
				t.Port = port
			}
		}
	}

	if t.IdentityFile == "" {
		if identity := sshConfigGet(t.Host, "IdentityFile"); identity != "" {
			expanded := pathutil.ExpandHome(identity)
			if pathutil.Exists(expanded) {
				t.IdentityFile = expanded
			}
		}
	}

	if hostname := sshConfigGet(t.Host, "Hostname"); hostname != "" {
		t.Host = hostname
	}
}

// applyFallbacks fills the remaining defaults: port 22, $USER, then root.
func applyFallbacks(t *Target) {
	if t.Port == 0 {
		t.Port = 22
	}
	if t.User == "" {
		t.User = os.Getenv("USER")
	}
	if t.User == "" {
		t.User = "root"
	}
}

// sshConfigGet looks up a key for a host in the user's SSH config.
func sshConfigGet(hostname, key string) string {
	val, err := ssh_config.GetStrict(hostname, key)
	if err != nil {
		return ""
	}
	return val
}
