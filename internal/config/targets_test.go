package config

import (
	"testing"
)

func TestParseTargetSpec(t *testing.T) {
	tests := []struct {
		spec string
		user string
		host string
		port int
	}{
		{"web1", "", "web1", 0},
		{"deploy@web1", "deploy", "web1", 0},
		{"deploy@web1:2222", "deploy", "web1", 2222},
		{"web1:2022", "", "web1", 2022},
		{"alice@corp@bastion", "alice@corp", "bastion", 0},
		{"root@[::1]:2222", "root", "::1", 2222},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := parseTargetSpec(tt.spec)
			if err != nil {
				t.Fatalf("parse %q: %v", tt.spec, err)
			}
			if got.User != tt.user {
				t.Errorf("user = %q, want %q", got.User, tt.user)
			}
			if got.Host != tt.host {
				t.Errorf("host = %q, want %q", got.Host, tt.host)
			}
			if got.Port != tt.port {
				t.Errorf("port = %d, want %d", got.Port, tt.port)
			}
			if got.Name != tt.spec {
				t.Errorf("name = %q, want original spec %q", got.Name, tt.spec)
			}
		})
	}
}

func TestParseTargetSpecInvalid(t *testing.T) {
	for _, spec := range []string{"@host", "deploy@", "host:notaport", "host:0"} {
		if _, err := parseTargetSpec(spec); err == nil {
			t.Errorf("parse %q: expected error", spec)
		}
	}
}

func TestResolveTargetsAppliesHostConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Hosts["web1"] = HostConfig{
		Hostname: "web1.internal",
		User:     "deploy",
		Port:     2222,
	}

	targets, err := ResolveTargets(cfg, []string{"web1"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(targets) != 1 {
		t.Fatalf("expected 1 target, got %d", len(targets))
	}
	tgt := targets[0]
	if tgt.Host != "web1.internal" {
		t.Errorf("host = %q, want web1.internal", tgt.Host)
	}
	if tgt.User != "deploy" {
		t.Errorf("user = %q, want deploy", tgt.User)
	}
	if tgt.Port != 2222 {
		t.Errorf("port = %d, want 2222", tgt.Port)
	}
	if tgt.Name != "web1" {
		t.Errorf("name = %q, want original spec", tgt.Name)
	}
}

func TestResolveTargetsExplicitFieldsWin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Hosts["web1"] = HostConfig{User: "deploy", Port: 2222}

	targets, err := ResolveTargets(cfg, []string{"admin@web1:2200"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	tgt := targets[0]
	if tgt.User != "admin" {
		t.Errorf("user = %q, want admin (spec overrides config)", tgt.User)
	}
	if tgt.Port != 2200 {
		t.Errorf("port = %d, want 2200 (spec overrides config)", tgt.Port)
	}
}

func TestResolveTargetsDeduplicates(t *testing.T) {
	targets, err := ResolveTargets(DefaultConfig(), []string{"web1", "web2", "web1"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(targets) != 2 {
		t.Errorf("expected 2 targets after dedup, got %d", len(targets))
	}
}

func TestResolveTargetsEmpty(t *testing.T) {
	if _, err := ResolveTargets(DefaultConfig(), nil); err == nil {
		t.Error("expected error for empty target list")
	}
}

func TestTargetAddrAndString(t *testing.T) {
	tgt := Target{Host: "web1", Port: 22, User: "deploy"}
	if got := tgt.Addr(); got != "web1:22" {
		t.Errorf("addr = %q, want web1:22", got)
	}
	if got := tgt.String(); got != "deploy@web1:22" {
		t.Errorf("string = %q, want deploy@web1:22", got)
	}
}
