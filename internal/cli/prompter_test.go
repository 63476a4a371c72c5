package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/agent462/sshdoctor/internal/config"
	"github.com/agent462/sshdoctor/internal/credcache"
)

func newTestPrompter(input string) (*TerminalPrompter, *bytes.Buffer) {
	out := &bytes.Buffer{}
	p := &TerminalPrompter{
		In:           strings.NewReader(input),
		Out:          out,
		ReadPassword: func() (string, error) { return "secret", nil },
	}
	return p, out
}

func TestConfirmRetry_DefaultsToYes(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"\n", true},
		{"y\n", true},
		{"Y\n", true},
		{"yes\n", true},
		{"n\n", false},
		{"no\n", false},
		{"whatever\n", false},
	}
	for _, tt := range tests {
		p, _ := newTestPrompter(tt.input)
		got, err := p.ConfirmRetry(config.Target{Host: "h", Port: 22}, 2)
		if err != nil {
			t.Fatalf("input %q: %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("input %q: confirm = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestPassword_UsesNoEchoReader(t *testing.T) {
	p, out := newTestPrompter("")
	pw, err := p.Password(config.Target{Host: "h", Port: 22, User: "u"})
	if err != nil {
		t.Fatalf("password: %v", err)
	}
	if pw != "secret" {
		t.Errorf("password = %q, want secret", pw)
	}
	if !strings.Contains(out.String(), "Password for u@h:22") {
		t.Errorf("prompt missing target: %q", out.String())
	}
	if strings.Contains(out.String(), "secret") {
		t.Error("password must never be echoed")
	}
}

func TestChooseMethod(t *testing.T) {
	methods := []credcache.Type{credcache.TypePassword, credcache.TypeKey}

	p, _ := newTestPrompter("2\n")
	got, err := p.ChooseMethod(config.Target{Host: "h", Port: 22}, methods)
	if err != nil {
		t.Fatalf("choose: %v", err)
	}
	if got != credcache.TypeKey {
		t.Errorf("choice = %s, want key", got)
	}

	// Empty input takes the first option.
	p, _ = newTestPrompter("\n")
	got, err = p.ChooseMethod(config.Target{Host: "h", Port: 22}, methods)
	if err != nil {
		t.Fatalf("choose: %v", err)
	}
	if got != credcache.TypePassword {
		t.Errorf("default choice = %s, want password", got)
	}

	p, _ = newTestPrompter("7\n")
	if _, err := p.ChooseMethod(config.Target{Host: "h", Port: 22}, methods); err == nil {
		t.Error("out-of-range choice must error")
	}
}

func TestKeyPath_TrimsWhitespace(t *testing.T) {
	p, _ := newTestPrompter("  /home/u/.ssh/id_rsa  \n")
	path, err := p.KeyPath(config.Target{Host: "h", Port: 22})
	if err != nil {
		t.Fatalf("key path: %v", err)
	}
	if path != "/home/u/.ssh/id_rsa" {
		t.Errorf("path = %q, want trimmed", path)
	}
}
