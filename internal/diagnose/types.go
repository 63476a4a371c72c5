// Package diagnose orchestrates the staged connection diagnostic
// pipeline: connectivity probing, authentication-method detection, and
// actual authentication attempts.
package diagnose

import (
	"strings"

	"github.com/agent462/sshdoctor/internal/classify"
	"github.com/agent462/sshdoctor/internal/config"
	"github.com/agent462/sshdoctor/internal/probe"
)

// Issue identifies the first failing stage of a diagnostic pass.
type Issue string

const (
	IssueNone    Issue = "none"
	IssueNetwork Issue = "network"
	IssuePort    Issue = "port"
	IssueAuth    Issue = "authentication"
)

// AuthReason refines an authentication outcome.
type AuthReason string

const (
	ReasonKeyFormat         AuthReason = "key-format"
	ReasonKeyNotFound       AuthReason = "key-not-found"
	ReasonKeyRejected       AuthReason = "key-rejected"
	ReasonPasswordIncorrect AuthReason = "password-incorrect"
	ReasonPasswordDisabled  AuthReason = "password-disabled-on-server"
	ReasonHostKeyMismatch   AuthReason = "host-key-mismatch"

	// ReasonPasswordRequired means no non-interactive credential
	// worked and the server accepts passwords: the caller should
	// obtain one and retry.
	ReasonPasswordRequired AuthReason = "password-required"
)

// AuthResult records the outcome of the authentication stage.
// Tested stays false when an earlier stage short-circuited the pass.
type AuthResult struct {
	Tested  bool
	Success bool
	Method  string // "agent", "key", or "password"
	KeyPath string // set when Method == "key"
	Reason  AuthReason
	Message string
}

// Diagnostics is the terminal record of one diagnostic pass.
// PrimaryIssue names the first stage (network, port, authentication)
// that failed; stages after it are never populated.
type Diagnostics struct {
	Target          config.Target
	Connectivity    probe.ConnectivityResult
	AuthStrategy    *probe.AuthStrategy // nil when connectivity failed
	Auth            AuthResult
	OverallSuccess  bool
	PrimaryIssue    Issue
	Detail          *classify.Detail
	DetailedMessage string
}

// detailedMessage renders a classifier detail as a single paragraph:
// the summary line followed by its remediation suggestions.
func detailedMessage(d *classify.Detail) string {
	if d == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(classify.Summary(*d))
	for _, s := range d.Suggestions {
		b.WriteString("\n  - ")
		b.WriteString(s)
	}
	return b.String()
}
