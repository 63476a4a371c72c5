package classify

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh/knownhosts"
)

// Phrases lists the SSH client output fragments that identify
// authentication and host-key failures. Matching is case-insensitive.
// The defaults track OpenSSH and golang.org/x/crypto/ssh wording; a
// stricter parser can substitute its own set.
type Phrases struct {
	AuthRejected    []string
	HostKeyMismatch []string
}

// DefaultPhrases returns the phrase set for OpenSSH and x/crypto/ssh.
func DefaultPhrases() Phrases {
	return Phrases{
		AuthRejected: []string{
			"permission denied",
			"unable to authenticate",
			"no supported methods remain",
			"authentication failed",
			"too many authentication failures",
		},
		HostKeyMismatch: []string{
			"remote host identification has changed",
			"host key mismatch",
			"key mismatch",
		},
	}
}

// SSHClassifier augments the generic classifier with SSH-specific
// knowledge. Authentication rejections and host-key mismatches are
// remapped out of the network taxonomy entirely.
type SSHClassifier struct {
	Phrases Phrases
}

// NewSSHClassifier returns a classifier using the default phrase set.
func NewSSHClassifier() SSHClassifier {
	return SSHClassifier{Phrases: DefaultPhrases()}
}

// Classify inspects an SSH-level error together with any raw client
// output. Errors that are neither auth nor host-key related fall
// through to the generic classifier.
func (c SSHClassifier) Classify(err error, output string) Detail {
	if err == nil && output == "" {
		return Detail{Category: CategoryUnknown}
	}

	var keyErr *knownhosts.KeyError
	if errors.As(err, &keyErr) {
		if len(keyErr.Want) > 0 {
			return hostKeyMismatchDetail(err.Error())
		}
		return Detail{
			Category: CategoryHostKey,
			Code:     "HOSTKEY_UNKNOWN",
			Message:  err.Error(),
			Suggestions: []string{
				"the host is not present in known_hosts",
				"connect once with the system ssh client to record its key, or allow unknown hosts",
			},
		}
	}

	combined := output
	if err != nil {
		combined = err.Error() + "\n" + output
	}
	lower := strings.ToLower(combined)

	for _, p := range c.Phrases.HostKeyMismatch {
		if strings.Contains(lower, p) {
			return hostKeyMismatchDetail(firstLine(combined))
		}
	}
	for _, p := range c.Phrases.AuthRejected {
		if strings.Contains(lower, p) {
			return Detail{
				Category: CategoryAuth,
				Code:     "AUTH_REJECTED",
				Message:  firstLine(combined),
				Suggestions: []string{
					"verify the username and credential",
					"check the server's sshd_config for allowed authentication methods",
					"run ssh -v against the host to see which methods the server offers",
				},
			}
		}
	}

	if err != nil {
		return Classify(err)
	}
	return Detail{Category: CategoryUnknown, Message: firstLine(combined)}
}

// ClassifySSH classifies with the default phrase set.
func ClassifySSH(err error, output string) Detail {
	return NewSSHClassifier().Classify(err, output)
}

func hostKeyMismatchDetail(msg string) Detail {
	return Detail{
		Category: CategoryHostKey,
		Code:     "HOSTKEY_MISMATCH",
		Message:  msg,
		Suggestions: []string{
			"the server's host key does not match the one recorded in known_hosts",
			"if the host was legitimately reinstalled, remove the old key with: ssh-keygen -R <host>",
			"otherwise treat this as a possible man-in-the-middle and do not proceed",
		},
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Summary renders a Detail as a single human-readable line.
func Summary(d Detail) string {
	if d.Code != "" {
		return fmt.Sprintf("%s (%s): %s", d.Category, d.Code, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Category, d.Message)
}
