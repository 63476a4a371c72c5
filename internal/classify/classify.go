// Package classify maps raw network and SSH client errors to a structured
// taxonomy with retryability and remediation suggestions.
package classify

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// Category identifies the failure domain of a classified error.
type Category string

const (
	CategoryDNS     Category = "dns"
	CategoryPort    Category = "port"
	CategoryTimeout Category = "timeout"
	CategoryNetwork Category = "network"
	CategoryAuth    Category = "authentication"
	CategoryHostKey Category = "host-key"
	CategoryUnknown Category = "unknown"
)

// Detail is the structured result of classifying a raw error.
// It is derived once and never mutated.
type Detail struct {
	Category    Category
	Code        string
	Message     string
	Retryable   bool
	Suggestions []string
}

// Classify maps a raw OS or network error to a Detail. It is total:
// every input, including nil and unrecognized error shapes, yields a
// Detail rather than a panic. Typed error checks run first; substring
// matching on the message is the last resort.
func Classify(err error) Detail {
	if err == nil {
		return Detail{Category: CategoryUnknown}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return classifyDNS(dnsErr)
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return Detail{
			Category: CategoryPort,
			Code:     "ECONNREFUSED",
			Message:  err.Error(),
			Suggestions: []string{
				"verify the SSH daemon is running on the target host",
				"check that the port number is correct",
			},
		}
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		return Detail{
			Category: CategoryNetwork,
			Code:     "EHOSTUNREACH",
			Message:  err.Error(),
			Suggestions: []string{
				"check your network connection and routing",
				"verify any VPN or firewall between you and the host",
			},
		}
	case errors.Is(err, syscall.ETIMEDOUT):
		return Detail{
			Category:  CategoryTimeout,
			Code:      "ETIMEDOUT",
			Message:   err.Error(),
			Retryable: true,
			Suggestions: []string{
				"the host may be slow or a firewall may be dropping packets",
				"retry, or increase the probe timeout",
			},
		}
	case errors.Is(err, syscall.ECONNRESET):
		return Detail{
			Category:  CategoryNetwork,
			Code:      "ECONNRESET",
			Message:   err.Error(),
			Retryable: true,
			Suggestions: []string{
				"the connection was reset by the peer; retry",
				"check for rate limiting or an intrusion prevention system on the server",
			},
		}
	case errors.Is(err, context.DeadlineExceeded):
		return Detail{
			Category:  CategoryTimeout,
			Code:      "DEADLINE_EXCEEDED",
			Message:   err.Error(),
			Retryable: true,
			Suggestions: []string{
				"the operation exceeded its deadline; retry",
			},
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Detail{
			Category:  CategoryTimeout,
			Code:      "ETIMEDOUT",
			Message:   err.Error(),
			Retryable: true,
			Suggestions: []string{
				"the host may be slow or a firewall may be dropping packets",
				"retry, or increase the probe timeout",
			},
		}
	}

	return classifyMessage(err.Error())
}

func classifyDNS(dnsErr *net.DNSError) Detail {
	switch {
	case dnsErr.IsNotFound:
		return Detail{
			Category: CategoryDNS,
			Code:     "ENOTFOUND",
			Message:  dnsErr.Error(),
			Suggestions: []string{
				"verify the hostname is spelled correctly",
				"check that the host exists in DNS or /etc/hosts",
			},
		}
	case dnsErr.IsTimeout:
		return Detail{
			Category:  CategoryDNS,
			Code:      "DNS_TIMEOUT",
			Message:   dnsErr.Error(),
			Retryable: true,
			Suggestions: []string{
				"the DNS resolver is slow or unreachable; retry",
				"check your resolver configuration",
			},
		}
	default:
		return Detail{
			Category:  CategoryDNS,
			Code:      "DNS_FAILURE",
			Message:   dnsErr.Error(),
			Retryable: dnsErr.Temporary(),
			Suggestions: []string{
				"verify the hostname and your DNS configuration",
			},
		}
	}
}

// classifyMessage is the substring fallback used when no typed error
// information is available.
func classifyMessage(msg string) Detail {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "timed out"):
		return Detail{
			Category:  CategoryTimeout,
			Code:      "TIMEOUT",
			Message:   msg,
			Retryable: true,
			Suggestions: []string{
				"the host may be slow or a firewall may be dropping packets",
				"retry, or increase the probe timeout",
			},
		}
	case strings.Contains(lower, "refused"):
		return Detail{
			Category: CategoryPort,
			Code:     "ECONNREFUSED",
			Message:  msg,
			Suggestions: []string{
				"verify the SSH daemon is running on the target host",
				"check that the port number is correct",
			},
		}
	case strings.Contains(lower, "no such host"):
		return Detail{
			Category: CategoryDNS,
			Code:     "ENOTFOUND",
			Message:  msg,
			Suggestions: []string{
				"verify the hostname is spelled correctly",
			},
		}
	}
	return Detail{
		Category: CategoryUnknown,
		Message:  msg,
		Suggestions: []string{
			"inspect the raw error message",
			"run the SSH client with -v for protocol-level detail",
		},
	}
}
