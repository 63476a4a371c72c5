package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/agent462/sshdoctor/internal/diagnose"
	"github.com/agent462/sshdoctor/internal/flow"
	"github.com/agent462/sshdoctor/internal/sweep"
)

// Color palette.
var (
	colorGreen  = lipgloss.Color("#04B575")
	colorRed    = lipgloss.Color("#FF4672")
	colorYellow = lipgloss.Color("#FDFF90")
	colorCyan   = lipgloss.Color("#00E5FF")
	colorSubtle = lipgloss.Color("#626262")
)

var (
	passStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	failStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	skipStyle = lipgloss.NewStyle().
			Foreground(colorSubtle)

	targetStyle = lipgloss.NewStyle().
			Foreground(colorCyan).
			Bold(true)

	suggestionStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	detailStyle = lipgloss.NewStyle().
			Foreground(colorSubtle)
)

// Reporter renders diagnostics for the terminal or as JSON.
type Reporter struct {
	JSON  bool
	Color bool
}

// Report renders one target's diagnostics as a staged checklist: each
// stage shows pass, fail, or skipped, and a failed stage carries its
// classification and suggestions.
func (r *Reporter) Report(diag diagnose.Diagnostics) string {
	if r.JSON {
		return r.reportJSON(diag)
	}

	var b strings.Builder
	b.WriteString(r.style(targetStyle, diag.Target.String()))
	b.WriteString("\n")

	r.writeStage(&b, "dns", diag.Connectivity.DNSOK, true)
	if diag.Connectivity.DNSOK && len(diag.Connectivity.Addrs) > 0 {
		b.WriteString(r.style(detailStyle, "      resolved to "+strings.Join(diag.Connectivity.Addrs, ", ")))
		b.WriteString("\n")
	}

	r.writeStage(&b, "tcp", diag.Connectivity.PortOK, diag.Connectivity.DNSOK)
	if diag.Connectivity.Banner != "" {
		b.WriteString(r.style(detailStyle, "      "+diag.Connectivity.Banner))
		b.WriteString("\n")
	}

	if diag.AuthStrategy != nil {
		b.WriteString(r.style(detailStyle, fmt.Sprintf("      server auth: %s", diag.AuthStrategy.Strategy)))
		b.WriteString("\n")
	}
	r.writeStage(&b, "auth", diag.Auth.Success, diag.Auth.Tested)
	if diag.Auth.Success {
		method := diag.Auth.Method
		if diag.Auth.KeyPath != "" {
			method += " (" + diag.Auth.KeyPath + ")"
		}
		b.WriteString(r.style(detailStyle, "      via "+method))
		b.WriteString("\n")
	}

	if !diag.OverallSuccess && diag.DetailedMessage != "" {
		b.WriteString("\n")
		for _, line := range strings.Split(diag.DetailedMessage, "\n") {
			style := failStyle
			if strings.HasPrefix(strings.TrimSpace(line), "-") {
				style = suggestionStyle
			}
			b.WriteString("  " + r.style(style, line))
			b.WriteString("\n")
		}
	}

	return b.String()
}

// ReportResult renders a terminal resolution result, including the
// final diagnostics.
func (r *Reporter) ReportResult(res flow.Result) string {
	if r.JSON {
		return r.resultJSON(res)
	}

	var b strings.Builder
	b.WriteString(r.Report(res.Diagnostics))

	switch res.Outcome {
	case flow.OutcomeSuccess:
		b.WriteString(r.style(passStyle, fmt.Sprintf("\nconnected to %s after %d attempt(s)", res.Target, res.Attempts)))
	case flow.OutcomeCancelled:
		b.WriteString(r.style(skipStyle, "\n"+res.Message))
	default:
		if res.Message != "" {
			b.WriteString(r.style(failStyle, "\n"+res.Message))
		}
	}
	b.WriteString("\n")
	return b.String()
}

// ReportSweep renders sweep results, one line per probed address.
func (r *Reporter) ReportSweep(hosts []sweep.Host) string {
	if r.JSON {
		return r.sweepJSON(hosts)
	}

	var b strings.Builder
	open := 0
	for _, h := range hosts {
		if h.Open {
			open++
			line := fmt.Sprintf("%-15s open", h.Address)
			if h.Banner != "" {
				line += "  " + h.Banner
			}
			b.WriteString(r.style(passStyle, line))
		} else {
			line := fmt.Sprintf("%-15s %s", h.Address, h.Detail.Code)
			b.WriteString(r.style(skipStyle, line))
		}
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("%d host(s) up, %d probed\n", open, len(hosts)))
	return b.String()
}

func (r *Reporter) writeStage(b *strings.Builder, name string, ok, tested bool) {
	switch {
	case !tested:
		b.WriteString("  " + r.style(skipStyle, "- "+name+" (not tested)"))
	case ok:
		b.WriteString("  " + r.style(passStyle, "✓ "+name))
	default:
		b.WriteString("  " + r.style(failStyle, "✗ "+name))
	}
	b.WriteString("\n")
}

func (r *Reporter) style(s lipgloss.Style, text string) string {
	if !r.Color {
		return text
	}
	return s.Render(text)
}

type jsonStage struct {
	Tested bool `json:"tested"`
	OK     bool `json:"ok"`
}

type jsonDiagnostics struct {
	Target       string      `json:"target"`
	PrimaryIssue string      `json:"primary_issue"`
	DNS          jsonStage   `json:"dns"`
	TCP          jsonStage   `json:"tcp"`
	Auth         jsonStage   `json:"auth"`
	AuthMethod   string      `json:"auth_method,omitempty"`
	AuthReason   string      `json:"auth_reason,omitempty"`
	Strategy     string      `json:"server_auth,omitempty"`
	Banner       string      `json:"banner,omitempty"`
	Category     string      `json:"category,omitempty"`
	Code         string      `json:"code,omitempty"`
	Message      string      `json:"message,omitempty"`
	Suggestions  []string    `json:"suggestions,omitempty"`
	Success      bool        `json:"success"`
}

func toJSONDiagnostics(diag diagnose.Diagnostics) jsonDiagnostics {
	out := jsonDiagnostics{
		Target:       diag.Target.String(),
		PrimaryIssue: string(diag.PrimaryIssue),
		DNS:          jsonStage{Tested: true, OK: diag.Connectivity.DNSOK},
		TCP:          jsonStage{Tested: diag.Connectivity.DNSOK, OK: diag.Connectivity.PortOK},
		Auth:         jsonStage{Tested: diag.Auth.Tested, OK: diag.Auth.Success},
		AuthMethod:   diag.Auth.Method,
		AuthReason:   string(diag.Auth.Reason),
		Banner:       diag.Connectivity.Banner,
		Success:      diag.OverallSuccess,
	}
	if diag.AuthStrategy != nil {
		out.Strategy = string(diag.AuthStrategy.Strategy)
	}
	if diag.Detail != nil {
		out.Category = string(diag.Detail.Category)
		out.Code = diag.Detail.Code
		out.Message = diag.Detail.Message
		out.Suggestions = diag.Detail.Suggestions
	}
	return out
}

func (r *Reporter) reportJSON(diag diagnose.Diagnostics) string {
	data, err := json.MarshalIndent(toJSONDiagnostics(diag), "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(data) + "\n"
}

func (r *Reporter) resultJSON(res flow.Result) string {
	out := struct {
		Outcome     string          `json:"outcome"`
		Attempts    int             `json:"attempts"`
		Message     string          `json:"message,omitempty"`
		Diagnostics jsonDiagnostics `json:"diagnostics"`
	}{
		Outcome:     string(res.Outcome),
		Attempts:    res.Attempts,
		Message:     res.Message,
		Diagnostics: toJSONDiagnostics(res.Diagnostics),
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(data) + "\n"
}

func (r *Reporter) sweepJSON(hosts []sweep.Host) string {
	type jsonHost struct {
		Address string `json:"address"`
		Port    int    `json:"port"`
		Open    bool   `json:"open"`
		Banner  string `json:"banner,omitempty"`
		Code    string `json:"code,omitempty"`
	}
	out := make([]jsonHost, len(hosts))
	for i, h := range hosts {
		out[i] = jsonHost{Address: h.Address, Port: h.Port, Open: h.Open, Banner: h.Banner}
		if h.Detail != nil {
			out[i].Code = h.Detail.Code
		}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(data) + "\n"
}
