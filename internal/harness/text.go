package harness

import (
	"fmt"
	"io"
	"strings"
)

// Style decorates an already padded status label, e.g. with terminal colors.
type Style func(s Status, label string) string

type textOptions struct {
	style Style
}

// TextOption configures WriteText.
type TextOption func(*textOptions)

// WithStyle decorates status labels. The default leaves them plain.
func WithStyle(style Style) TextOption {
	return func(o *textOptions) {
		o.style = style
	}
}

// Label returns the short status label used in text reports.
func Label(s Status) string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusMismatch:
		return "FAIL"
	case StatusError:
		return "ERROR"
	case StatusNotAvailable:
		return "N/A"
	default:
		return strings.ToUpper(string(s))
	}
}

// WriteText renders result as a human-readable report: one line per check,
// one pass/fail line per property, then errors and details, then totals.
func WriteText(w io.Writer, result *Result, opts ...TextOption) error {
	o := textOptions{style: func(_ Status, label string) string { return label }}
	for _, opt := range opts {
		opt(&o)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Suite: %s\n", result.Suite)
	if result.Environment != "" {
		fmt.Fprintf(&b, "Environment: %s\n", result.Environment)
	}

	for _, c := range result.Checks {
		b.WriteString("\n")
		fmt.Fprintf(&b, "[%s] %s (%s)\n", o.style(c.Status, Label(c.Status)), c.Name, c.Type)
		for _, p := range c.Properties {
			label := o.style(p.Status, fmt.Sprintf("%-5s", Label(p.Status)))
			if p.Detail != "" {
				fmt.Fprintf(&b, "  %s  %s: %s\n", label, p.Name, p.Detail)
			} else {
				fmt.Fprintf(&b, "  %s  %s\n", label, p.Name)
			}
		}
		for _, e := range c.Errors {
			fmt.Fprintf(&b, "  error: %s\n", e)
		}
		for _, d := range c.Details {
			fmt.Fprintf(&b, "    %s: %s\n", d.Key, d.Value)
		}
	}

	counts := result.Counts()
	b.WriteString("\n")
	b.WriteString(numbers.Sprintf("Checks: %d total, %d passed, %d failed, %d errored, %d not available\n",
		len(result.Checks), counts[StatusPass], counts[StatusMismatch], counts[StatusError], counts[StatusNotAvailable]))
	switch {
	case result.HardFailure:
		fmt.Fprintf(&b, "Result: %s (hard failure)\n", o.style(StatusError, "FAIL"))
	case result.Pass:
		fmt.Fprintf(&b, "Result: %s\n", o.style(StatusPass, "PASS"))
	default:
		fmt.Fprintf(&b, "Result: %s\n", o.style(StatusMismatch, "FAIL"))
	}

	_, err := io.WriteString(w, b.String())
	return err
}
