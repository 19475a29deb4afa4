// Package sink renders audit reports to the terminal and persists them as JSON.
package sink

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/user/gosec-audit/pkg/engine"
)

const ruleWidth = 60

// Console writes a human-readable report.
type Console struct {
	Out   io.Writer
	Color bool
}

// NewConsole returns a console on out. Colour is used only when requested and
// out is a terminal.
func NewConsole(out io.Writer, useColor bool) *Console {
	return &Console{Out: out, Color: useColor && IsTerminal(out)}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Render prints the header, one line per result in report order, remediation for
// FAIL and ERROR results and a closing summary line.
func (c *Console) Render(r *engine.Report) error {
	out := c.Out
	if out == nil {
		out = os.Stdout
	}
	w := &errWriter{w: out}
	rule := strings.Repeat("-", ruleWidth)

	w.printf("Policy: %s\n", r.PolicyName)
	w.printf("Host:   %s\n", r.Hostname)
	w.printf("Time:   %s\n", r.GeneratedAt.Format("2006-01-02T15:04:05Z07:00"))
	w.printf("%s\n", rule)
	w.printf("%-12s | %-7s | %s\n", "CONTROL ID", "STATUS", "MESSAGE")
	w.printf("%s\n", rule)

	for _, res := range r.Results {
		w.printf("%-12s | %s | %s\n", res.ControlID, c.status(res.Status), res.Message)
		if res.Status.NeedsRemediation() && res.Remediation != "" {
			w.printf("  [FIX]: %s\n", res.Remediation)
		}
	}

	s := r.Summary
	w.printf("%s\n", rule)
	w.printf("Summary: %d controls, %d passed, %d failed, %d errors, %d unknown\n",
		s.Total(), s.Pass, s.Fail, s.Error, s.Unknown)
	return w.err
}

// RenderDrift prints how the report moved since the previous run of the policy.
func (c *Console) RenderDrift(d engine.Drift) error {
	out := c.Out
	if out == nil {
		out = os.Stdout
	}
	w := &errWriter{w: out}

	if len(d.Regressed)+len(d.Fixed)+len(d.Changed)+len(d.Added)+len(d.Removed) == 0 {
		w.printf("No change since the previous run.\n")
		return w.err
	}
	w.printf("Changes since the previous run:\n")
	for _, ch := range d.Regressed {
		w.printf("  %s %s: %s -> %s\n", c.paint(color.FgRed, "REGRESSED"), ch.ControlID, ch.Before, ch.After)
	}
	for _, ch := range d.Fixed {
		w.printf("  %s %s: %s -> %s\n", c.paint(color.FgGreen, "FIXED"), ch.ControlID, ch.Before, ch.After)
	}
	for _, ch := range d.Changed {
		w.printf("  CHANGED %s: %s -> %s\n", ch.ControlID, ch.Before, ch.After)
	}
	for _, ch := range d.Added {
		w.printf("  NEW %s: %s\n", ch.ControlID, ch.After)
	}
	for _, ch := range d.Removed {
		w.printf("  REMOVED %s\n", ch.ControlID)
	}
	return w.err
}

func (c *Console) status(s engine.Status) string {
	label := fmt.Sprintf("%-7s", s)
	switch s {
	case engine.StatusPass:
		return c.paint(color.FgGreen, label)
	case engine.StatusFail, engine.StatusError:
		return c.paint(color.FgRed, label)
	default:
		return c.paint(color.FgYellow, label)
	}
}

func (c *Console) paint(attr color.Attribute, s string) string {
	if !c.Color {
		return s
	}
	p := color.New(attr, color.Bold)
	p.EnableColor()
	return p.Sprint(s)
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
