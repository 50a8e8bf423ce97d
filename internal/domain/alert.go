package domain

import (
	"fmt"
	"strings"
)

// When renders the distance to the decision in words.
func (a Alert) When() string {
	switch {
	case a.DaysUntil == 0:
		return "today"
	case a.DaysUntil == 1:
		return "tomorrow"
	case a.DaysUntil < 0:
		return fmt.Sprintf("%d days ago", -a.DaysUntil)
	default:
		return fmt.Sprintf("in %d days", a.DaysUntil)
	}
}

// Headline is the one-line summary used by every channel.
func (a Alert) Headline() string {
	var b strings.Builder
	if a.Test {
		b.WriteString("[TEST] ")
	}
	fmt.Fprintf(&b, "PDUFA %s: %s", a.When(), a.Record.Drug)
	if a.Record.Ticker != "" {
		fmt.Fprintf(&b, " ($%s)", a.Record.Ticker)
	}
	return b.String()
}

// Text is a plain multi-line rendering of the alert.
func (a Alert) Text() string {
	r := a.Record
	lines := []string{
		a.Headline(),
		fmt.Sprintf("Company: %s", r.Company),
		fmt.Sprintf("Drug: %s", r.Drug),
		fmt.Sprintf("PDUFA date: %s", r.PDUFADate.String()),
	}
	if r.Indication != "" {
		lines = append(lines, fmt.Sprintf("Indication: %s", r.Indication))
	}
	if r.Description != "" {
		lines = append(lines, r.Description)
	}
	if len(r.Sources) > 0 {
		lines = append(lines, fmt.Sprintf("Sources: %s", strings.Join(r.Sources, ", ")))
	}
	return strings.Join(lines, "\n")
}
