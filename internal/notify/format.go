// Package notify formats and delivers alert notifications. Each dispatcher
// implements alert.Dispatcher; the decision engine never knows whether a
// candidate went out over SMTP, Slack, or both.
package notify

import (
	"fmt"
	"html"
	"strings"
	"time"

	"crimefeed/internal/alert"
)

// Content carries the shared naming every dispatcher needs.
type Content struct {
	BoundaryName string
	MapURL       string
}

// Subject builds the alert subject line:
// "Grand Theft (F) near 100 TEST ST — 1.2mi from Menlo Oaks (low)".
func (c Content) Subject(cand alert.Candidate) string {
	shortLoc := cand.Record.Street
	if shortLoc == "" {
		shortLoc = cand.Record.City
	}
	if shortLoc == "" {
		shortLoc = "Unknown"
	}
	return fmt.Sprintf("%s near %s — %.1fmi from %s (%s)",
		cand.Record.CrimeLabel(), shortLoc, cand.DistanceMiles,
		c.BoundaryName, cand.Classification.Severity)
}

func (c Content) plainBody(cand alert.Candidate) string {
	lines := []string{
		cand.Record.CrimeLabel(),
		cand.Record.Location(),
		cand.Record.Agency,
		fmt.Sprintf("Distance: %.1fmi from %s", cand.DistanceMiles, c.BoundaryName),
		fmt.Sprintf("Date: %s", displayDate(cand.Record.Date, cand.Record.Time)),
		fmt.Sprintf("Severity: %s", cand.Classification.Severity),
	}
	if c.MapURL != "" {
		lines = append(lines, "", "View map: "+c.MapURL)
	}
	return strings.Join(lines, "\n")
}

func (c Content) htmlBody(cand alert.Candidate) string {
	var out strings.Builder
	out.WriteString(`<div style="font-family:system-ui,sans-serif;max-width:520px;margin:0 auto">`)
	fmt.Fprintf(&out, `<h2 style="margin:0 0 4px">Crime Alert</h2><p style="margin:0 0 12px;color:#666">%.1f miles from %s</p>`,
		cand.DistanceMiles, html.EscapeString(c.BoundaryName))
	out.WriteString(`<table style="border-collapse:collapse;font-size:14px">`)
	row := func(label, value string) {
		fmt.Fprintf(&out, `<tr><td style="padding:4px 12px 4px 0;color:#888">%s</td><td style="padding:4px 0">%s</td></tr>`,
			label, html.EscapeString(value))
	}
	row("Type", cand.Record.CrimeLabel())
	row("Severity", string(cand.Classification.Severity))
	row("Location", cand.Record.Location())
	row("Distance", fmt.Sprintf("%.1f miles from %s", cand.DistanceMiles, c.BoundaryName))
	row("Agency", cand.Record.Agency)
	row("Date", displayDate(cand.Record.Date, cand.Record.Time))
	out.WriteString(`</table>`)
	if c.MapURL != "" {
		fmt.Fprintf(&out, `<p><a href="%s">View on Map</a></p>`, c.MapURL)
	}
	out.WriteString(`</div>`)
	return out.String()
}

// buildMessage assembles a multipart/alternative MIME message with plain and
// HTML parts, CRLF line endings throughout.
func (c Content) buildMessage(from string, to []string, cand alert.Candidate) string {
	const boundary = "crimefeed-alt"
	headers := []string{
		"From: " + from,
		"To: " + strings.Join(to, ", "),
		"Subject: " + c.Subject(cand),
		"MIME-Version: 1.0",
		fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q", boundary),
	}

	var out strings.Builder
	out.WriteString(strings.Join(headers, "\r\n"))
	out.WriteString("\r\n\r\n")
	out.WriteString("--" + boundary + "\r\n")
	out.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	out.WriteString(strings.ReplaceAll(c.plainBody(cand), "\n", "\r\n"))
	out.WriteString("\r\n--" + boundary + "\r\n")
	out.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	out.WriteString(c.htmlBody(cand))
	out.WriteString("\r\n--" + boundary + "--\r\n")
	return out.String()
}

// displayDate reformats the record's ISO date, appending the separate time
// field when the source supplies one. Unparseable dates pass through as-is.
func displayDate(date, timeField string) string {
	if date == "" {
		return "Unknown"
	}
	display := date
	if dt, err := time.Parse(time.RFC3339, date); err == nil {
		display = dt.Format("Jan 02, 2006 03:04 PM MST")
	} else if dt, err := time.Parse("2006-01-02", date); err == nil {
		display = dt.Format("Jan 02, 2006")
	}
	if timeField != "" {
		display += " " + timeField
	}
	return display
}
