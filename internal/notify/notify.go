// Package notify assembles the batched notification message and hands it
// to the mail-sending collaborator.
package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"seminarcal/internal/ical"
	"seminarcal/internal/model"
)

// Message is the complete outgoing payload: one email carrying the digest
// body and the calendar document as an inline text/calendar part.
type Message struct {
	From     string
	To       []string
	Subject  string
	TextBody string
	HTMLBody string

	// Calendar is the serialized calendar document.
	Calendar string
}

// Sender is the external mail collaborator. A failed send aborts the run
// before any state is committed, so the same seminars are retried on the
// next invocation.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Options carries the configuration the assembler needs.
type Options struct {
	From          string
	To            []string
	Subject       string // fixed override; empty means generate
	SubjectPrefix string
	SourceURL     string
	TimezoneName  string // shown next to local times, e.g. "Asia/Hong_Kong"
}

// Assemble builds the single batched message for the selected seminars.
// Records are listed in selector order.
func Assemble(seminars []model.Seminar, calendar string, opts Options) Message {
	return Message{
		From:     opts.From,
		To:       opts.To,
		Subject:  subject(seminars, opts),
		TextBody: textBody(seminars, opts),
		HTMLBody: htmlBody(seminars, opts),
		Calendar: calendar,
	}
}

func subject(seminars []model.Seminar, opts Options) string {
	if opts.Subject != "" {
		return opts.Subject
	}

	noun := "seminars"
	if len(seminars) == 1 {
		noun = "seminar"
	}
	first := seminars[0].Start
	last := seminars[len(seminars)-1].Start
	for _, rec := range seminars {
		if rec.Start.Before(first) {
			first = rec.Start
		}
		if rec.Start.After(last) {
			last = rec.Start
		}
	}

	span := first.Format("Jan 2")
	if !sameDay(first, last) {
		span += " - " + last.Format("Jan 2")
	}
	span += first.Format(" 2006")

	return fmt.Sprintf("%s%d new %s, %s", opts.SubjectPrefix, len(seminars), noun, span)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func textBody(seminars []model.Seminar, opts Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d new seminar(s):\n\n", len(seminars))

	for _, rec := range seminars {
		fmt.Fprintf(&b, "- %s\n", ical.Summary(rec))
		fmt.Fprintf(&b, "  Time: %s - %s (%s)\n",
			rec.Start.Format("2006-01-02 15:04"),
			rec.End.Format("15:04"),
			opts.TimezoneName)
		if rec.Location != "" {
			fmt.Fprintf(&b, "  Venue: %s\n", rec.Location)
		}
		if rec.Link != "" {
			fmt.Fprintf(&b, "  Details: %s\n", rec.Link)
		}
		b.WriteString("\n")
	}

	if opts.SourceURL != "" {
		fmt.Fprintf(&b, "Source: %s\n", opts.SourceURL)
	}
	return b.String()
}

func htmlBody(seminars []model.Seminar, opts Options) string {
	var b strings.Builder
	b.WriteString(`<html>
<head>
  <style>
    body { font-family: Arial, sans-serif; color: #222; }
    .card { max-width: 640px; border: 1px solid #e5e5e5; border-radius: 8px; padding: 16px; margin-bottom: 12px; }
    h2 { margin: 0 0 12px 0; font-size: 18px; color: #1a4d8f; }
    table { width: 100%; border-collapse: collapse; }
    td { padding: 6px; vertical-align: top; }
    .label { width: 80px; font-weight: bold; color: #555; }
    a { color: #1a4d8f; text-decoration: none; }
  </style>
</head>
<body>
`)

	for _, rec := range seminars {
		b.WriteString(`  <div class="card">
    <h2>` + html.EscapeString(ical.Summary(rec)) + `</h2>
    <table>
`)
		row := func(label, value string) {
			if value == "" {
				return
			}
			fmt.Fprintf(&b, "      <tr><td class='label'>%s</td><td>%s</td></tr>\n",
				label, html.EscapeString(value))
		}
		row("Speaker", rec.Speaker)
		row("Time", fmt.Sprintf("%s - %s (%s)",
			rec.Start.Format("2006-01-02 15:04"),
			rec.End.Format("15:04"),
			opts.TimezoneName))
		row("Venue", rec.Location)
		if rec.Link != "" {
			fmt.Fprintf(&b, "      <tr><td class='label'>Details</td><td><a href='%s'>%s</a></td></tr>\n",
				html.EscapeString(rec.Link), html.EscapeString(rec.Link))
		}
		b.WriteString("    </table>\n  </div>\n")
	}

	if opts.SourceURL != "" {
		fmt.Fprintf(&b, "  <p>Source: <a href='%s'>%s</a></p>\n",
			html.EscapeString(opts.SourceURL), html.EscapeString(opts.SourceURL))
	}
	b.WriteString("</body>\n</html>\n")
	return b.String()
}
