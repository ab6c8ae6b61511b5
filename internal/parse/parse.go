// Package parse extracts seminar records from the listing page's markup.
//
// The extraction contract is deliberately tolerant: the table is located
// by its section heading (with a header-keyword fallback), columns are
// mapped by header text when one exists, and a row missing an optional
// field still yields a record. Only a missing title or date disqualifies
// a row, and that skips the row with a diagnostic rather than failing
// the run.
package parse

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"seminarcal/internal/model"
)

// Options controls table location and date/time resolution.
type Options struct {
	// Heading is the section heading preceding the seminar table,
	// matched by substring.
	Heading string

	// PageURL is the listing page address; relative links in title cells
	// are resolved against it.
	PageURL string

	// Location is the timezone seminar times are interpreted in.
	Location *time.Location

	// DefaultStartTime ("HH:MM") applies when a row has a date but no
	// time text.
	DefaultStartTime string

	// DefaultDuration applies when a row has no end time.
	DefaultDuration time.Duration
}

// RowError is a diagnostic for a single skipped row. It never aborts the
// batch.
type RowError struct {
	Row    int    // 1-based data row index
	Reason string
	Raw    string // raw cell text for the diagnostic
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s (raw: %q)", e.Row, e.Reason, e.Raw)
}

// ErrNoTable is returned when no seminar table can be located at all.
var ErrNoTable = errors.New("no seminar table found on page")

// columns maps logical fields to cell indexes; -1 means the column is
// absent from this table.
type columns struct {
	title, speaker, date, venue int
}

// sourceOrder is the column order the listing has always used, applied
// when the table has no recognizable header row.
var sourceOrder = columns{title: 0, speaker: 1, date: 2, venue: 3}

// Parse extracts seminar records in source order. Row-level problems are
// reported in the second return value; only a document-level failure
// (no table) yields an error.
func Parse(markup []byte, now time.Time, opts Options) ([]model.Seminar, []RowError, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, nil, fmt.Errorf("parse markup: %w", err)
	}

	table := findTable(doc, opts.Heading)
	if table == nil {
		return nil, nil, ErrNoTable
	}

	var base *url.URL
	if opts.PageURL != "" {
		base, _ = url.Parse(opts.PageURL)
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	rows := table.Find("tr")
	cols := sourceOrder
	dataStart := 0
	if rows.Length() > 0 {
		if mapped, ok := headerColumns(rows.First()); ok {
			cols = mapped
			dataStart = 1
		}
	}
	minCells := max(cols.title, cols.date) + 1

	var (
		seminars []model.Seminar
		rowErrs  []RowError
	)
	rowIdx := 0
	rows.Each(func(i int, tr *goquery.Selection) {
		if i < dataStart {
			return
		}
		cells := tr.Find("td")
		if cells.Length() < minCells {
			// Header or separator row; structurally not a seminar.
			return
		}
		rowIdx++

		rec, rerr := extractRow(cells, cols, base, loc, now, opts)
		if rerr != nil {
			rerr.Row = rowIdx
			rowErrs = append(rowErrs, *rerr)
			return
		}
		seminars = append(seminars, rec)
	})

	return seminars, rowErrs, nil
}

func extractRow(cells *goquery.Selection, cols columns, base *url.URL, loc *time.Location, now time.Time, opts Options) (model.Seminar, *RowError) {
	var rec model.Seminar

	titleCell := cellAt(cells, cols.title)
	if titleCell == nil {
		return rec, &RowError{Reason: "missing title cell", Raw: cellText(cells)}
	}
	rec.Title = collapse(titleCell.Text())
	if rec.Title == "" {
		return rec, &RowError{Reason: "empty title", Raw: cellText(cells)}
	}
	if href, ok := titleCell.Find("a[href]").First().Attr("href"); ok && href != "" {
		rec.Link = resolveLink(base, href)
	}

	dateCell := cellAt(cells, cols.date)
	if dateCell == nil {
		return rec, &RowError{Reason: "missing date cell", Raw: rec.Title}
	}
	// The date cell stacks the date and the time range on separate lines.
	parts := strippedStrings(dateCell)
	if len(parts) == 0 {
		return rec, &RowError{Reason: "empty date", Raw: rec.Title}
	}
	dateText := parts[0]
	timeText := ""
	if len(parts) > 1 {
		timeText = strings.Join(parts[1:], " ")
	}

	day, err := parseDate(dateText, now, loc)
	if err != nil {
		return rec, &RowError{Reason: err.Error(), Raw: dateText}
	}
	rec.Start, rec.End, err = parseTimeRange(timeText, day, opts.DefaultStartTime, opts.DefaultDuration)
	if err != nil {
		return rec, &RowError{Reason: err.Error(), Raw: timeText}
	}

	if c := cellAt(cells, cols.speaker); c != nil {
		rec.Speaker = collapse(c.Text())
	}
	if c := cellAt(cells, cols.venue); c != nil {
		rec.Location = collapse(c.Text())
	}

	rec.RawKey = model.RawKey{
		Title:    rec.Title,
		DateText: dateText,
		TimeText: timeText,
		Location: rec.Location,
	}
	return rec, nil
}

// findTable locates the seminar table: first table following the section
// heading in document order, else the first table whose header row names
// a title and a date column.
func findTable(doc *goquery.Document, heading string) *goquery.Selection {
	if heading != "" {
		var headingNode *html.Node
		doc.Find("h1, h2, h3").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if strings.Contains(s.Text(), heading) {
				headingNode = s.Get(0)
				return false
			}
			return true
		})
		if headingNode != nil {
			if t := followingTable(headingNode); t != nil {
				return doc.FindNodes(t)
			}
		}
	}

	var fallback *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, t *goquery.Selection) bool {
		if _, ok := headerColumns(t.Find("tr").First()); ok {
			fallback = t
			return false
		}
		return true
	})
	return fallback
}

// followingTable returns the first <table> element after n in document
// order (preorder traversal continuing past n's subtree).
func followingTable(n *html.Node) *html.Node {
	for cur := nextNode(n); cur != nil; cur = nextNode(cur) {
		if cur.Type == html.ElementNode && cur.Data == "table" {
			return cur
		}
	}
	return nil
}

func nextNode(n *html.Node) *html.Node {
	if n.FirstChild != nil {
		return n.FirstChild
	}
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.NextSibling != nil {
			return cur.NextSibling
		}
	}
	return nil
}

// headerColumns maps header-cell text to column indexes. The mapping is
// accepted only when both a title and a date column are present.
func headerColumns(headerRow *goquery.Selection) (columns, bool) {
	cols := columns{title: -1, speaker: -1, date: -1, venue: -1}
	if headerRow == nil || headerRow.Length() == 0 {
		return cols, false
	}
	cells := headerRow.Find("th")
	if cells.Length() == 0 {
		cells = headerRow.Find("td")
	}
	cells.Each(func(i int, c *goquery.Selection) {
		switch text := strings.ToLower(strings.TrimSpace(c.Text())); {
		case strings.Contains(text, "title") || strings.Contains(text, "topic"):
			setIfUnset(&cols.title, i)
		case strings.Contains(text, "speaker") || strings.Contains(text, "presenter"):
			setIfUnset(&cols.speaker, i)
		case strings.Contains(text, "date") || strings.Contains(text, "time"):
			setIfUnset(&cols.date, i)
		case strings.Contains(text, "venue") || strings.Contains(text, "location") || strings.Contains(text, "room"):
			setIfUnset(&cols.venue, i)
		}
	})
	return cols, cols.title >= 0 && cols.date >= 0
}

func setIfUnset(slot *int, v int) {
	if *slot < 0 {
		*slot = v
	}
}

func cellAt(cells *goquery.Selection, idx int) *goquery.Selection {
	if idx < 0 || idx >= cells.Length() {
		return nil
	}
	return cells.Eq(idx)
}

func cellText(cells *goquery.Selection) string {
	return collapse(cells.Text())
}

// collapse trims and collapses runs of whitespace, flattening the source
// markup's indentation out of cell text.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// strippedStrings mirrors the source page's line structure: every text
// node trimmed, empties dropped, so "<br>"-separated date and time lines
// come back as separate entries.
func strippedStrings(sel *goquery.Selection) []string {
	var out []string
	for _, n := range sel.Nodes {
		collectText(n, &out)
	}
	return out
}

func collectText(n *html.Node, out *[]string) {
	if n.Type == html.TextNode {
		if s := strings.TrimSpace(n.Data); s != "" {
			*out = append(*out, s)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, out)
	}
}

func resolveLink(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
