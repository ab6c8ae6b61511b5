package parse

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hk(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Hong_Kong")
	require.NoError(t, err)
	return loc
}

func fixtureOptions(loc *time.Location) Options {
	return Options{
		Heading:          "Schedule of the seminars",
		PageURL:          "https://example.edu/programmes/seminars",
		Location:         loc,
		DefaultStartTime: "09:00",
		DefaultDuration:  time.Hour,
	}
}

func TestParseListing(t *testing.T) {
	loc := hk(t)
	markup, err := os.ReadFile("testdata/listing.html")
	require.NoError(t, err)

	now := time.Date(2025, 2, 1, 12, 0, 0, 0, loc)
	records, rowErrs, err := Parse(markup, now, fixtureOptions(loc))
	require.NoError(t, err)

	require.Len(t, records, 3, "three parseable rows")
	require.Len(t, rowErrs, 1, "one row has an unparseable date")
	assert.Contains(t, rowErrs[0].Reason, "unrecognized date")
	assert.Equal(t, "sometime soon", rowErrs[0].Raw)

	first := records[0]
	assert.Equal(t, "Efficient & Scalable Graph Learning", first.Title)
	assert.Equal(t, "Dr. Ada Lovelace", first.Speaker)
	assert.Equal(t, "Room 101", first.Location)
	assert.Equal(t, "https://example.edu/seminars/graph-learning.pdf", first.Link)
	assert.Equal(t, time.Date(2025, 3, 1, 14, 0, 0, 0, loc), first.Start)
	assert.Equal(t, time.Date(2025, 3, 1, 15, 0, 0, 0, loc), first.End)
	assert.Equal(t, "March 1, 2025", first.RawKey.DateText)
	assert.Equal(t, "2:00 pm - 3:00 pm", first.RawKey.TimeText)

	// Whitespace in the source collapses; "12:00 nn" means noon; the
	// empty speaker cell stays empty.
	second := records[1]
	assert.Equal(t, "Systems for the Post-Moore Era", second.Title)
	assert.Empty(t, second.Speaker)
	assert.Equal(t, time.Date(2025, 3, 3, 11, 0, 0, 0, loc), second.Start)
	assert.Equal(t, time.Date(2025, 3, 3, 12, 0, 0, 0, loc), second.End)

	// Date-only row falls back to the configured default slot.
	third := records[2]
	assert.Equal(t, "Date Only Colloquium", third.Title)
	assert.Equal(t, time.Date(2025, 3, 10, 9, 0, 0, 0, loc), third.Start)
	assert.Equal(t, time.Date(2025, 3, 10, 10, 0, 0, 0, loc), third.End)
	assert.Empty(t, third.Location)
}

func TestParsePreservesSourceOrder(t *testing.T) {
	loc := hk(t)
	markup, err := os.ReadFile("testdata/listing.html")
	require.NoError(t, err)

	now := time.Date(2025, 2, 1, 12, 0, 0, 0, loc)
	records, _, err := Parse(markup, now, fixtureOptions(loc))
	require.NoError(t, err)

	titles := make([]string, len(records))
	for i, r := range records {
		titles[i] = r.Title
	}
	assert.Equal(t, []string{
		"Efficient & Scalable Graph Learning",
		"Systems for the Post-Moore Era",
		"Date Only Colloquium",
	}, titles)
}

func TestParseNoTable(t *testing.T) {
	loc := hk(t)
	_, _, err := Parse([]byte("<html><body><p>nothing here</p></body></html>"),
		time.Now(), fixtureOptions(loc))
	assert.ErrorIs(t, err, ErrNoTable)
}

func TestParseFallsBackToHeaderKeywords(t *testing.T) {
	loc := hk(t)
	markup := []byte(`<html><body>
	<table>
	  <tr><th>Title</th><th>Date</th></tr>
	  <tr><td>Two Column Talk</td><td>2025-03-01<br>10:00 am - 11:00 am</td></tr>
	</table>
	</body></html>`)

	opts := fixtureOptions(loc)
	opts.Heading = "Schedule of the seminars" // heading absent; keyword fallback
	records, rowErrs, err := Parse(markup, time.Date(2025, 2, 1, 0, 0, 0, 0, loc), opts)
	require.NoError(t, err)
	require.Empty(t, rowErrs)
	require.Len(t, records, 1)
	assert.Equal(t, "Two Column Talk", records[0].Title)
	assert.Empty(t, records[0].Speaker)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, loc), records[0].Start)
}

func TestParseSkipsRowMissingTitle(t *testing.T) {
	loc := hk(t)
	markup := []byte(`<html><body>
	<h2>Schedule of the seminars</h2>
	<table>
	  <tr><th>Title</th><th>Speaker</th><th>Date and Time</th><th>Venue</th></tr>
	  <tr><td></td><td>Ghost</td><td>March 1, 2025<br>2:00 pm - 3:00 pm</td><td>Room 1</td></tr>
	  <tr><td>Real Talk</td><td>A. Person</td><td>March 2, 2025<br>2:00 pm - 3:00 pm</td><td>Room 2</td></tr>
	</table>
	</body></html>`)

	records, rowErrs, err := Parse(markup, time.Date(2025, 2, 1, 0, 0, 0, 0, loc), fixtureOptions(loc))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Real Talk", records[0].Title)
	require.Len(t, rowErrs, 1)
	assert.Equal(t, 1, rowErrs[0].Row)
	assert.Contains(t, rowErrs[0].Reason, "title")
}
