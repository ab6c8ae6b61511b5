package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seminarcal/internal/config"
	"seminarcal/internal/notify"
	"seminarcal/internal/state"
)

const listingMarkup = `<html><body>
<h2>Schedule of the seminars</h2>
<table>
  <tr><th>Title</th><th>Speaker</th><th>Date and Time</th><th>Venue</th></tr>
  <tr><td>Talk A</td><td>Dr. Ada Lovelace</td><td>March 1, 2025<br>2:00 pm - 3:00 pm</td><td>Room 101</td></tr>
  <tr><td>Broken Row</td><td>Nobody</td><td>no date here</td><td>Room 9</td></tr>
</table>
</body></html>`

type stubFetcher struct {
	body []byte
	err  error
}

func (s stubFetcher) Fetch(context.Context) ([]byte, error) {
	return s.body, s.err
}

type recordingSender struct {
	sent []notify.Message
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg notify.Message) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Source.URL = "https://example.edu/seminars"
	cfg.StateFile = filepath.Join(t.TempDir(), "sent.json")
	cfg.Mail.SMTPHost = "smtp.example.edu"
	cfg.Mail.From = "organizer@example.edu"
	cfg.Mail.To = []string{"alice@example.edu"}
	cfg.Normalize()
	require.NoError(t, cfg.Validate(true))
	return cfg
}

func fixedNow(t *testing.T) func() time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Hong_Kong")
	require.NoError(t, err)
	return func() time.Time {
		return time.Date(2025, 2, 1, 12, 0, 0, 0, loc)
	}
}

func deps(cfg *config.Config, sender *recordingSender, now func() time.Time) Deps {
	return Deps{
		Fetcher: stubFetcher{body: []byte(listingMarkup)},
		Sender:  sender,
		Store:   state.NewStore(cfg.StateFile),
		Now:     now,
	}
}

func TestRunFirstTimeSendsAndCommits(t *testing.T) {
	cfg := testConfig(t)
	sender := &recordingSender{}

	sum, err := Run(context.Background(), cfg, deps(cfg, sender, fixedNow(t)), false)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Parsed)
	assert.Equal(t, 1, sum.SkippedRows)
	assert.Equal(t, 1, sum.Selected)
	assert.True(t, sum.Sent)
	assert.Equal(t, 1, sum.Committed)

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Contains(t, msg.TextBody, "Talk A — Dr. Ada Lovelace")
	assert.Equal(t, 1, strings.Count(msg.Calendar, "BEGIN:VEVENT"),
		"exactly one event component for the one selected record")

	st, err := state.NewStore(cfg.StateFile).Load()
	require.NoError(t, err)
	assert.Len(t, st.Sent, 1)
}

func TestRunIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	sender := &recordingSender{}
	d := deps(cfg, sender, fixedNow(t))

	_, err := Run(context.Background(), cfg, d, false)
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	// Unchanged page, committed state: the second run selects nothing
	// and sends nothing.
	sum, err := Run(context.Background(), cfg, d, false)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Selected)
	assert.False(t, sum.Sent)
	assert.Len(t, sender.sent, 1)
}

func TestRunSendFailureLeavesStateUntouched(t *testing.T) {
	cfg := testConfig(t)

	// Seed a committed state so there is a file to compare bit-for-bit.
	seeded := &recordingSender{}
	seedDeps := deps(cfg, seeded, fixedNow(t))
	_, err := Run(context.Background(), cfg, seedDeps, false)
	require.NoError(t, err)
	before, err := os.ReadFile(cfg.StateFile)
	require.NoError(t, err)

	// A new seminar appears, but the send fails.
	grown := strings.Replace(listingMarkup,
		"</table>",
		`<tr><td>Talk B</td><td>Dr. Grace Hopper</td><td>March 5, 2025<br>10:00 am - 11:00 am</td><td>Room 202</td></tr></table>`,
		1)
	failing := &recordingSender{err: errors.New("smtp: connection refused")}
	d := Deps{
		Fetcher: stubFetcher{body: []byte(grown)},
		Sender:  failing,
		Store:   state.NewStore(cfg.StateFile),
		Now:     fixedNow(t),
	}

	_, err = Run(context.Background(), cfg, d, false)
	require.Error(t, err)
	assert.Equal(t, StageSend, StageOf(err))

	after, err := os.ReadFile(cfg.StateFile)
	require.NoError(t, err)
	assert.Equal(t, before, after, "state file is bit-for-bit unchanged after a failed send")
}

func TestRunDryRunSendsNothing(t *testing.T) {
	cfg := testConfig(t)
	sender := &recordingSender{}

	sum, err := Run(context.Background(), cfg, deps(cfg, sender, fixedNow(t)), true)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Selected)
	assert.False(t, sum.Sent)
	assert.Empty(t, sender.sent)

	_, statErr := os.Stat(cfg.StateFile)
	assert.True(t, os.IsNotExist(statErr), "dry run never creates state")
}

func TestRunFetchErrorAbortsBeforeState(t *testing.T) {
	cfg := testConfig(t)
	sender := &recordingSender{}
	d := Deps{
		Fetcher: stubFetcher{err: errors.New("connection timed out")},
		Sender:  sender,
		Store:   state.NewStore(cfg.StateFile),
		Now:     fixedNow(t),
	}

	_, err := Run(context.Background(), cfg, d, false)
	require.Error(t, err)
	assert.Equal(t, StageFetch, StageOf(err))
	assert.Empty(t, sender.sent)
	_, statErr := os.Stat(cfg.StateFile)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunCorruptStateIsFatal(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.StateFile, []byte("{broken"), 0o600))
	sender := &recordingSender{}

	_, err := Run(context.Background(), cfg, deps(cfg, sender, fixedNow(t)), false)
	require.Error(t, err)
	assert.Equal(t, StageSelect, StageOf(err))
	assert.ErrorIs(t, err, state.ErrCorrupt)
	assert.Empty(t, sender.sent)

	// The possibly recoverable file survives.
	data, readErr := os.ReadFile(cfg.StateFile)
	require.NoError(t, readErr)
	assert.Equal(t, "{broken", string(data))
}

func TestRunPastSeminarsAreNotSelected(t *testing.T) {
	cfg := testConfig(t)
	sender := &recordingSender{}

	loc, err := time.LoadLocation("Asia/Hong_Kong")
	require.NoError(t, err)
	// "Now" is after the only seminar on the page.
	lateNow := func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, loc)
	}

	sum, err := Run(context.Background(), cfg, deps(cfg, sender, lateNow), false)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Parsed)
	assert.Equal(t, 0, sum.Selected)
	assert.Empty(t, sender.sent)
}
