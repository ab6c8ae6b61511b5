// Package pipeline wires one complete run: fetch, parse, select, build,
// assemble, send, commit. The run is synchronous and run-to-completion;
// it either finishes with the send confirmed and the state committed,
// finds nothing new, or fails before any state mutation so the next
// scheduled run retries safely.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"seminarcal/internal/config"
	"seminarcal/internal/fetch"
	"seminarcal/internal/ical"
	appLog "seminarcal/internal/log"
	"seminarcal/internal/model"
	"seminarcal/internal/notify"
	"seminarcal/internal/parse"
	"seminarcal/internal/selector"
	"seminarcal/internal/state"
)

// Stage names the pipeline step a failure belongs to.
type Stage string

const (
	StageFetch  Stage = "fetch"
	StageParse  Stage = "parse"
	StageSelect Stage = "select"
	StageBuild  Stage = "build"
	StageSend   Stage = "send"
	StageCommit Stage = "commit"
)

// Error tags a failure with its pipeline stage so every user-visible
// diagnostic names where the run stopped.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

func stageErr(s Stage, err error) error {
	return &Error{Stage: s, Err: err}
}

// StageOf extracts the failing stage from an error chain, or "".
func StageOf(err error) Stage {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Stage
	}
	return ""
}

// Deps are the run's injectable collaborators. Tests substitute fakes;
// production wiring lives in New.
type Deps struct {
	Fetcher fetch.Fetcher
	Sender  notify.Sender
	Store   *state.Store

	// Now supplies the run's reference time; defaults to time.Now.
	Now func() time.Time
}

// New builds the production dependency set for the given config.
func New(cfg *config.Config) Deps {
	var fetcher fetch.Fetcher
	timeout := time.Duration(cfg.Source.TimeoutSeconds) * time.Second
	if cfg.Source.FetchMode == "browser" {
		fetcher = fetch.NewBrowserFetcher(cfg.Source.URL, timeout)
	} else {
		fetcher = fetch.NewHTTPFetcher(cfg.Source.URL, cfg.Source.CacheDir, timeout)
	}

	return Deps{
		Fetcher: fetcher,
		Sender:  notify.NewSMTPSender(cfg.Mail),
		Store:   state.NewStore(cfg.StateFile),
	}
}

// Summary reports what one run did.
type Summary struct {
	Parsed      int
	SkippedRows int
	Selected    int
	Sent        bool
	Committed   int
}

// Run executes one complete pipeline pass. With dryRun set it builds the
// full payload but neither sends nor commits.
func Run(ctx context.Context, cfg *config.Config, deps Deps, dryRun bool) (Summary, error) {
	var sum Summary

	loc, err := cfg.Location()
	if err != nil {
		return sum, stageErr(StageParse, err)
	}
	nowFn := deps.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	now := nowFn().In(loc)

	markup, err := deps.Fetcher.Fetch(ctx)
	if err != nil {
		return sum, stageErr(StageFetch, err)
	}
	appLog.Debug("page fetched", "url", cfg.Source.URL, "bytes", len(markup))

	records, rowErrs, err := parse.Parse(markup, now, parse.Options{
		Heading:          cfg.Source.Heading,
		PageURL:          cfg.Source.URL,
		Location:         loc,
		DefaultStartTime: cfg.DefaultStartTime,
		DefaultDuration:  cfg.DefaultDuration(),
	})
	if err != nil {
		return sum, stageErr(StageParse, err)
	}
	for _, re := range rowErrs {
		appLog.Warn("seminar row skipped", "row", re.Row, "reason", re.Reason, "raw", re.Raw)
	}
	sum.Parsed = len(records)
	sum.SkippedRows = len(rowErrs)

	sent, err := deps.Store.Load()
	if err != nil {
		return sum, stageErr(StageSelect, err)
	}
	appLog.Debug("state loaded", "path", deps.Store.Path(), "known_keys", len(sent.Sent))

	selected := selector.Select(records, sent, now, cfg.Grace())
	sum.Selected = len(selected)
	if len(selected) == 0 {
		appLog.Info("no new upcoming seminars", "parsed", sum.Parsed, "skipped_rows", sum.SkippedRows)
		return sum, nil
	}
	logSelection(selected, cfg.Timezone)

	cal, err := ical.Build(selected, now, ical.Options{
		UIDDomain:      cfg.Mail.UIDDomain,
		OrganizerEmail: cfg.Mail.From,
		Attendees:      cfg.Mail.To,
		SourceURL:      cfg.Source.URL,
	})
	if err != nil {
		return sum, stageErr(StageBuild, err)
	}

	msg := notify.Assemble(selected, cal.Serialize(), notify.Options{
		From:          cfg.Mail.From,
		To:            cfg.Mail.To,
		Subject:       cfg.Mail.Subject,
		SubjectPrefix: cfg.Mail.SubjectPrefix,
		SourceURL:     cfg.Source.URL,
		TimezoneName:  cfg.Timezone,
	})

	if dryRun {
		appLog.Info("dry run: skipping send and commit", "selected", sum.Selected, "subject", msg.Subject)
		return sum, nil
	}

	if err := deps.Sender.Send(ctx, msg); err != nil {
		return sum, stageErr(StageSend, err)
	}
	sum.Sent = true

	// Commit strictly after the confirmed send. A crash in between risks
	// a rare duplicate notification next run; committing first would risk
	// silently dropping seminars on a send failure instead.
	keys := selector.Keys(selected)
	if _, err := deps.Store.Commit(sent, keys, now); err != nil {
		return sum, stageErr(StageCommit, err)
	}
	sum.Committed = len(keys)

	appLog.Info("run complete", "parsed", sum.Parsed, "skipped_rows", sum.SkippedRows,
		"selected", sum.Selected, "committed", sum.Committed)
	return sum, nil
}

func logSelection(selected []model.Seminar, tz string) {
	for _, rec := range selected {
		appLog.Info("new seminar",
			"title", rec.Title,
			"speaker", rec.Speaker,
			"start", rec.Start.Format("2006-01-02 15:04"),
			"tz", tz,
			"venue", rec.Location,
		)
	}
}
