// Package ical assembles the outgoing calendar document: one VCALENDAR
// with METHOD:REQUEST wrapping one VEVENT per selected seminar.
//
// This is the most failure-prone stage of the pipeline: some mail and
// calendar clients silently reject an invite over a single malformed
// field. Serialization (CRLF termination, 75-octet line folding, RFC
// 5545 text escaping) is the library's job; this package owns UID
// derivation, UTC normalization, and a validation pass that refuses
// fields no client could safely decode.
package ical

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	ics "github.com/arran4/golang-ical"

	"seminarcal/internal/identity"
	"seminarcal/internal/model"
)

const prodID = "-//seminarcal//Seminar Sync//EN"

// Options carries the configuration-supplied calendar fields.
type Options struct {
	// UIDDomain is the suffix of event UIDs: <identity-key>@<uid-domain>.
	// UIDs are derived from the identity key so a re-sent seminar is
	// recognized by clients as the same event rather than a duplicate.
	UIDDomain string

	// OrganizerEmail and OrganizerName fill the ORGANIZER property.
	OrganizerEmail string
	OrganizerName  string

	// Attendees are listed on every event with RSVP requested.
	Attendees []string

	// SourceURL is quoted in event descriptions.
	SourceURL string

	// LocationPlaceholder replaces an empty venue. Defaults to "TBA".
	LocationPlaceholder string
}

// Build produces the calendar document for the selected seminars. now
// supplies DTSTAMP. Any field that cannot be safely encoded fails the
// whole build; the caller must not send a partially valid invite.
func Build(seminars []model.Seminar, now time.Time, opts Options) (*ics.Calendar, error) {
	placeholder := opts.LocationPlaceholder
	if placeholder == "" {
		placeholder = "TBA"
	}

	cal := ics.NewCalendar()
	cal.SetProductId(prodID)
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ics.MethodRequest)

	for _, rec := range seminars {
		if err := validateRecord(rec); err != nil {
			return nil, err
		}

		uid := identity.KeyFor(rec.RawKey) + "@" + opts.UIDDomain

		e := cal.AddEvent(uid)
		e.SetDtStampTime(now.UTC())
		e.SetStartAt(rec.Start.UTC())
		e.SetEndAt(rec.End.UTC())
		// Text values go in raw; the library escapes reserved characters
		// during Serialize.
		e.SetSummary(Summary(rec))
		e.SetDescription(description(rec, opts.SourceURL))

		location := rec.Location
		if location == "" {
			location = placeholder
		}
		e.SetLocation(location)

		if opts.OrganizerEmail != "" {
			props := []ics.PropertyParameter{}
			if opts.OrganizerName != "" {
				props = append(props, ics.WithCN(opts.OrganizerName))
			}
			e.SetOrganizer("mailto:"+opts.OrganizerEmail, props...)
		}
		for _, a := range opts.Attendees {
			e.AddAttendee(a,
				ics.CalendarUserTypeIndividual,
				ics.ParticipationStatusNeedsAction,
				ics.ParticipationRoleReqParticipant,
				ics.WithRSVP(true),
			)
		}

		e.SetSequence(0)
		e.SetStatus(ics.ObjectStatusConfirmed)
		e.SetTimeTransparency(ics.TransparencyOpaque)
		e.SetProperty(ics.ComponentProperty("PRIORITY"), "5")
		e.SetProperty(ics.ComponentProperty("CLASS"), "PUBLIC")
	}

	return cal, nil
}

// Summary is the event title line: the talk title, plus the speaker when
// one is listed.
func Summary(rec model.Seminar) string {
	if rec.Speaker == "" {
		return rec.Title
	}
	return rec.Title + " — " + rec.Speaker
}

func description(rec model.Seminar, sourceURL string) string {
	var b strings.Builder
	if rec.Speaker != "" {
		fmt.Fprintf(&b, "Speaker: %s\n", rec.Speaker)
	}
	if rec.Location != "" {
		fmt.Fprintf(&b, "Venue: %s\n", rec.Location)
	}
	if sourceURL != "" {
		fmt.Fprintf(&b, "Source: %s\n", sourceURL)
	}
	if rec.Link != "" {
		fmt.Fprintf(&b, "Details: %s\n", rec.Link)
	}
	return strings.TrimRight(b.String(), "\n")
}

// validateRecord rejects records whose text fields cannot be encoded into
// a calendar document any client would accept.
func validateRecord(rec model.Seminar) error {
	fields := map[string]string{
		"title":    rec.Title,
		"speaker":  rec.Speaker,
		"location": rec.Location,
	}
	for name, v := range fields {
		if !utf8.ValidString(v) {
			return fmt.Errorf("calendar encoding: %s of %q is not valid UTF-8", name, rec.Title)
		}
		for _, r := range v {
			if r < 0x20 || r == 0x7f {
				return fmt.Errorf("calendar encoding: %s of %q contains control character %q", name, rec.Title, r)
			}
		}
	}
	if rec.End.Before(rec.Start) {
		return fmt.Errorf("calendar encoding: %q ends before it starts", rec.Title)
	}
	return nil
}
