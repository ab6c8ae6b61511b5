package model

import "time"

// RawKey holds the verbatim source-page field values a seminar's identity
// is derived from. Keeping the raw text (rather than the parsed record)
// makes the hash reproducible even if parsing rules are tightened later.
// Speaker text is deliberately absent: speaker bios get reworded on the
// page without the talk itself changing.
type RawKey struct {
	Title    string
	DateText string
	TimeText string
	Location string
}

// Seminar is one row extracted from the listing page.
type Seminar struct {
	Title    string
	Speaker  string
	Location string

	// Link is the talk's detail/poster URL resolved against the page URL,
	// empty if the title is not linked.
	Link string

	// Start and End are in the configured timezone. End >= Start always
	// holds for a parsed record.
	Start time.Time
	End   time.Time

	RawKey RawKey
}

// SentState is the set of identity keys already notified, plus audit
// metadata. It is the only value with cross-run persistence.
type SentState struct {
	Sent       map[string]struct{}
	LastSentAt time.Time
}

// NewSentState returns an empty state, the canonical first-run value.
func NewSentState() SentState {
	return SentState{Sent: make(map[string]struct{})}
}

// Contains reports whether the key was already notified.
func (s SentState) Contains(key string) bool {
	_, ok := s.Sent[key]
	return ok
}

// Keys returns the stored keys in unspecified order.
func (s SentState) Keys() []string {
	out := make([]string, 0, len(s.Sent))
	for k := range s.Sent {
		out = append(out, k)
	}
	return out
}

// With returns a copy of the state extended with the given keys and a new
// send timestamp. The receiver is not modified; Commit works on values.
func (s SentState) With(keys []string, sentAt time.Time) SentState {
	next := SentState{
		Sent:       make(map[string]struct{}, len(s.Sent)+len(keys)),
		LastSentAt: sentAt,
	}
	for k := range s.Sent {
		next.Sent[k] = struct{}{}
	}
	for _, k := range keys {
		next.Sent[k] = struct{}{}
	}
	return next
}
