// Package selector computes the new-and-upcoming subset of parsed records.
package selector

import (
	"time"

	"seminarcal/internal/identity"
	"seminarcal/internal/model"
)

// Select returns, in source order, the records whose identity key is not
// in the sent state and whose start is not in the past. grace lets a
// seminar that started up to that long ago still count as upcoming. An
// empty result is a normal outcome: the caller sends nothing and commits
// nothing.
func Select(records []model.Seminar, sent model.SentState, now time.Time, grace time.Duration) []model.Seminar {
	cutoff := now.Add(-grace)

	var out []model.Seminar
	for _, rec := range records {
		if rec.Start.Before(cutoff) {
			continue
		}
		if sent.Contains(identity.KeyFor(rec.RawKey)) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Keys returns the identity keys for the given records, in order.
func Keys(records []model.Seminar) []string {
	out := make([]string, len(records))
	for i, rec := range records {
		out[i] = identity.KeyFor(rec.RawKey)
	}
	return out
}
