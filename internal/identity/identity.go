// Package identity derives the stable deduplication key for a seminar.
//
// The key is a pure function of the row's raw title, date text, time text
// and location: cosmetic page edits (whitespace, casing, speaker bio
// rewording) never change it, while a real change to the talk's title,
// slot or venue always does.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"seminarcal/internal/model"
)

// KeyFor returns the hex-encoded identity key for the given raw fields.
func KeyFor(k model.RawKey) string {
	material := strings.Join([]string{
		Normalize(k.Title),
		Normalize(k.DateText),
		Normalize(k.TimeText),
		Normalize(k.Location),
	}, "\n")

	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}

// Normalize trims, case-folds and collapses internal whitespace so that
// cosmetic differences in the source text hash identically.
func Normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
