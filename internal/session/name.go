package session

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxNameLength is the longest display name accepted, in runes.
const MaxNameLength = 32

// ErrInvalidName is returned for empty, oversized, or control-character names.
var ErrInvalidName = errors.New("invalid display name")

// NormalizeName trims and NFC-normalizes a self-reported display name so that
// visually identical names map to the same score-store key.
func NormalizeName(raw string) (string, error) {
	name := norm.NFC.String(strings.TrimSpace(raw))
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		return "", ErrInvalidName
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", ErrInvalidName
		}
	}
	return name, nil
}
