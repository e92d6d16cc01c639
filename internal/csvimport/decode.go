package csvimport

import (
	"bytes"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode turns an uploaded file into text. UTF-8 is tried first (with the
// byte-order mark removed); anything else is read as Latin-1, which maps
// every byte. NUL characters are dropped and line endings become "\n".
func Decode(raw []byte) string {
	var text string
	if utf8.Valid(raw) {
		text = string(bytes.TrimPrefix(raw, utf8BOM))
	} else {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
		if err != nil {
			// ISO-8859-1 has no invalid bytes; keep whatever is valid.
			decoded = bytes.ToValidUTF8(raw, nil)
		}
		text = string(decoded)
	}

	text = strings.ReplaceAll(text, "\x00", "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// NormalizeHeader strips accents and case so "Odômetro " matches "odometro".
func NormalizeHeader(h string) string {
	t := transform.Chain(
		norm.NFKD,
		runes.Remove(runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })),
	)
	out, _, err := transform.String(t, h)
	if err != nil {
		out = h
	}
	return strings.ToLower(strings.TrimSpace(out))
}
