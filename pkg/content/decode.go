package content

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Decode turns raw bytes into text using a fallback chain:
// UTF-8, then UTF-16 (BOM or zero-byte heuristic), then Windows-1252.
// Partial runes at either edge of b are dropped, which lets callers decode
// arbitrary chunk windows.
func Decode(b []byte) string {
	switch {
	case bytes.HasPrefix(b, bomUTF8):
		b = b[len(bomUTF8):]
	case bytes.HasPrefix(b, bomUTF16LE):
		return decodeWith(unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), b)
	case bytes.HasPrefix(b, bomUTF16BE):
		return decodeWith(unicode.UTF16(unicode.BigEndian, unicode.UseBOM), b)
	}

	// NUL bytes are valid UTF-8, so UTF-16 has to be ruled out first.
	if order, ok := sniffUTF16(b); ok {
		return decodeWith(unicode.UTF16(order, unicode.IgnoreBOM), b)
	}

	trimmed := trimPartialRunes(b)
	if utf8.Valid(trimmed) {
		return string(trimmed)
	}

	return decodeWith(charmap.Windows1252, b)
}

func decodeWith(enc encoding.Encoding, b []byte) string {
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "")
	}
	return string(out)
}

// trimPartialRunes drops leading continuation bytes and a truncated
// trailing sequence.
func trimPartialRunes(b []byte) []byte {
	start := 0
	for start < len(b) && start < utf8.UTFMax && !utf8.RuneStart(b[start]) {
		start++
	}
	b = b[start:]

	for cut := 1; cut < utf8.UTFMax && cut <= len(b); cut++ {
		i := len(b) - cut
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return b[:i]
			}
			break
		}
	}
	return b
}

// sniffUTF16 guesses BOM-less UTF-16 from the share of zero bytes in even
// and odd positions. Mostly-ASCII UTF-16LE text has zeros at odd offsets.
func sniffUTF16(b []byte) (unicode.Endianness, bool) {
	n := len(b)
	if n > 4096 {
		n = 4096
	}
	if n < 4 {
		return unicode.LittleEndian, false
	}

	var even, odd int
	for i := 0; i < n; i++ {
		if b[i] != 0 {
			continue
		}
		if i%2 == 0 {
			even++
		} else {
			odd++
		}
	}

	half := n / 2
	switch {
	case odd*10 > half*4 && even*10 < half:
		return unicode.LittleEndian, true
	case even*10 > half*4 && odd*10 < half:
		return unicode.BigEndian, true
	default:
		return unicode.LittleEndian, false
	}
}
