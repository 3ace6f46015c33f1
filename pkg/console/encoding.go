package console

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Supported encoding names.
const (
	EncodingUTF8    = "utf8"
	EncodingCP1252  = "cp1252"
	EncodingCP437   = "cp437"
	EncodingCP850   = "cp850"
	EncodingCP866   = "cp866"
	EncodingUTF16LE = "utf16le"
	EncodingUTF16BE = "utf16be"
	EncodingAuto    = "auto"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// resolveEncoding maps a user-facing encoding name to a golang.org/x/text Encoding.
// "auto" resolves to UTF-8; the decoder switches on a UTF-16 byte-order mark.
func resolveEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case EncodingUTF8, "utf-8", "", EncodingAuto, "65001":
		return unicode.UTF8, nil
	case EncodingCP1252, "windows-1252", "latin1", "iso-8859-1", "1252":
		return charmap.Windows1252, nil
	case EncodingCP437, "ibm437", "oem", "437":
		return charmap.CodePage437, nil
	case EncodingCP850, "ibm850", "850":
		return charmap.CodePage850, nil
	case EncodingCP866, "ibm866", "866":
		return charmap.CodePage866, nil
	case EncodingUTF16LE, "utf-16le", "utf-16", "unicode", "1200":
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), nil
	case EncodingUTF16BE, "utf-16be", "1201":
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), nil
	default:
		return nil, fmt.Errorf("unsupported encoding: %q (supported: utf8, cp1252, cp437, cp850, cp866, utf16le, utf16be, auto)", name)
	}
}

func isAuto(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), EncodingAuto)
}

// detectBOM reports the byte-order mark data starts with, if any.
// enc is nil for a UTF-8 mark and for no mark at all.
func detectBOM(data []byte) (enc encoding.Encoding, n int) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return nil, len(bomUTF8)
	case bytes.HasPrefix(data, bomUTF16LE):
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), len(bomUTF16LE)
	case bytes.HasPrefix(data, bomUTF16BE):
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), len(bomUTF16BE)
	}
	return nil, 0
}

// inputEncoding picks the encoding Write uses: InputEncoding, else Encoding.
func (c Config) inputEncoding() (encoding.Encoding, error) {
	if c.InputEncoding != "" {
		return resolveEncoding(c.InputEncoding)
	}
	return resolveEncoding(c.Encoding)
}

// encodeText converts UTF-8 text to enc. UTF-8 is passed through; runes enc
// cannot represent are replaced.
func encodeText(enc encoding.Encoding, s string) ([]byte, error) {
	if enc == nil || enc == unicode.UTF8 {
		return []byte(s), nil
	}
	b, err := encoding.ReplaceUnsupported(enc.NewEncoder()).Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encode input: %w", err)
	}
	return b, nil
}
