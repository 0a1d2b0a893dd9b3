package gotreesitter

import (
	"unicode/utf16"
	"unicode/utf8"
)

// InputEncoding declares how source bytes are encoded.
type InputEncoding uint8

const (
	InputEncodingUTF8 InputEncoding = iota
	InputEncodingUTF16LE
	InputEncodingUTF16BE
)

func (e InputEncoding) String() string {
	switch e {
	case InputEncodingUTF16LE:
		return "utf-16le"
	case InputEncodingUTF16BE:
		return "utf-16be"
	default:
		return "utf-8"
	}
}

// ReadFunc returns the chunk of source text starting at byteOffset. An empty
// slice signals end of input. The returned slice is only read until the next
// call.
type ReadFunc func(byteOffset uint32, position Point) []byte

// Input is a pull-based source of text for the parser.
type Input struct {
	Read     ReadFunc
	Encoding InputEncoding
}

// BytesInput returns an Input that reads from an in-memory buffer.
func BytesInput(source []byte, encoding InputEncoding) Input {
	return Input{
		Read: func(byteOffset uint32, _ Point) []byte {
			if int(byteOffset) >= len(source) {
				return nil
			}
			return source[byteOffset:]
		},
		Encoding: encoding,
	}
}

// decodeRune decodes one character from chunk. Malformed sequences decode as
// utf8.RuneError with the width of one code unit so the lexer always
// advances. needMore reports a sequence truncated at the chunk boundary.
func decodeRune(chunk []byte, encoding InputEncoding) (r rune, size int, needMore bool) {
	switch encoding {
	case InputEncodingUTF16LE, InputEncodingUTF16BE:
		if len(chunk) < 2 {
			return utf8.RuneError, len(chunk), true
		}
		u := utf16Unit(chunk, encoding)
		if !utf16.IsSurrogate(rune(u)) {
			return rune(u), 2, false
		}
		if u >= 0xdc00 {
			return utf8.RuneError, 2, false
		}
		if len(chunk) < 4 {
			return utf8.RuneError, 2, true
		}
		r := utf16.DecodeRune(rune(u), rune(utf16Unit(chunk[2:], encoding)))
		if r == utf8.RuneError {
			return utf8.RuneError, 2, false
		}
		return r, 4, false
	default:
		if len(chunk) == 0 {
			return utf8.RuneError, 0, true
		}
		if chunk[0] < utf8.RuneSelf {
			return rune(chunk[0]), 1, false
		}
		if !utf8.FullRune(chunk) {
			return utf8.RuneError, 1, true
		}
		r, size := utf8.DecodeRune(chunk)
		return r, size, false
	}
}

func utf16Unit(b []byte, encoding InputEncoding) uint16 {
	if encoding == InputEncodingUTF16BE {
		return uint16(b[0])<<8 | uint16(b[1])
	}
	return uint16(b[1])<<8 | uint16(b[0])
}
