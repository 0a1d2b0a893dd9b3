package gotreesitter

import (
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// TextProvider returns the UTF-8 text of a node. Query predicates compare
// against it.
type TextProvider func(n *Node) []byte

// SourceText provides node text from a UTF-8 source buffer.
func SourceText(source []byte) TextProvider {
	return func(n *Node) []byte {
		return sliceSource(source, n.StartByte(), n.EndByte())
	}
}

// UTF16Text provides node text from a UTF-16 source buffer, converted to
// UTF-8.
func UTF16Text(source []byte, enc InputEncoding) TextProvider {
	codec := utf16Codec(enc)
	return func(n *Node) []byte {
		raw := sliceSource(source, n.StartByte(), n.EndByte())
		out, err := codec.NewDecoder().Bytes(raw)
		if err != nil {
			return nil
		}
		return out
	}
}

// TreeText provides node text from the source the tree was parsed from,
// honoring its encoding.
func TreeText(t *Tree) TextProvider {
	if t.Encoding() == InputEncodingUTF8 {
		return SourceText(t.Source())
	}
	return UTF16Text(t.Source(), t.Encoding())
}

// EncodeUTF16 converts UTF-8 text to UTF-16 in the given byte order.
func EncodeUTF16(text string, enc InputEncoding) ([]byte, error) {
	return utf16Codec(enc).NewEncoder().Bytes([]byte(text))
}

// DecodeUTF16 converts UTF-16 text in the given byte order to UTF-8.
func DecodeUTF16(text []byte, enc InputEncoding) ([]byte, error) {
	return utf16Codec(enc).NewDecoder().Bytes(text)
}

func utf16Codec(enc InputEncoding) encoding.Encoding {
	if enc == InputEncodingUTF16BE {
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	}
	return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
}

func sliceSource(source []byte, start, end uint32) []byte {
	if int(end) > len(source) {
		end = uint32(len(source))
	}
	if start > end {
		return nil
	}
	return source[start:end]
}
