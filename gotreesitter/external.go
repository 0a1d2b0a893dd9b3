package gotreesitter

import "bytes"

// RunExternalScanner invokes the language's external scanner if present.
// Returns true if the scanner produced a token, false otherwise.
func RunExternalScanner(lang *Language, payload any, lexer *ExternalLexer, validSymbols []bool) bool {
	if lang.ExternalScanner == nil {
		return false
	}
	return lang.ExternalScanner.Scan(payload, lexer, validSymbols)
}

// externalStatesEqual compares two serialized scanner states; nil and empty
// states are equal.
func externalStatesEqual(a, b []byte) bool {
	return bytes.Equal(a, b)
}
