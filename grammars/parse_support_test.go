package grammars

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/sitter/gotreesitter"
)

var parseSmokeSamples = map[string]string{
	"arithmetic": "x = 1 + 2;\n",
	"javascript": "function f() { return 1; }\n",
	"json":       "{\"a\": 1}\n",
}

func TestSupportedLanguagesParseSmoke(t *testing.T) {
	reports := AuditParseSupport()
	require.Len(t, reports, len(parseSmokeSamples))

	for _, report := range reports {
		t.Run(report.Name, func(t *testing.T) {
			sample, ok := parseSmokeSamples[report.Name]
			require.True(t, ok, "missing parse smoke sample")
			require.NotEqual(t, ParseBackendUnsupported, report.Backend, report.Reason)
			assert.True(t, report.VersionCompatible)
			assert.True(t, report.HasDFALexer)

			entry := Lookup(report.Name)
			require.NotNil(t, entry)
			parser, err := entry.NewParser()
			require.NoError(t, err)

			tree := entry.Parse(parser, []byte(sample), nil)
			require.NotNil(t, tree)
			defer tree.Close()
			assert.False(t, tree.RootNode().HasError(), tree.RootNode().String())
		})
	}
}

func TestAuditParseSupportBackends(t *testing.T) {
	got := make(map[string]ParseBackend)
	for _, r := range AuditParseSupport() {
		got[r.Name] = r.Backend
	}
	assert.Equal(t, map[string]ParseBackend{
		"arithmetic": ParseBackendDFA,
		"javascript": ParseBackendDFA,
		"json":       ParseBackendTokenSource,
	}, got)
}

func TestEvaluateParseSupportRejectsIncompatibleVersion(t *testing.T) {
	lang := &gotreesitter.Language{Name: "old", ABIVersion: 9}
	report := EvaluateParseSupport(LangEntry{Name: "old"}, lang)
	assert.Equal(t, ParseBackendUnsupported, report.Backend)
	assert.False(t, report.VersionCompatible)
	assert.Contains(t, report.Reason, "incompatible")
}

func TestEvaluateParseSupportMissingLexer(t *testing.T) {
	lang := &gotreesitter.Language{Name: "bare", ABIVersion: gotreesitter.LanguageVersion}
	report := EvaluateParseSupport(LangEntry{Name: "bare"}, lang)
	assert.Equal(t, ParseBackendUnsupported, report.Backend)
	assert.Contains(t, report.Reason, "LexStates")
}
