package grammars

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDetectLanguage(t *testing.T) {
	tests := map[string]string{
		"main.js":          "javascript",
		"lib/util.MJS":     "javascript",
		"package.json":     "json",
		"totals.calc":      "arithmetic",
		"dir.json/main.js": "javascript",
	}
	for filename, want := range tests {
		entry := DetectLanguage(filename)
		require.NotNil(t, entry, filename)
		assert.Equal(t, want, entry.Name, filename)
	}
}

func TestDetectLanguageUnknown(t *testing.T) {
	assert.Nil(t, DetectLanguage("readme.xyz"))
	assert.Nil(t, DetectLanguage("Makefile"))
}

func TestDetectLanguageByShebang(t *testing.T) {
	entry := DetectLanguageByShebang("#!/usr/bin/env node")
	require.NotNil(t, entry)
	assert.Equal(t, "javascript", entry.Name)

	assert.Nil(t, DetectLanguageByShebang("#!/usr/bin/env python3"))
}

func TestDetectFallsBackToShebang(t *testing.T) {
	entry := Detect("script", []byte("#!/usr/bin/node\nconsole.log(1);\n"))
	require.NotNil(t, entry)
	assert.Equal(t, "javascript", entry.Name)

	assert.Nil(t, Detect("notes", nil))
}

func TestLookup(t *testing.T) {
	entry := Lookup("JSON")
	require.NotNil(t, entry)
	assert.Equal(t, "json", entry.Name)
	assert.NotNil(t, entry.TokenSourceFactory)
	assert.Nil(t, Lookup("cobol"))
}

func TestAllLanguages(t *testing.T) {
	var names []string
	for _, l := range AllLanguages() {
		names = append(names, l.Name)
		assert.NotEmpty(t, l.HighlightQuery, l.Name)
	}
	assert.ElementsMatch(t, []string{"arithmetic", "javascript", "json"}, names)
}

func TestLanguagesBuildOnce(t *testing.T) {
	for _, l := range AllLanguages() {
		assert.Same(t, l.Language(), l.Language(), l.Name)
	}
}

func TestEntryParserUsesPackageLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	entry := Lookup("arithmetic")
	require.NotNil(t, entry)
	parser, err := entry.NewParser()
	require.NoError(t, err)
	tree := entry.Parse(parser, []byte("1 +;"), nil)
	require.NotNil(t, tree)
	defer tree.Close()

	assert.True(t, tree.RootNode().HasError())
	assert.NotZero(t, logs.Len())
}

func TestEntryHighlighter(t *testing.T) {
	for _, l := range AllLanguages() {
		_, err := l.NewHighlighter()
		assert.NoError(t, err, l.Name)
	}
}
