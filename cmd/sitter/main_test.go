package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/odvcencio/sitter/gotreesitter"
)

// run executes the CLI in-process and returns what it wrote to stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestParseCommand(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.js":         "let x = 1;",
		"data/b.json":  `{"a": 1}`,
		"notes.txt":    "not code",
		".hidden/c.js": "f(;",
	})

	out, err := run(t, "parse", dir)
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(dir, "a.js"))
	assert.Contains(t, out, "(program (lexical_declaration")
	assert.Contains(t, out, "(document (object")
	assert.NotContains(t, out, "notes.txt")
	assert.NotContains(t, out, "c.js")

	out, err = run(t, "parse", "--stats", filepath.Join(dir, "a.js"))
	require.NoError(t, err)
	assert.Contains(t, out, "tokens=")
}

func TestParseReportsSyntaxErrors(t *testing.T) {
	dir := writeFiles(t, map[string]string{"ok.js": "a;", "bad.js": "f(;"})

	out, err := run(t, "parse", "-q", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 files have syntax errors")
	assert.Contains(t, out, filepath.Join(dir, "bad.js")+":1:")
	assert.NotContains(t, out, "(program")

	out, err = run(t, "parse", "--format", "json", "-q", dir)
	require.Error(t, err)
	var results []parseResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	byName := map[string]parseResult{}
	for _, r := range results {
		byName[filepath.Base(r.Path)] = r
	}
	assert.True(t, byName["bad.js"].HasError)
	assert.NotEmpty(t, byName["bad.js"].Diagnostics)
	assert.False(t, byName["ok.js"].HasError)
	assert.Empty(t, byName["ok.js"].Tree)
}

func TestParseErrors(t *testing.T) {
	_, err := run(t, "parse")
	assert.ErrorIs(t, err, errNoPaths)

	dir := writeFiles(t, map[string]string{"notes.txt": "x"})
	_, err = run(t, "parse", filepath.Join(dir, "notes.txt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown language")

	_, err = run(t, "parse", "--format", "xml", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

func TestQueryCommand(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.js":      "a;\nf(b);",
		"calls.scm": "(call_expression function: (identifier) @fn)",
	})
	file := filepath.Join(dir, "a.js")

	out, err := run(t, "query", "-e", "(identifier) @id", file)
	require.NoError(t, err)
	assert.Equal(t, file+":1:1\t@id\ta\n"+file+":2:1\t@id\tf\n"+file+":2:3\t@id\tb\n", out)

	out, err = run(t, "query", "--format", "json", filepath.Join(dir, "calls.scm"), file)
	require.NoError(t, err)
	var results []queryResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	require.Len(t, results[0].Captures, 1)
	assert.Equal(t, "fn", results[0].Captures[0].Name)
	assert.Equal(t, "f", results[0].Captures[0].Text)

	_, err = run(t, "query", "-e", "(nonexistent) @x", file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonexistent")

	_, err = run(t, "query", "-e", "(identifier) @id")
	assert.ErrorIs(t, err, errNoPaths)
}

func TestHighlightCommand(t *testing.T) {
	src := "let x = \"hi\"; // note\n"
	dir := writeFiles(t, map[string]string{"a.js": src})
	file := filepath.Join(dir, "a.js")

	out, err := run(t, "highlight", "--no-color", file)
	require.NoError(t, err)
	assert.Equal(t, src, out)

	out, err = run(t, "highlight", "--format", "json", file)
	require.NoError(t, err)
	var results []highlightResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Ranges, gotreesitter.HighlightRange{StartByte: 0, EndByte: 3, Capture: "keyword"})
	assert.Contains(t, results[0].Ranges, gotreesitter.HighlightRange{StartByte: 8, EndByte: 12, Capture: "string"})
}

func TestPalette(t *testing.T) {
	saved := color.NoColor
	color.NoColor = false
	defer func() { color.NoColor = saved }()

	p, err := newPalette(map[string]string{"string": "bold yellow"})
	require.NoError(t, err)
	assert.NotNil(t, p.lookup("function.call"))
	assert.Same(t, p.lookup("function"), p.lookup("function.method"))
	assert.Nil(t, p.lookup("variable"))
	assert.Nil(t, p.lookup("unknown.capture"))

	var buf bytes.Buffer
	require.NoError(t, p.render(&buf, `x = "s";`, []gotreesitter.HighlightRange{{StartByte: 4, EndByte: 7, Capture: "string"}}))
	assert.Equal(t, `x = `+p.lookup("string").Sprint(`"s"`)+`;`, buf.String())
	assert.NotEqual(t, `x = "s";`, buf.String())

	_, err = newPalette(map[string]string{"keyword": "chartreuse"})
	assert.Error(t, err)
}

func TestConfigLoading(t *testing.T) {
	dir := t.TempDir()

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, defaultConfig().Addr, cfg.Addr)

	_, err = loadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(dir, "sitter.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: :9000\nparse_timeout: 2s\nworkers: 0\ntheme:\n  keyword: red\n"), 0o644))
	cfg, err = loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, 2*time.Second, cfg.ParseTimeout)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, "red", cfg.Theme["keyword"])
	assert.Equal(t, ".", cfg.Root)

	require.NoError(t, os.WriteFile(path, []byte("adress: typo\n"), 0o644))
	_, err = loadConfig(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))
	cfg, err = loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, defaultConfig().Addr, cfg.Addr)
}

func TestInitWritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sitter.yaml")
	out, err := run(t, "--config", path, "init")
	require.NoError(t, err)
	assert.Contains(t, out, path)

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)

	out, err = run(t, "--config", path, "languages")
	require.NoError(t, err)
	assert.Contains(t, out, "javascript")
	assert.Contains(t, out, "json")
}

func TestServe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	a := &app{cfg: defaultConfig(), log: zap.NewNop()}
	root := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.serve(ctx, ln, root) }()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(map[string]any{"id": 1, "method": "open", "params": map[string]any{"language": "javascript", "text": "a;"}}))
	var resp struct {
		Result struct {
			ID       string `json:"id"`
			Language string `json:"language"`
		} `json:"result"`
	}
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "javascript", resp.Result.Language)
	assert.NotEmpty(t, resp.Result.ID)
	conn.Close()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestCollectFiles(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.js":           "a;",
		"sub/b.mjs":      "b;",
		"sub/readme.md":  "# hi",
		".git/config.js": "x;",
	})
	files, err := collectFiles([]string{dir})
	require.NoError(t, err)
	var rel []string
	for _, f := range files {
		r, err := filepath.Rel(dir, f)
		require.NoError(t, err)
		rel = append(rel, filepath.ToSlash(r))
	}
	assert.Equal(t, []string{"a.js", "sub/b.mjs"}, rel)

	_, err = collectFiles([]string{filepath.Join(dir, "missing")})
	assert.Error(t, err)
	assert.False(t, strings.Contains(strings.Join(rel, " "), ".git"))
}
