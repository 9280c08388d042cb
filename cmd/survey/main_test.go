package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommandFromStdin(t *testing.T) {
	var out bytes.Buffer
	parseCmd.SetOut(&out)
	parseCmd.SetIn(strings.NewReader("Headline: Big news\n\nText: Details here"))
	defer parseCmd.SetIn(nil)

	require.NoError(t, runParse(parseCmd, []string{"-"}))
	assert.Equal(t, "title: Big news\nbody:\nDetails here\n", out.String())
}

func TestParseCommandFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.txt")
	require.NoError(t, os.WriteFile(path, []byte("  just a body  "), 0o644))

	var out bytes.Buffer
	parseCmd.SetOut(&out)
	require.NoError(t, runParse(parseCmd, []string{path}))
	assert.Equal(t, "title: (none)\nbody:\njust a body\n", out.String())
}

func TestCatalogCommand(t *testing.T) {
	dir := t.TempDir()
	texts := filepath.Join(dir, "texts.json")
	require.NoError(t, os.WriteFile(texts, []byte(`[
		{"text_id":"b","text":"headline: Second\n\ntext: x","topic":"climate"},
		{"text_id":"a","text":"no title","topic":"health"}
	]`), 0o644))
	t.Setenv("SURVEY_TEXTS_URL", texts)

	configPath = filepath.Join(dir, "missing.yaml")
	defer func() { configPath = "survey.yaml" }()

	var out bytes.Buffer
	catalogCmd.SetOut(&out)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	catalogCmd.SetContext(ctx)
	require.NoError(t, runCatalog(catalogCmd, nil))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.True(t, strings.HasPrefix(lines[1], "a "))
	assert.Contains(t, lines[2], "Second")
	assert.Contains(t, out.String(), "2 texts")
}
