package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yashubustudio/brandmatch/brandmatch"
)

func runApp(t *testing.T, args ...string) string {
	t.Helper()
	app := newApp()
	var out bytes.Buffer
	app.Writer = &out
	require.NoError(t, app.Run(append([]string{"brandmatch-cli"}, args...)))
	return out.String()
}

func writeCorpus(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "marcas.csv")
	require.NoError(t, os.WriteFile(path, []byte("marca\ncocacola\ncoca cola light\npepsi\nBimbo\n"), 0o644))
	return path
}

func baseArgs(dir, corpus string) []string {
	return []string{
		"--quiet",
		"--config", filepath.Join(dir, "config.json"),
		"--corpus", corpus,
		"--strategy", brandmatch.StrategyLevenshtein,
		"--strategy", brandmatch.StrategyNGram,
		"--strategy", brandmatch.StrategyPhonetic,
	}
}

func TestSearchCommandJSON(t *testing.T) {
	dir := t.TempDir()
	args := append(baseArgs(dir, writeCorpus(t, dir)), "search", "--json", "--threshold", "70", "coca-cola")
	out := runApp(t, args...)

	var report brandmatch.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.NotEmpty(t, report.Matches)
	assert.Equal(t, "cocacola", report.Matches[0].Term)
	assert.Equal(t, 70.0, report.Threshold)
}

func TestSearchCommandSingleStrategy(t *testing.T) {
	dir := t.TempDir()
	args := append(baseArgs(dir, writeCorpus(t, dir)), "search", "--only", "ngram", "--limit", "1", "coca-cola")
	out := runApp(t, args...)
	assert.Contains(t, out, "cocacola")
	assert.Equal(t, 1, strings.Count(strings.TrimSpace(out), "\n")+1)
}

func TestBatchCommandWritesCSV(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "consultas.txt")
	require.NoError(t, os.WriteFile(input, []byte("bimbo\ncoca-cola\n"), 0o644))
	output := filepath.Join(dir, "out", "res.csv")

	args := append(baseArgs(dir, writeCorpus(t, dir)), "batch", "--input", input, "--output", output, "--threshold", "90")
	out := runApp(t, args...)
	assert.Contains(t, out, output)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(data), "bimbo,1,Bimbo,100.00")
	assert.Contains(t, string(data), "coca-cola,1,Cocacola,100.00,ngram,character")
}

func TestStrategiesCommand(t *testing.T) {
	dir := t.TempDir()
	out := runApp(t, "--quiet", "--config", filepath.Join(dir, "config.json"), "strategies")
	for _, name := range []string{"sbert", "beto", "levenshtein", "ngram", "phonetic"} {
		assert.Contains(t, out, name)
	}
}

func TestResolveOutputPath(t *testing.T) {
	dir := t.TempDir()
	path, err := resolveOutputPath("", filepath.Join(dir, "csv"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "result_"))
	assert.DirExists(t, filepath.Join(dir, "csv"))

	path, err = resolveOutputPath(filepath.Join(dir, "a", "b.xlsx"), "")
	require.NoError(t, err)
	assert.Equal(t, ".xlsx", filepath.Ext(path))
	assert.DirExists(t, filepath.Join(dir, "a"))
}
