package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const klantenProfile = `schema: klanten
mappings:
  - source: Name
    target: firstname
    transform: value.toUpperCase()
  - source: Name
    target: lastname
  - source: Phone
    target: phone
`

func TestSchemasCommand(t *testing.T) {
	out, _, err := run(t, "schemas")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "artikelen\t"))
	assert.True(t, strings.HasPrefix(lines[1], "klanten\t"))
}

func TestGroupsCommandFilters(t *testing.T) {
	out, _, err := run(t, "groups", "klanten", "--filter", "ev-num")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 21)
	assert.Contains(t, lines[0], "(20)")
	assert.Equal(t, "  ev-num-1", lines[1])

	_, _, err = run(t, "groups", "leveranciers")
	assert.Error(t, err)
}

func TestConvertToStdout(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "klanten.csv", "Name;Mail\nann;ann@example.com\nbob;bob@example.com\n")
	profilePath := writeFile(t, dir, "profile.yaml", klantenProfile)

	out, errOut, err := run(t, "convert", input, "--profile", profilePath)
	require.NoError(t, err)
	assert.Equal(t, "firstname;lastname\nANN;ann\nBOB;bob\n", out)
	assert.Contains(t, errOut, "skipped Phone → phone: source column not in dataset")

	_, _, err = run(t, "convert", input, "--profile", profilePath, "--strict")
	assert.Error(t, err)
}

func TestConvertToXLSXFile(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "klanten.csv", "Name,Mail\nann,ann@example.com\n")
	profilePath := writeFile(t, dir, "profile.yaml", klantenProfile)
	output := filepath.Join(dir, "out.xlsx")

	_, errOut, err := run(t, "convert", input, "-p", profilePath, "-o", output)
	require.NoError(t, err)
	assert.Contains(t, errOut, "wrote 1 rows")

	f, err := excelize.OpenFile(output)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"firstname", "lastname"}, {"ANN", "ann"}}, rows)
}

func TestConvertRequiresProfile(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "klanten.csv", "Name\nann\n")

	_, _, err := run(t, "convert", input)
	assert.Error(t, err)

	profilePath := writeFile(t, dir, "profile.yaml", "schema: leveranciers\nmappings: []\n")
	_, _, err = run(t, "convert", input, "--profile", profilePath)
	assert.Error(t, err)
}
