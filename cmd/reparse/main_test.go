package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/dhamidi/reparse/languages/rigz"
	"github.com/dhamidi/reparse/parser"
	"github.com/dhamidi/reparse/source"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, fs afero.Fs, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(fs)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func memFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, text := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(text), 0o644))
	}
	return fs
}

func freshSExpr(t *testing.T, text string) string {
	t.Helper()
	p, err := parser.New(rigz.Language())
	require.NoError(t, err)
	tr, err := p.Parse(context.Background(), source.String(text), nil)
	require.NoError(t, err)
	return tr.String()
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		args     []string
		want     string
		contains []string
	}{
		{
			name: "s-expression",
			text: "a=1",
			want: "(program (assignment (identifier) (=) (number)))\n",
		},
		{
			name:     "tree outline",
			text:     "a=1",
			args:     []string{"--format", "tree"},
			contains: []string{"program\n", "  assignment\n", "    identifier \"a\"\n", "    number \"1\"\n"},
		},
		{
			name:     "positions",
			text:     "a=1",
			args:     []string{"--format", "tree", "--positions"},
			contains: []string{"number [0:2-0:3]"},
		},
		{
			name:     "forced color",
			text:     "a = 1",
			args:     []string{"--format", "tree", "--color", "always"},
			contains: []string{"\x1b["},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := memFs(t, map[string]string{"main.rigz": tt.text})
			stdout, stderr, err := run(t, fs, append([]string{"parse", "main.rigz"}, tt.args...)...)
			require.NoError(t, err)
			assert.Empty(t, stderr)
			if tt.want != "" {
				assert.Equal(t, tt.want, stdout)
			}
			for _, s := range tt.contains {
				assert.Contains(t, stdout, s)
			}
			if tt.name != "forced color" {
				assert.NotContains(t, stdout, "\x1b[")
			}
		})
	}
}

func TestParseCommandReportsErrors(t *testing.T) {
	fs := memFs(t, map[string]string{"main.rigz": "let s = 1 ~"})

	stdout, stderr, err := run(t, fs, "parse", "main.rigz")
	require.NoError(t, err)
	assert.Contains(t, stdout, "ERROR")
	assert.Contains(t, stderr, "main.rigz:1:")

	_, _, err = run(t, fs, "parse", "--check", "main.rigz")
	assert.ErrorIs(t, err, errSyntax)
}

func TestParseCommandFailures(t *testing.T) {
	fs := memFs(t, map[string]string{"main.rigz": "a"})
	tests := []struct {
		name string
		args []string
	}{
		{"missing file", []string{"parse", "nope.rigz"}},
		{"missing table", []string{"--table", "nope.bin", "parse", "main.rigz"}},
		{"unknown format", []string{"parse", "--format", "xml", "main.rigz"}},
		{"unknown color mode", []string{"parse", "--color", "sometimes", "main.rigz"}},
		{"no arguments", []string{"parse"}},
		{"negative operation limit", []string{"--operation-limit", "-1", "parse", "main.rigz"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, fs, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestEditCommand(t *testing.T) {
	fs := memFs(t, map[string]string{"main.rigz": "a = 1\nb = 2\n"})

	stdout, stderr, err := run(t, fs, "edit", "main.rigz", "--start", "10", "--end", "11", "--insert", "3", "--verify", "--write")
	require.NoError(t, err)
	assert.Equal(t, freshSExpr(t, "a = 1\nb = 3\n")+"\n", stdout)
	assert.Contains(t, stderr, "reused")

	data, err := afero.ReadFile(fs, "main.rigz")
	require.NoError(t, err)
	assert.Equal(t, "a = 1\nb = 3\n", string(data))
}

func TestEditCommandInsertion(t *testing.T) {
	fs := memFs(t, map[string]string{"main.rigz": "a = 1\n"})

	stdout, _, err := run(t, fs, "edit", "main.rigz", "--start", "5", "--insert", " + 2", "--verify")
	require.NoError(t, err)
	assert.Equal(t, freshSExpr(t, "a = 1 + 2\n")+"\n", stdout)

	data, err := afero.ReadFile(fs, "main.rigz")
	require.NoError(t, err)
	assert.Equal(t, "a = 1\n", string(data), "the file is only written with --write")
}

func TestEditCommandRejectsBadRange(t *testing.T) {
	fs := memFs(t, map[string]string{"main.rigz": "a = 1"})
	_, _, err := run(t, fs, "edit", "main.rigz", "--start", "3", "--end", "99")
	assert.Error(t, err)
	_, _, err = run(t, fs, "edit", "main.rigz", "--start", "3", "--end", "2")
	assert.Error(t, err)
}

func TestTableCommands(t *testing.T) {
	fs := memFs(t, map[string]string{"main.rigz": "let a = [1, 2]\n"})

	_, _, err := run(t, fs, "table", "encode", "-o", "rigz.bin")
	require.NoError(t, err)
	exists, err := afero.Exists(fs, "rigz.bin")
	require.NoError(t, err)
	require.True(t, exists)

	stdout, _, err := run(t, fs, "--table", "rigz.bin", "table", "info", "--symbols")
	require.NoError(t, err)
	assert.Contains(t, stdout, "name:     rigz")
	assert.Contains(t, stdout, "format:   1.0")
	assert.Contains(t, stdout, "scanner:  rigz")
	assert.Contains(t, stdout, "block_comment  (external, extra)")
	assert.Contains(t, stdout, "let_binding")

	builtin, _, err := run(t, fs, "parse", "main.rigz")
	require.NoError(t, err)
	loaded, _, err := run(t, fs, "--table", "rigz.bin", "parse", "main.rigz")
	require.NoError(t, err)
	assert.Equal(t, builtin, loaded)

	stdout, _, err = run(t, fs, "table", "check")
	require.NoError(t, err)
	assert.Contains(t, stdout, "productions ok")
}

func TestTableEncodeToStdout(t *testing.T) {
	fs := afero.NewMemMapFs()
	stdout, _, err := run(t, fs, "table", "encode")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix([]byte(stdout), []byte("RPGT")))
}

func TestColorEnabled(t *testing.T) {
	var buf bytes.Buffer
	tests := []struct {
		mode    string
		want    bool
		wantErr bool
	}{
		{"always", true, false},
		{"never", false, false},
		{"auto", false, false},
		{"rainbow", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			got, err := colorEnabled(tt.mode, &buf)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
