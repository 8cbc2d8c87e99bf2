package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/citefix/internal/scan"
)

func writeFile(t *testing.T, path string, b []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, b, 0o644))
}

// flags 构造与 CLI 相同的 flag 集合并解析 args。
func flags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("bib", "", "")
	fs.Float64("threshold", DefaultThreshold, "")
	fs.Float64("suggest-threshold", DefaultSuggestThreshold, "")
	fs.Bool("dry-run", false, "")
	fs.BoolP("interactive", "i", false, "")
	fs.Bool("plain", false, "")
	fs.BoolP("verbose", "v", false, "")
	fs.StringP("output", "o", "", "")
	fs.String("format", "markdown", "")
	fs.StringSlice("exclude", scan.DefaultExcludeDirs, "")
	fs.String("ext", scan.DefaultExt, "")
	fs.String("ignore-file", "", "")
	fs.String("log-level", "info", "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadEffective_Defaults(t *testing.T) {
	cwd := t.TempDir()

	eff, err := LoadEffective(cwd, CLIArgs{Flags: flags(t, "--bib", "lit.bib")})
	require.NoError(t, err)
	assert.Equal(t, cwd, eff.Root)
	assert.Equal(t, filepath.Join(cwd, "lit.bib"), eff.BibPath)
	assert.Equal(t, DefaultThreshold, eff.Threshold)
	assert.Equal(t, DefaultSuggestThreshold, eff.SuggestThreshold)
	assert.Equal(t, "markdown", eff.Format)
	assert.Equal(t, scan.DefaultExcludeDirs, eff.ExcludeDirs)
	assert.Equal(t, ".tex", eff.Ext)
	assert.Equal(t, filepath.Join(cwd, ".citefixignore"), eff.IgnoreFile)
	assert.Empty(t, eff.Output)
	assert.Empty(t, eff.ConfigFile)
	assert.False(t, eff.DryRun)
}

func TestLoadEffective_MissingBib(t *testing.T) {
	_, err := LoadEffective(t.TempDir(), CLIArgs{Flags: flags(t)})
	assert.Equal(t, ErrCodeMissingBib, Code(err))
}

func TestLoadEffective_ConfigNotFound(t *testing.T) {
	_, err := LoadEffective(t.TempDir(), CLIArgs{ConfigFile: "nope.yaml", Flags: flags(t)})
	assert.Equal(t, ErrCodeNotFound, Code(err), "err=%v", err)
}

func TestLoadEffective_ConfigInvalid(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "citefix.yaml"), []byte("threshold: [\n"))

	_, err := LoadEffective(cwd, CLIArgs{Flags: flags(t, "--bib", "x.bib")})
	assert.Equal(t, ErrCodeInvalid, Code(err), "err=%v", err)
}

func TestLoadEffective_FileThenFlagOverride(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "citefix.yaml"), []byte(`
root: thesis
bib: thesis/literatur.bib
dry_run: true
threshold: 0.95
suggest_threshold: 0.6
exclude: [alt, build]
format: json
`))

	eff, err := LoadEffective(cwd, CLIArgs{Flags: flags(t)})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cwd, "thesis"), eff.Root)
	assert.Equal(t, filepath.Join(cwd, "thesis", "literatur.bib"), eff.BibPath)
	assert.True(t, eff.DryRun)
	assert.Equal(t, 0.95, eff.Threshold)
	assert.Equal(t, []string{"alt", "build"}, eff.ExcludeDirs)
	assert.Equal(t, "json", eff.Format)
	assert.Equal(t, filepath.Join(cwd, "citefix.yaml"), eff.ConfigFile)

	// --dry-run=false 必须能覆盖配置文件里的 true；未显式设置的 flag 不覆盖。
	eff, err = LoadEffective(cwd, CLIArgs{Root: "other", Flags: flags(t, "--dry-run=false", "--threshold", "0.9")})
	require.NoError(t, err)
	assert.False(t, eff.DryRun)
	assert.Equal(t, 0.9, eff.Threshold)
	assert.Equal(t, 0.6, eff.SuggestThreshold)
	assert.Equal(t, filepath.Join(cwd, "other"), eff.Root, "位置参数优先于配置文件 root")
	assert.Equal(t, filepath.Join(cwd, "other", ".citefixignore"), eff.IgnoreFile)
}

func TestLoadEffective_EnvBetweenFlagAndFile(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "citefix.json"), []byte(`{"bib":"a.bib","threshold":0.95}`))
	t.Setenv("CITEFIX_THRESHOLD", "0.93")
	t.Setenv("CITEFIX_BIB", "env.bib")

	eff, err := LoadEffective(cwd, CLIArgs{Flags: flags(t)})
	require.NoError(t, err)
	assert.Equal(t, 0.93, eff.Threshold)
	assert.Equal(t, filepath.Join(cwd, "env.bib"), eff.BibPath)

	eff, err = LoadEffective(cwd, CLIArgs{Flags: flags(t, "--bib", "flag.bib")})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cwd, "flag.bib"), eff.BibPath)
}

func TestLoadEffective_ExplicitConfigFile(t *testing.T) {
	cwd := t.TempDir()
	p := filepath.Join(cwd, "conf", "mine.toml")
	writeFile(t, p, []byte("bib = \"x.bib\"\next = \"ltx\"\n"))

	eff, err := LoadEffective(cwd, CLIArgs{ConfigFile: p, Flags: flags(t)})
	require.NoError(t, err)
	assert.Equal(t, ".ltx", eff.Ext)
	assert.Equal(t, p, eff.ConfigFile)
}

func TestLoadEffective_Validation(t *testing.T) {
	cwd := t.TempDir()
	cases := [][]string{
		{"--bib", "b", "--threshold", "1.5"},
		{"--bib", "b", "--suggest-threshold", "-0.1"},
		{"--bib", "b", "--format", "xml"},
		{"--bib", "b", "--log-level", "trace"},
	}
	for _, args := range cases {
		_, err := LoadEffective(cwd, CLIArgs{Flags: flags(t, args...)})
		assert.Equal(t, ErrCodeInvalid, Code(err), "args=%v err=%v", args, err)
	}
}

func TestLoadEffective_ThresholdBelowSuggest(t *testing.T) {
	cwd := t.TempDir()

	eff, err := LoadEffective(cwd, CLIArgs{Flags: flags(t, "--bib", "b", "--threshold", "0.65")})
	require.NoError(t, err)
	assert.Equal(t, 0.65, eff.Threshold)
	assert.Equal(t, DefaultSuggestThreshold, eff.SuggestThreshold)
}

func TestLoadEffective_OutputDash(t *testing.T) {
	eff, err := LoadEffective(t.TempDir(), CLIArgs{Flags: flags(t, "--bib", "b", "-o", "-")})
	require.NoError(t, err)
	assert.Empty(t, eff.Output, "- 表示 stdout")
}
