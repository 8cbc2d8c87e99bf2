package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	// 断言按纯文本比较进度行，不受运行测试的终端影响。
	lipgloss.SetColorProfile(termenv.Ascii)
	os.Exit(m.Run())
}

const testBib = `@article{Smith2019, title={A}}
@book{Jones2020, title={B}}
`

// corpus 建一个最小文稿：一个可自动修正的 key，一个没有候选的 key。
func corpus(t *testing.T, mainTex string) (root, bib string) {
	t.Helper()
	root = t.TempDir()
	bib = filepath.Join(root, "literatur.bib")
	require.NoError(t, os.WriteFile(bib, []byte(testBib), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "kapitel"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.tex"), []byte(mainTex), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "kapitel", "eins.tex"), []byte("\\cite{Jones2020}\n"), 0o644))
	return root, bib
}

func cli(t *testing.T, stdin string, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = execute(context.Background(), args, strings.NewReader(stdin), &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestRun_DryRunReportsAndKeepsFiles(t *testing.T) {
	root, bib := corpus(t, "\\cite{Smth2019}\n\\cite{Gamma1999}\n")

	code, stdout, _ := cli(t, "", "run", root, "--bib", bib, "--dry-run")

	assert.Equal(t, 1, code, "Gamma1999 未解决")
	assert.Contains(t, stdout, "# 引用 key 修正报告")
	assert.Contains(t, stdout, "Smth2019")
	assert.Contains(t, stdout, "Gamma1999")
	b, err := os.ReadFile(filepath.Join(root, "main.tex"))
	require.NoError(t, err)
	assert.Equal(t, "\\cite{Smth2019}\n\\cite{Gamma1999}\n", string(b))
}

func TestRun_AutoCorrectCleanExitZero(t *testing.T) {
	root, bib := corpus(t, "\\cite{Smth2019}\n")

	code, _, stderr := cli(t, "", "run", root, "--bib", bib)
	require.Equal(t, 0, code, stderr)

	b, err := os.ReadFile(filepath.Join(root, "main.tex"))
	require.NoError(t, err)
	assert.Equal(t, "\\cite{Smith2019}\n", string(b))

	// 第二次运行没有任何修正，仍然干净。
	code, stdout, _ := cli(t, "", "run", root, "--bib", bib)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "没有需要修正的 key")
}

func TestRun_JSONReportToFile(t *testing.T) {
	root, bib := corpus(t, "\\cite{Smth2019}\n")
	out := filepath.Join(t.TempDir(), "report.json")

	code, stdout, stderr := cli(t, "", "run", root, "--bib", bib, "--dry-run", "--format", "json", "-o", out)
	require.Equal(t, 0, code, stderr)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "报告："+out)

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, true, m["dry_run"])
	assert.Equal(t, false, m["applied"])
}

func TestRun_InteractivePlainSession(t *testing.T) {
	root, bib := corpus(t, "\\cite{Smth2019}\n\\cite{Gamma1999}\n")

	// Smth2019 -> 候选 1；Gamma1999 -> 跳过；写入确认 -> y
	code, _, stderr := cli(t, "1\ns\ny\n", "run", root, "--bib", bib, "-i", "--plain")

	assert.Equal(t, 1, code, "跳过的 key 仍算未解决")
	assert.Contains(t, stderr, "未知 key")
	b, err := os.ReadFile(filepath.Join(root, "main.tex"))
	require.NoError(t, err)
	assert.Equal(t, "\\cite{Smith2019}\n\\cite{Gamma1999}\n", string(b))
}

func TestRun_VerboseProgressOnStderr(t *testing.T) {
	root, bib := corpus(t, "\\cite{Smth2019}\n")

	code, stdout, stderr := cli(t, "", "run", root, "--bib", bib, "--dry-run", "-v")
	require.Equal(t, 0, code)
	assert.Contains(t, stderr, "citefix run (preview)")
	assert.Contains(t, stderr, "Smth2019 → Smith2019")
	assert.NotContains(t, stdout, "citefix run", "进度不写 stdout")
}

func TestRun_ErrorsAndUsage(t *testing.T) {
	root, bib := corpus(t, "\\cite{Smith2019}\n")

	code, _, stderr := cli(t, "", "run", root)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "config_missing_bib")

	code, _, stderr = cli(t, "", "run", root, "--bib", filepath.Join(root, "nope.bib"))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "registry_missing")

	code, _, stderr = cli(t, "", "run", root, "--bib", bib, "--threshold", "1.5")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "config_invalid")

	code, _, stderr = cli(t, "", "run", "--no-such-flag")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "参数错误")

	code, _, _ = cli(t, "", "run", root, "extra")
	assert.Equal(t, 2, code)

	code, _, _ = cli(t, "", "frobnicate")
	assert.Equal(t, 2, code)
}
