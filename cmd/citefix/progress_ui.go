package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/citefix/internal/app/run"
	"github.com/John-Robertt/citefix/internal/config"
	"github.com/John-Robertt/citefix/internal/domain"
	"github.com/John-Robertt/citefix/internal/ui"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 把 run 的事件写成 stderr 上的进度行。
//
// - stdout 只留给报告
// - verbose 时额外输出每个 key 与每个文件的结果
type progressUI struct {
	w       io.Writer
	verbose bool

	mu        sync.Mutex
	startedAt time.Time
}

func newProgressUI(w io.Writer, verbose bool) *progressUI {
	return &progressUI{w: w, verbose: verbose}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startedAt = time.Now()
	mode := modeName(eff)
	fmt.Fprintf(p.w, "[%s] citefix run (%s)\n", p.startedAt.Format("15:04:05"), ui.Accent(mode))
	if !p.verbose {
		return
	}
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  root: %s\n", eff.Root)
	fmt.Fprintf(p.w, "  bib: %s\n", eff.BibPath)
	fmt.Fprintf(p.w, "  threshold: %.2f  suggest: %.2f\n", eff.Threshold, eff.SuggestThreshold)
	fmt.Fprintf(p.w, "  ext: %s\n", eff.Ext)
	fmt.Fprintf(p.w, "  exclude: %s\n", formatList(eff.ExcludeDirs))
	fmt.Fprintf(p.w, "  ignore_file: %s\n", eff.IgnoreFile)
	if eff.ConfigFile != "" {
		fmt.Fprintf(p.w, "  config: %s\n", eff.ConfigFile)
	}
	fmt.Fprintln(p.w)
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	d := ui.Muted("(" + formatShortDuration(dur) + ")")
	switch name {
	case "load":
		fmt.Fprintf(p.w, "registry: keys=%d ignore=%d %s\n",
			intField(fields, "keys"), intField(fields, "ignore"), d)
	case "scan":
		fmt.Fprintf(p.w, "扫描: files=%d occurrences=%d skipped=%d %s\n",
			intField(fields, "files"), intField(fields, "occurrences"), intField(fields, "skipped"), d)
	case "match":
		fmt.Fprintf(p.w, "匹配: wrong_keys=%d occurrences=%d %s\n",
			intField(fields, "wrong_keys"), intField(fields, "occurrences"), d)
	case "decide":
		line := fmt.Sprintf("决定: corrected=%d unresolved=%d skipped=%d accepted=%d",
			intField(fields, "corrected"), intField(fields, "unresolved"),
			intField(fields, "skipped"), intField(fields, "accepted"))
		if ended, _ := fields["ended"].(bool); ended {
			line += " " + ui.Warn("(会话已提前结束)")
		}
		fmt.Fprintf(p.w, "%s %s\n", line, d)
	case "apply":
		if applied, _ := fields["applied"].(bool); applied {
			fmt.Fprintf(p.w, "写回: files=%d written=%d %s\n",
				intField(fields, "files"), intField(fields, "written"), d)
		} else {
			fmt.Fprintf(p.w, "预览: files=%d %s %s\n",
				intField(fields, "files"), ui.Muted("（未写入）"), d)
		}
		fmt.Fprintf(p.w, "完成 %s\n", ui.Muted("elapsed="+formatElapsed(time.Since(p.startedAt))))
	default:
		fmt.Fprintf(p.w, "%s %s\n", name, d)
	}
}

func (p *progressUI) OnKeyDone(idx, total int, w domain.WrongKey, d domain.Decision) {
	if !p.verbose {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "[%d/%d] %s\n", idx, total, formatDecision(w, d))
}

func (p *progressUI) OnFileDone(res domain.FileResult) {
	if !p.verbose && res.Status != domain.FileStatusFailed {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	switch res.Status {
	case domain.FileStatusFailed:
		fmt.Fprintf(p.w, "  %s %s %s: %s\n", ui.Fail(ui.IconFail), res.Path, res.ErrorCode, truncate(res.ErrorMsg, 160))
	case domain.FileStatusWritten:
		fmt.Fprintf(p.w, "  %s %s (%d)\n", ui.Pass("写入"), res.Path, res.Replaced)
	default:
		fmt.Fprintf(p.w, "  %s %s (%d)\n", ui.Muted(string(res.Status)), res.Path, res.Replaced)
	}
}

// formatDecision 渲染单个 key 的结果行，例如 "✔ Smth2019 → Smith2019 (94%) main.tex:1"。
func formatDecision(w domain.WrongKey, d domain.Decision) string {
	loc := ""
	if len(w.Occurrences) > 0 {
		o := w.Occurrences[0]
		loc = ui.Muted(fmt.Sprintf("%s:%d", o.RelPath, o.Line))
		if n := len(w.Occurrences) - 1; n > 0 {
			loc += ui.Muted(fmt.Sprintf(" +%d", n))
		}
	}

	switch d.State {
	case domain.StateAutoCorrected, domain.StateCorrected:
		conf := ui.Percent(d.Confidence)
		if d.Manual {
			conf = "manual"
		}
		return fmt.Sprintf("%s %s → %s (%s) %s", ui.Pass(ui.IconPass), w.Key, ui.Key(d.Replacement), conf, loc)
	case domain.StateAccepted:
		return fmt.Sprintf("%s %s 已接受 %s", ui.Accent(ui.IconInfo), w.Key, loc)
	case domain.StateSkipped:
		return fmt.Sprintf("%s %s 已跳过 %s", ui.Muted(ui.IconSkip), w.Key, loc)
	default:
		if best, ok := w.Best(); ok {
			return fmt.Sprintf("%s %s 最接近 %s (%s) %s", ui.Warn(ui.IconWarn), w.Key, best.Key, ui.Percent(best.Score), loc)
		}
		return fmt.Sprintf("%s %s 无相似 key %s", ui.Fail(ui.IconFail), w.Key, loc)
	}
}

func modeName(eff config.EffectiveConfig) string {
	switch {
	case eff.DryRun:
		return "preview"
	case eff.Interactive:
		return "interactive"
	default:
		return "write"
	}
}

func formatList(xs []string) string {
	if len(xs) == 0 {
		return "[]"
	}
	return "[" + strings.Join(xs, ", ") + "]"
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, (sec%3600)/60, sec%60)
}

func intField(fields map[string]any, key string) int {
	switch x := fields[key].(type) {
	case int:
		return x
	case int64:
		return int(x)
	default:
		return 0
	}
}
