package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/citefix/internal/app/run"
	"github.com/John-Robertt/citefix/internal/config"
	"github.com/John-Robertt/citefix/internal/scan"
	"github.com/John-Robertt/citefix/internal/ui"
)

const watchDebounce = 500 * time.Millisecond

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [root]",
		Short: "监听 .tex/.bib 变化，每次变化后重新检查（只预览，不写入）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eff, log, err := loadConfig(cmd, args)
			if err != nil {
				return err
			}
			w := &watcher{
				eff:      previewOnly(eff),
				log:      log,
				stdout:   cmd.OutOrStdout(),
				stderr:   cmd.ErrOrStderr(),
				debounce: watchDebounce,
			}
			return w.run(cmd.Context(), nil)
		},
	}
	addFlags(cmd.Flags())
	return cmd
}

// previewOnly 把配置收敛为 watch 可用的形态：不写文件，也不提问。
func previewOnly(eff config.EffectiveConfig) config.EffectiveConfig {
	eff.DryRun = true
	eff.Interactive = false
	return eff
}

type watcher struct {
	eff      config.EffectiveConfig
	log      zerolog.Logger
	stdout   io.Writer
	stderr   io.Writer
	debounce time.Duration

	filter scan.Filter
}

// run 阻塞直到 ctx 结束。ready 非 nil 时在监听建立、首次检查完成后关闭。
func (w *watcher) run(ctx context.Context, ready chan<- struct{}) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return &exitError{code: 1, err: fmt.Errorf("启动文件监听失败：%w", err)}
	}
	defer fw.Close()

	w.filter = scan.NewFilter(w.eff.Root, w.eff.ExcludeDirs)
	if err := w.addRecursive(fw, w.eff.Root); err != nil {
		return &exitError{code: 1, err: fmt.Errorf("监听目录失败：%w", err)}
	}
	// .bib 与忽略列表可以在 root 之外。
	for _, p := range []string{w.eff.BibPath, w.eff.IgnoreFile} {
		if err := fw.Add(filepath.Dir(p)); err != nil {
			w.log.Warn().Str("dir", filepath.Dir(p)).Err(err).Msg("无法监听目录")
		}
	}

	fmt.Fprintf(w.stderr, "监听 %s（Ctrl+C 退出）\n", w.eff.Root)
	w.check(ctx)
	if ready != nil {
		close(ready)
	}

	trigger := make(chan struct{}, 1)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(w.stderr, "停止监听")
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(fw, ev) {
				continue
			}
			w.log.Debug().Str("file", ev.Name).Str("op", ev.Op.String()).Msg("文件变化")
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case trigger <- struct{}{}:
				default:
				}
			})
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("文件监听出错")
		case <-trigger:
			w.check(ctx)
		}
	}
}

func (w *watcher) addRecursive(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			w.log.Warn().Str("dir", path).Err(err).Msg("跳过不可读目录")
			return filepath.SkipDir
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.eff.Root && w.filter.Excluded(path, true) {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}

// relevant 判断事件是否需要触发重新检查；新建的目录会顺带加入监听。
func (w *watcher) relevant(fw *fsnotify.Watcher, ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	name := filepath.Clean(ev.Name)
	if name == filepath.Clean(w.eff.BibPath) || name == filepath.Clean(w.eff.IgnoreFile) {
		return true
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(name); err == nil && info.IsDir() {
			if w.filter.Excluded(name, true) {
				return false
			}
			if err := w.addRecursive(fw, name); err != nil {
				w.log.Warn().Str("dir", name).Err(err).Msg("无法监听新目录")
			}
			return true
		}
	}
	if !strings.EqualFold(filepath.Ext(name), w.eff.Ext) {
		return false
	}
	return !w.filter.Excluded(name, false)
}

// check 运行一次预览并输出报告；硬错误（例如编辑器保存 .bib 的瞬间文件缺失）只打印，不退出。
func (w *watcher) check(ctx context.Context) {
	rr, err := run.Execute(ctx, w.eff, run.Options{Logger: w.log})
	ts := time.Now().Format("15:04:05")
	if err != nil {
		fmt.Fprintf(w.stderr, "[%s] %s %v\n", ts, ui.Fail(ui.IconFail), err)
		return
	}
	if run.Clean(rr) && rr.Summary.Corrections == 0 {
		fmt.Fprintf(w.stderr, "[%s] %s 所有引用 key 均有效\n", ts, ui.Pass(ui.IconPass))
	} else {
		fmt.Fprintf(w.stderr, "[%s] %s corrections=%d unresolved=%d errors=%d\n", ts, ui.Warn(ui.IconWarn),
			rr.Summary.Corrections, rr.Summary.Unresolved, rr.Summary.Errors)
	}
	if err := emitReport(rr, w.eff, w.stdout, w.stderr); err != nil {
		fmt.Fprintf(w.stderr, "[%s] %s %v\n", ts, ui.Fail(ui.IconFail), err)
	}
}
