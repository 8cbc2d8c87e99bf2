package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/John-Robertt/citefix/internal/app/run"
	"github.com/John-Robertt/citefix/internal/config"
	"github.com/John-Robertt/citefix/internal/decide"
	"github.com/John-Robertt/citefix/internal/domain"
	"github.com/John-Robertt/citefix/internal/infra/fsx"
	"github.com/John-Robertt/citefix/internal/logging"
	"github.com/John-Robertt/citefix/internal/report"
	"github.com/John-Robertt/citefix/internal/scan"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// exitError 携带进程退出码；err 为 nil 时不再额外打印。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// execute 运行 CLI 并返回退出码：0 干净；1 仍有未解决的 key 或运行/配置错误；2 参数错误。
func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd(stdin, stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(stderr, "错误：%v\n", ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(stderr, "参数错误：%v\n\n使用 \"citefix --help\" 查看用法。\n", err)
	return 2
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "citefix",
		Short:         "检查并修正 LaTeX 文稿中的 \\cite key",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(newRunCmd(), newWatchCmd(), newStatsCmd())
	return root
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [root]",
		Short: "扫描 root 下的 .tex 文件，修正不在 .bib 中的 key 并输出报告",
		Long: `扫描 root（默认当前目录）下的标记文件，找出 .bib 中不存在的引用 key，
按相似度自动修正（或交互决定），最后输出报告。

仍有未解决的 key 或发生错误时退出码为 1。`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eff, log, err := loadConfig(cmd, args)
			if err != nil {
				return err
			}
			return runOnce(cmd.Context(), eff, log, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	addFlags(cmd.Flags())
	return cmd
}

func addFlags(fs *pflag.FlagSet) {
	fs.String("bib", "", ".bib 文件路径（必填，可来自配置文件或 CITEFIX_BIB）")
	fs.Float64("threshold", config.DefaultThreshold, "自动修正阈值（0..1）")
	fs.Float64("suggest-threshold", config.DefaultSuggestThreshold, "候选 key 的最低相似度（0..1）")
	fs.Bool("dry-run", false, "只预览，不修改任何文件")
	fs.BoolP("interactive", "i", false, "逐个 key 人工决定，写回前确认")
	fs.Bool("plain", false, "交互时使用逐行问答（不使用终端表单）")
	fs.BoolP("verbose", "v", false, "输出每个 key 的处理结果与调试日志")
	fs.StringP("output", "o", "", "报告输出路径（默认 stdout）")
	fs.String("format", report.FormatMarkdown, "报告格式：markdown|json|yaml")
	fs.StringSlice("exclude", scan.DefaultExcludeDirs, "排除的目录名或相对路径（可重复）")
	fs.String("ext", scan.DefaultExt, "标记文件扩展名")
	fs.String("ignore-file", "", "忽略列表文件（默认 <root>/.citefixignore）")
	fs.String("log-level", "info", "日志级别：debug|info|warn|error")
	fs.String("config", "", "配置文件路径（默认查找 ./citefix.yaml|json|toml）")
}

func loadConfig(cmd *cobra.Command, args []string) (config.EffectiveConfig, zerolog.Logger, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return config.EffectiveConfig{}, zerolog.Nop(), &exitError{code: 1, err: fmt.Errorf("读取当前目录失败：%w", err)}
	}
	cli := config.CLIArgs{Flags: cmd.Flags()}
	if len(args) > 0 {
		cli.Root = args[0]
	}
	cli.ConfigFile, _ = cmd.Flags().GetString("config")

	eff, err := config.LoadEffective(cwd, cli)
	if err != nil {
		return config.EffectiveConfig{}, zerolog.Nop(), &exitError{code: 1, err: err}
	}

	level := eff.LogLevel
	if eff.Verbose {
		level = "debug"
	}
	log := logging.New(logging.Config{Level: level, Out: cmd.ErrOrStderr()})
	if eff.ConfigFile != "" {
		log.Debug().Str("config", eff.ConfigFile).Msg("已读取配置文件")
	}
	return eff, log, nil
}

func runOnce(ctx context.Context, eff config.EffectiveConfig, log zerolog.Logger, stdin io.Reader, stdout, stderr io.Writer) error {
	opts := run.Options{Logger: log}
	if eff.Interactive {
		sess := session(eff, stdin, stderr)
		opts.Source = sess
		opts.Confirmer = sess
	}
	if eff.Verbose || isTerminal(stderr) {
		opts.Observer = newProgressUI(stderr, eff.Verbose)
	}

	rr, err := run.Execute(ctx, eff, opts)
	if err != nil {
		return &exitError{code: 1, err: err}
	}
	if err := emitReport(rr, eff, stdout, stderr); err != nil {
		return &exitError{code: 1, err: err}
	}
	if !run.Clean(rr) {
		return &exitError{code: 1}
	}
	return nil
}

type interactiveSession interface {
	decide.Source
	decide.Confirmer
}

// session 选择人工会话：stdin 是终端时用表单，否则（或 --plain）逐行问答。
// 提示一律写到 stderr，stdout 只留给报告。
func session(eff config.EffectiveConfig, stdin io.Reader, stderr io.Writer) interactiveSession {
	if !eff.Plain && isTerminal(stdin) && isTerminal(stderr) {
		return decide.Form{}
	}
	return decide.NewConsole(stdin, stderr)
}

func emitReport(rr domain.CorrectionReport, eff config.EffectiveConfig, stdout, stderr io.Writer) error {
	b, err := report.Render(rr, eff.Format)
	if err != nil {
		return err
	}
	return emit(b, eff, stdout, stderr)
}

// emit 把渲染好的报告写到 --output（原子替换），未指定时写 stdout。
func emit(b []byte, eff config.EffectiveConfig, stdout, stderr io.Writer) error {
	if eff.Output == "" {
		_, err := stdout.Write(b)
		return err
	}
	if err := fsx.WriteFileAtomic(filepath.Dir(eff.Output), filepath.Base(eff.Output), b); err != nil {
		return fmt.Errorf("写入报告失败：%w", err)
	}
	fmt.Fprintf(stderr, "报告：%s\n", eff.Output)
	return nil
}

func isTerminal(x any) bool {
	f, ok := x.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
