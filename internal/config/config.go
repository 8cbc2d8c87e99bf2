package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/John-Robertt/citefix/internal/registry"
	"github.com/John-Robertt/citefix/internal/report"
	"github.com/John-Robertt/citefix/internal/scan"
)

const (
	// ErrCodeNotFound 表示 --config 指定的配置文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingBib 表示没有从任何来源得到 .bib 路径。
	ErrCodeMissingBib = "config_missing_bib"
)

const (
	DefaultThreshold        = 0.92
	DefaultSuggestThreshold = 0.70
	// EnvPrefix 是环境变量前缀：CITEFIX_THRESHOLD、CITEFIX_DRY_RUN ...
	EnvPrefix = "CITEFIX"
	// FileName 是自动发现的配置文件名（扩展名 yaml/json/toml 均可）。
	FileName = "citefix"
)

// 配置键 -> CLI flag 名。配置文件与环境变量使用下划线形式。
var flagKeys = map[string]string{
	"bib":               "bib",
	"threshold":         "threshold",
	"suggest_threshold": "suggest-threshold",
	"dry_run":           "dry-run",
	"interactive":       "interactive",
	"plain":             "plain",
	"verbose":           "verbose",
	"output":            "output",
	"format":            "format",
	"exclude":           "exclude",
	"ext":               "ext",
	"ignore_file":       "ignore-file",
	"log_level":         "log-level",
}

// CLIArgs 是命令行入口给出的信息。
// Flags 中只有显式设置过（Changed）的 flag 会覆盖环境变量与配置文件：
// 例如 --dry-run=false 必须能覆盖配置文件里的 dry_run: true。
type CLIArgs struct {
	Root       string
	ConfigFile string
	Flags      *pflag.FlagSet
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Root    string
	BibPath string

	Threshold        float64
	SuggestThreshold float64

	DryRun      bool
	Interactive bool
	// Plain 让交互会话使用逐行问答而不是终端表单。
	Plain   bool
	Verbose bool

	// Output 为空表示写到 stdout。
	Output string
	Format string

	ExcludeDirs []string
	Ext         string
	IgnoreFile  string
	LogLevel    string

	// ConfigFile 是实际读取的配置文件（没有则为空）。
	ConfigFile string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingBib:
		return fmt.Sprintf("%s：未指定 .bib 文件（--bib、%s_BIB 或配置文件中的 bib）", e.Code, EnvPrefix)
	case ErrCodeInvalid:
		if e.Path == "" {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 合并各来源得到最终配置。
//
// 覆盖优先级（固定）：
// - 显式设置的 CLI flag > CITEFIX_* 环境变量 > 配置文件 > 内置默认值
// - root：CLI 位置参数 > 配置文件 root > cwd
//
// 配置文件发现：--config 指定时必须存在；否则依次查找 <cwd>/citefix.* 与 <root>/citefix.*（可选）。
// 相对路径一律以 cwd 为基准。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if cli.Flags != nil {
		for key, name := range flagKeys {
			if f := cli.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Err: err}
				}
			}
		}
	}

	cfgPath, err := readConfig(v, cwdAbs, cli)
	if err != nil {
		return EffectiveConfig{}, err
	}

	root := cwdAbs
	if strings.TrimSpace(cli.Root) != "" {
		root = absCleanFrom(cwdAbs, cli.Root)
	} else if r := strings.TrimSpace(v.GetString("root")); r != "" {
		root = absCleanFrom(cwdAbs, r)
	}

	eff := EffectiveConfig{
		Root:             root,
		Threshold:        v.GetFloat64("threshold"),
		SuggestThreshold: v.GetFloat64("suggest_threshold"),
		DryRun:           v.GetBool("dry_run"),
		Interactive:      v.GetBool("interactive"),
		Plain:            v.GetBool("plain"),
		Verbose:          v.GetBool("verbose"),
		Format:           strings.ToLower(strings.TrimSpace(v.GetString("format"))),
		ExcludeDirs:      nonEmpty(v.GetStringSlice("exclude")),
		Ext:              normalizeExt(v.GetString("ext")),
		LogLevel:         strings.ToLower(strings.TrimSpace(v.GetString("log_level"))),
		ConfigFile:       cfgPath,
	}
	if out := strings.TrimSpace(v.GetString("output")); out != "" && out != "-" {
		eff.Output = absCleanFrom(cwdAbs, out)
	}
	if ig := strings.TrimSpace(v.GetString("ignore_file")); ig != "" {
		eff.IgnoreFile = absCleanFrom(cwdAbs, ig)
	} else {
		eff.IgnoreFile = filepath.Join(root, registry.DefaultIgnoreFile)
	}

	bib := strings.TrimSpace(v.GetString("bib"))
	if bib == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingBib, Path: cfgPath}
	}
	eff.BibPath = absCleanFrom(cwdAbs, bib)

	if err := validate(eff); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	return eff, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("threshold", DefaultThreshold)
	v.SetDefault("suggest_threshold", DefaultSuggestThreshold)
	v.SetDefault("format", report.FormatMarkdown)
	v.SetDefault("exclude", scan.DefaultExcludeDirs)
	v.SetDefault("ext", scan.DefaultExt)
	v.SetDefault("log_level", "info")
}

func readConfig(v *viper.Viper, cwdAbs string, cli CLIArgs) (string, error) {
	if strings.TrimSpace(cli.ConfigFile) != "" {
		p := absCleanFrom(cwdAbs, cli.ConfigFile)
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				return "", &Error{Code: ErrCodeNotFound, Path: p, Err: os.ErrNotExist}
			}
			return "", &Error{Code: ErrCodeInvalid, Path: p, Err: err}
		}
		v.SetConfigFile(p)
		if err := v.ReadInConfig(); err != nil {
			return "", &Error{Code: ErrCodeInvalid, Path: p, Err: err}
		}
		return p, nil
	}

	v.SetConfigName(FileName)
	v.AddConfigPath(cwdAbs)
	if strings.TrimSpace(cli.Root) != "" {
		v.AddConfigPath(absCleanFrom(cwdAbs, cli.Root))
	}
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if errors.As(err, &nf) {
			return "", nil
		}
		return "", &Error{Code: ErrCodeInvalid, Path: v.ConfigFileUsed(), Err: err}
	}
	return v.ConfigFileUsed(), nil
}

func validate(eff EffectiveConfig) error {
	if eff.Threshold < 0 || eff.Threshold > 1 {
		return fmt.Errorf("threshold 必须在 [0, 1] 内，实际是 %v", eff.Threshold)
	}
	if eff.SuggestThreshold < 0 || eff.SuggestThreshold > 1 {
		return fmt.Errorf("suggest_threshold 必须在 [0, 1] 内，实际是 %v", eff.SuggestThreshold)
	}
	if !report.ValidFormat(eff.Format) {
		return fmt.Errorf("format 只能是 %s，实际是 %q", strings.Join(report.Formats, "/"), eff.Format)
	}
	switch eff.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level 只能是 debug/info/warn/error，实际是 %q", eff.LogLevel)
	}
	return nil
}

func normalizeExt(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext == "" {
		return scan.DefaultExt
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return strings.ToLower(ext)
}

func nonEmpty(xs []string) []string {
	out := make([]string, 0, len(xs))
	for _, x := range xs {
		if x = strings.TrimSpace(x); x != "" {
			out = append(out, x)
		}
	}
	return out
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}
