package run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/John-Robertt/citefix/internal/app/reconcile"
	"github.com/John-Robertt/citefix/internal/config"
	"github.com/John-Robertt/citefix/internal/decide"
	"github.com/John-Robertt/citefix/internal/domain"
	"github.com/John-Robertt/citefix/internal/match"
	"github.com/John-Robertt/citefix/internal/registry"
	"github.com/John-Robertt/citefix/internal/rewrite"
	"github.com/John-Robertt/citefix/internal/scan"
)

// Error 是无法继续运行的硬错误（registry 缺失/为空、语料整体不可读）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case domain.ErrCodeRegistryMissing:
		return fmt.Sprintf("%s：无法读取 .bib 文件 %q：%v", e.Code, e.Path, e.Err)
	case domain.ErrCodeRegistryEmpty:
		return fmt.Sprintf("%s：.bib 文件 %q 中没有任何条目", e.Code, e.Path)
	case domain.ErrCodeCorpusUnreadable:
		return fmt.Sprintf("%s：无法读取语料目录 %q：%v", e.Code, e.Path, e.Err)
	default:
		return fmt.Sprintf("%s：%v", e.Code, e.Err)
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

// Options 是 Execute 的可选协作者。零值可用：自动决策、不确认、不输出。
type Options struct {
	Logger zerolog.Logger
	// Source 为 nil 时使用 decide.Auto{Threshold: eff.Threshold}。
	Source decide.Source
	// Confirmer 非 nil 时，写回前询问一次（dry-run 不询问）。
	Confirmer decide.Confirmer
	Observer  Observer
}

// Execute 执行一次完整的对账：加载 → 扫描 → 匹配 → 决定 → （确认）→ 写回 → 报告。
//
// 各阶段严格串行；决定阶段只累积映射，所有文件在最后一次性写回。
// 单个文件的读写失败降级为报告中的错误条目；只有硬错误才返回 error。
func Execute(ctx context.Context, eff config.EffectiveConfig, opts Options) (domain.CorrectionReport, error) {
	log := opts.Logger
	obs := opts.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	src := opts.Source
	if src == nil {
		src = decide.Auto{Threshold: eff.Threshold}
	}

	rr := domain.CorrectionReport{
		Root:      eff.Root,
		DryRun:    eff.DryRun,
		StartedAt: time.Now().UTC(),
	}
	obs.OnStart(eff)

	// load
	loadStarted := time.Now()
	keys, ignore, err := loadRegistry(eff, log, &rr.Errors)
	if err != nil {
		return rr, err
	}
	obs.OnPhaseDone("load", map[string]any{
		"keys":   keys.Len(),
		"ignore": ignore.Len(),
	}, time.Since(loadStarted))

	// scan
	scanStarted := time.Now()
	res, err := scan.Scan(eff.Root, eff.ExcludeDirs, eff.Ext, log)
	if err != nil {
		return rr, &Error{Code: domain.ErrCodeCorpusUnreadable, Path: eff.Root, Err: err}
	}
	for _, s := range res.Skipped {
		rr.Errors = append(rr.Errors, domain.RunError{Code: domain.ErrCodeReadFailed, File: s.RelPath, Msg: s.Err.Error()})
	}
	obs.OnPhaseDone("scan", map[string]any{
		"files":       len(res.Documents),
		"occurrences": len(res.Occurrences),
		"skipped":     len(res.Skipped),
	}, time.Since(scanStarted))

	// match
	matchStarted := time.Now()
	wks := reconcile.Collect(res.Occurrences, keys, ignore)
	reconcile.Rank(wks, match.New(keys.Keys()), RankFloor(eff))
	wrongOcc := 0
	for _, w := range wks {
		wrongOcc += len(w.Occurrences)
	}
	obs.OnPhaseDone("match", map[string]any{
		"wrong_keys":  len(wks),
		"occurrences": wrongOcc,
	}, time.Since(matchStarted))

	// decide
	decideStarted := time.Now()
	out, err := reconcile.Reconcile(ctx, wks, src, obs.OnKeyDone)
	if err != nil {
		return rr, err
	}
	rr.Corrections, rr.Unresolved, rr.Accepted = reconcile.Build(wks, out)
	obs.OnPhaseDone("decide", map[string]any{
		"corrected":  len(out.Mapping),
		"unresolved": countState(out.Decisions, domain.StateUnresolved),
		"skipped":    countState(out.Decisions, domain.StateSkipped),
		"accepted":   len(rr.Accepted),
		"ended":      out.Ended,
	}, time.Since(decideStarted))

	// apply
	applyStarted := time.Now()
	cs := rewrite.Plan(res.Documents, out.Mapping, res.Occurrences)
	write := !eff.DryRun
	if write && opts.Confirmer != nil && (len(cs.Files) > 0 || len(rr.Accepted) > 0) {
		ok, err := opts.Confirmer.Confirm(ctx, decide.Plan{
			Corrections: cs.Replaced(),
			Keys:        len(out.Mapping),
			Files:       cs.Paths(),
		})
		if err != nil {
			return rr, err
		}
		write = ok
		if !ok {
			log.Info().Msg("未确认写入，文件保持不变")
		}
	}

	if write {
		rr.Applied = true
		rr.Files = rewrite.Apply(cs, log, obs.OnFileDone)
		failed := map[string]struct{}{}
		for _, f := range rr.Files {
			if f.Status == domain.FileStatusFailed {
				failed[f.Path] = struct{}{}
				rr.Errors = append(rr.Errors, domain.RunError{Code: f.ErrorCode, File: f.Path, Msg: f.ErrorMsg})
			}
		}
		var moved []domain.UnresolvedKey
		rr.Corrections, moved = reconcile.Unwritten(wks, rr.Corrections, failed)
		rr.Unresolved = append(rr.Unresolved, moved...)
		if len(rr.Accepted) > 0 {
			n, err := registry.AppendIgnore(eff.IgnoreFile, rr.Accepted)
			if err != nil {
				rr.Errors = append(rr.Errors, domain.RunError{Code: domain.ErrCodeWriteFailed, File: eff.IgnoreFile, Msg: err.Error()})
			} else {
				log.Debug().Str("file", eff.IgnoreFile).Int("added", n).Msg("已更新忽略列表")
			}
		}
	} else {
		rr.Files = rewrite.Preview(cs)
		for _, f := range rr.Files {
			obs.OnFileDone(f)
		}
	}
	obs.OnPhaseDone("apply", map[string]any{
		"files":   len(rr.Files),
		"written": countWritten(rr.Files),
		"applied": rr.Applied,
	}, time.Since(applyStarted))

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr, nil
}

// loadRegistry 读取 .bib 与忽略列表。.bib 的问题是硬错误；忽略列表读取失败只追加到 errs，按空列表继续。
func loadRegistry(eff config.EffectiveConfig, log zerolog.Logger, errs *[]domain.RunError) (registry.KeySet, registry.IgnoreList, error) {
	keys, err := registry.LoadBib(eff.BibPath)
	if err != nil {
		code := domain.ErrCodeRegistryMissing
		if errors.Is(err, registry.ErrEmpty) {
			code = domain.ErrCodeRegistryEmpty
		}
		return registry.KeySet{}, registry.IgnoreList{}, &Error{Code: code, Path: eff.BibPath, Err: err}
	}
	ignore, err := registry.LoadIgnore(eff.IgnoreFile)
	if err != nil {
		log.Warn().Str("file", eff.IgnoreFile).Err(err).Msg("忽略列表读取失败，按空列表处理")
		*errs = append(*errs, domain.RunError{Code: domain.ErrCodeReadFailed, File: eff.IgnoreFile, Msg: err.Error()})
	}
	return keys, ignore, nil
}

// RankFloor 是候选的最低得分：suggest 与自动修正阈值取较小者，
// 这样得分达到 threshold 的候选一定会进入列表并被自动采用。
func RankFloor(eff config.EffectiveConfig) float64 {
	return min(eff.SuggestThreshold, eff.Threshold)
}

// Clean 表示运行结束后没有遗留问题：没有未解决的 key，也没有错误。
func Clean(r domain.CorrectionReport) bool {
	return r.Summary.Unresolved == 0 && r.Summary.Errors == 0
}

func countState(ds []domain.Decision, st domain.KeyState) int {
	n := 0
	for _, d := range ds {
		if d.State == st {
			n++
		}
	}
	return n
}

func countWritten(fs []domain.FileResult) int {
	n := 0
	for _, f := range fs {
		if f.Status == domain.FileStatusWritten {
			n++
		}
	}
	return n
}
