package run

import (
	"time"

	"github.com/John-Robertt/citefix/internal/config"
	"github.com/John-Robertt/citefix/internal/domain"
)

// Observer 用于把“运行进度/阶段/每个 key 的结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（stdout 只留给报告）。
// - 流程严格串行，事件按发生顺序在调用 Execute 的 goroutine 上触发。
type Observer interface {
	// OnStart 在 Execute 开始时调用。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束时调用（load/scan/match/decide/apply）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnKeyDone 在每个错误 key 得到决定后调用（idx 从 1 开始）。
	OnKeyDone(idx, total int, w domain.WrongKey, d domain.Decision)
	// OnFileDone 在每个文件写回（或预览）后调用。
	OnFileDone(res domain.FileResult)
}

type nopObserver struct{}

func (nopObserver) OnStart(config.EffectiveConfig)                       {}
func (nopObserver) OnPhaseDone(string, map[string]any, time.Duration)    {}
func (nopObserver) OnKeyDone(int, int, domain.WrongKey, domain.Decision) {}
func (nopObserver) OnFileDone(domain.FileResult)                         {}
