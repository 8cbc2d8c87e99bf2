// Package reconcile 把扫描得到的引用与 registry 对账：归并错误 key、排序候选、逐个决定。
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/John-Robertt/citefix/internal/decide"
	"github.com/John-Robertt/citefix/internal/domain"
	"github.com/John-Robertt/citefix/internal/match"
)

// Registry 是对账需要的最小 registry 能力。
type Registry interface {
	Has(key string) bool
}

// Ignorer 判断 key 是否被忽略列表命中。
type Ignorer interface {
	Match(key string) bool
}

// Collect 把不在 registry 中、也未被忽略的出现按 key 归并为 WrongKey。
//
// - WrongKey 按首次出现的顺序排列
// - 同一 key 的 Occurrences 保持扫描顺序
func Collect(occs []domain.Occurrence, reg Registry, ignore Ignorer) []domain.WrongKey {
	index := make(map[string]int, 32)
	out := make([]domain.WrongKey, 0, 32)

	for _, o := range occs {
		if reg.Has(o.Key) {
			continue
		}
		if ignore != nil && ignore.Match(o.Key) {
			continue
		}
		if idx, ok := index[o.Key]; ok {
			out[idx].Occurrences = append(out[idx].Occurrences, o)
			continue
		}
		index[o.Key] = len(out)
		out = append(out, domain.WrongKey{Key: o.Key, Occurrences: []domain.Occurrence{o}})
	}
	return out
}

// Rank 为每个 WrongKey 填充得分 >= suggest 的候选（原地修改）。
func Rank(wks []domain.WrongKey, m *match.Matcher, suggest float64) {
	for i := range wks {
		wks[i].Candidates = m.Rank(wks[i].Key, suggest)
	}
}

// Outcome 是决定阶段的结果。Decisions 与输入的 WrongKey 一一对应。
type Outcome struct {
	Decisions []domain.Decision
	// Mapping 是 错误 key -> 替换 key，只包含会改写文件的决定。
	Mapping map[string]string
	// Ended 表示人工提前结束了会话。
	Ended bool
}

// InvariantError 表示 Decision Source 给出了违反约束的决定（实现缺陷，不是用户错误）。
type InvariantError struct {
	Key string
	Msg string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("非法决定（key=%q）：%s", e.Key, e.Msg)
}

// Reconcile 按顺序为每个错误 key 调用一次 src.Decide（阻塞），决定累积进同一个 Mapping。
//
// 会话被人工结束（decide.ErrSessionEnded）时：当前及之后的 key 记为 skipped，
// 之前的决定全部保留。其它错误直接返回。
// onDone 可为 nil；每个 key 决定后调用一次（idx 从 1 开始）。
func Reconcile(ctx context.Context, wks []domain.WrongKey, src decide.Source, onDone func(idx, total int, w domain.WrongKey, d domain.Decision)) (Outcome, error) {
	out := Outcome{
		Decisions: make([]domain.Decision, 0, len(wks)),
		Mapping:   make(map[string]string, len(wks)),
	}

	for i, w := range wks {
		var d domain.Decision
		if !out.Ended {
			var err error
			d, err = src.Decide(ctx, decide.Request{Index: i + 1, Total: len(wks), Key: w})
			if err != nil {
				if !errors.Is(err, decide.ErrSessionEnded) {
					return Outcome{}, err
				}
				out.Ended = true
			}
		}
		if out.Ended {
			d = decide.Skip(w)
		}
		if err := check(w, d); err != nil {
			return Outcome{}, err
		}

		out.Decisions = append(out.Decisions, d)
		if d.Replaces() {
			out.Mapping[w.Key] = d.Replacement
		}
		if onDone != nil {
			onDone(i+1, len(wks), w, d)
		}
	}
	return out, nil
}

func check(w domain.WrongKey, d domain.Decision) error {
	if d.Key != w.Key {
		return &InvariantError{Key: w.Key, Msg: fmt.Sprintf("决定对应的 key 是 %q", d.Key)}
	}
	if !d.Replaces() {
		return nil
	}
	switch d.Replacement {
	case "":
		return &InvariantError{Key: w.Key, Msg: "替换 key 为空"}
	case w.Key:
		return &InvariantError{Key: w.Key, Msg: "不能把 key 映射到自身"}
	}
	return nil
}

// Build 把按 key 的决定展开为按出现位置的报告条目。
//
// - 会改写的决定：每处出现一条 Correction
// - skipped/unresolved：每处出现一条 UnresolvedKey（带候选，候选可为空但非 nil）
// - accepted：只记录 key
func Build(wks []domain.WrongKey, out Outcome) (corrections []domain.Correction, unresolved []domain.UnresolvedKey, accepted []string) {
	corrections = make([]domain.Correction, 0, len(wks))
	unresolved = make([]domain.UnresolvedKey, 0, len(wks))
	accepted = make([]string, 0)

	for i, w := range wks {
		if i >= len(out.Decisions) {
			break
		}
		d := out.Decisions[i]
		switch {
		case d.Replaces():
			for _, o := range w.Occurrences {
				corrections = append(corrections, domain.Correction{
					File:       o.RelPath,
					Line:       o.Line,
					WrongKey:   w.Key,
					CorrectKey: d.Replacement,
					Confidence: d.Confidence,
					Manual:     d.Manual,
				})
			}
		case d.State == domain.StateAccepted:
			accepted = append(accepted, w.Key)
		default:
			cands := append([]domain.Candidate{}, w.Candidates...)
			for _, o := range w.Occurrences {
				unresolved = append(unresolved, domain.UnresolvedKey{
					File:       o.RelPath,
					Line:       o.Line,
					WrongKey:   w.Key,
					State:      d.State,
					Candidates: cands,
				})
			}
		}
	}
	return corrections, unresolved, accepted
}

// Unwritten 把落在 failed 文件中的修正移回未解决列表（状态 not_written），
// 使报告与磁盘一致。candidates 取自 wks 中同一个错误 key。
func Unwritten(wks []domain.WrongKey, corrections []domain.Correction, failed map[string]struct{}) (kept []domain.Correction, moved []domain.UnresolvedKey) {
	kept = make([]domain.Correction, 0, len(corrections))
	if len(failed) == 0 {
		return append(kept, corrections...), nil
	}
	cands := make(map[string][]domain.Candidate, len(wks))
	for _, w := range wks {
		cands[w.Key] = w.Candidates
	}
	for _, c := range corrections {
		if _, ok := failed[c.File]; !ok {
			kept = append(kept, c)
			continue
		}
		moved = append(moved, domain.UnresolvedKey{
			File:       c.File,
			Line:       c.Line,
			WrongKey:   c.WrongKey,
			State:      domain.StateNotWritten,
			Candidates: append([]domain.Candidate{}, cands[c.WrongKey]...),
		})
	}
	return kept, moved
}
