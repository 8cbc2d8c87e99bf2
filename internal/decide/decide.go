// Package decide 定义“谁来决定错误 key 改成什么”：自动阈值策略或人工会话。
//
// 引擎只依赖 Source/Confirmer 两个接口；人工会话是一次阻塞调用，
// 等待期间不做任何其它工作。
package decide

import (
	"context"
	"errors"

	"github.com/John-Robertt/citefix/internal/domain"
)

// ErrSessionEnded 表示人工结束了会话：后续 key 不再询问，已做出的决定仍然有效。
var ErrSessionEnded = errors.New("会话已结束")

// Request 是一次决定请求。Index 从 1 开始。
type Request struct {
	Index int
	Total int
	Key   domain.WrongKey
}

// Source 为单个错误 key 给出决定。
type Source interface {
	Decide(ctx context.Context, req Request) (domain.Decision, error)
}

// Plan 是写回前的一次性确认内容。
type Plan struct {
	Corrections int
	Keys        int
	Files       []string
}

// Confirmer 在写回前询问一次 yes/no。
type Confirmer interface {
	Confirm(ctx context.Context, p Plan) (bool, error)
}

// Correct 选择候选 c 作为替换。
func Correct(w domain.WrongKey, c domain.Candidate) domain.Decision {
	return domain.Decision{Key: w.Key, State: domain.StateCorrected, Replacement: c.Key, Confidence: c.Score}
}

// Manual 使用人工输入的 key（不要求存在于 registry 中）。
func Manual(w domain.WrongKey, key string) domain.Decision {
	return domain.Decision{Key: w.Key, State: domain.StateCorrected, Replacement: key, Manual: true}
}

func Skip(w domain.WrongKey) domain.Decision {
	return domain.Decision{Key: w.Key, State: domain.StateSkipped}
}

// Accept 表示 key 本身是正确的，不再报告。
func Accept(w domain.WrongKey) domain.Decision {
	return domain.Decision{Key: w.Key, State: domain.StateAccepted}
}

func Unresolved(w domain.WrongKey) domain.Decision {
	return domain.Decision{Key: w.Key, State: domain.StateUnresolved}
}

// Auto 是纯函数策略：最佳候选得分 >= Threshold 时自动修正，否则 unresolved。
type Auto struct {
	Threshold float64
}

func (a Auto) Decide(_ context.Context, req Request) (domain.Decision, error) {
	best, ok := req.Key.Best()
	if !ok || best.Score < a.Threshold {
		return Unresolved(req.Key), nil
	}
	return domain.Decision{
		Key:         req.Key.Key,
		State:       domain.StateAutoCorrected,
		Replacement: best.Key,
		Confidence:  best.Score,
	}, nil
}

// ValidManualKey 检查人工输入的 key 能否安全写进 \cite{...}。
func ValidManualKey(wrong, key string) error {
	switch {
	case key == "":
		return errors.New("key 不能为空")
	case key == wrong:
		return errors.New("与原 key 相同")
	}
	for _, r := range key {
		switch r {
		case ',', '{', '}', '%', '\\', ' ', '\t':
			return errors.New("key 不能包含空白或 , { } % \\")
		}
	}
	return nil
}
