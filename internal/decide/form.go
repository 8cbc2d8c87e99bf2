package decide

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/John-Robertt/citefix/internal/domain"
	"github.com/John-Robertt/citefix/internal/ui"
)

const (
	choiceManual = "manual"
	choiceAccept = "accept"
	choiceSkip   = "skip"
	choiceQuit   = "quit"
)

// Form 是终端上的人工会话（huh 选择框 + 输入框）。
type Form struct {
	// Accessible 关闭全屏绘制，改为逐行问答（读屏软件、哑终端）。
	Accessible bool
}

func (f Form) Decide(ctx context.Context, req Request) (domain.Decision, error) {
	w := req.Key

	var choice string
	err := f.run(ctx, huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title(fmt.Sprintf("[%d/%d] 未知 key %s", req.Index, req.Total, w.Key)).
			Description(describeOccurrences(w)).
			Options(choiceOptions(w)...).
			Value(&choice),
	)))
	if err != nil {
		return domain.Decision{}, err
	}

	var key string
	if choice == choiceManual {
		err := f.run(ctx, huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("替换为").
				Placeholder("例如 Zeta2022").
				Value(&key).
				Validate(func(s string) error { return ValidManualKey(w.Key, strings.TrimSpace(s)) }),
		)))
		if err != nil {
			return domain.Decision{}, err
		}
	}
	return fromChoice(w, choice, key)
}

// choiceOptions 列出候选（值为下标）以及固定的四个动作。
func choiceOptions(w domain.WrongKey) []huh.Option[string] {
	opts := make([]huh.Option[string], 0, len(w.Candidates)+4)
	for i, c := range w.Candidates {
		opts = append(opts, huh.NewOption(fmt.Sprintf("%s (%s)", c.Key, ui.Percent(c.Score)), strconv.Itoa(i)))
	}
	return append(opts,
		huh.NewOption("手动输入 key", choiceManual),
		huh.NewOption("接受为正确 key（不再报告）", choiceAccept),
		huh.NewOption("跳过", choiceSkip),
		huh.NewOption("结束会话", choiceQuit),
	)
}

// fromChoice 把选择框的值换成 Decision；manualKey 只在 choiceManual 时使用。
func fromChoice(w domain.WrongKey, choice, manualKey string) (domain.Decision, error) {
	switch choice {
	case choiceQuit:
		return domain.Decision{}, ErrSessionEnded
	case choiceSkip:
		return Skip(w), nil
	case choiceAccept:
		return Accept(w), nil
	case choiceManual:
		key := strings.TrimSpace(manualKey)
		if err := ValidManualKey(w.Key, key); err != nil {
			return domain.Decision{}, err
		}
		return Manual(w, key), nil
	}

	i, err := strconv.Atoi(choice)
	if err != nil || i < 0 || i >= len(w.Candidates) {
		return domain.Decision{}, fmt.Errorf("未知选项 %q", choice)
	}
	return Correct(w, w.Candidates[i]), nil
}

func (f Form) Confirm(ctx context.Context, p Plan) (bool, error) {
	ok := false
	err := f.run(ctx, huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(confirmTitle(p)).
			Affirmative("写入").
			Negative("取消").
			Value(&ok),
	)))
	return confirmed(ok, err)
}

func confirmTitle(p Plan) string {
	return fmt.Sprintf("将在 %d 个文件中修正 %d 处引用（%d 个 key），写入？", len(p.Files), p.Corrections, p.Keys)
}

// confirmed：中止确认框等同于“不写入”，不是错误。
func confirmed(ok bool, err error) (bool, error) {
	if errors.Is(err, ErrSessionEnded) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (f Form) run(ctx context.Context, form *huh.Form) error {
	return aborted(form.WithAccessible(f.Accessible).RunWithContext(ctx))
}

func aborted(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		return ErrSessionEnded
	}
	return err
}

func describeOccurrences(w domain.WrongKey) string {
	var b strings.Builder
	for i, o := range w.Occurrences {
		if i > 0 {
			b.WriteByte('\n')
		}
		if i == ShownOccurrences {
			fmt.Fprintf(&b, "…另有 %d 处", len(w.Occurrences)-ShownOccurrences)
			break
		}
		fmt.Fprintf(&b, "%s:%d", o.RelPath, o.Line)
	}
	if len(w.Candidates) == 0 {
		b.WriteString("\n无相似 key")
	}
	return b.String()
}
