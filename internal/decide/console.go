package decide

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/John-Robertt/citefix/internal/domain"
	"github.com/John-Robertt/citefix/internal/ui"
)

// ShownOccurrences 是每个 key 最多展示的出现位置数。
const ShownOccurrences = 3

// Console 是基于行输入的人工会话（stdin 不是终端、或显式要求纯文本时使用）。
//
// 输入：
//   - 候选编号
//   - k <key>，或单独的 k 后再输入一行 key（人工 key）
//   - a 接受为正确 key（写入忽略列表）
//   - s 跳过
//   - q 结束会话
//
// 非法输入重新提示；EOF 等同于 q。
type Console struct {
	in  *bufio.Reader
	out io.Writer
}

func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: bufio.NewReader(in), out: out}
}

func (c *Console) Decide(ctx context.Context, req Request) (domain.Decision, error) {
	w := req.Key
	c.present(req)

	for {
		if err := ctx.Err(); err != nil {
			return domain.Decision{}, err
		}
		fmt.Fprint(c.out, c.prompt(len(w.Candidates)))
		line, err := c.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return domain.Decision{}, ErrSessionEnded
			}
			return domain.Decision{}, err
		}

		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)
		switch strings.ToLower(cmd) {
		case "q":
			return domain.Decision{}, ErrSessionEnded
		case "s":
			return Skip(w), nil
		case "a":
			return Accept(w), nil
		case "k":
			if arg == "" {
				fmt.Fprint(c.out, "key：")
				arg, err = c.readLine()
				if err != nil {
					if errors.Is(err, io.EOF) {
						return domain.Decision{}, ErrSessionEnded
					}
					return domain.Decision{}, err
				}
			}
			if err := ValidManualKey(w.Key, arg); err != nil {
				c.invalid(err.Error())
				continue
			}
			return Manual(w, arg), nil
		}

		n, err := strconv.Atoi(line)
		if err != nil || n < 1 || n > len(w.Candidates) {
			c.invalid(fmt.Sprintf("无效输入：%q", line))
			continue
		}
		return Correct(w, w.Candidates[n-1]), nil
	}
}

// Confirm 询问一次 y/N；空输入与 EOF 视为拒绝。
func (c *Console) Confirm(ctx context.Context, p Plan) (bool, error) {
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "将在 %d 个文件中修正 %d 处引用（%d 个 key），写入？[y/N] ", len(p.Files), p.Corrections, p.Keys)
		line, err := c.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(c.out)
				return false, nil
			}
			return false, err
		}
		switch strings.ToLower(line) {
		case "y", "yes", "j", "ja":
			return true, nil
		case "", "n", "no", "nein":
			return false, nil
		}
		c.invalid(fmt.Sprintf("请输入 y 或 n：%q", line))
	}
}

func (c *Console) present(req Request) {
	w := req.Key
	fmt.Fprintf(c.out, "\n[%d/%d] 未知 key %s\n", req.Index, req.Total, ui.Key(w.Key))
	for i, o := range w.Occurrences {
		if i == ShownOccurrences {
			fmt.Fprintf(c.out, "  %s\n", ui.Muted(fmt.Sprintf("…另有 %d 处", len(w.Occurrences)-ShownOccurrences)))
			break
		}
		fmt.Fprintf(c.out, "  %s:%d\n", o.RelPath, o.Line)
	}
	if len(w.Candidates) == 0 {
		fmt.Fprintf(c.out, "  %s\n", ui.Warn("无相似 key"))
		return
	}
	for i, cand := range w.Candidates {
		fmt.Fprintf(c.out, "  %d) %s %s\n", i+1, cand.Key, ui.Muted("("+ui.Percent(cand.Score)+")"))
	}
}

func (c *Console) prompt(n int) string {
	choices := "k <key> 手动输入，a 接受，s 跳过，q 结束"
	if n > 0 {
		choices = fmt.Sprintf("编号 1-%d，%s", n, choices)
	}
	return ui.Accent("> ") + ui.Muted(choices) + "："
}

func (c *Console) invalid(msg string) {
	fmt.Fprintf(c.out, "  %s %s\n", ui.Fail(ui.IconFail), msg)
}

// readLine 读取一行并去掉首尾空白；最后一行没有换行符时照常返回，下一次才返回 EOF。
func (c *Console) readLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}
