package report

import (
	"fmt"
	"strings"

	"github.com/John-Robertt/citefix/internal/domain"
)

// RenderStats 与 Render 使用同一组格式。
func RenderStats(s domain.CitationStats, format string) ([]byte, error) {
	f, err := parseFormat(format)
	if err != nil {
		return nil, err
	}
	switch f {
	case FormatJSON:
		return JSON(s)
	case FormatYAML:
		return YAML(s)
	default:
		return []byte(StatsMarkdown(s)), nil
	}
}

func StatsMarkdown(s domain.CitationStats) string {
	var b strings.Builder
	sum := s.Summary
	b.WriteString("# 引用统计\n\n")
	fmt.Fprintf(&b, "_%d 个文件，%d 处引用，%d 个不同的 key；.bib 中 %d 个条目（另有 %d 个被忽略）。_\n\n",
		sum.Files, sum.Citations, sum.CitedKeys, sum.RegistryKeys, sum.Ignored)

	b.WriteString("## 引用次数\n\n")
	if len(s.Counts) == 0 {
		b.WriteString("_没有任何引用。_\n\n")
	} else {
		b.WriteString("| key | 次数 | 在 .bib 中 |\n")
		b.WriteString("|---|---|---|\n")
		for _, c := range s.Counts {
			in := "是"
			if !c.InRegistry {
				in = "否"
			}
			fmt.Fprintf(&b, "| `%s` | %d | %s |\n", cell(c.Key), c.Count, in)
		}
		b.WriteString("\n")
	}

	if len(s.Uncited) == 0 {
		b.WriteString("## 未被引用的条目\n\n_.bib 中的条目都被引用过。_\n\n")
	} else {
		fmt.Fprintf(&b, "## 未被引用的条目（%d 个）\n\n", len(s.Uncited))
		for _, k := range s.Uncited {
			fmt.Fprintf(&b, "- `%s`\n", k)
		}
		b.WriteString("\n")
	}

	if len(s.Missing) == 0 {
		b.WriteString("## 缺失的 key\n\n_所有引用都能在 .bib 中找到。_\n\n")
	} else {
		fmt.Fprintf(&b, "## 缺失的 key（%d 个 key，%d 处）\n\n", sum.MissingKeys, len(s.Missing))
		b.WriteString("| 文件 | 行 | key |\n")
		b.WriteString("|---|---|---|\n")
		for _, m := range s.Missing {
			fmt.Fprintf(&b, "| `%s` | %d | `%s` |\n", cell(m.File), m.Line, cell(m.Key))
		}
		b.WriteString("\n")
	}

	if len(s.Errors) > 0 {
		b.WriteString("## 错误\n\n")
		b.WriteString("| 文件 | 代码 | 信息 |\n")
		b.WriteString("|---|---|---|\n")
		for _, e := range s.Errors {
			fmt.Fprintf(&b, "| `%s` | %s | %s |\n", cell(e.File), e.Code, cell(e.Msg))
		}
		b.WriteString("\n")
	}
	return b.String()
}
