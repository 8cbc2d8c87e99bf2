// Package report 把 CorrectionReport 与 CitationStats 渲染为 markdown / json / yaml。
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/citefix/internal/domain"
)

const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatYAML     = "yaml"
)

// Formats 是支持的输出格式（第一个为默认值）。
var Formats = []string{FormatMarkdown, FormatJSON, FormatYAML}

// ValidFormat 判断 format 是否受支持（大小写不敏感，"md"/"yml" 为别名）。
func ValidFormat(format string) bool {
	_, ok := normalize(format)
	return ok
}

func normalize(format string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "md", FormatMarkdown:
		return FormatMarkdown, true
	case FormatJSON:
		return FormatJSON, true
	case "yml", FormatYAML:
		return FormatYAML, true
	}
	return "", false
}

// Render 按格式渲染。调用方应先 Finalize 报告。
func Render(r domain.CorrectionReport, format string) ([]byte, error) {
	f, err := parseFormat(format)
	if err != nil {
		return nil, err
	}
	switch f {
	case FormatJSON:
		return JSON(r)
	case FormatYAML:
		return YAML(r)
	default:
		return []byte(Markdown(r)), nil
	}
}

func parseFormat(format string) (string, error) {
	f, ok := normalize(format)
	if !ok {
		return "", fmt.Errorf("不支持的报告格式 %q（可选：%s）", format, strings.Join(Formats, ", "))
	}
	return f, nil
}

func JSON(v any) ([]byte, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func YAML(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// keyRow 是修正表中每个错误 key 的一行（取排序后的第一处出现）。
type keyRow struct {
	first domain.Correction
	count int
}

func dedupe(cs []domain.Correction) []keyRow {
	sorted := append([]domain.Correction(nil), cs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].File != sorted[j].File {
			return sorted[i].File < sorted[j].File
		}
		return sorted[i].Line < sorted[j].Line
	})

	idx := make(map[string]int, len(sorted))
	rows := make([]keyRow, 0, len(sorted))
	for _, c := range sorted {
		if i, ok := idx[c.WrongKey]; ok {
			rows[i].count++
			continue
		}
		idx[c.WrongKey] = len(rows)
		rows = append(rows, keyRow{first: c, count: 1})
	}
	return rows
}

// Confidence 把置信度格式化为百分比；人工输入的 key 显示为 manual。
func Confidence(c domain.Correction) string {
	if c.Manual {
		return "manual"
	}
	return fmt.Sprintf("%.0f%%", c.Confidence*100)
}

func candidates(cs []domain.Candidate) string {
	if len(cs) == 0 {
		return "_无相似 key_"
	}
	parts := make([]string, 0, len(cs))
	for _, c := range cs {
		parts = append(parts, fmt.Sprintf("`%s` (%.0f%%)", cell(c.Key), c.Score*100))
	}
	return strings.Join(parts, ", ")
}

// cell 转义表格单元格中的 '|'（行内代码里同样需要）。
func cell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func mode(r domain.CorrectionReport) string {
	switch {
	case r.DryRun:
		return "预览模式：未修改任何文件"
	case !r.Applied:
		return "未确认写入：未修改任何文件"
	default:
		return "已执行"
	}
}

// Markdown 渲染人读报告。修正按错误 key 去重；两个主表都按 (文件, 行) 排序。
func Markdown(r domain.CorrectionReport) string {
	var b strings.Builder
	b.WriteString("# 引用 key 修正报告\n\n")
	fmt.Fprintf(&b, "_%s_\n\n", mode(r))

	rows := dedupe(r.Corrections)
	if len(rows) == 0 {
		b.WriteString("## 修正\n\n_没有需要修正的 key。_\n\n")
	} else {
		fmt.Fprintf(&b, "## 修正（%d 个 key）\n\n", len(rows))
		b.WriteString("| 文件 | 行 | 错误 key | 修正为 | 置信度 | 出现次数 |\n")
		b.WriteString("|---|---|---|---|---|---|\n")
		for _, row := range rows {
			c := row.first
			fmt.Fprintf(&b, "| `%s` | %d | `%s` | `%s` | %s | %d |\n",
				cell(c.File), c.Line, cell(c.WrongKey), cell(c.CorrectKey), Confidence(c), row.count)
		}
		action := "已修正"
		if r.DryRun || !r.Applied {
			action = "将被修正"
		}
		fmt.Fprintf(&b, "\n_共 %d 处出现%s。_\n\n", len(r.Corrections), action)
	}

	if len(r.Unresolved) == 0 {
		b.WriteString("## 未解决的 key\n\n_所有错误 key 均已处理。_\n\n")
	} else {
		us := append([]domain.UnresolvedKey(nil), r.Unresolved...)
		sort.SliceStable(us, func(i, j int) bool {
			if us[i].File != us[j].File {
				return us[i].File < us[j].File
			}
			return us[i].Line < us[j].Line
		})
		fmt.Fprintf(&b, "## 未解决的 key（%d 处）\n\n", len(us))
		b.WriteString("> 这些 key 出现在正文中，但不在 .bib 里，需要人工检查。\n\n")
		b.WriteString("| 文件 | 行 | 错误 key | 状态 | 相似 key |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, u := range us {
			fmt.Fprintf(&b, "| `%s` | %d | `%s` | %s | %s |\n", cell(u.File), u.Line, cell(u.WrongKey), u.State, candidates(u.Candidates))
		}
		b.WriteString("\n")
	}

	if len(r.Accepted) > 0 {
		b.WriteString("## 已接受的 key\n\n")
		for _, k := range r.Accepted {
			fmt.Fprintf(&b, "- `%s`\n", k)
		}
		b.WriteString("\n")
	}

	if len(r.Errors) > 0 {
		b.WriteString("## 错误\n\n")
		b.WriteString("| 文件 | 代码 | 信息 |\n")
		b.WriteString("|---|---|---|\n")
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "| `%s` | %s | %s |\n", cell(e.File), e.Code, cell(e.Msg))
		}
		b.WriteString("\n")
	}
	return b.String()
}
