// Package cite 解析 LaTeX/biblatex 引用命令，并在不破坏其余内容的前提下改写其中的 key。
package cite

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Commands 是可识别的引用命令（不含反斜杠）。匹配时大小写不敏感，且允许尾随 '*'。
var Commands = []string{
	"parencite", "Parencite", "textcite", "Textcite", "cite", "autocite", "Autocite",
	"citeauthor", "citeauthor*", "citeyear", "citealt", "citealp",
	"footcite", "fullcite", "nocite", "supercite",
}

// \cmd[pre][post]{key1, key2}：0~2 个可选参数组，随后是一个花括号 key 列表（group 1）。
// 只读常量：包初始化时编译一次，运行期间不修改。
var citeRE = regexp.MustCompile(`(?i)\\(?:` + alternation(Commands) + `)\*?(?:\[[^\]]*\]){0,2}\{([^}]+)\}`)

// Wildcard 是 \nocite{*} 的通配符，不是 key。
const Wildcard = "*"

func alternation(cmds []string) string {
	parts := make([]string, 0, len(cmds))
	for _, c := range cmds {
		parts = append(parts, regexp.QuoteMeta(c))
	}
	return strings.Join(parts, "|")
}

// KeyToken 是 key 列表中的一个 key，Start/End 是它在行内的字节偏移（已去掉两侧空白）。
type KeyToken struct {
	Key   string
	Start int
	End   int
}

// Citation 是一行中的一个引用命令。
type Citation struct {
	Start int
	End   int
	Keys  []KeyToken
}

// StripComment 去掉行内注释：从第一个未转义的 '%' 到行尾。
// '%' 前面紧跟奇数个反斜杠时视为转义（\%）；偶数个（例如 \\%）时仍是注释。
func StripComment(line string) string {
	for i := 0; i < len(line); i++ {
		if line[i] != '%' {
			continue
		}
		n := 0
		for j := i - 1; j >= 0 && line[j] == '\\'; j-- {
			n++
		}
		if n%2 == 0 {
			return line[:i]
		}
	}
	return line
}

// Parse 在一行（调用方负责先去掉注释）中查找所有引用命令。
// 语法异常（未闭合的花括号等）不会报错，只是不产生结果。
func Parse(line string) []Citation {
	idx := citeRE.FindAllStringSubmatchIndex(line, -1)
	if len(idx) == 0 {
		return nil
	}
	out := make([]Citation, 0, len(idx))
	for _, m := range idx {
		if len(m) < 4 || m[2] < 0 {
			continue
		}
		out = append(out, Citation{
			Start: m[0],
			End:   m[1],
			Keys:  splitKeys(line, m[2], m[3]),
		})
	}
	return out
}

func splitKeys(line string, start, end int) []KeyToken {
	keys := make([]KeyToken, 0, 2)
	segStart := start
	for i := start; i <= end; i++ {
		if i < end && line[i] != ',' {
			continue
		}
		ks, ke := trimSpan(line, segStart, i)
		if ks < ke {
			k := line[ks:ke]
			if k != Wildcard {
				keys = append(keys, KeyToken{Key: k, Start: ks, End: ke})
			}
		}
		segStart = i + 1
	}
	return keys
}

func trimSpan(s string, start, end int) (int, int) {
	for start < end {
		r, n := utf8.DecodeRuneInString(s[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		start += n
	}
	for end > start {
		r, n := utf8.DecodeLastRuneInString(s[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		end -= n
	}
	return start, end
}

// Keys 返回一行（含注释也可以）里所有被引用的 key，按出现顺序。
func Keys(line string) []string {
	var out []string
	for _, c := range Parse(StripComment(line)) {
		for _, k := range c.Keys {
			out = append(out, k.Key)
		}
	}
	return out
}

// RewriteLine 把引用命令 key 列表中出现在 mapping 里的 key 替换为新值。
//
// - 只改写注释之前的部分；注释、空白、分隔符与其它 key 原样保留
// - 返回替换次数；为 0 时返回原行
func RewriteLine(line string, mapping map[string]string) (string, int) {
	if len(mapping) == 0 {
		return line, 0
	}
	active := StripComment(line)

	var b strings.Builder
	last := 0
	n := 0
	for _, c := range Parse(active) {
		for _, k := range c.Keys {
			repl, ok := mapping[k.Key]
			if !ok || repl == k.Key {
				continue
			}
			if n == 0 {
				b.Grow(len(line) + 16)
			}
			b.WriteString(line[last:k.Start])
			b.WriteString(repl)
			last = k.End
			n++
		}
	}
	if n == 0 {
		return line, 0
	}
	b.WriteString(line[last:])
	return b.String(), n
}

// SplitLines 按 '\n' 切分内容，保留每行的行尾（"\n" 或 "\r\n"）。
// 末尾没有换行时最后一行不带行尾；空内容返回 nil。
func SplitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := make([]string, 0, strings.Count(content, "\n")+1)
	for len(content) > 0 {
		i := strings.IndexByte(content, '\n')
		if i < 0 {
			lines = append(lines, content)
			break
		}
		lines = append(lines, content[:i+1])
		content = content[i+1:]
	}
	return lines
}

// TrimEOL 把一行拆成正文与行尾。
func TrimEOL(line string) (body, eol string) {
	switch {
	case strings.HasSuffix(line, "\r\n"):
		return line[:len(line)-2], "\r\n"
	case strings.HasSuffix(line, "\n"):
		return line[:len(line)-1], "\n"
	default:
		return line, ""
	}
}
