package registry

import (
	"bufio"
	"bytes"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/citefix/internal/infra/fsx"
)

// DefaultIgnoreFile 是忽略列表的默认文件名（位于语料根目录）。
const DefaultIgnoreFile = ".citefixignore"

// IgnoreList 是不应被报告为错误的 key 模式（精确 key 或 shell glob：* ? [...]）。
type IgnoreList struct {
	patterns []string
}

// NewIgnoreList 直接用模式构建（主要用于测试与组合）。
func NewIgnoreList(patterns ...string) IgnoreList {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return IgnoreList{patterns: out}
}

// LoadIgnore 读取忽略列表：每行一个模式，空行与 '#' 开头的行忽略。
// 文件不存在不算错误（返回空列表）。
func LoadIgnore(p string) (IgnoreList, error) {
	b, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return IgnoreList{}, nil
		}
		return IgnoreList{}, err
	}
	return NewIgnoreList(parseIgnore(b)...), nil
}

func parseIgnore(b []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// Match 判断 key 是否被任一模式命中。非法的 glob 模式只做精确比较。
func (l IgnoreList) Match(key string) bool {
	for _, p := range l.patterns {
		if p == key {
			return true
		}
		if ok, err := path.Match(p, key); err == nil && ok {
			return true
		}
	}
	return false
}

func (l IgnoreList) Len() int { return len(l.patterns) }

// EscapeGlob 转义 key 中的 glob 元字符，使写入的行只匹配 key 本身。
func EscapeGlob(key string) string {
	if !strings.ContainsAny(key, `*?[\`) {
		return key
	}
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '*', '?', '[', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// AppendIgnore 把 keys（按字面量，见 EscapeGlob）追加到忽略列表文件（已存在的项不重复写入），整文件原子替换。
// 返回实际新增的数量。
func AppendIgnore(p string, keys []string) (int, error) {
	existing, err := os.ReadFile(p)
	if err != nil && !os.IsNotExist(err) {
		return 0, err
	}

	have := map[string]struct{}{}
	for _, x := range parseIgnore(existing) {
		have[x] = struct{}{}
	}

	var buf bytes.Buffer
	if len(existing) == 0 {
		buf.WriteString("# citefix：以下 key 已确认正确，不再报告。\n")
	} else {
		buf.Write(existing)
		if !bytes.HasSuffix(existing, []byte("\n")) {
			buf.WriteByte('\n')
		}
	}

	added := 0
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		line := EscapeGlob(k)
		if _, ok := have[line]; ok {
			continue
		}
		have[line] = struct{}{}
		buf.WriteString(line)
		buf.WriteByte('\n')
		added++
	}
	if added == 0 {
		return 0, nil
	}
	return added, fsx.WriteFileAtomic(filepath.Dir(p), filepath.Base(p), buf.Bytes())
}
