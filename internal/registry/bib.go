package registry

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/edsrzf/mmap-go"
)

// @type{key,：只取条目类型与 key，不解析字段。
var entryRE = regexp.MustCompile(`(?i)@(\w+)\s*\{\s*([^,\s]+)\s*,`)

// ParseBibKeys 从 BibTeX 文本中提取条目 key（按出现顺序，可能重复）。
// @comment/@preamble/@string 不是文献条目，跳过。
func ParseBibKeys(text []byte) []string {
	var keys []string
	for _, m := range entryRE.FindAllSubmatch(text, -1) {
		switch strings.ToLower(string(m[1])) {
		case "comment", "preamble", "string":
			continue
		}
		keys = append(keys, strings.TrimSpace(string(m[2])))
	}
	return keys
}

// LoadBib 读取 .bib 文件并返回合法 key 集合。
//
// 文件通过只读内存映射读取（整份 .bib 只扫描一遍，不复制到堆上）。
// 文件不存在时返回的错误满足 errors.Is(err, os.ErrNotExist)；没有条目时返回 ErrEmpty。
func LoadBib(path string) (KeySet, error) {
	f, err := os.Open(path)
	if err != nil {
		return KeySet{}, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return KeySet{}, err
	}
	if fi.IsDir() {
		return KeySet{}, fmt.Errorf("%q 是目录，不是 .bib 文件", path)
	}
	if fi.Size() == 0 {
		// 长度为 0 的文件无法 mmap。
		return KeySet{}, fmt.Errorf("%w：%q 没有任何条目", ErrEmpty, path)
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return KeySet{}, fmt.Errorf("映射 %q 失败：%w", path, err)
	}
	defer func() { _ = m.Unmap() }()

	ks, err := NewKeySet(ParseBibKeys(m)...)
	if err != nil {
		return KeySet{}, fmt.Errorf("%w：%q 没有任何条目", err, path)
	}
	return ks, nil
}
