// Package match 计算错误 key 与 registry key 的字符串相似度并给出排序后的候选。
package match

import (
	"sort"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/John-Robertt/citefix/internal/domain"
)

// TopN 是每个错误 key 最多保留的候选数。
const TopN = 5

// Ratio 返回 a 与 b 的归一化相似度 2·M/(len(a)+len(b))，大小写不敏感。
// M 由最长匹配块递归累加得到（Ratcliff/Obershelp），结果确定且在 [0, 1] 内。
func Ratio(a, b string) float64 {
	return ratio(runes(fold(a)), runes(fold(b)))
}

func ratio(a, b []string) float64 {
	if len(a)+len(b) == 0 {
		return 1
	}
	return difflib.NewMatcher(a, b).Ratio()
}

func fold(s string) string {
	// cases.Caser 不是并发安全的：每次新建，开销可以忽略（key 都很短）。
	return cases.Lower(language.Und).String(s)
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// Matcher 预先保存 registry key 的小写序列，对每个错误 key 做全量比较（不抽样、不近似）。
type Matcher struct {
	keys    []string
	lowered [][]string
}

// New 以给定 key 构建 Matcher；keys 的顺序不影响结果。
func New(keys []string) *Matcher {
	m := &Matcher{
		keys:    append([]string(nil), keys...),
		lowered: make([][]string, len(keys)),
	}
	for i, k := range m.keys {
		m.lowered[i] = runes(fold(k))
	}
	return m
}

// Rank 返回得分 >= min 的前 TopN 个候选：得分降序，同分按 key 升序。
// 与 wrong 完全相同的 key 不会作为候选返回。
func (m *Matcher) Rank(wrong string, min float64) []domain.Candidate {
	w := runes(fold(wrong))
	out := make([]domain.Candidate, 0, TopN)
	for i, k := range m.keys {
		if k == wrong {
			continue
		}
		s := ratio(w, m.lowered[i])
		if s < min {
			continue
		}
		out = append(out, domain.Candidate{Key: k, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Key < out[j].Key
	})
	if len(out) > TopN {
		out = out[:TopN]
	}
	return out
}
