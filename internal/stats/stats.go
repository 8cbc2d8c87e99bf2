// Package stats 统计引用频次：每个 key 被引用多少次、.bib 中哪些条目从未被引用、哪些引用找不到条目。
package stats

import (
	"sort"

	"github.com/John-Robertt/citefix/internal/domain"
)

type Registry interface {
	Has(key string) bool
	Keys() []string
}

type Ignorer interface {
	Match(key string) bool
}

// Analyze 只做计数，不读写文件。files 是被扫描的文件数。
//
// 忽略列表命中的 .bib 条目不计入 registry_keys/uncited；命中的引用不计入 missing，但仍出现在 counts 中。
func Analyze(occs []domain.Occurrence, files int, reg Registry, ignore Ignorer) domain.CitationStats {
	st := domain.CitationStats{
		Counts:  []domain.KeyCount{},
		Uncited: []string{},
		Missing: []domain.MissingCitation{},
		Errors:  []domain.RunError{},
	}

	counts := map[string]int{}
	missingKeys := map[string]struct{}{}
	for _, o := range occs {
		counts[o.Key]++
		if reg.Has(o.Key) || ignore.Match(o.Key) {
			continue
		}
		missingKeys[o.Key] = struct{}{}
		st.Missing = append(st.Missing, domain.MissingCitation{File: o.RelPath, Line: o.Line, Key: o.Key})
	}

	for k, n := range counts {
		st.Counts = append(st.Counts, domain.KeyCount{Key: k, Count: n, InRegistry: reg.Has(k)})
	}
	sort.Slice(st.Counts, func(i, j int) bool {
		if st.Counts[i].Count != st.Counts[j].Count {
			return st.Counts[i].Count > st.Counts[j].Count
		}
		return st.Counts[i].Key < st.Counts[j].Key
	})

	registryKeys, ignored := 0, 0
	for _, k := range reg.Keys() {
		if ignore.Match(k) {
			ignored++
			continue
		}
		registryKeys++
		if counts[k] == 0 {
			st.Uncited = append(st.Uncited, k)
		}
	}
	sort.Strings(st.Uncited)
	sort.SliceStable(st.Missing, func(i, j int) bool {
		a, b := st.Missing[i], st.Missing[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Key < b.Key
	})

	st.Summary = domain.StatsSummary{
		Files:        files,
		Citations:    len(occs),
		CitedKeys:    len(counts),
		RegistryKeys: registryKeys,
		Ignored:      ignored,
		Uncited:      len(st.Uncited),
		MissingKeys:  len(missingKeys),
	}
	return st
}
