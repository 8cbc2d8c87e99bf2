package domain

import "time"

// CitationStats 是一次只读统计的结果：每个 key 的引用次数、未被引用的条目、缺失的 key。
type CitationStats struct {
	Root        string    `json:"root" yaml:"root"`
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`

	Summary StatsSummary `json:"summary" yaml:"summary"`
	// Counts 覆盖所有被引用的 key（包括不在 .bib 中的）：次数降序，同次数按 key 升序。
	Counts []KeyCount `json:"counts" yaml:"counts"`
	// Uncited 是 .bib 中从未被引用的 key（忽略列表命中的除外），按 key 排序。
	Uncited []string `json:"uncited" yaml:"uncited"`
	// Missing 是每一处引用了 .bib 中不存在的 key 的位置（忽略列表命中的除外），按 (file, line, key) 排序。
	Missing []MissingCitation `json:"missing" yaml:"missing"`
	Errors  []RunError        `json:"errors" yaml:"errors"`
}

type StatsSummary struct {
	Files        int `json:"files" yaml:"files"`
	Citations    int `json:"citations" yaml:"citations"`
	CitedKeys    int `json:"cited_keys" yaml:"cited_keys"`
	RegistryKeys int `json:"registry_keys" yaml:"registry_keys"`
	Ignored      int `json:"ignored" yaml:"ignored"`
	Uncited      int `json:"uncited" yaml:"uncited"`
	MissingKeys  int `json:"missing_keys" yaml:"missing_keys"`
}

type KeyCount struct {
	Key        string `json:"key" yaml:"key"`
	Count      int    `json:"count" yaml:"count"`
	InRegistry bool   `json:"in_registry" yaml:"in_registry"`
}

type MissingCitation struct {
	File string `json:"file" yaml:"file"`
	Line int    `json:"line" yaml:"line"`
	Key  string `json:"key" yaml:"key"`
}
