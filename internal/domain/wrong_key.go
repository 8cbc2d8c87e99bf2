package domain

// Candidate 是某个 registry key 对错误 key 的相似度得分（0..1）。
type Candidate struct {
	Key   string  `json:"key" yaml:"key"`
	Score float64 `json:"score" yaml:"score"`
}

// WrongKey 按 key 聚合了 registry 中不存在的引用。
//
// - Occurrences 按扫描顺序排列
// - Candidates 最多 5 个：得分降序，同分按 key 字典序
type WrongKey struct {
	Key         string
	Occurrences []Occurrence
	Candidates  []Candidate
}

// Best 返回得分最高的候选；没有候选时 ok=false。
func (w WrongKey) Best() (Candidate, bool) {
	if len(w.Candidates) == 0 {
		return Candidate{}, false
	}
	return w.Candidates[0], true
}
