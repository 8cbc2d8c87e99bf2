package domain

import (
	"sort"
	"time"
)

const (
	FileStatusPlanned   = "planned"
	FileStatusWritten   = "written"
	FileStatusUnchanged = "unchanged"
	FileStatusFailed    = "failed"
)

const (
	ErrCodeConfigInvalid    = "config_invalid"
	ErrCodeConfigNotFound   = "config_not_found"
	ErrCodeRegistryMissing  = "registry_missing"
	ErrCodeRegistryEmpty    = "registry_empty"
	ErrCodeCorpusUnreadable = "corpus_unreadable"
	ErrCodeReadFailed       = "read_failed"
	ErrCodeWriteFailed      = "write_failed"
	ErrCodeFileChanged      = "file_changed"
)

// CorrectionReport 是引擎唯一对外的产物（markdown/json/yaml 都由它渲染）。
type CorrectionReport struct {
	Root   string `json:"root" yaml:"root"`
	DryRun bool   `json:"dry_run" yaml:"dry_run"`
	// Applied 表示修正确实已写回文件（dry-run 或交互确认被拒绝时为 false）。
	Applied bool `json:"applied" yaml:"applied"`

	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`

	Summary     ReportSummary   `json:"summary" yaml:"summary"`
	Corrections []Correction    `json:"corrections" yaml:"corrections"`
	Unresolved  []UnresolvedKey `json:"unresolved" yaml:"unresolved"`
	Accepted    []string        `json:"accepted" yaml:"accepted"`
	Files       []FileResult    `json:"files" yaml:"files"`
	Errors      []RunError      `json:"errors" yaml:"errors"`
}

type ReportSummary struct {
	Occurrences    int `json:"occurrences" yaml:"occurrences"`
	Corrections    int `json:"corrections" yaml:"corrections"`
	CorrectedKeys  int `json:"corrected_keys" yaml:"corrected_keys"`
	Unresolved     int `json:"unresolved" yaml:"unresolved"`
	UnresolvedKeys int `json:"unresolved_keys" yaml:"unresolved_keys"`
	FilesWritten   int `json:"files_written" yaml:"files_written"`
	Errors         int `json:"errors" yaml:"errors"`
}

// Correction 是一次出现的修正（File 为相对 root 的路径）。
type Correction struct {
	File       string  `json:"file" yaml:"file"`
	Line       int     `json:"line" yaml:"line"`
	WrongKey   string  `json:"wrong_key" yaml:"wrong_key"`
	CorrectKey string  `json:"correct_key" yaml:"correct_key"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	Manual     bool    `json:"manual" yaml:"manual"`
}

// UnresolvedKey 是一次未修正的出现：跳过、无合格候选或会话提前结束。
type UnresolvedKey struct {
	File       string      `json:"file" yaml:"file"`
	Line       int         `json:"line" yaml:"line"`
	WrongKey   string      `json:"wrong_key" yaml:"wrong_key"`
	State      KeyState    `json:"state" yaml:"state"`
	Candidates []Candidate `json:"candidates" yaml:"candidates"`
}

type FileResult struct {
	Path      string `json:"path" yaml:"path"`
	Replaced  int    `json:"replaced" yaml:"replaced"`
	Status    string `json:"status" yaml:"status"`
	ErrorCode string `json:"error_code,omitempty" yaml:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty" yaml:"error_msg,omitempty"`
}

// RunError 是不致命的运行期问题（例如某个文件读失败），降级记录到报告中。
type RunError struct {
	Code string `json:"code" yaml:"code"`
	File string `json:"file,omitempty" yaml:"file,omitempty"`
	Msg  string `json:"msg" yaml:"msg"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC
// 2) corrections/unresolved 按 (file, line, key) 稳定排序；files 按路径排序
// 3) summary 由明细计算得出
func (r *CorrectionReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	if r.Corrections == nil {
		r.Corrections = []Correction{}
	}
	if r.Unresolved == nil {
		r.Unresolved = []UnresolvedKey{}
	}
	if r.Accepted == nil {
		r.Accepted = []string{}
	}
	if r.Files == nil {
		r.Files = []FileResult{}
	}
	if r.Errors == nil {
		r.Errors = []RunError{}
	}

	sort.SliceStable(r.Corrections, func(i, j int) bool {
		a, b := r.Corrections[i], r.Corrections[j]
		return lessLoc(a.File, a.Line, a.WrongKey, b.File, b.Line, b.WrongKey)
	})
	sort.SliceStable(r.Unresolved, func(i, j int) bool {
		a, b := r.Unresolved[i], r.Unresolved[j]
		return lessLoc(a.File, a.Line, a.WrongKey, b.File, b.Line, b.WrongKey)
	})
	sort.SliceStable(r.Files, func(i, j int) bool { return r.Files[i].Path < r.Files[j].Path })
	sort.Strings(r.Accepted)

	s := ReportSummary{
		Corrections: len(r.Corrections),
		Unresolved:  len(r.Unresolved),
		Errors:      len(r.Errors),
	}
	s.Occurrences = s.Corrections + s.Unresolved
	s.CorrectedKeys = countKeys(len(r.Corrections), func(i int) string { return r.Corrections[i].WrongKey })
	s.UnresolvedKeys = countKeys(len(r.Unresolved), func(i int) string { return r.Unresolved[i].WrongKey })
	for _, f := range r.Files {
		if f.Status == FileStatusWritten {
			s.FilesWritten++
		}
	}
	r.Summary = s
}

func lessLoc(af string, al int, ak string, bf string, bl int, bk string) bool {
	if af != bf {
		return af < bf
	}
	if al != bl {
		return al < bl
	}
	return ak < bk
}

func countKeys(n int, key func(i int) string) int {
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		seen[key(i)] = struct{}{}
	}
	return len(seen)
}
