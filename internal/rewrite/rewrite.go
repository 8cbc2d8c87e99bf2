// Package rewrite 把最终映射一次性应用到受影响的文件：内存中整体变换，再整文件原子替换。
package rewrite

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/John-Robertt/citefix/internal/cite"
	"github.com/John-Robertt/citefix/internal/domain"
	"github.com/John-Robertt/citefix/internal/infra/fsx"
)

// FileChange 是单个文件的待写内容。
type FileChange struct {
	File     domain.TexFile
	Content  []byte
	Replaced int
}

// Changeset 是一次运行的全部待写文件（按 RelPath 排序）。
type Changeset struct {
	Files []FileChange
}

func (c Changeset) Replaced() int {
	n := 0
	for _, f := range c.Files {
		n += f.Replaced
	}
	return n
}

func (c Changeset) Paths() []string {
	out := make([]string, 0, len(c.Files))
	for _, f := range c.Files {
		out = append(out, f.File.RelPath)
	}
	return out
}

// FileChangedError 表示文件在扫描之后被外部修改，写回已放弃。
type FileChangedError struct {
	Path string
}

func (e *FileChangedError) Error() string {
	return fmt.Sprintf("文件在扫描后被修改：%q", e.Path)
}

// Plan 只变换包含受影响出现的行；其它行、同一引用列表中的其它 key、注释都原样保留。
// 每个文件复用扫描时读入的内容，不再重新读取。
func Plan(docs []domain.Document, mapping map[string]string, occs []domain.Occurrence) Changeset {
	if len(mapping) == 0 {
		return Changeset{}
	}

	affected := make(map[string]map[int]struct{})
	for _, o := range occs {
		if _, ok := mapping[o.Key]; !ok {
			continue
		}
		lines := affected[o.File]
		if lines == nil {
			lines = make(map[int]struct{})
			affected[o.File] = lines
		}
		lines[o.Line] = struct{}{}
	}

	var cs Changeset
	for _, d := range docs {
		lines, ok := affected[d.File.AbsPath]
		if !ok {
			continue
		}
		content, n := transform(string(d.Content), lines, mapping)
		if n == 0 {
			continue
		}
		cs.Files = append(cs.Files, FileChange{File: d.File, Content: []byte(content), Replaced: n})
	}
	sort.Slice(cs.Files, func(i, j int) bool { return cs.Files[i].File.RelPath < cs.Files[j].File.RelPath })
	return cs
}

func transform(content string, lines map[int]struct{}, mapping map[string]string) (string, int) {
	raw := cite.SplitLines(content)
	var b strings.Builder
	b.Grow(len(content) + 64)
	total := 0
	for i, line := range raw {
		if _, ok := lines[i+1]; ok {
			body, eol := cite.TrimEOL(line)
			if out, n := cite.RewriteLine(body, mapping); n > 0 {
				line = out + eol
				total += n
			}
		}
		b.WriteString(line)
	}
	return b.String(), total
}

// Preview 返回不写盘时的文件结果（status=planned）。
func Preview(cs Changeset) []domain.FileResult {
	out := make([]domain.FileResult, 0, len(cs.Files))
	for _, f := range cs.Files {
		out = append(out, domain.FileResult{Path: f.File.RelPath, Replaced: f.Replaced, Status: domain.FileStatusPlanned})
	}
	return out
}

// Apply 逐个文件写回；单个文件失败不影响其它文件。
//
// 写之前重新 stat：大小或修改时间与扫描时不同则放弃该文件（file_changed）。
// onDone 可为 nil。
func Apply(cs Changeset, log zerolog.Logger, onDone func(domain.FileResult)) []domain.FileResult {
	out := make([]domain.FileResult, 0, len(cs.Files))
	for _, f := range cs.Files {
		res := domain.FileResult{Path: f.File.RelPath, Replaced: f.Replaced, Status: domain.FileStatusWritten}
		if err := applyOne(f); err != nil {
			res.Status = domain.FileStatusFailed
			res.ErrorCode = errorCode(err)
			res.ErrorMsg = err.Error()
			log.Error().Str("file", f.File.RelPath).Str("code", res.ErrorCode).Err(err).Msg("写回失败")
		} else {
			log.Debug().Str("file", f.File.RelPath).Int("replaced", f.Replaced).Msg("已写回")
		}
		out = append(out, res)
		if onDone != nil {
			onDone(res)
		}
	}
	return out
}

func applyOne(f FileChange) error {
	fi, err := os.Stat(f.File.AbsPath)
	if err != nil {
		return err
	}
	if fi.Size() != f.File.Size || fi.ModTime().UnixNano() != f.File.ModUnixNano {
		return &FileChangedError{Path: f.File.RelPath}
	}
	return fsx.ReplaceFile(f.File.AbsPath, f.Content)
}

func errorCode(err error) string {
	var fc *FileChangedError
	if errors.As(err, &fc) {
		return domain.ErrCodeFileChanged
	}
	return domain.ErrCodeWriteFailed
}
