package scan

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/John-Robertt/citefix/internal/cite"
	"github.com/John-Robertt/citefix/internal/domain"
)

// DefaultExt 是标记文件的默认扩展名。
const DefaultExt = ".tex"

// DefaultExcludeDirs 是默认排除的目录名（任意层级同名目录都会被跳过）。
var DefaultExcludeDirs = []string{"archiv", ".git", "utils"}

// ErrCorpusUnreadable 表示语料整体不可读（根目录无法遍历，或所有文件都读取失败）。
var ErrCorpusUnreadable = errors.New("语料不可读")

// SkippedFile 记录扫描时被跳过的文件或目录（不会中断扫描）。
type SkippedFile struct {
	RelPath string
	Err     error
}

// Result 是一次完整扫描的结果。
type Result struct {
	Documents   []domain.Document
	Occurrences []domain.Occurrence
	Skipped     []SkippedFile
}

// ListTexFiles 列出 root 下扩展名为 ext 的文件，并应用目录排除规则。
//
// 规则：
// - excludeDirs 中不含路径分隔符的项按目录名匹配（任意层级）
// - 含分隔符的项视为相对 root 的路径（若是绝对路径，则按绝对路径处理）
// - 子目录不可读：记录到 skipped 后继续；root 本身不可读：返回错误
//
// 注意：列举阶段只做 stat（DirEntry.Info），不读文件内容。
func ListTexFiles(root string, excludeDirs []string, ext string) ([]domain.TexFile, []SkippedFile, error) {
	root = filepath.Clean(root)
	if ext == "" {
		ext = DefaultExt
	}
	ext = strings.ToLower(ext)
	names, paths := buildExcluded(root, excludeDirs)

	files := make([]domain.TexFile, 0, 64)
	var skipped []SkippedFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			skipped = append(skipped, SkippedFile{RelPath: relOrAbs(root, path), Err: walkErr})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if path != root && isExcluded(path, d, names, paths) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() || strings.ToLower(filepath.Ext(d.Name())) != ext {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			skipped = append(skipped, SkippedFile{RelPath: relOrAbs(root, path), Err: err})
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, domain.TexFile{
			AbsPath:     path,
			RelPath:     rel,
			Size:        info.Size(),
			ModUnixNano: info.ModTime().UnixNano(),
		})
		return nil
	})
	if err != nil {
		return nil, skipped, fmt.Errorf("%w：%v", ErrCorpusUnreadable, err)
	}

	// 强制稳定输出，保证多次运行的出现顺序一致。
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, skipped, nil
}

// Scan 读取每个文件一次，提取所有引用出现（按文件路径、行号、列顺序）。
// 读取失败的文件会记录 warning 并跳过；只有全部文件都读取失败时才返回 ErrCorpusUnreadable。
func Scan(root string, excludeDirs []string, ext string, log zerolog.Logger) (Result, error) {
	files, skipped, err := ListTexFiles(root, excludeDirs, ext)
	for _, s := range skipped {
		log.Warn().Str("path", s.RelPath).Err(s.Err).Msg("跳过不可读的路径")
	}
	if err != nil {
		return Result{Skipped: skipped}, err
	}

	res := Result{
		Documents:   make([]domain.Document, 0, len(files)),
		Occurrences: make([]domain.Occurrence, 0, 256),
		Skipped:     skipped,
	}
	for _, f := range files {
		b, err := os.ReadFile(f.AbsPath)
		if err != nil {
			log.Warn().Str("file", f.RelPath).Err(err).Msg("读取文件失败，已跳过")
			res.Skipped = append(res.Skipped, SkippedFile{RelPath: f.RelPath, Err: err})
			continue
		}
		res.Documents = append(res.Documents, domain.Document{File: f, Content: b})
		res.Occurrences = append(res.Occurrences, Extract(f, string(b))...)
	}

	if len(files) > 0 && len(res.Documents) == 0 {
		return res, fmt.Errorf("%w：%d 个文件全部读取失败", ErrCorpusUnreadable, len(files))
	}
	log.Debug().Int("files", len(res.Documents)).Int("occurrences", len(res.Occurrences)).Msg("扫描完成")
	return res, nil
}

// Extract 从单个文件内容中提取引用出现。
func Extract(f domain.TexFile, content string) []domain.Occurrence {
	var out []domain.Occurrence
	for i, raw := range cite.SplitLines(content) {
		body, _ := cite.TrimEOL(raw)
		for _, key := range cite.Keys(body) {
			out = append(out, domain.Occurrence{
				Key:     key,
				File:    f.AbsPath,
				RelPath: f.RelPath,
				Line:    i + 1,
			})
		}
	}
	return out
}

// Filter 判断路径是否落在排除目录内，规则与 ListTexFiles 相同。
type Filter struct {
	root  string
	names map[string]struct{}
	paths []string
}

func NewFilter(root string, excludeDirs []string) Filter {
	root = filepath.Clean(root)
	names, paths := buildExcluded(root, excludeDirs)
	return Filter{root: root, names: names, paths: paths}
}

// Excluded 判断 path 是否被排除；isDir 为 true 时最后一段也按目录名匹配。
// root 之外的路径不视为被排除。
func (f Filter) Excluded(path string, isDir bool) bool {
	path = filepath.Clean(path)
	for _, base := range f.paths {
		if isUnder(path, base) {
			return true
		}
	}
	rel, err := filepath.Rel(f.root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if !isDir {
		parts = parts[:len(parts)-1]
	}
	for _, p := range parts {
		if _, ok := f.names[p]; ok {
			return true
		}
	}
	return false
}

func buildExcluded(root string, excludeDirs []string) (names map[string]struct{}, paths []string) {
	names = map[string]struct{}{}
	for _, x := range excludeDirs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		if !strings.ContainsAny(x, `/\`) {
			names[x] = struct{}{}
			continue
		}
		if filepath.IsAbs(x) {
			paths = append(paths, filepath.Clean(x))
			continue
		}
		// x 是相对路径：相对 root。
		paths = append(paths, filepath.Clean(filepath.Join(root, filepath.FromSlash(x))))
	}
	// 排除列表排序后，isExcluded 的行为更可预测（且便于测试）。
	sort.Strings(paths)
	return names, paths
}

func isExcluded(path string, d fs.DirEntry, names map[string]struct{}, paths []string) bool {
	if d.IsDir() {
		if _, ok := names[d.Name()]; ok {
			return true
		}
	}
	path = filepath.Clean(path)
	for _, base := range paths {
		if isUnder(path, base) {
			return true
		}
	}
	return false
}

func isUnder(path, base string) bool {
	if path == base {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(path, base+sep)
}

func relOrAbs(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil {
		return rel
	}
	return path
}
