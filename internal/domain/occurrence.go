package domain

// TexFile 描述一次扫描得到的标记文件（.tex）。
//
// 不变量（实现必须遵守）：
// - AbsPath 必须是 clean + absolute
// - Size/ModUnixNano 记录扫描时的状态，写回前用于检测文件是否被外部修改
type TexFile struct {
	AbsPath     string
	RelPath     string
	Size        int64
	ModUnixNano int64
}

// Document 是扫描阶段读入内存的文件内容。
// 每个文件每次运行最多读一次；改写阶段直接复用这里的 Content。
type Document struct {
	File    TexFile
	Content []byte
}

// Occurrence 是某个引用 key 在某文件某行的一次出现（行号从 1 开始）。
type Occurrence struct {
	Key     string
	File    string // abs
	RelPath string
	Line    int
}
