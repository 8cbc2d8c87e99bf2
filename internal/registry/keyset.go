// Package registry 提供合法 key 集合（来自 .bib）以及忽略列表。
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrEmpty 表示 registry 中没有任何 key；这是硬错误（无法判断任何引用是否合法）。
var ErrEmpty = errors.New("registry 为空")

// KeySet 是合法 key 的只读集合。
// 用 map 做 O(1) 查找；Keys 保持排序，保证下游遍历顺序确定。
type KeySet struct {
	set  map[string]struct{}
	keys []string
}

// NewKeySet 构建 KeySet：空白 key 被忽略，重复 key 合并。没有任何有效 key 时返回 ErrEmpty。
func NewKeySet(keys ...string) (KeySet, error) {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		set[k] = struct{}{}
	}
	if len(set) == 0 {
		return KeySet{}, ErrEmpty
	}
	sorted := make([]string, 0, len(set))
	for k := range set {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)
	return KeySet{set: set, keys: sorted}, nil
}

// Has 判断 key 是否合法（大小写敏感，与 biblatex 一致）。
func (s KeySet) Has(key string) bool {
	if s.set == nil {
		return false
	}
	_, ok := s.set[key]
	return ok
}

// Keys 返回排序后的 key 副本。
func (s KeySet) Keys() []string {
	return append([]string(nil), s.keys...)
}

func (s KeySet) Len() int { return len(s.keys) }

func (s KeySet) String() string {
	return fmt.Sprintf("KeySet(%d)", len(s.keys))
}
