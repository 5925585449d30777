package toolutil

import (
	"sort"
	"strings"

	"golang.org/x/exp/constraints"
)

const ProjectPrefix = "pci_tool/"

// 把绝对路径裁剪成项目内相对路径，日志里看着清爽
func TrimToProjectPath(file string) string {
	// 统一分隔符。filepath.ToSlash 在 Linux 上是空操作，
	// Windows 风格的路径要自己换
	path := strings.ReplaceAll(file, "\\", "/")

	// 查找前缀位置
	if idx := strings.Index(path, ProjectPrefix); idx >= 0 {
		return path[idx+len(ProjectPrefix):]
	}
	return path
}

// SortedMapKeys 将 map 的 key 排序后返回
func SortedMapKeys[K constraints.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
