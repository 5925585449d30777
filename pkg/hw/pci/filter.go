package pci

import (
	"strings"

	radix "github.com/armon/go-radix"
)

// AddrFilter 按地址前缀筛设备。
// 地址的字符串形式本身就是层级前缀(域:总线:设备.功能)，
// 放进基数树里用 WalkPrefix 一次拿完，不用全表扫
type AddrFilter struct {
	tree *radix.Tree
}

func NewAddrFilter(devs []*Device) *AddrFilter {
	t := radix.New()
	for _, d := range devs {
		t.Insert(d.Addr.String(), d)
	}
	return &AddrFilter{tree: t}
}

// MatchPrefix 返回地址以 prefix 开头的所有设备，保持规范顺序
// (基数树的 WalkPrefix 按键的字典序走，正好就是规范顺序)。
// 空前缀匹配全部
func (f *AddrFilter) MatchPrefix(prefix string) []*Device {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	var out []*Device
	f.tree.WalkPrefix(prefix, func(s string, v interface{}) bool {
		out = append(out, v.(*Device))
		return false
	})
	return out
}

func (f *AddrFilter) Len() int { return f.tree.Len() }
