// 测试公共设施：内存里的假配置空间后端 + 多行文本断言
package testutils

import (
	"fmt"
	"sort"
	"testing"

	"pci_tool/pkg/diffutil"
	"pci_tool/pkg/hw/pci"
)

// FakeDev 一个假功能的全部素材。
// Config 不足 256 字节的部分读出来全是 0
type FakeDev struct {
	Config []byte
	// 区间读(ReadBytes)直接报错，但裸读仍然应答，
	// 模拟能枚举到却读不出头部的半坏功能
	Broken bool
}

// FakeAccess 纯内存的配置空间后端。
// 记录每一次区间读，测试用它验证缓存确实没多读硬件
type FakeAccess struct {
	Devs map[pci.Addr]*FakeDev

	// 每次 ReadBytes 调用一条记录
	Reads []ReadRecord
}

type ReadRecord struct {
	Addr pci.Addr
	Off  int
	N    int
}

var _ pci.ConfigAccess = (*FakeAccess)(nil)

func NewFakeAccess() *FakeAccess {
	return &FakeAccess{Devs: make(map[pci.Addr]*FakeDev)}
}

// Add 注册一个假功能，config 可以只给头部
func (f *FakeAccess) Add(addr string, config []byte) *FakeDev {
	a, err := pci.ParseAddr(addr)
	if err != nil {
		panic(fmt.Sprintf("testutils: 非法地址 %q: %v", addr, err))
	}
	d := &FakeDev{Config: config}
	f.Devs[a] = d
	return d
}

// Enumerate 故意乱序返回，注册表排序逻辑靠这个暴露问题
func (f *FakeAccess) Enumerate() ([]pci.Addr, error) {
	addrs := make([]pci.Addr, 0, len(f.Devs))
	for a := range f.Devs {
		addrs = append(addrs, a)
	}
	// 倒序，和规范序正好相反
	sort.Slice(addrs, func(i, j int) bool {
		return pci.CompareAddr(addrs[i], addrs[j]) > 0
	})
	return addrs, nil
}

func (f *FakeAccess) ReadBytes(a pci.Addr, off, n int) ([]byte, error) {
	f.Reads = append(f.Reads, ReadRecord{Addr: a, Off: off, N: n})
	d, ok := f.Devs[a]
	if !ok {
		return nil, fmt.Errorf("testutils: 设备 %s 不存在", a)
	}
	if d.Broken {
		return nil, fmt.Errorf("testutils: 设备 %s 已标记为损坏", a)
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		if off+i < len(d.Config) {
			out[i] = d.Config[off+i]
		}
	}
	return out, nil
}

// ReadConfigWord 原始读，不存在的设备按总线惯例返回全 1
func (f *FakeAccess) ReadConfigWord(a pci.Addr, reg int) (uint16, error) {
	d, ok := f.Devs[a]
	if !ok {
		return 0xFFFF, nil
	}
	var lo, hi byte
	if reg < len(d.Config) {
		lo = d.Config[reg]
	}
	if reg+1 < len(d.Config) {
		hi = d.Config[reg+1]
	}
	return uint16(lo) | uint16(hi)<<8, nil
}

func (f *FakeAccess) ReadConfigByte(a pci.Addr, reg int) (byte, error) {
	d, ok := f.Devs[a]
	if !ok {
		return 0xFF, nil
	}
	if reg < len(d.Config) {
		return d.Config[reg], nil
	}
	return 0, nil
}

// ReadsFor 过滤出某个地址的所有区间读记录
func (f *FakeAccess) ReadsFor(addr string) []ReadRecord {
	a, err := pci.ParseAddr(addr)
	if err != nil {
		panic(fmt.Sprintf("testutils: 非法地址 %q: %v", addr, err))
	}
	var out []ReadRecord
	for _, r := range f.Reads {
		if r.Addr == a {
			out = append(out, r)
		}
	}
	return out
}

// Header64 造一个 64 字节的类型 0/1 标准头
func Header64(vendor, device, class uint16, header, pri, sec, sub byte) []byte {
	buf := make([]byte, 64)
	buf[0] = byte(vendor)
	buf[1] = byte(vendor >> 8)
	buf[2] = byte(device)
	buf[3] = byte(device >> 8)
	buf[0x0A] = byte(class)
	buf[0x0B] = byte(class >> 8)
	buf[0x0E] = header
	if header&0x7F != 0 {
		buf[0x18] = pri
		buf[0x19] = sec
		buf[0x1A] = sub
	}
	return buf
}

// AssertMultilineEqual 多行文本断言，失败时打印并排 diff
func AssertMultilineEqual(t *testing.T, expect, actual string) {
	t.Helper()
	if expect == actual {
		return
	}
	diff := diffutil.CompareMultiline(expect, actual)
	t.Errorf("多行文本不一致:\n%s", diffutil.FormatSideBySide(diff))
}
