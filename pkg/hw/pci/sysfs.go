package pci

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pci_tool/pkg/logutil"
	"pci_tool/pkg/toolutil/hex"
	"pci_tool/pkg/toolutil/str"
)

// SysfsRootDefault 内核暴露 PCI 设备的标准位置
const SysfsRootDefault = "/sys/bus/pci/devices"

// SysfsAccess 通过本机 sysfs 读配置空间。
// 注意：sysfs 里的设备是内核已经枚举过的，主动探测模式
// 走这个后端时本质上还是在看内核的结果，只有直接硬件访问
// 才能做到完全不信任枚举——和原工具同样的告诫。
type SysfsAccess struct {
	Root string
}

func NewSysfsAccess(root string) *SysfsAccess {
	return &SysfsAccess{Root: str.DefaultStr(root, SysfsRootDefault)}
}

func (s *SysfsAccess) configPath(a Addr) string {
	return filepath.Join(s.Root, a.String(), "config")
}

func (s *SysfsAccess) Enumerate() ([]Addr, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		return nil, fmt.Errorf("读取 %s 失败: %w", s.Root, err)
	}
	var out []Addr
	for _, e := range entries {
		a, err := ParseAddr(e.Name())
		if err != nil {
			// sysfs 目录里不该有别的东西，出现了就跳过并留痕
			logutil.Debug("忽略无法解析的目录项 %q", e.Name())
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *SysfsAccess) ReadBytes(a Addr, off, n int) ([]byte, error) {
	f, err := os.Open(s.configPath(a))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	got, err := f.ReadAt(buf, int64(off))
	if got != n {
		return nil, fmt.Errorf("config 短读 [%#x,+%#x) 得到 %d 字节: %w", off, n, got, err)
	}
	return buf, nil
}

// rawRead 探测用的裸读：目录不存在不是错误，是"无设备应答"，
// 按总线上的惯例返回全 1
func (s *SysfsAccess) rawRead(a Addr, reg, n int) ([]byte, error) {
	f, err := os.Open(s.configPath(a))
	if err != nil {
		if os.IsNotExist(err) {
			ones := make([]byte, n)
			for i := range ones {
				ones[i] = 0xFF
			}
			return ones, nil
		}
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	if got, err := f.ReadAt(buf, int64(reg)); got != n {
		return nil, fmt.Errorf("裸读寄存器 %#x 失败: %w", reg, err)
	}
	return buf, nil
}

func (s *SysfsAccess) ReadConfigWord(a Addr, reg int) (uint16, error) {
	b, err := s.rawRead(a, reg, 2)
	if err != nil {
		return 0, err
	}
	return uint16(b[0]) | uint16(b[1])<<8, nil
}

func (s *SysfsAccess) ReadConfigByte(a Addr, reg int) (byte, error) {
	b, err := s.rawRead(a, reg, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Resources 解析 sysfs 的 resource 文件，每行三个十六进制数：
// 起始地址、结束地址、标志位。列表视图用它展示 BAR 窗口大小
func (s *SysfsAccess) Resources(a Addr) ([]Resource, error) {
	data, err := os.ReadFile(filepath.Join(s.Root, a.String(), "resource"))
	if err != nil {
		return nil, err
	}
	return parseResources(string(data))
}

func parseResources(data string) ([]Resource, error) {
	var out []Resource
	for _, line := range strings.Split(strings.TrimSpace(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 3 {
			continue
		}
		start, err := hex.ParseHexToUint64(fields[0])
		if err != nil {
			return nil, fmt.Errorf("resource 行 %q 解析失败: %w", line, err)
		}
		end, err := hex.ParseHexToUint64(fields[1])
		if err != nil {
			return nil, fmt.Errorf("resource 行 %q 解析失败: %w", line, err)
		}
		flags, err := hex.ParseHexToUint64(fields[2])
		if err != nil {
			return nil, fmt.Errorf("resource 行 %q 解析失败: %w", line, err)
		}
		out = append(out, Resource{Start: start, End: end, Flags: flags})
	}
	return out, nil
}
