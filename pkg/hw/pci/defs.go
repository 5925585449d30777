package pci

import (
	"fmt"
)

// PCI 配置空间公共头部寄存器偏移
const (
	PciCfgOffsetVendorID    = 0x00
	PciCfgOffsetDeviceID    = 0x02
	PciCfgOffsetClassDevice = 0x0A // 16 位类别码(基类<<8 | 子类)
	PciCfgOffsetHeaderType  = 0x0E
)

// 头部类型(低 7 位)，最高位是多功能标志
const (
	PciHeaderTypeNormal  = 0
	PciHeaderTypeBridge  = 1
	PciHeaderTypeCardbus = 2

	PciHeaderTypeMask  = 0x7F
	PciHeaderMultiFunc = 0x80
)

// PCI-to-PCI 桥的类别码(基类 0x06 桥 / 子类 0x04 PCI 桥)
const PciClassBridgePci = 0x0604

// Type-1(普通桥)头部的三个总线号寄存器
// Primary     桥自己插在哪条上游总线下面
// Secondary   桥下游第一个子总线的编号
// Subordinate 桥管辖的最大子总线编号(含孙桥、曾孙桥)
// 桥会转发 [Secondary, Subordinate] 范围内所有的 PCI 事务
const (
	PciCfgOffsetPrimaryBus     = 0x18
	PciCfgOffsetSecondaryBus   = 0x19
	PciCfgOffsetSubordinateBus = 0x1A
)

// Type-2(CardBus 桥)头部的三个总线号寄存器
// 数值上与 Type-1 相同，但是是两套独立定义的寄存器，
// 语义按各自头部布局解释，不能互相混用
const (
	PciCbCfgOffsetPrimaryBus     = 0x18
	PciCbCfgOffsetCardBus        = 0x19
	PciCbCfgOffsetSubordinateBus = 0x1A
)

// 总线号空间为一个字节，0~255
const MaxBusNumber = 0xFF

// Addr 是一个 PCI 功能的完整地址 (域:总线:设备.功能)
type Addr struct {
	Domain uint32
	Bus    uint8
	Dev    uint8
	Fn     uint8
}

// 标准的 lspci 形式，比如 "0000:00:1f.6"
func (a Addr) String() string {
	return fmt.Sprintf("%04x:%02x:%02x.%x", a.Domain, a.Bus, a.Dev, a.Fn)
}

// ParseAddr 解析 "dddd:bb:dd.f" 形式的地址(sysfs 目录名就是这种形式)
func ParseAddr(s string) (Addr, error) {
	var dom uint32
	var bus, dev, fn uint8
	n, err := fmt.Sscanf(s, "%04x:%02x:%02x.%x", &dom, &bus, &dev, &fn)
	if err != nil || n != 4 {
		return Addr{}, fmt.Errorf("无效的 PCI 地址: %q", s)
	}
	if dev > 0x1F || fn > 7 {
		return Addr{}, fmt.Errorf("PCI 地址越界: %q", s)
	}
	return Addr{Domain: dom, Bus: bus, Dev: dev, Fn: fn}, nil
}

// CompareAddr 按 (域, 总线, 设备, 功能) 字典序比较，
// 这是设备清单的全局规范顺序
func CompareAddr(a, b Addr) int {
	switch {
	case a.Domain != b.Domain:
		if a.Domain < b.Domain {
			return -1
		}
		return 1
	case a.Bus != b.Bus:
		if a.Bus < b.Bus {
			return -1
		}
		return 1
	case a.Dev != b.Dev:
		if a.Dev < b.Dev {
			return -1
		}
		return 1
	case a.Fn != b.Fn:
		if a.Fn < b.Fn {
			return -1
		}
		return 1
	}
	return 0
}
