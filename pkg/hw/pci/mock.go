package pci

import (
	"fmt"
	"os"
	"path/filepath"

	"pci_tool/pkg/toolutil"
	"pci_tool/pkg/toolutil/bit"
)

// mock 场景：在一个目录下造出以假乱真的 sysfs 设备树，
// 没有真硬件(或者不敢在真硬件上折腾)的时候给 CLI 和测试打桩用。
// 只生成 config / resource 两种文件，后端也只认这两种。

type mockDev struct {
	Addr      string
	Vendor    uint16
	Device    uint16
	Class     uint16 // 16 位类别码，桥是 0x0604
	Header    byte   // 头部类型，含多功能位
	Pri       byte
	Sec       byte
	Sub       byte
	Resources string // resource 文件原文，留空不生成
}

// Mockers 所有可用的 mock 场景
var Mockers = map[string]func(root string) error{
	"simple":       MockSimple,
	"multi-domain": MockMultiDomain,
	"broken":       MockBroken,
}

// MockScenario 按名字生成场景，名字非法时报出可用列表
func MockScenario(root, name string) error {
	m, ok := Mockers[name]
	if !ok {
		return fmt.Errorf("未知 mock 场景 %q，可用: %v",
			name, toolutil.SortedMapKeys(Mockers))
	}
	return mockCleanRoot(root, m)
}

// MockSimple 一条 4 级桥链 + 一个多功能设备 + 一个孤立设备
func MockSimple(root string) error {
	return mockSetup(root, []mockDev{
		// 4 级桥链: 00 → 01 → 02 → 03
		{Addr: "0000:00:00.0", Vendor: 0x1234, Device: 0xabcd, Class: 0x0604,
			Header: PciHeaderTypeBridge, Pri: 0, Sec: 1, Sub: 3},
		{Addr: "0000:01:00.0", Vendor: 0x1234, Device: 0xbcde, Class: 0x0604,
			Header: PciHeaderTypeBridge, Pri: 1, Sec: 2, Sub: 3},
		{Addr: "0000:02:00.0", Vendor: 0x1234, Device: 0xcdef, Class: 0x0604,
			Header: PciHeaderTypeBridge, Pri: 2, Sec: 3, Sub: 3},
		{Addr: "0000:03:00.0", Vendor: 0x1234, Device: 0xdef0, Class: 0x0300,
			Header: PciHeaderTypeNormal,
			Resources: "0x00000000fe000000 0x00000000feffffff 0x0000000000040200\n" +
				"0x0000000000000000 0x0000000000000000 0x0000000000000000\n"},
		// 根总线上的多功能网卡(功能 0 带多功能位)
		{Addr: "0000:00:03.0", Vendor: 0x8086, Device: 0x10d3, Class: 0x0200,
			Header: PciHeaderTypeNormal | PciHeaderMultiFunc,
			Resources: "0x00000000f0000000 0x00000000f001ffff 0x0000000000040200\n"},
		{Addr: "0000:00:03.1", Vendor: 0x8086, Device: 0x10d3, Class: 0x0200,
			Header: PciHeaderTypeNormal},
		// 孤立设备
		{Addr: "0000:00:1f.0", Vendor: 0x9999, Device: 0xaaaa, Class: 0x0601,
			Header: PciHeaderTypeNormal},
	})
}

// MockMultiDomain 跨多个域、混合深度的场景
func MockMultiDomain(root string) error {
	return mockSetup(root, []mockDev{
		// 域 0000: 最简单的一条链
		{Addr: "0000:00:00.0", Vendor: 0xaaaa, Device: 0x1111, Class: 0x0604,
			Header: PciHeaderTypeBridge, Pri: 0, Sec: 1, Sub: 1},
		{Addr: "0000:01:00.0", Vendor: 0xaaaa, Device: 0x2222, Class: 0x0300,
			Header: PciHeaderTypeNormal},
		// 域 0001: 嵌套区间，考验最紧包围的父桥挑选
		{Addr: "0001:00:00.0", Vendor: 0xbbbb, Device: 0x3333, Class: 0x0604,
			Header: PciHeaderTypeBridge, Pri: 0, Sec: 1, Sub: 4},
		{Addr: "0001:01:00.0", Vendor: 0xbbbb, Device: 0x4444, Class: 0x0604,
			Header: PciHeaderTypeBridge, Pri: 1, Sec: 2, Sub: 4},
		{Addr: "0001:02:00.0", Vendor: 0xbbbb, Device: 0x5555, Class: 0x0300,
			Header: PciHeaderTypeNormal},
		{Addr: "0001:04:00.0", Vendor: 0xbbbb, Device: 0x6666, Class: 0x0300,
			Header: PciHeaderTypeNormal},
		// 域 0002: 单个孤立设备
		{Addr: "0002:30:00.0", Vendor: 0xdddd, Device: 0x9999, Class: 0x0300,
			Header: PciHeaderTypeNormal},
	})
}

// MockBroken 专门喂给主动探测+校验路径的坏拓扑：
// 两座桥抢同一条下游总线(overlap)、子桥范围越出父桥窗口(crossing)、
// 倒置的 secondary/subordinate(钳位)
func MockBroken(root string) error {
	return mockSetup(root, []mockDev{
		// overlap: 00:00.0 和 00:01.0 都声明下游总线 05
		{Addr: "0000:00:00.0", Vendor: 0x1b21, Device: 0x0001, Class: 0x0604,
			Header: PciHeaderTypeBridge, Pri: 0, Sec: 5, Sub: 5},
		{Addr: "0000:00:01.0", Vendor: 0x1b21, Device: 0x0002, Class: 0x0604,
			Header: PciHeaderTypeBridge, Pri: 0, Sec: 5, Sub: 5},
		{Addr: "0000:05:00.0", Vendor: 0x1b21, Device: 0x0100, Class: 0x0300,
			Header: PciHeaderTypeNormal},
		// crossing: 父桥给窗口 [0a,14]，子桥却声明 [09,1e]，两头都越界。
		// 越界目标得挑一条没人走过的总线，指向 05 会先撞访客簿被标成 overlap
		{Addr: "0000:00:02.0", Vendor: 0x1b21, Device: 0x0003, Class: 0x0604,
			Header: PciHeaderTypeBridge, Pri: 0, Sec: 0x0a, Sub: 0x14},
		{Addr: "0000:0a:00.0", Vendor: 0x1b21, Device: 0x0004, Class: 0x0604,
			Header: PciHeaderTypeBridge, Pri: 0x0a, Sec: 0x09, Sub: 0x1e},
		// 倒置范围: secondary 30 > subordinate 20
		{Addr: "0000:00:04.0", Vendor: 0x1b21, Device: 0x0005, Class: 0x0604,
			Header: PciHeaderTypeBridge, Pri: 0, Sec: 0x1e, Sub: 0x14},
	})
}

// mockCleanRoot 清空重建 root 再生成，防止上次的残留混进来
func mockCleanRoot(root string, m func(string) error) error {
	if err := os.RemoveAll(root); err != nil {
		return err
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}
	return m(root)
}

func mockSetup(root string, devs []mockDev) error {
	for _, m := range devs {
		d := filepath.Join(root, m.Addr)
		if err := os.MkdirAll(d, 0755); err != nil {
			return err
		}
		buf := make([]byte, 64)
		hi, lo := bit.SplitUint16ToBytes(m.Vendor)
		buf[PciCfgOffsetVendorID], buf[PciCfgOffsetVendorID+1] = lo, hi
		hi, lo = bit.SplitUint16ToBytes(m.Device)
		buf[PciCfgOffsetDeviceID], buf[PciCfgOffsetDeviceID+1] = lo, hi
		hi, lo = bit.SplitUint16ToBytes(m.Class)
		buf[PciCfgOffsetClassDevice], buf[PciCfgOffsetClassDevice+1] = lo, hi
		buf[PciCfgOffsetHeaderType] = m.Header
		if m.Header&PciHeaderTypeMask != PciHeaderTypeNormal {
			buf[PciCfgOffsetPrimaryBus] = m.Pri
			buf[PciCfgOffsetSecondaryBus] = m.Sec
			buf[PciCfgOffsetSubordinateBus] = m.Sub
		}
		if err := os.WriteFile(filepath.Join(d, "config"), buf, 0644); err != nil {
			return err
		}
		if m.Resources != "" {
			if err := os.WriteFile(filepath.Join(d, "resource"), []byte(m.Resources), 0644); err != nil {
				return err
			}
		}
	}
	return nil
}
