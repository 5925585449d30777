package pci

import (
	"fmt"

	rbt "github.com/emirpasic/gods/trees/redblacktree"

	"pci_tool/pkg/logutil"
	"pci_tool/pkg/toolutil/bit"
)

// Device 是一个已发现的 PCI 功能。
// 每个功能在一次运行里只创建一次，归设备清单所有；
// 拓扑建好之后恰好被一条总线引用(引用，不拥有)。
type Device struct {
	Addr       Addr
	Vendor     uint16
	DeviceID   uint16
	Class      uint16 // 基类<<8 | 子类，比如 PCI 桥是 0x0604
	HeaderType byte   // 已去掉多功能位的低 7 位
	MultiFunc  bool
	Config     *ConfigCache
}

// IsBridgeLike 满足拓扑构建器的桥分类条件：
// 头部类型是桥或 CardBus，且类别码是 PCI-to-PCI 桥
func (d *Device) IsBridgeLike() bool {
	if d.Class != PciClassBridgePci {
		return false
	}
	return d.HeaderType == PciHeaderTypeBridge || d.HeaderType == PciHeaderTypeCardbus
}

// Registry 是扁平的设备清单。
// 底层用红黑树按 (域,总线,设备,功能) 排序，
// Devices() 吐出来的就是全局规范顺序，后面的建树靠这个顺序免排序。
type Registry struct {
	acc  ConfigAccess
	tree *rbt.Tree
}

func addrComparator(a, b interface{}) int {
	return CompareAddr(a.(Addr), b.(Addr))
}

func NewRegistry(acc ConfigAccess) *Registry {
	return &Registry{
		acc:  acc,
		tree: rbt.NewWith(addrComparator),
	}
}

// Scan 枚举所有功能并做强制的首次头部读取。
// 没有头部类型后面什么都分类不了，所以这一步任何读失败都是致命的，
// 整个扫描直接中止(区别于主动探测阶段的可跳过失败)。
func (r *Registry) Scan() error {
	addrs, err := r.acc.Enumerate()
	if err != nil {
		return fmt.Errorf("枚举 PCI 设备失败: %w", err)
	}
	for _, a := range addrs {
		d := &Device{
			Addr:   a,
			Config: NewConfigCache(r.acc, a),
		}
		if err := d.Config.Fetch(0, 64); err != nil {
			return fmt.Errorf("无法读取 %s 的配置空间头部: %w", a, err)
		}
		ht := d.Config.Byte(PciCfgOffsetHeaderType)
		d.HeaderType = ht & PciHeaderTypeMask
		d.MultiFunc = bit.ExtractBits(ht, 7, 1) != 0
		if d.HeaderType == PciHeaderTypeCardbus {
			// CardBus 桥的标准头更长，再补 64 字节，同样是强制读取
			if err := d.Config.Fetch(64, 64); err != nil {
				return fmt.Errorf("无法读取 %s 的 CardBus 扩展头部: %w", a, err)
			}
		}
		d.Vendor = d.Config.Word(PciCfgOffsetVendorID)
		d.DeviceID = d.Config.Word(PciCfgOffsetDeviceID)
		d.Class = d.Config.Word(PciCfgOffsetClassDevice)
		if d.Vendor == 0xFFFF && d.DeviceID == 0xFFFF {
			// 枚举出来却读到全 1，多半是设备刚被拔掉
			logutil.Warn("%s: 读到全 1 的厂商/设备号，忽略", a)
			continue
		}
		r.tree.Put(a, d)
	}
	logutil.Debug("扫描完成，共 %d 个功能", r.tree.Size())
	return nil
}

// Devices 按规范顺序返回所有设备
func (r *Registry) Devices() []*Device {
	vals := r.tree.Values()
	out := make([]*Device, 0, len(vals))
	for _, v := range vals {
		out = append(out, v.(*Device))
	}
	return out
}

// Get 按地址查找
func (r *Registry) Get(a Addr) (*Device, bool) {
	v, ok := r.tree.Get(a)
	if !ok {
		return nil, false
	}
	return v.(*Device), true
}

func (r *Registry) Len() int { return r.tree.Size() }
