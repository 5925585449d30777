package pci

import (
	"pci_tool/pkg/logutil"
)

// Anomaly 是校验器贴在桥声明上的结论标签。
// 它是一等的报告值，不是错误：发现异常不会中断任何处理
type Anomaly int

const (
	AnomalyNone Anomaly = iota
	AnomalyOverlap
	AnomalyCrossing
)

func (a Anomaly) String() string {
	switch a {
	case AnomalyOverlap:
		return "overlap"
	case AnomalyCrossing:
		return "crossing"
	default:
		return "none"
	}
}

// BusClaim 是主动探测时在某条总线上发现的一座桥自述的转发范围
type BusClaim struct {
	Bus     int // 桥所在的总线(记录挂在这条总线名下)
	Dev     int
	Fn      int
	Primary int // 桥自称的上游总线号
	First   int // 下游范围起点(secondary)
	Last    int // 下游范围终点(subordinate)
	Clamped bool
	Bug     Anomaly
}

// BusInfo 是主动模式下每个总线号(0~255)的探测记录
type BusInfo struct {
	Exists  bool
	Visited bool        // 访客簿：校验时整个过程每条总线只登记一次
	Via     *BusClaim   // 校验走进这条总线时用的那条桥声明
	Claims  []*BusClaim // 这条总线上所有桥的自述范围
}

// BusMap 是一次主动探测的全部产出。
// 先由探测器写、再由校验器读，两个阶段完全不重叠。
// 字段全部导出，Buses 必须是切片不能是数组：
// 深拷贝库对数组只做浅拷贝，克隆后 Claims 仍指向原记录
type BusMap struct {
	Buses      []BusInfo
	SoftErrors int // 探测阶段被跳过的读失败次数
}

// NewBusMap 建一张空探测表，总线号 0~255 各占一格
func NewBusMap() *BusMap {
	return &BusMap{Buses: make([]BusInfo, MaxBusNumber+1)}
}

// MapBuses 主动探测模式：完全不信任操作系统的枚举结果，
// 自己把地址空间一条总线一条总线走一遍。
// busFilter >= 0 时只探测那一条总线，否则探测 0~255 全部。
// 注：和原工具一样，总线映射只支持 0 号域。
func MapBuses(acc ConfigAccess, busFilter int) *BusMap {
	m := NewBusMap()
	if busFilter >= 0 && busFilter <= MaxBusNumber {
		m.mapBus(acc, busFilter)
		return m
	}
	for bus := 0; bus <= MaxBusNumber; bus++ {
		m.mapBus(acc, bus)
	}
	return m
}

func (m *BusMap) mapBus(acc ConfigAccess, bus int) {
	logutil.Debug("探测总线 %02x", bus)
	bi := &m.Buses[bus]
	for dev := 0; dev < 32; dev++ {
		funcLimit := 1
		for fn := 0; fn < funcLimit; fn++ {
			a := Addr{Domain: 0, Bus: uint8(bus), Dev: uint8(dev), Fn: uint8(fn)}
			// 这是从零开始的探测，厂商号必须裸读、绕过缓存
			vendor, err := acc.ReadConfigWord(a, PciCfgOffsetVendorID)
			if err != nil {
				// 单个槽位读失败不致命：跳过继续
				logutil.Debug("%s: 厂商号读取失败(%v)，跳过", a, err)
				m.SoftErrors++
				continue
			}
			if vendor == 0x0000 || vendor == 0xFFFF {
				continue
			}
			if fn == 0 {
				// 功能 0 自称多功能时，1~7 全部都要试，
				// 没这个标志就只看功能 0
				if ht, err := acc.ReadConfigByte(a, PciCfgOffsetHeaderType); err == nil &&
					ht&PciHeaderMultiFunc != 0 {
					funcLimit = 8
				}
			}
			logutil.Debug("发现设备 %02x:%02x.%x", bus, dev, fn)
			bi.Exists = true

			cache := NewConfigCache(acc, a)
			if err := cache.Fetch(0, 64); err != nil {
				logutil.Warn("%s: 探测时头部读取失败(%v)，跳过该槽位", a, err)
				m.SoftErrors++
				continue
			}
			switch cache.Byte(PciCfgOffsetHeaderType) & PciHeaderTypeMask {
			case PciHeaderTypeBridge:
				m.recordClaim(bi, a, cache,
					PciCfgOffsetPrimaryBus, PciCfgOffsetSecondaryBus, PciCfgOffsetSubordinateBus)
			case PciHeaderTypeCardbus:
				m.recordClaim(bi, a, cache,
					PciCbCfgOffsetPrimaryBus, PciCbCfgOffsetCardBus, PciCbCfgOffsetSubordinateBus)
			}
		}
	}
}

// recordClaim 把一座桥自称的转发范围记在它所在的总线名下。
// 主总线号对不上只记日志不拦截——拦截是校验器的事
func (m *BusMap) recordClaim(bi *BusInfo, a Addr, cache *ConfigCache, np, ns, nl int) {
	c := &BusClaim{
		Bus:     int(a.Bus),
		Dev:     int(a.Dev),
		Fn:      int(a.Fn),
		Primary: int(cache.Byte(np)),
		First:   int(cache.Byte(ns)),
		Last:    int(cache.Byte(nl)),
	}
	logutil.Info("## %02x:%02x.%x 是一座桥，从 %02x 转发到 %02x-%02x",
		a.Bus, a.Dev, a.Fn, c.Primary, c.First, c.Last)
	if c.Primary != c.Bus {
		logutil.Warn("%s: 桥声明的主总线号 %02x 和它所在的总线 %02x 不一致", a, c.Primary, c.Bus)
	}
	if c.First > c.Last {
		logutil.Warn("%s: 桥声明的总线范围倒置 %02x-%02x，钳位", a, c.First, c.Last)
		c.Last = c.First
		c.Clamped = true
	}
	bi.Claims = append(bi.Claims, c)
}
