package pci

import (
	"sort"

	"github.com/google/btree"

	"pci_tool/pkg/logutil"
)

// HostRootID 合成宿主根桥在 arena 里的固定下标
const HostRootID = 0

// Bridge 是拓扑 arena 里的一条桥记录。
// 宿主根桥没有底层设备(Device 为 nil)，Primary 用 -1 表示"无"，
// 管辖范围 [0, 255] 盖住所有域的所有总线。
type Bridge struct {
	Device      *Device // 根桥为 nil
	Domain      uint32
	Primary     int
	Secondary   int
	Subordinate int
	Clamped     bool // secondary > subordinate 被钳到单总线

	Parent   int // BridgeID，根桥为 -1
	Children []int
	Buses    []int // BusID，按 (域,总线号) 有序
}

// Bus 是 arena 里的一条总线记录，
// Bridge 回指向它转发事务过来的那座桥(即它的创建者)。
type Bus struct {
	Domain  uint32
	Number  int
	Bridge  int // BridgeID
	Devices []*Device
}

type busKey struct {
	domain uint32
	number int
	id     int // BusID，不参与比较
}

func busKeyLess(a, b busKey) bool {
	if a.domain != b.domain {
		return a.domain < b.domain
	}
	return a.number < b.number
}

// Topology 是被动模式建出来的总线/桥树。
// 按设计用 arena + 整数下标而不是指针互指，
// 免得 总线→桥、桥→设备 这类回引用把对象图搅成环。
type Topology struct {
	Bridges []Bridge
	Buses   []Bus

	// (域,总线号) → BusID 的有序索引，同时保证总线号全局唯一
	busIdx *btree.BTreeG[busKey]
	// 桥设备 → BridgeID
	byDev map[*Device]int
	// 建树过程中发现的结构性问题数(钳位、父桥歧义)
	Warnings int
}

// BuildTopology 把排好序的设备清单组装成总线/桥树(被动模式)。
// 输入必须是 Scan 成功之后的清单；算法本身不再读硬件。
func BuildTopology(reg *Registry) *Topology {
	t := &Topology{
		busIdx: btree.NewG(8, busKeyLess),
		byDev:  make(map[*Device]int),
	}
	t.Bridges = append(t.Bridges, Bridge{
		Primary:     -1,
		Secondary:   0,
		Subordinate: MaxBusNumber,
		Parent:      -1,
	})

	devs := reg.Devices()

	// 第一步：挑出桥设备，按各自头部布局抽出三个总线号
	for _, d := range devs {
		if !d.IsBridgeLike() {
			continue
		}
		b := Bridge{
			Device: d,
			Domain: d.Addr.Domain,
			Parent: -1,
		}
		if d.HeaderType == PciHeaderTypeCardbus {
			b.Primary = int(d.Config.Byte(PciCbCfgOffsetPrimaryBus))
			b.Secondary = int(d.Config.Byte(PciCbCfgOffsetCardBus))
			b.Subordinate = int(d.Config.Byte(PciCbCfgOffsetSubordinateBus))
		} else {
			b.Primary = int(d.Config.Byte(PciCfgOffsetPrimaryBus))
			b.Secondary = int(d.Config.Byte(PciCfgOffsetSecondaryBus))
			b.Subordinate = int(d.Config.Byte(PciCfgOffsetSubordinateBus))
		}
		if b.Secondary > b.Subordinate {
			// 自相矛盾的输入：接受但把可用范围钳成单总线，并留下标记。
			// 这是构建器唯一的"自愈"，其余问题只报告不修
			logutil.Warn("%s: 桥的总线范围倒置 %02x-%02x，钳位为 [%02x,%02x]",
				d.Addr, b.Secondary, b.Subordinate, b.Secondary, b.Secondary)
			b.Subordinate = b.Secondary
			b.Clamped = true
			t.Warnings++
		}
		t.byDev[d] = len(t.Bridges)
		t.Bridges = append(t.Bridges, b)
	}

	// 第二步：父桥指派。候选是包含本桥 Primary 的所有区间，
	// 取 (Subordinate - Primary) 最小的那个，也就是最紧的包围区间，
	// 区间层层嵌套时这样才能拿到真正的最近祖先。
	// 根桥的跨度是 256，比任何真桥都大，所有平手它都输
	for i := 1; i < len(t.Bridges); i++ {
		b := &t.Bridges[i]
		best := -1
		for j := range t.Bridges {
			if j == i {
				continue
			}
			c := &t.Bridges[j]
			if j != HostRootID && c.Domain != b.Domain {
				continue
			}
			if b.Primary < c.Secondary || b.Primary > c.Subordinate {
				continue
			}
			if best == -1 {
				best = j
				continue
			}
			bb := &t.Bridges[best]
			spanC := c.Subordinate - c.Primary
			spanB := bb.Subordinate - bb.Primary
			if spanC == spanB && c.Secondary == bb.Secondary && best != HostRootID {
				logutil.Warn("%s: 父桥歧义(%s 和 %s 范围完全相同)，需要人工检查",
					b.Device.Addr, bb.Device.Addr, c.Device.Addr)
				t.Warnings++
			}
			if spanC < spanB || (spanC == spanB && c.Secondary < bb.Secondary) {
				best = j
			}
		}
		if best == -1 {
			best = HostRootID
		}
		b.Parent = best
		t.Bridges[best].Children = append(t.Bridges[best].Children, i)
	}

	// 对抗性的互相包含区间(各自的主总线号落在对方范围里)
	// 会让两座桥互认对方为父，整簇从根上脱落，名下的总线再也渲染不到。
	// 父链回不到根的桥就地斩断挂回根下；环上斩一处，其余成员随之可达
	for i := 1; i < len(t.Bridges); i++ {
		cur := i
		reached := false
		for step := 0; step < len(t.Bridges); step++ {
			if cur == HostRootID {
				reached = true
				break
			}
			cur = t.Bridges[cur].Parent
		}
		if reached {
			continue
		}
		b := &t.Bridges[i]
		logutil.Warn("%s: 桥的父链成环(父桥 %s)，挂回宿主根桥",
			b.Device.Addr, t.Bridges[b.Parent].Device.Addr)
		old := &t.Bridges[b.Parent]
		for k, ch := range old.Children {
			if ch == i {
				old.Children = append(old.Children[:k], old.Children[k+1:]...)
				break
			}
		}
		b.Parent = HostRootID
		t.Bridges[HostRootID].Children = append(t.Bridges[HostRootID].Children, i)
		// 桥设备所在的总线抢先物化到根下，渲染从根出发才找得到这一簇。
		// 环上另一座桥后面再声明这条总线时拿不到所有权，名下空着照常刷行
		t.ensureBus(HostRootID, b.Domain, int(b.Device.Addr.Bus))
		t.Warnings++
	}

	// 第三步：给每座桥物化它的下游总线。
	// 探测到却没挂设备的下游网段也必须能渲染出来，所以空总线也要建
	for i := range t.Bridges {
		b := &t.Bridges[i]
		t.ensureBus(i, b.Domain, b.Secondary)
	}

	// 第四步：按清单顺序把设备插进各自的总线。
	// 清单已按 (域,总线,设备,功能) 全局排序，尾插天然保持每条总线内的顺序
	for _, d := range devs {
		t.insertDev(d)
	}
	return t
}

// ensureBus 保证 (域,总线号) 的总线存在并挂在 owner 桥名下，返回 BusID
func (t *Topology) ensureBus(owner int, domain uint32, number int) int {
	if k, ok := t.busIdx.Get(busKey{domain: domain, number: number}); ok {
		return k.id
	}
	id := len(t.Buses)
	t.Buses = append(t.Buses, Bus{
		Domain: domain,
		Number: number,
		Bridge: owner,
	})
	t.busIdx.ReplaceOrInsert(busKey{domain: domain, number: number, id: id})
	br := &t.Bridges[owner]
	br.Buses = append(br.Buses, id)
	sort.Slice(br.Buses, func(x, y int) bool {
		bx, by := &t.Buses[br.Buses[x]], &t.Buses[br.Buses[y]]
		if bx.Domain != by.Domain {
			return bx.Domain < by.Domain
		}
		return bx.Number < by.Number
	})
	return id
}

// insertDev 从宿主根桥往下找设备所在的总线：
// 每一层先在本桥名下找，找不到就钻进范围覆盖它的子桥，
// 钻到底还没有就地新建。下降深度不可能超过总线号空间
func (t *Topology) insertDev(d *Device) {
	domain := d.Addr.Domain
	number := int(d.Addr.Bus)
	cur := HostRootID
	for depth := 0; depth <= MaxBusNumber+1; depth++ {
		br := &t.Bridges[cur]
		for _, id := range br.Buses {
			if t.Buses[id].Domain == domain && t.Buses[id].Number == number {
				t.Buses[id].Devices = append(t.Buses[id].Devices, d)
				return
			}
		}
		next := -1
		for _, ch := range br.Children {
			c := &t.Bridges[ch]
			if c.Domain == domain && c.Secondary <= number && number <= c.Subordinate {
				next = ch
				break
			}
		}
		if next == -1 {
			id := t.ensureBus(cur, domain, number)
			t.Buses[id].Devices = append(t.Buses[id].Devices, d)
			return
		}
		cur = next
	}
	// 父桥指派构造出来的是树，走不到这里；万一走到说明上面出了 bug
	panic("pci: 插入设备时下降深度超过总线号空间")
}

// BridgeOf 给定设备对应的桥记录下标(不是桥设备则返回 -1)
func (t *Topology) BridgeOf(d *Device) int {
	if id, ok := t.byDev[d]; ok {
		return id
	}
	return -1
}

// AscendBuses 按 (域,总线号) 升序遍历所有总线
func (t *Topology) AscendBuses(fn func(id int) bool) {
	t.busIdx.Ascend(func(k busKey) bool {
		return fn(k.id)
	})
}
