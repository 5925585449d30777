package pci

import (
	"github.com/mohae/deepcopy"
)

// walkFrame 是受控深搜的显式工作栈帧。
// next 记录下一条待检的声明下标，min/max 是调用方授予的窗口
type walkFrame struct {
	bus  int
	min  int
	max  int
	next int
}

// Validate 消费探测结果，产出打好异常标签的副本。
// 输入先整体深拷贝：探测表"先写后读"两个阶段互不染指，
// 校验再怎么标注也碰不到探测器的原始产出。
//
// 对每条 exists 且还没登记过的总线，从窗口 [0,255] 开始做受控深搜：
//   - 进入一条总线先在访客簿登记，整个校验过程每条总线只登记一次；
//   - 某条声明指向的总线已经登记过 → 标 overlap，不下降。
//     两座桥指向同一条下游总线、或者范围连成了环，都在这里被抓住；
//   - 声明范围越出调用方授予的窗口 → 标 crossing，不下降；
//   - 否则带着窗口 [First, Last] 降进去，并记下进入用的声明。
//
// 每一步要么撞上已登记的总线(停)，要么登记一条新总线
// (未登记集合严格缩小，上限 256)，所以必然终止。
func Validate(in *BusMap) *BusMap {
	out := deepcopy.Copy(in).(*BusMap)
	for i := 0; i <= MaxBusNumber; i++ {
		if out.Buses[i].Exists && !out.Buses[i].Visited {
			out.walk(i)
		}
	}
	return out
}

func (m *BusMap) walk(start int) {
	m.Buses[start].Visited = true
	stack := make([]walkFrame, 0, 16)
	stack = append(stack, walkFrame{bus: start, min: 0, max: MaxBusNumber})
	for len(stack) > 0 {
		f := &stack[len(stack)-1]
		bi := &m.Buses[f.bus]
		if f.next >= len(bi.Claims) {
			stack = stack[:len(stack)-1]
			continue
		}
		c := bi.Claims[f.next]
		f.next++
		switch {
		case m.Buses[c.First].Visited:
			c.Bug = AnomalyOverlap
		case c.First < f.min || c.Last > f.max:
			c.Bug = AnomalyCrossing
		default:
			m.Buses[c.First].Visited = true
			m.Buses[c.First].Via = c
			stack = append(stack, walkFrame{bus: c.First, min: c.First, max: c.Last})
		}
	}
}

// Anomalies 统计被标记的声明条数，聚合进程退出码用
func (m *BusMap) Anomalies() int {
	n := 0
	for i := range m.Buses {
		for _, c := range m.Buses[i].Claims {
			if c.Bug != AnomalyNone {
				n++
			}
		}
	}
	return n
}
