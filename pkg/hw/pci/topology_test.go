package pci_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"pci_tool/internal/testutils"
	"pci_tool/pkg/hw/pci"
)

func buildFrom(t *testing.T, devs map[string][]byte) (*pci.Registry, *pci.Topology) {
	t.Helper()
	fake := testutils.NewFakeAccess()
	for addr, cfg := range devs {
		fake.Add(addr, cfg)
	}
	reg := pci.NewRegistry(fake)
	if err := reg.Scan(); err != nil {
		t.Fatalf("Scan 失败: %v", err)
	}
	return reg, pci.BuildTopology(reg)
}

func bridgeOf(t *testing.T, reg *pci.Registry, topo *pci.Topology, addr string) *pci.Bridge {
	t.Helper()
	d, ok := reg.Get(mustAddr(t, addr))
	if !ok {
		t.Fatalf("设备 %s 不在清单里", addr)
	}
	id := topo.BridgeOf(d)
	if id == -1 {
		t.Fatalf("%s 不是桥", addr)
	}
	return &topo.Bridges[id]
}

// 父桥挑选取"包住本桥主总线号的最窄区间"。
// 区间层层嵌套时必须拿到最近祖先，而不是碰到的第一个
func TestTopologyTightestParent(t *testing.T) {
	reg, topo := buildFrom(t, map[string][]byte{
		// 宽区间 [01,30]
		"0000:00:01.0": testutils.Header64(0x1b21, 0x0001, 0x0604, 1, 0x00, 0x01, 0x30),
		// 窄区间 [10,20]，落在宽区间里
		"0000:01:00.0": testutils.Header64(0x1b21, 0x0002, 0x0604, 1, 0x01, 0x10, 0x20),
		// 主总线号 10 同时落进两个区间，必须挑窄的那个
		"0000:10:00.0": testutils.Header64(0x1b21, 0x0003, 0x0604, 1, 0x10, 0x11, 0x12),
	})

	wide := bridgeOf(t, reg, topo, "0000:00:01.0")
	narrow := bridgeOf(t, reg, topo, "0000:01:00.0")
	leaf := bridgeOf(t, reg, topo, "0000:10:00.0")

	assert.Equal(t, pci.HostRootID, wide.Parent)
	assert.Equal(t, wide, &topo.Bridges[narrow.Parent])
	assert.Equal(t, narrow, &topo.Bridges[leaf.Parent])
	assert.Zero(t, topo.Warnings)
}

// 合成根桥的跨度是 256，比任何真桥都大，所有平手它都输。
// 真桥管辖 [0,N] 时设备必须挂真桥下面而不是根桥下面
func TestTopologyRootLosesTies(t *testing.T) {
	reg, topo := buildFrom(t, map[string][]byte{
		"0000:00:01.0": testutils.Header64(0x1b21, 0x0001, 0x0604, 1, 0x00, 0x01, 0xff),
		"0000:01:00.0": testutils.Header64(0x1b21, 0x0002, 0x0604, 1, 0x01, 0x02, 0xff),
	})
	outer := bridgeOf(t, reg, topo, "0000:00:01.0")
	inner := bridgeOf(t, reg, topo, "0000:01:00.0")
	assert.Equal(t, pci.HostRootID, outer.Parent)
	assert.Equal(t, outer, &topo.Bridges[inner.Parent])
}

// secondary > subordinate 的自相矛盾输入：钳位成单总线并留痕
func TestTopologyClampInvertedRange(t *testing.T) {
	reg, topo := buildFrom(t, map[string][]byte{
		"0000:00:04.0": testutils.Header64(0x1b21, 0x0005, 0x0604, 1, 0x00, 0x1e, 0x14),
	})
	b := bridgeOf(t, reg, topo, "0000:00:04.0")
	assert.True(t, b.Clamped)
	assert.Equal(t, 0x1e, b.Secondary)
	assert.Equal(t, 0x1e, b.Subordinate)
	assert.Equal(t, 1, topo.Warnings)
}

// 两座桥范围完全相同、第三座桥的主总线号落在里面 → 父桥歧义告警
func TestTopologyAmbiguousParentWarns(t *testing.T) {
	_, topo := buildFrom(t, map[string][]byte{
		"0000:00:00.0": testutils.Header64(0x1b21, 0x0001, 0x0604, 1, 0x00, 0x05, 0x08),
		"0000:00:01.0": testutils.Header64(0x1b21, 0x0002, 0x0604, 1, 0x00, 0x05, 0x08),
		"0000:05:00.0": testutils.Header64(0x1b21, 0x0003, 0x0604, 1, 0x05, 0x06, 0x07),
	})
	assert.NotZero(t, topo.Warnings)
}

// 设备的总线号没有任何桥声明时，总线就地物化在根桥名下，
// 设备一个都不能丢
func TestTopologyOrphanBusMaterialized(t *testing.T) {
	reg, topo := buildFrom(t, map[string][]byte{
		"0000:30:00.0": testutils.Header64(0x9999, 0xaaaa, 0x0300, 0, 0, 0, 0),
	})
	d, _ := reg.Get(mustAddr(t, "0000:30:00.0"))
	found := false
	topo.AscendBuses(func(id int) bool {
		bus := &topo.Buses[id]
		if bus.Number == 0x30 {
			found = true
			assert.Equal(t, pci.HostRootID, bus.Bridge)
			assert.Contains(t, bus.Devices, d)
		}
		return true
	})
	assert.True(t, found, "总线 30 没有被物化")
}

// 桥声明了下游总线但上面没挂设备：空总线也要物化(渲染要用)
func TestTopologyEmptyBusMaterialized(t *testing.T) {
	_, topo := buildFrom(t, map[string][]byte{
		"0000:00:01.0": testutils.Header64(0x1b21, 0x0001, 0x0604, 1, 0x00, 0x01, 0x01),
	})
	var empty *pci.Bus
	topo.AscendBuses(func(id int) bool {
		if topo.Buses[id].Number == 0x01 {
			empty = &topo.Buses[id]
		}
		return true
	})
	if empty == nil {
		t.Fatal("空的下游总线没有物化")
	}
	assert.Empty(t, empty.Devices)
}

// 不同域的桥区间互不包含：每个域各自成树，挂在同一个合成根下
func TestTopologyDomainsIsolated(t *testing.T) {
	reg, topo := buildFrom(t, map[string][]byte{
		"0000:00:00.0": testutils.Header64(0xaaaa, 0x0001, 0x0604, 1, 0x00, 0x01, 0x01),
		"0001:00:00.0": testutils.Header64(0xbbbb, 0x0002, 0x0604, 1, 0x00, 0x01, 0x01),
		"0001:01:00.0": testutils.Header64(0xbbbb, 0x0003, 0x0300, 0, 0, 0, 0),
	})
	b0 := bridgeOf(t, reg, topo, "0000:00:00.0")
	b1 := bridgeOf(t, reg, topo, "0001:00:00.0")
	assert.Equal(t, pci.HostRootID, b0.Parent)
	assert.Equal(t, pci.HostRootID, b1.Parent)

	// 域 0001 的设备必须挂在域 0001 的总线 01 上
	d, _ := reg.Get(mustAddr(t, "0001:01:00.0"))
	topo.AscendBuses(func(id int) bool {
		bus := &topo.Buses[id]
		if bus.Domain == 1 && bus.Number == 1 {
			assert.Contains(t, bus.Devices, d)
		}
		return true
	})
}

// 两座桥互相把对方的主总线号包进自己的范围，父桥指派会让它们互为父子，
// 整簇从根上脱落。环必须被斩断挂回根下，设备一个都不能渲染丢
func TestTopologyParentCycleBroken(t *testing.T) {
	reg, topo := buildFrom(t, map[string][]byte{
		"0000:01:00.0": testutils.Header64(0x1b21, 0x0001, 0x0604, 1, 0x01, 0x02, 0x03),
		"0000:02:00.0": testutils.Header64(0x1b21, 0x0002, 0x0604, 1, 0x02, 0x01, 0x05),
		"0000:02:01.0": testutils.Header64(0x8086, 0x10d3, 0x0200, 0, 0, 0, 0),
	})
	assert.NotZero(t, topo.Warnings)

	// 每座桥的父链都必须能回到根
	for _, addr := range []string{"0000:01:00.0", "0000:02:00.0"} {
		cur := bridgeOf(t, reg, topo, addr)
		for steps := 0; cur.Parent != -1; steps++ {
			if steps > len(topo.Bridges) {
				t.Fatalf("%s 的父链回不到根", addr)
			}
			cur = &topo.Bridges[cur.Parent]
		}
	}

	// 两座桥的范围标签都要出现在渲染结果里
	var sb strings.Builder
	pci.RenderTree(topo, &sb)
	for _, label := range []string{"[0000:02-03]", "[0000:01-05]"} {
		assert.Contains(t, sb.String(), label)
	}
}

// 同一份清单建两次树，形状必须一字不差
func TestTopologyDeterministic(t *testing.T) {
	devs := map[string][]byte{
		"0000:00:01.0": testutils.Header64(0x1b21, 0x0001, 0x0604, 1, 0x00, 0x01, 0x03),
		"0000:01:00.0": testutils.Header64(0x1b21, 0x0002, 0x0604, 1, 0x01, 0x02, 0x03),
		"0000:02:00.0": testutils.Header64(0x8086, 0x10d3, 0x0200, 0, 0, 0, 0),
		"0000:00:1f.0": testutils.Header64(0x8086, 0x0001, 0x0601, 0, 0, 0, 0),
	}
	reg, topo1 := buildFrom(t, devs)
	topo2 := pci.BuildTopology(reg)

	var out1, out2 strings.Builder
	pci.RenderTree(topo1, &out1)
	pci.RenderTree(topo2, &out2)
	assert.Equal(t, out1.String(), out2.String())
	assert.Equal(t, topo1.Warnings, topo2.Warnings)
}

// 建树不丢设备也不复制设备：
// 所有总线的设备名单并起来正好是清单本身，每台设备只出现一次
func TestTopologyDevicePartition(t *testing.T) {
	reg, topo := buildFrom(t, map[string][]byte{
		"0000:00:01.0": testutils.Header64(0x1b21, 0x0001, 0x0604, 1, 0x00, 0x01, 0x01),
		"0000:01:00.0": testutils.Header64(0x8086, 0x10d3, 0x0200, 0, 0, 0, 0),
		"0000:00:03.0": testutils.Header64(0x8086, 0x0002, 0x0200, 0, 0, 0, 0),
		"0001:00:00.0": testutils.Header64(0xbbbb, 0x0003, 0x0300, 0, 0, 0, 0),
	})
	seen := map[pci.Addr]int{}
	total := 0
	topo.AscendBuses(func(id int) bool {
		for _, d := range topo.Buses[id].Devices {
			seen[d.Addr]++
			total++
		}
		return true
	})
	assert.Equal(t, reg.Len(), total)
	for _, d := range reg.Devices() {
		assert.Equal(t, 1, seen[d.Addr], "设备 %s 出现次数不对", d.Addr)
	}
}

// 总线内设备顺序 = 清单规范序(尾插不换序)
func TestTopologyBusDeviceOrder(t *testing.T) {
	reg, topo := buildFrom(t, map[string][]byte{
		"0000:00:03.1": testutils.Header64(0x8086, 0x10d3, 0x0200, 0, 0, 0, 0),
		"0000:00:03.0": testutils.Header64(0x8086, 0x10d3, 0x0200, 0x80, 0, 0, 0),
		"0000:00:1f.0": testutils.Header64(0x8086, 0x0001, 0x0601, 0, 0, 0, 0),
		"0000:00:00.0": testutils.Header64(0x8086, 0x0002, 0x0600, 0, 0, 0, 0),
	})
	_ = reg
	topo.AscendBuses(func(id int) bool {
		bus := &topo.Buses[id]
		for i := 1; i < len(bus.Devices); i++ {
			if pci.CompareAddr(bus.Devices[i-1].Addr, bus.Devices[i].Addr) >= 0 {
				t.Errorf("总线 %02x 上设备乱序: %s 在 %s 前面",
					bus.Number, bus.Devices[i-1].Addr, bus.Devices[i].Addr)
			}
		}
		return true
	})
}
