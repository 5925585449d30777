package pci_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"pci_tool/pkg/hw/pci"
)

func mockAccess(t *testing.T, scenario string) *pci.SysfsAccess {
	t.Helper()
	root := t.TempDir()
	if err := pci.MockScenario(root, scenario); err != nil {
		t.Fatalf("生成场景 %q 失败: %v", scenario, err)
	}
	return pci.NewSysfsAccess(root)
}

func TestMockScenarioUnknownName(t *testing.T) {
	err := pci.MockScenario(t.TempDir(), "no-such-scenario")
	if err == nil {
		t.Fatal("未知场景名应当报错")
	}
	// 报错里带可用场景列表
	for _, name := range []string{"simple", "multi-domain", "broken"} {
		assert.Contains(t, err.Error(), name)
	}
}

// simple 场景全流程：sysfs 后端 → 扫描 → 建树 → 渲染
func TestMockSimpleEndToEnd(t *testing.T) {
	acc := mockAccess(t, "simple")
	reg := pci.NewRegistry(acc)
	if err := reg.Scan(); err != nil {
		t.Fatalf("Scan 失败: %v", err)
	}
	assert.Equal(t, 7, reg.Len())

	topo := pci.BuildTopology(reg)
	assert.Zero(t, topo.Warnings)

	// 4 级桥链逐级嵌套
	d, _ := reg.Get(mustAddr(t, "0000:03:00.0"))
	var leafBus *pci.Bus
	topo.AscendBuses(func(id int) bool {
		if topo.Buses[id].Number == 3 {
			leafBus = &topo.Buses[id]
		}
		return true
	})
	if leafBus == nil {
		t.Fatal("总线 03 没建出来")
	}
	assert.Contains(t, leafBus.Devices, d)
	owner := &topo.Bridges[leafBus.Bridge]
	assert.Equal(t, "0000:02:00.0", owner.Device.Addr.String())

	var sb strings.Builder
	pci.RenderTree(topo, &sb)
	out := sb.String()
	for _, frag := range []string{"[0000:00]", "[0000:01-03]", "[0000:02-03]", "[0000:03]"} {
		if !strings.Contains(out, frag) {
			t.Errorf("渲染缺少 %q:\n%s", frag, out)
		}
	}
}

// simple 场景的多功能设备和资源文件
func TestMockSimpleResources(t *testing.T) {
	acc := mockAccess(t, "simple")
	reg := pci.NewRegistry(acc)
	if err := reg.Scan(); err != nil {
		t.Fatal(err)
	}
	d, ok := reg.Get(mustAddr(t, "0000:00:03.0"))
	if !ok {
		t.Fatal("多功能设备丢了")
	}
	assert.True(t, d.MultiFunc)

	res, err := acc.Resources(d.Addr)
	if err != nil {
		t.Fatalf("读 resource 失败: %v", err)
	}
	if assert.Len(t, res, 1) {
		assert.Equal(t, uint64(0x20000), res[0].Size())
	}
	// 没 resource 文件的设备报错而不是空列表
	if _, err := acc.Resources(mustAddr(t, "0000:00:03.1")); err == nil {
		t.Error("缺 resource 文件应当报错")
	}
}

// multi-domain 场景：域之间互不串线
func TestMockMultiDomainEndToEnd(t *testing.T) {
	acc := mockAccess(t, "multi-domain")
	reg := pci.NewRegistry(acc)
	if err := reg.Scan(); err != nil {
		t.Fatal(err)
	}
	topo := pci.BuildTopology(reg)
	assert.Zero(t, topo.Warnings)

	// 域 0001 的嵌套区间：04 号总线的设备挂宽区间桥 [1,4] 下，
	// 而不是窄区间桥 [2,4] 下？不对——04 同时落在两个区间里，
	// 必须挑最窄的 [2,4]
	d, _ := reg.Get(mustAddr(t, "0001:04:00.0"))
	topo.AscendBuses(func(id int) bool {
		bus := &topo.Buses[id]
		if bus.Domain == 1 && bus.Number == 4 {
			owner := &topo.Bridges[bus.Bridge]
			assert.Equal(t, "0001:01:00.0", owner.Device.Addr.String())
			assert.Contains(t, bus.Devices, d)
		}
		return true
	})

	// 域 0002 只有孤立设备，总线直接物化在根下
	d2, _ := reg.Get(mustAddr(t, "0002:30:00.0"))
	found := false
	topo.AscendBuses(func(id int) bool {
		bus := &topo.Buses[id]
		if bus.Domain == 2 && bus.Number == 0x30 {
			found = true
			assert.Equal(t, pci.HostRootID, bus.Bridge)
			assert.Contains(t, bus.Devices, d2)
		}
		return true
	})
	assert.True(t, found)
}

// broken 场景走主动探测+校验：overlap、crossing、钳位全要出现
func TestMockBrokenProbeAndValidate(t *testing.T) {
	acc := mockAccess(t, "broken")
	out := pci.Validate(pci.MapBuses(acc, -1))

	assert.NotZero(t, out.Anomalies())

	var overlap, crossing, clamped bool
	for i := range out.Buses {
		for _, c := range out.Buses[i].Claims {
			switch c.Bug {
			case pci.AnomalyOverlap:
				overlap = true
			case pci.AnomalyCrossing:
				crossing = true
			}
			if c.Clamped {
				clamped = true
			}
		}
	}
	assert.True(t, overlap, "缺 overlap 异常")
	assert.True(t, crossing, "缺 crossing 异常")
	assert.True(t, clamped, "缺钳位标记")
}

// broken 场景的被动路径：倒置范围钳位计入 Warnings
func TestMockBrokenTopologyWarnings(t *testing.T) {
	acc := mockAccess(t, "broken")
	reg := pci.NewRegistry(acc)
	if err := reg.Scan(); err != nil {
		t.Fatal(err)
	}
	topo := pci.BuildTopology(reg)
	assert.NotZero(t, topo.Warnings)

	d, _ := reg.Get(mustAddr(t, "0000:00:04.0"))
	id := topo.BridgeOf(d)
	if id == -1 {
		t.Fatal("倒置范围的桥丢了")
	}
	assert.True(t, topo.Bridges[id].Clamped)
}
