package pci_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pci_tool/pkg/hw/pci"
)

func claim(dev, fn, pri, first, last int, bus int) *pci.BusClaim {
	return &pci.BusClaim{Bus: bus, Dev: dev, Fn: fn, Primary: pri, First: first, Last: last}
}

// 正常链：校验给每条可达总线登记访客簿、记下进入用的声明
func TestValidateCleanChain(t *testing.T) {
	in := pci.NewBusMap()
	in.Buses[0].Exists = true
	in.Buses[0].Claims = append(in.Buses[0].Claims, claim(1, 0, 0, 1, 1, 0))
	in.Buses[1].Exists = true

	out := pci.Validate(in)
	assert.True(t, out.Buses[0].Visited)
	assert.True(t, out.Buses[1].Visited)
	assert.Nil(t, out.Buses[0].Via)
	if assert.NotNil(t, out.Buses[1].Via) {
		assert.Equal(t, 1, out.Buses[1].Via.Dev)
	}
	assert.Equal(t, pci.AnomalyNone, out.Buses[0].Claims[0].Bug)
	assert.Zero(t, out.Anomalies())
}

// 两座桥声明同一条下游总线：后检查的那条标 overlap
func TestValidateOverlap(t *testing.T) {
	in := pci.NewBusMap()
	in.Buses[0].Exists = true
	in.Buses[0].Claims = append(in.Buses[0].Claims,
		claim(0, 0, 0, 5, 5, 0),
		claim(1, 0, 0, 5, 5, 0))
	in.Buses[5].Exists = true

	out := pci.Validate(in)
	assert.Equal(t, pci.AnomalyNone, out.Buses[0].Claims[0].Bug)
	assert.Equal(t, pci.AnomalyOverlap, out.Buses[0].Claims[1].Bug)
	assert.Equal(t, 1, out.Anomalies())
	// 先到先得：Via 是第一条声明
	assert.Equal(t, 0, out.Buses[5].Via.Dev)
}

// 子桥范围越出父桥授予的窗口：标 crossing，不下降
func TestValidateCrossing(t *testing.T) {
	in := pci.NewBusMap()
	in.Buses[0].Exists = true
	in.Buses[0].Claims = append(in.Buses[0].Claims, claim(2, 0, 0, 0x0a, 0x14, 0))
	in.Buses[0x0a].Exists = true
	in.Buses[0x0a].Claims = append(in.Buses[0x0a].Claims, claim(0, 0, 0x0a, 0x05, 0x1e, 0x0a))
	in.Buses[0x05].Exists = true

	out := pci.Validate(in)
	assert.Equal(t, pci.AnomalyNone, out.Buses[0].Claims[0].Bug)
	assert.Equal(t, pci.AnomalyCrossing, out.Buses[0x0a].Claims[0].Bug)
	// 没下降，所以 05 没有经由声明，后面被当作次宿主总线单独走
	assert.Nil(t, out.Buses[0x05].Via)
	assert.True(t, out.Buses[0x05].Visited)
}

// 自引用(桥声明指向自己所在的总线)会撞上访客簿，标 overlap 而不是死循环
func TestValidateSelfLoop(t *testing.T) {
	in := pci.NewBusMap()
	in.Buses[0].Exists = true
	in.Buses[0].Claims = append(in.Buses[0].Claims, claim(0, 0, 0, 0, 0, 0))

	out := pci.Validate(in)
	assert.Equal(t, pci.AnomalyOverlap, out.Buses[0].Claims[0].Bug)
}

// 两座桥范围连成环：环在第二次进入时被访客簿抓住
func TestValidateCycle(t *testing.T) {
	in := pci.NewBusMap()
	in.Buses[0].Exists = true
	in.Buses[0].Claims = append(in.Buses[0].Claims, claim(1, 0, 0, 1, 2, 0))
	in.Buses[1].Exists = true
	in.Buses[1].Claims = append(in.Buses[1].Claims, claim(0, 0, 1, 2, 2, 1))
	in.Buses[2].Exists = true
	in.Buses[2].Claims = append(in.Buses[2].Claims, claim(0, 0, 2, 1, 1, 2))

	out := pci.Validate(in)
	// 0→1→2 正常，2→1 撞访客簿
	assert.Equal(t, pci.AnomalyOverlap, out.Buses[2].Claims[0].Bug)
	assert.Equal(t, 1, out.Anomalies())
}

// 没有任何桥声明指向的存在总线：单独开一轮受控深搜(次宿主总线)
func TestValidateSecondaryHostBus(t *testing.T) {
	in := pci.NewBusMap()
	in.Buses[0].Exists = true
	in.Buses[7].Exists = true

	out := pci.Validate(in)
	assert.True(t, out.Buses[7].Visited)
	assert.Nil(t, out.Buses[7].Via)
}

// 校验操作的是深拷贝，探测器的原始产出一个字节都不许动
func TestValidateInputUntouched(t *testing.T) {
	in := pci.NewBusMap()
	in.Buses[0].Exists = true
	in.Buses[0].Claims = append(in.Buses[0].Claims,
		claim(0, 0, 0, 5, 5, 0),
		claim(1, 0, 0, 5, 5, 0))
	in.Buses[5].Exists = true

	out := pci.Validate(in)
	assert.Equal(t, 1, out.Anomalies())

	assert.False(t, in.Buses[0].Visited)
	assert.False(t, in.Buses[5].Visited)
	assert.Nil(t, in.Buses[5].Via)
	assert.Equal(t, pci.AnomalyNone, in.Buses[0].Claims[0].Bug)
	assert.Equal(t, pci.AnomalyNone, in.Buses[0].Claims[1].Bug)
	// 副本里的声明必须是独立记录，不许和输入共享指针
	assert.NotSame(t, in.Buses[0].Claims[0], out.Buses[0].Claims[0])
	assert.NotSame(t, in.Buses[0].Claims[1], out.Buses[0].Claims[1])
}
