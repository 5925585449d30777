package pci

import (
	"fmt"
	"io"

	"pci_tool/pkg/logutil"
)

// 渲染递归的硬深度上限。总线号只有 256 个，
// 正常的树到不了这个深度，到了说明输入里有环或恶意嵌套
const renderMaxDepth = MaxBusNumber + 1

// treeRenderer 维护一条"行缓冲 + 竖轨"：
// 整行拼好后一次刷出，然后把行里的连接符改写成延续轨——
// '+'(还有后续兄弟)变成 '|' 竖轨，'\'(最后一个兄弟)和横线都变空白，
// 这样非末位兄弟下面的行保持视觉上连着，末位兄弟下面断开。
type treeRenderer struct {
	t    *Topology
	w    io.Writer
	line []byte
}

// RenderTree 对建好的树做深度优先、自左向右的文本遍历。
// 每条总线按存储顺序列出孩子；一座桥可以挂多条兄弟总线，
// 但只有合成宿主根桥会这样(代表多个独立的域)。
func RenderTree(t *Topology, w io.Writer) {
	r := &treeRenderer{t: t, w: w}
	r.renderBridge(HostRootID, 0, 0)
}

// printIt 刷出 line[:n]，然后原位把已输出的前缀改写成轨道
func (r *treeRenderer) printIt(n int) {
	fmt.Fprintf(r.w, "%s\n", r.line[:n])
	for i := 0; i < n; i++ {
		if r.line[i] == '+' || r.line[i] == '|' {
			r.line[i] = '|'
		} else {
			r.line[i] = ' '
		}
	}
}

// put 把 s 写进行缓冲的 pos 处，返回新的行尾位置
func (r *treeRenderer) put(pos int, s string) int {
	for len(r.line) < pos+len(s) {
		r.line = append(r.line, ' ')
	}
	copy(r.line[pos:], s)
	return pos + len(s)
}

func (r *treeRenderer) renderBridge(id, pos, depth int) {
	if depth > renderMaxDepth {
		logutil.Error("渲染深度超过 %d，输入的桥范围有环，停止下降", renderMaxDepth)
		return
	}
	b := &r.t.Bridges[id]
	pos = r.put(pos, "-")
	if len(b.Buses) == 0 {
		// 下游总线被更早的同次级号桥占走了，本桥名下没有总线可列
		r.printIt(pos)
		return
	}
	if len(b.Buses) == 1 {
		bus := &r.t.Buses[b.Buses[0]]
		if id == HostRootID {
			pos = r.put(pos, fmt.Sprintf("[%04x:%02x]-", bus.Domain, bus.Number))
		}
		r.renderBus(b.Buses[0], pos, depth)
		return
	}
	for i, busID := range b.Buses {
		bus := &r.t.Buses[busID]
		conn := "+-"
		if i == len(b.Buses)-1 {
			conn = "\\-"
		}
		p := r.put(pos, fmt.Sprintf("%s[%04x:%02x]-", conn, bus.Domain, bus.Number))
		r.renderBus(busID, p, depth)
	}
}

func (r *treeRenderer) renderBus(id, pos, depth int) {
	bus := &r.t.Buses[id]
	switch len(bus.Devices) {
	case 0:
		// 空总线(物化出来但没挂设备的下游网段)也要占一行
		r.printIt(pos)
	case 1:
		pos = r.put(pos, "--")
		r.renderDev(bus.Devices[0], pos, depth)
	default:
		for i, d := range bus.Devices {
			conn := "+-"
			if i == len(bus.Devices)-1 {
				conn = "\\-"
			}
			p := r.put(pos, conn)
			r.renderDev(d, p, depth)
		}
	}
}

func (r *treeRenderer) renderDev(d *Device, pos, depth int) {
	pos = r.put(pos, fmt.Sprintf("%02x.%x", d.Addr.Dev, d.Addr.Fn))
	if id := r.t.BridgeOf(d); id != -1 {
		b := &r.t.Bridges[id]
		if b.Secondary == b.Subordinate {
			pos = r.put(pos, fmt.Sprintf("-[%04x:%02x]-", b.Domain, b.Secondary))
		} else {
			pos = r.put(pos, fmt.Sprintf("-[%04x:%02x-%02x]-", b.Domain, b.Secondary, b.Subordinate))
		}
		r.renderBridge(id, pos, depth+1)
		return
	}
	r.printIt(pos)
}
