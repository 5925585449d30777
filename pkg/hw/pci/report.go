package pci

import (
	"fmt"
	"io"
	"strings"

	"github.com/awalterschulze/gographviz"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// WriteBusSummary 打印主动探测+校验之后的逐总线汇总，
// 格式沿用老牌工具的习惯：每条存在的总线一行，
// 下面缩进列出它名下每条桥声明和校验标签
func WriteBusSummary(m *BusMap, w io.Writer) {
	fmt.Fprintf(w, "\n总线汇总:\n\n")
	for i := 0; i <= MaxBusNumber; i++ {
		bi := &m.Buses[i]
		if bi.Exists {
			fmt.Fprintf(w, "%02x: ", i)
			switch {
			case bi.Via != nil:
				fmt.Fprintf(w, "经由 %02x:%02x.%x 进入\n", bi.Via.Bus, bi.Via.Dev, bi.Via.Fn)
			case i == 0:
				fmt.Fprintf(w, "主宿主总线\n")
			default:
				fmt.Fprintf(w, "次宿主总线 (?)\n")
			}
		}
		for _, c := range bi.Claims {
			fmt.Fprintf(w, "\t%02x.%x 桥接到 %02x-%02x", c.Dev, c.Fn, c.First, c.Last)
			switch c.Bug {
			case AnomalyOverlap:
				fmt.Fprintf(w, " <overlap bug>")
			case AnomalyCrossing:
				fmt.Fprintf(w, " <crossing bug>")
			}
			fmt.Fprintln(w)
		}
	}
}

// BuildBusMapJSON 把校验后的探测表编成 JSON 报告。
// 顶层带 all_summary，方便脚本一眼判断要不要细看
func BuildBusMapJSON(m *BusMap) ([]byte, error) {
	js := `{}`
	summary := "OK"
	if m.Anomalies() > 0 || m.SoftErrors > 0 {
		summary = "ERR"
	}
	var err error
	if js, err = sjson.Set(js, "all_summary", summary); err != nil {
		return nil, err
	}
	if js, err = sjson.Set(js, "soft_errors", m.SoftErrors); err != nil {
		return nil, err
	}
	if js, err = sjson.Set(js, "anomalies", m.Anomalies()); err != nil {
		return nil, err
	}
	for i := 0; i <= MaxBusNumber; i++ {
		bi := &m.Buses[i]
		if !bi.Exists && len(bi.Claims) == 0 {
			continue
		}
		// 键用 0x 前缀，避免纯数字键被路径语法当成数组下标
		key := fmt.Sprintf("buses.0x%02x", i)
		if js, err = sjson.Set(js, key+".exists", bi.Exists); err != nil {
			return nil, err
		}
		if bi.Via != nil {
			via := fmt.Sprintf("%02x:%02x.%x", bi.Via.Bus, bi.Via.Dev, bi.Via.Fn)
			js, err = sjson.Set(js, key+".via", via)
		} else {
			// 没有经由声明是 JSON 的 null，不是字符串 "null"
			js, err = sjson.SetRaw(js, key+".via", "null")
		}
		if err != nil {
			return nil, err
		}
		for _, c := range bi.Claims {
			entry := map[string]interface{}{
				"bridge":  fmt.Sprintf("%02x.%x", c.Dev, c.Fn),
				"primary": c.Primary,
				"first":   c.First,
				"last":    c.Last,
				"bug":     c.Bug.String(),
			}
			if js, err = sjson.Set(js, key+".claims.-1", entry); err != nil {
				return nil, err
			}
		}
	}
	return pretty.Pretty([]byte(js)), nil
}

// BuildTreeJSON 被动模式的树形报告：每条总线一个条目，
// 列出上游的桥和挂着的设备
func BuildTreeJSON(t *Topology) ([]byte, error) {
	js := `{}`
	summary := "OK"
	if t.Warnings > 0 {
		summary = "ERR"
	}
	var err error
	if js, err = sjson.Set(js, "all_summary", summary); err != nil {
		return nil, err
	}
	if js, err = sjson.Set(js, "warnings", t.Warnings); err != nil {
		return nil, err
	}
	var walkErr error
	t.AscendBuses(func(id int) bool {
		bus := &t.Buses[id]
		key := fmt.Sprintf("buses.%04x:%02x", bus.Domain, bus.Number)
		br := &t.Bridges[bus.Bridge]
		via := "host"
		if br.Device != nil {
			via = br.Device.Addr.String()
		}
		if js, walkErr = sjson.Set(js, key+".via", via); walkErr != nil {
			return false
		}
		for _, d := range bus.Devices {
			entry := map[string]interface{}{
				"addr":   d.Addr.String(),
				"vendor": fmt.Sprintf("0x%04x", d.Vendor),
				"device": fmt.Sprintf("0x%04x", d.DeviceID),
				"class":  fmt.Sprintf("0x%04x", d.Class),
			}
			if bid := t.BridgeOf(d); bid != -1 {
				b := &t.Bridges[bid]
				entry["bridge"] = fmt.Sprintf("%02x-%02x", b.Secondary, b.Subordinate)
				if b.Clamped {
					entry["clamped"] = true
				}
			}
			if js, walkErr = sjson.Set(js, key+".devices.-1", entry); walkErr != nil {
				return false
			}
		}
		return true
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return pretty.Pretty([]byte(js)), nil
}

// BuildTopologyDOT 导出 graphviz 的 DOT 图：桥→总线→设备，
// 可以直接喂给 dot -Tsvg 画拓扑图
func BuildTopologyDOT(t *Topology) (string, error) {
	g := gographviz.NewGraph()
	if err := g.SetName("pci"); err != nil {
		return "", err
	}
	if err := g.SetDir(true); err != nil {
		return "", err
	}
	busNode := func(id int) string {
		b := &t.Buses[id]
		return fmt.Sprintf("bus_%04x_%02x", b.Domain, b.Number)
	}
	devNode := func(d *Device) string {
		return "dev_" + strings.NewReplacer(":", "_", ".", "_").Replace(d.Addr.String())
	}
	if err := g.AddNode("pci", "host", map[string]string{
		"label": `"host"`, "shape": "box",
	}); err != nil {
		return "", err
	}
	var addErr error
	t.AscendBuses(func(id int) bool {
		bus := &t.Buses[id]
		if addErr = g.AddNode("pci", busNode(id), map[string]string{
			"label": fmt.Sprintf(`"%04x:%02x"`, bus.Domain, bus.Number),
			"shape": "ellipse",
		}); addErr != nil {
			return false
		}
		br := &t.Bridges[bus.Bridge]
		src := "host"
		if br.Device != nil {
			src = devNode(br.Device)
		}
		if addErr = g.AddEdge(src, busNode(id), true, nil); addErr != nil {
			return false
		}
		for _, d := range bus.Devices {
			if addErr = g.AddNode("pci", devNode(d), map[string]string{
				"label": fmt.Sprintf(`"%s\n%04x:%04x"`, d.Addr, d.Vendor, d.DeviceID),
				"shape": "box",
			}); addErr != nil {
				return false
			}
			if addErr = g.AddEdge(busNode(id), devNode(d), true, nil); addErr != nil {
				return false
			}
		}
		return true
	})
	if addErr != nil {
		return "", addErr
	}
	return g.String(), nil
}

// WriteDeviceList 简明的逐设备清单。
// 备注列里有中文，后面还跟着资源列，对齐必须按显示宽度算
func WriteDeviceList(t *Topology, devs []*Device, rr ResourceReader, w io.Writer) {
	noteWidth := 0
	notes := make([]string, len(devs))
	for i, d := range devs {
		note := ""
		if id := t.BridgeOf(d); id != -1 {
			b := &t.Bridges[id]
			note = fmt.Sprintf("[桥 %02x→%02x-%02x]", b.Primary, b.Secondary, b.Subordinate)
			if b.Clamped {
				note += " (范围倒置已钳位)"
			}
		}
		notes[i] = note
		if rw := runewidth.StringWidth(note); rw > noteWidth {
			noteWidth = rw
		}
	}
	for i, d := range devs {
		line := fmt.Sprintf("%s  %04x:%04x  class %04x  %s",
			d.Addr, d.Vendor, d.DeviceID, d.Class,
			runewidth.FillRight(notes[i], noteWidth))
		if rr != nil {
			if res, err := rr.Resources(d.Addr); err == nil {
				line += "  " + formatResources(res)
			}
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
}

func formatResources(res []Resource) string {
	var sizes []string
	for _, r := range res {
		if r.Size() == 0 {
			continue
		}
		sizes = append(sizes, humanize.IBytes(r.Size()))
	}
	if len(sizes) == 0 {
		return ""
	}
	return "res=" + strings.Join(sizes, ",")
}
