package pci_test

import (
	"testing"

	"pci_tool/pkg/hw/pci"
)

func TestParseAddr(t *testing.T) {
	tests := []struct {
		in   string
		want string
		bad  bool
	}{
		{in: "0000:00:1f.6", want: "0000:00:1f.6"},
		{in: "0001:30:00.0", want: "0001:30:00.0"},
		{in: "0000:ff:1f.7", want: "0000:ff:1f.7"},
		{in: "0000:00:20.0", bad: true}, // 设备号最大 0x1f
		{in: "0000:00:00.8", bad: true}, // 功能号最大 7
		{in: "junk", bad: true},
		{in: "", bad: true},
	}
	for _, tt := range tests {
		a, err := pci.ParseAddr(tt.in)
		if tt.bad {
			if err == nil {
				t.Errorf("ParseAddr(%q) 期望报错，实际得到 %s", tt.in, a)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAddr(%q) 报错: %v", tt.in, err)
			continue
		}
		if a.String() != tt.want {
			t.Errorf("ParseAddr(%q).String() = %q, 期望 %q", tt.in, a.String(), tt.want)
		}
	}
}

// 规范序按 (域,总线,设备,功能) 逐级比较
func TestCompareAddr(t *testing.T) {
	ordered := []string{
		"0000:00:00.0",
		"0000:00:00.1",
		"0000:00:1f.0",
		"0000:01:00.0",
		"0001:00:00.0",
	}
	for i := 0; i < len(ordered)-1; i++ {
		a := mustAddr(t, ordered[i])
		b := mustAddr(t, ordered[i+1])
		if pci.CompareAddr(a, b) >= 0 {
			t.Errorf("CompareAddr(%s, %s) 应当 < 0", a, b)
		}
		if pci.CompareAddr(b, a) <= 0 {
			t.Errorf("CompareAddr(%s, %s) 应当 > 0", b, a)
		}
	}
	a := mustAddr(t, "0000:00:1f.6")
	if pci.CompareAddr(a, a) != 0 {
		t.Error("地址和自己比较应当相等")
	}
}
