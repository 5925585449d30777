package bit

import (
	"golang.org/x/exp/constraints"
)

// SplitUint16ToBytes 将 uint16 拆成高位和低位
func SplitUint16ToBytes(val uint16) (hi, lo byte) {
	hi = byte(val >> 8)
	lo = byte(val & 0xFF)
	return
}

func SplitUint32ToBytes(val uint32) (b3, b2, b1, b0 byte) {
	b3 = byte((val >> 24) & 0xFF)
	b2 = byte((val >> 16) & 0xFF)
	b1 = byte((val >> 8) & 0xFF)
	b0 = byte(val & 0xFF)
	return
}

// JoinUint16LE 按小端序把 2 个字节拼成 uint16(b0 为低位)
// 配置空间里的多字节寄存器全是小端
func JoinUint16LE(b0, b1 byte) uint16 {
	return uint16(b0) | uint16(b1)<<8
}

// JoinUint32LE 按小端序把 4 个字节拼成 uint32(b0 为低位)
func JoinUint32LE(b0, b1, b2, b3 byte) uint32 {
	return uint32(b0) | uint32(b1)<<8 | uint32(b2)<<16 | uint32(b3)<<24
}

// ExtractBits 提取 val 中 [start:start+width) 范围的字段
// v := byte(0b1000_0001)
// ExtractBits(v, 7, 1)  // 多功能位 => 1
// ExtractBits(v, 0, 7)  // 头部类型 => 0x01
func ExtractBits[T constraints.Unsigned](val T, start, width byte) T {
	var mask T = (1 << width) - 1
	return (val >> start) & mask
}
