package hex

import (
	"strconv"
	"strings"
)

func parseHex(s string, bits int) (uint64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "\uFEFF") // 去除 BOM
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	return strconv.ParseUint(s, 16, bits)
}

// ParseHexToUint16 解析十六进制字符串(可带 0x 前缀)成 uint16
func ParseHexToUint16(s string) (uint16, error) {
	v, err := parseHex(s, 16)
	return uint16(v), err
}

func ParseHexToUint32(s string) (uint32, error) {
	v, err := parseHex(s, 32)
	return uint32(v), err
}

// sysfs 的 resource 文件每行三个 64 位十六进制字段，走这里解析
func ParseHexToUint64(s string) (uint64, error) {
	return parseHex(s, 64)
}
