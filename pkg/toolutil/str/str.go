// 简单的字符串操作库
package str

// 字符串为空的时候设置字符串的默认值
func DefaultStr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
