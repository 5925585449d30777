// 零散的小工具集合，按主题分子包：
//
//	bit — 字节拆拼和寄存器位段提取
//	hex — 十六进制字符串解析(sysfs 里的数值文件基本都是这种)
//	str — 简单字符串操作
//
// 顶层放不值得单独开包的通用函数。
package toolutil
