package pci

import (
	"fmt"

	"pci_tool/pkg/toolutil/bit"
)

// 初始容量正好盖住强制读取的标准头部
const configInitialSize = 64

// ConfigCache 是单个功能的配置空间缓存：
// 一块按需增长的字节缓冲区，外加一张并行的"已取回"掩码。
// 配置空间读取相对昂贵，已经取回的字节绝不会再向硬件要第二次。
type ConfigCache struct {
	acc     ConfigAccess
	addr    Addr
	buf     []byte
	present []bool
}

func NewConfigCache(acc ConfigAccess, addr Addr) *ConfigCache {
	return &ConfigCache{
		acc:     acc,
		addr:    addr,
		buf:     make([]byte, configInitialSize),
		present: make([]bool, configInitialSize),
	}
}

func (c *ConfigCache) Addr() Addr { return c.addr }

// grow 倍增扩容到至少 n 字节。
// 已缓存的字节和掩码位原位保留，偏移不变。
func (c *ConfigCache) grow(n int) {
	size := len(c.buf)
	for size < n {
		size *= 2
	}
	if size == len(c.buf) {
		return
	}
	buf := make([]byte, size)
	present := make([]bool, size)
	copy(buf, c.buf)
	copy(present, c.present)
	c.buf = buf
	c.present = present
}

// Fetch 保证 [off, off+n) 全部在缓存中。
// 只向协作方请求尚未取回的缺口，连续的缺口合并成一次读取。
// 成功后这段区间的掩码位全部置位；失败时已取回的部分保持有效。
func (c *ConfigCache) Fetch(off, n int) error {
	if off < 0 || n < 0 {
		return fmt.Errorf("%s: 非法的配置空间区间 [%#x,+%#x)", c.addr, off, n)
	}
	if n == 0 {
		return nil
	}
	c.grow(off + n)
	for i := off; i < off+n; {
		if c.present[i] {
			i++
			continue
		}
		j := i
		for j < off+n && !c.present[j] {
			j++
		}
		data, err := c.acc.ReadBytes(c.addr, i, j-i)
		if err != nil {
			return fmt.Errorf("%s: 读取配置空间 [%#x,+%#x) 失败: %w",
				c.addr, i, j-i, err)
		}
		if len(data) != j-i {
			return fmt.Errorf("%s: 配置空间短读 [%#x,+%#x) 只得到 %d 字节",
				c.addr, i, j-i, len(data))
		}
		copy(c.buf[i:j], data)
		for k := i; k < j; k++ {
			c.present[k] = true
		}
		i = j
	}
	return nil
}

// Present 判断某个字节是否已经取回(主要给测试用)
func (c *ConfigCache) Present(off int) bool {
	return off >= 0 && off < len(c.present) && c.present[off]
}

// Byte 读一个已缓存的字节。
// 读到没取回的偏移是调用方的编程错误，直接 panic，
// 注意和硬件读失败(Fetch 返回 error)区分开。
func (c *ConfigCache) Byte(off int) byte {
	if off < 0 || off >= len(c.buf) || !c.present[off] {
		panic(fmt.Sprintf("pci: %s 偏移 %#x 尚未缓存就被读取", c.addr, off))
	}
	return c.buf[off]
}

// Word 小端 16 位
func (c *ConfigCache) Word(off int) uint16 {
	return bit.JoinUint16LE(c.Byte(off), c.Byte(off+1))
}

// Long 小端 32 位
func (c *ConfigCache) Long(off int) uint32 {
	return bit.JoinUint32LE(c.Byte(off), c.Byte(off+1), c.Byte(off+2), c.Byte(off+3))
}
