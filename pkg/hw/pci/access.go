package pci

// ConfigAccess 是硬件访问协作方的抽象。
// 拓扑引擎只通过它接触配置空间，本体不关心字节从哪里来
// (本机 sysfs、远程 sysfs、mock 目录树，都是这一个接口)。
type ConfigAccess interface {
	// Enumerate 列出当前可见的所有 PCI 功能地址。
	// 顺序不做任何保证，排序由设备清单负责。
	Enumerate() ([]Addr, error)

	// ReadBytes 读取地址 a 的配置空间 [off, off+n) 字节。
	// 只有配置空间缓存会调用它，而且只为尚未缓存的缺口调用。
	// 设备不存在、读不满都算错误。
	ReadBytes(a Addr, off, n int) ([]byte, error)

	// ReadConfigWord 裸读一个 16 位寄存器(小端)，绕过所有缓存。
	// 只给主动探测模式用。设备不存在时返回 0xFFFF 而不是错误，
	// 因为"读出全 1"正是总线上无设备应答的样子。
	ReadConfigWord(a Addr, reg int) (uint16, error)

	// ReadConfigByte 裸读一个字节，语义同 ReadConfigWord，
	// 设备不存在时返回 0xFF。
	ReadConfigByte(a Addr, reg int) (byte, error)
}

// Resource 是 sysfs resource 文件里的一行(BAR 或 ROM 窗口)
type Resource struct {
	Start uint64
	End   uint64
	Flags uint64
}

// Size 窗口字节数，空行(全 0)返回 0
func (r Resource) Size() uint64 {
	if r.Start == 0 && r.End == 0 {
		return 0
	}
	return r.End - r.Start + 1
}

// ResourceReader 是可选的扩展能力：能给出每个功能的资源窗口。
// 列表视图用它展示 BAR 大小，纯拓扑路径不依赖它。
type ResourceReader interface {
	Resources(a Addr) ([]Resource, error)
}
