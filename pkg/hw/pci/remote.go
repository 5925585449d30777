package pci

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"pci_tool/pkg/logutil"
)

// RemoteOptions 远端 sysfs 后端的连接参数
type RemoteOptions struct {
	Host     string
	Port     string
	User     string
	Password string
	Timeout  time.Duration
	Root     string // 远端 sysfs 根，留空用标准位置
}

// ParseRemoteSpec 解析 --remote 的 "user:pass@host[:port]" 写法
func ParseRemoteSpec(spec string) (RemoteOptions, error) {
	opt := RemoteOptions{Port: "22", Timeout: 10 * time.Second}
	at := strings.LastIndex(spec, "@")
	if at < 0 {
		return opt, fmt.Errorf("无效的远端地址 %q，应为 user:pass@host[:port]", spec)
	}
	cred, hostport := spec[:at], spec[at+1:]
	user, pass, ok := strings.Cut(cred, ":")
	if !ok || user == "" {
		return opt, fmt.Errorf("无效的远端凭据，应为 user:pass")
	}
	opt.User, opt.Password = user, pass
	if host, port, ok := strings.Cut(hostport, ":"); ok {
		opt.Host, opt.Port = host, port
	} else {
		opt.Host = hostport
	}
	if opt.Host == "" {
		return opt, fmt.Errorf("远端主机名为空")
	}
	return opt, nil
}

// RemoteSysfsAccess 通过 SSH+SFTP 读远端机器的 sysfs。
// 用 SFTP 而不是 SCP：sysfs 文件上报的大小是 0，
// SCP 按上报大小拷贝会拷出空文件，SFTP 的 ReadAt 不受影响。
type RemoteSysfsAccess struct {
	Root string
	ssh  *ssh.Client
	sftp *sftp.Client
}

// DialRemoteSysfs 建立到远端的 SSH 和 SFTP 会话
func DialRemoteSysfs(opt RemoteOptions) (*RemoteSysfsAccess, error) {
	config := &ssh.ClientConfig{
		User:            opt.User,
		Auth:            []ssh.AuthMethod{ssh.Password(opt.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         opt.Timeout,
	}
	sshClient, err := ssh.Dial("tcp", opt.Host+":"+opt.Port, config)
	if err != nil {
		return nil, fmt.Errorf("SSH 连接 %s:%s 失败: %w", opt.Host, opt.Port, err)
	}
	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("SFTP 会话建立失败: %w", err)
	}
	root := opt.Root
	if root == "" {
		root = SysfsRootDefault
	}
	logutil.Info("已连接远端 %s@%s:%s，sysfs 根为 %s", opt.User, opt.Host, opt.Port, root)
	return &RemoteSysfsAccess{Root: root, ssh: sshClient, sftp: sftpClient}, nil
}

func (r *RemoteSysfsAccess) Close() error {
	if r.sftp != nil {
		r.sftp.Close()
	}
	if r.ssh != nil {
		return r.ssh.Close()
	}
	return nil
}

func (r *RemoteSysfsAccess) configPath(a Addr) string {
	// 远端固定是 Linux，路径分隔符用 path 不用 filepath
	return path.Join(r.Root, a.String(), "config")
}

func (r *RemoteSysfsAccess) Enumerate() ([]Addr, error) {
	entries, err := r.sftp.ReadDir(r.Root)
	if err != nil {
		return nil, fmt.Errorf("读取远端 %s 失败: %w", r.Root, err)
	}
	var out []Addr
	for _, e := range entries {
		a, err := ParseAddr(e.Name())
		if err != nil {
			logutil.Debug("忽略无法解析的远端目录项 %q", e.Name())
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *RemoteSysfsAccess) ReadBytes(a Addr, off, n int) ([]byte, error) {
	f, err := r.sftp.Open(r.configPath(a))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	got, err := f.ReadAt(buf, int64(off))
	if got != n {
		return nil, fmt.Errorf("远端 config 短读 [%#x,+%#x) 得到 %d 字节: %w", off, n, got, err)
	}
	return buf, nil
}

func (r *RemoteSysfsAccess) rawRead(a Addr, reg, n int) ([]byte, error) {
	f, err := r.sftp.Open(r.configPath(a))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			ones := make([]byte, n)
			for i := range ones {
				ones[i] = 0xFF
			}
			return ones, nil
		}
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	if got, err := f.ReadAt(buf, int64(reg)); got != n {
		return nil, fmt.Errorf("远端裸读寄存器 %#x 失败: %w", reg, err)
	}
	return buf, nil
}

func (r *RemoteSysfsAccess) ReadConfigWord(a Addr, reg int) (uint16, error) {
	b, err := r.rawRead(a, reg, 2)
	if err != nil {
		return 0, err
	}
	return uint16(b[0]) | uint16(b[1])<<8, nil
}

func (r *RemoteSysfsAccess) ReadConfigByte(a Addr, reg int) (byte, error) {
	b, err := r.rawRead(a, reg, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Resources 远端 resource 文件，格式和本机相同
func (r *RemoteSysfsAccess) Resources(a Addr) ([]Resource, error) {
	f, err := r.sftp.Open(path.Join(r.Root, a.String(), "resource"))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	// resource 文件是短文本，一次读完
	buf := make([]byte, 4096)
	n, _ := f.Read(buf)
	if n <= 0 {
		return nil, fmt.Errorf("远端 resource 文件为空")
	}
	return parseResources(string(buf[:n]))
}

// 简单自检：两个后端都必须满足协作方接口
var (
	_ ConfigAccess   = (*SysfsAccess)(nil)
	_ ConfigAccess   = (*RemoteSysfsAccess)(nil)
	_ ResourceReader = (*SysfsAccess)(nil)
	_ ResourceReader = (*RemoteSysfsAccess)(nil)
)
