package pci

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pci_tool/pkg/errorutil"
	"pci_tool/pkg/logutil"
)

// cliOptions 三个子命令共用的访问后端参数
type cliOptions struct {
	SysfsRoot    string
	MockScenario string
	Remote       string
}

// buildAccess 根据参数挑一个配置空间后端。
// 返回的 cleanup 负责断连接/清理 mock 目录，调用方 defer 掉
func (o *cliOptions) buildAccess() (ConfigAccess, func(), error) {
	if o.MockScenario != "" && o.Remote != "" {
		return nil, nil, errorutil.NewExitError(errorutil.CodeInvalidUsage,
			fmt.Errorf("--mock-scenario 和 --remote 不能同时使用"))
	}
	if o.Remote != "" {
		opt, err := ParseRemoteSpec(o.Remote)
		if err != nil {
			return nil, nil, errorutil.NewExitError(errorutil.CodeInvalidUsage, err)
		}
		opt.Root = o.SysfsRoot
		acc, err := DialRemoteSysfs(opt)
		if err != nil {
			return nil, nil, errorutil.NewExitError(errorutil.CodeSSHError, err)
		}
		return acc, func() { _ = acc.Close() }, nil
	}
	if o.MockScenario != "" {
		root := o.SysfsRoot
		cleanup := func() {}
		if root == "" || root == SysfsRootDefault {
			// 没指定打桩目录就用临时目录，绝不往真 sysfs 位置写。
			// 只清理自己建的临时目录，用户指定的目录留给用户
			tmp, err := os.MkdirTemp("", "pci_mock_*")
			if err != nil {
				return nil, nil, errorutil.NewExitError(errorutil.CodeIOError, err)
			}
			root = tmp
			cleanup = func() { _ = os.RemoveAll(tmp) }
		}
		if err := MockScenario(root, o.MockScenario); err != nil {
			cleanup()
			return nil, nil, errorutil.NewExitError(errorutil.CodeInvalidUsage, err)
		}
		logutil.Info("mock 场景 %q 已生成到 %s", o.MockScenario, root)
		return NewSysfsAccess(root), cleanup, nil
	}
	return NewSysfsAccess(o.SysfsRoot), func() {}, nil
}

// scanAndBuild 被动路径共用的前半截：扫描 + 建树
func scanAndBuild(acc ConfigAccess) (*Registry, *Topology, error) {
	reg := NewRegistry(acc)
	if err := reg.Scan(); err != nil {
		// 头部都读不出来，整个运行直接中止
		return nil, nil, errorutil.NewExitError(errorutil.CodeIOError, err)
	}
	return reg, BuildTopology(reg), nil
}

// PCICmd 定义根命令 "pci"，挂 list / tree / map 三个子命令
func PCICmd() *cobra.Command {
	opts := &cliOptions{}
	cmd := &cobra.Command{
		Use:   "pci",
		Short: "PCI 总线/桥拓扑诊断工具",
	}
	cmd.PersistentFlags().StringVar(&opts.SysfsRoot, "sysfs-root", SysfsRootDefault,
		"PCI 设备根目录(打桩测试时可指向别处)")
	cmd.PersistentFlags().StringVar(&opts.MockScenario, "mock-scenario", "",
		"生成 mock 场景(simple, multi-domain, broken)，为空则不打桩")
	cmd.PersistentFlags().StringVar(&opts.Remote, "remote", "",
		"通过 SSH 读远端机器的 sysfs，格式 user:pass@host[:port]")

	cmd.AddCommand(pciListCmd(opts))
	cmd.AddCommand(pciTreeCmd(opts))
	cmd.AddCommand(pciMapCmd(opts))
	return cmd
}

// pciListCmd 子命令 list：简明的逐设备清单
func pciListCmd(opts *cliOptions) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "按规范顺序列出所有 PCI 功能",
		RunE: func(cmd *cobra.Command, args []string) error {
			acc, cleanup, err := opts.buildAccess()
			if err != nil {
				return err
			}
			defer cleanup()
			reg, topo, err := scanAndBuild(acc)
			if err != nil {
				return err
			}
			devs := reg.Devices()
			if filter != "" {
				devs = NewAddrFilter(devs).MatchPrefix(filter)
			}
			rr, _ := acc.(ResourceReader)
			WriteDeviceList(topo, devs, rr, os.Stdout)
			return nil
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "只显示地址以此前缀开头的设备，如 0000:00")
	return cmd
}

// pciTreeCmd 子命令 tree：被动模式，信任枚举结果重建总线/桥树
func pciTreeCmd(opts *cliOptions) *cobra.Command {
	var jsonFile, dotFile string
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "重建并打印总线/桥拓扑树(被动模式)",
		RunE: func(cmd *cobra.Command, args []string) error {
			acc, cleanup, err := opts.buildAccess()
			if err != nil {
				return err
			}
			defer cleanup()
			_, topo, err := scanAndBuild(acc)
			if err != nil {
				return err
			}
			RenderTree(topo, os.Stdout)
			if jsonFile != "" {
				data, err := BuildTreeJSON(topo)
				if err != nil {
					return errorutil.NewExitError(errorutil.CodeInternalErr, err)
				}
				if err := os.WriteFile(jsonFile, data, 0644); err != nil {
					return errorutil.NewExitError(errorutil.CodeIOError, err)
				}
			}
			if dotFile != "" {
				dot, err := BuildTopologyDOT(topo)
				if err != nil {
					return errorutil.NewExitError(errorutil.CodeInternalErr, err)
				}
				if err := os.WriteFile(dotFile, []byte(dot), 0644); err != nil {
					return errorutil.NewExitError(errorutil.CodeIOError, err)
				}
			}
			if topo.Warnings > 0 {
				// 结构性问题不打断处理，但要体现在退出码里
				return errorutil.NewExitError(errorutil.CodeAssertionFailed,
					fmt.Errorf("建树过程发现 %d 处结构性问题", topo.Warnings))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&jsonFile, "json-file", "", "把拓扑报告保存为 JSON 文件")
	cmd.Flags().StringVar(&dotFile, "dot-file", "", "把拓扑导出为 graphviz DOT 文件")
	return cmd
}

// pciMapCmd 子命令 map：主动模式，逐总线探测并校验桥声明
func pciMapCmd(opts *cliOptions) *cobra.Command {
	var jsonFile string
	var bus int
	cmd := &cobra.Command{
		Use:   "map",
		Short: "主动探测总线映射并校验桥声明(不信任枚举)",
		RunE: func(cmd *cobra.Command, args []string) error {
			// -1 是"全部"的缺省值，其余越界值一律拒绝
			if bus < -1 || bus > MaxBusNumber {
				return errorutil.NewExitError(errorutil.CodeInvalidUsage,
					fmt.Errorf("--bus %d 超出总线号范围 0~%d", bus, MaxBusNumber))
			}
			acc, cleanup, err := opts.buildAccess()
			if err != nil {
				return err
			}
			defer cleanup()
			if opts.Remote == "" && opts.MockScenario == "" {
				logutil.Warn("总线映射只有在直接硬件访问下才完全可靠，sysfs 结果仅供参考")
			}
			raw := MapBuses(acc, bus)
			checked := Validate(raw)
			WriteBusSummary(checked, os.Stdout)
			if jsonFile != "" {
				data, err := BuildBusMapJSON(checked)
				if err != nil {
					return errorutil.NewExitError(errorutil.CodeInternalErr, err)
				}
				if err := os.WriteFile(jsonFile, data, 0644); err != nil {
					return errorutil.NewExitError(errorutil.CodeIOError, err)
				}
			}
			if n := checked.Anomalies(); n > 0 || checked.SoftErrors > 0 {
				return errorutil.NewExitError(errorutil.CodeAssertionFailed,
					fmt.Errorf("探测发现 %d 处声明异常，%d 次读失败", n, checked.SoftErrors))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&jsonFile, "json-file", "", "把总线映射报告保存为 JSON 文件")
	cmd.Flags().IntVar(&bus, "bus", -1, "只探测指定总线号(0~255)，缺省探测全部")
	return cmd
}
