package main

import (
	"fmt"
	"os"

	"pci_tool/pkg/errorutil"
	"pci_tool/pkg/hw/pci"
	"pci_tool/pkg/logutil"

	"github.com/spf13/cobra"
)

const TOOL_VERSION = "1.0.0+20260826"

func main() {
	var rootCmd = &cobra.Command{
		Use:   "gopci",
		Short: fmt.Sprintf("Gopci v%s PCI 总线拓扑重建与一致性检查工具", TOOL_VERSION),
		Long: "        ____   ____ ___ \n" +
			"  __ _ |  _ \\ / ___|_ _|\n" +
			" / _` || |_) | |    | | \n" +
			"| (_| ||  __/| |___ | | \n" +
			" \\__, ||_|    \\____|___|\n" +
			" |___/                  \n" +
			fmt.Sprintf("\nGopci v%s PCI 总线拓扑重建与一致性检查工具，支持 list/tree/map 子命令\n", TOOL_VERSION),
	}

	rootCmd.AddCommand(pci.PCICmd())
	var logFile string
	var logLevel string

	// 定义全局flag(屁股后面带P的函数才支持短选项)
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "e", "WARN", "日志等级(DEBUG/INFO/WARN/ERROR)")
	rootCmd.PersistentFlags().StringVarP(&logFile, "log-file", "l", "stderr", "日志文件名(默认 stderr 表示标准错误)")
	// 阻止 Cobra 在命令参数错误时输出帮助
	rootCmd.SilenceUsage = true
	// 阻止Cobra自动打印RunE返回的错误内容
	rootCmd.SilenceErrors = true

	// 等待Cobra的flag解析完成后
	// PersistentPreRunE 回调，这个钩子会在用户的命令解析完成、flag 值填充后执行
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level, ok := logutil.LOG_LEVELS[logLevel]
		if !ok {
			return errorutil.NewExitErrorWithMessage(errorutil.CodeInvalidUsage,
				fmt.Sprintf("非法日志等级: %s", logLevel), nil)
		}
		logutil.InitLogger(logFile, level)
		return nil
	}

	if err := rootCmd.Execute(); err != nil {
		logutil.Error("命令执行失败: %v", err)
		logutil.CloseLogger()
		os.Exit(errorutil.ExitCodeFromError(err))
	}

	// 不要用defer，因为defer是在函数返回前执行的，而不是os.Exit()执行前执行
	logutil.CloseLogger()
	os.Exit(errorutil.CodeSuccess)
}
