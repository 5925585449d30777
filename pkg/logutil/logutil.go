package logutil

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"sync"

	"pci_tool/pkg/toolutil"
)

// 定义日志级别
const (
	DEBUG = iota // 0
	INFO         // 1
	WARN         // 2
	ERROR        // 3
)

// 定义日志级别映射字符串
var LOG_LEVELS = map[string]int{
	"DEBUG": DEBUG,
	"INFO":  INFO,
	"WARN":  WARN,
	"ERROR": ERROR,
}

var (
	logger       *log.Logger
	logFile      *os.File
	once         sync.Once
	currentLevel = INFO // 默认日志级别
)

// InitLogger 初始化日志，允许指定输出目标（stderr 或 文件）
// 诊断输出走日志，设备列表和树走标准输出，两股流不混
func InitLogger(output string, level int) {
	once.Do(func() {
		var err error
		if output == "stderr" {
			logFile = os.Stderr
		} else {
			logFile, err = os.OpenFile(
				// 以追加模式打开日志文件，不会覆盖已有内容
				output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err != nil {
				log.Fatal("无法创建日志文件:", err)
			}
		}
		logger = log.New(logFile, "", log.LstdFlags)
		currentLevel = level // 设置日志级别
	})
}

// logMessage 记录日志，**仅输出符合当前级别的日志**
func logMessage(level int, msg string, args ...any) {
	if logger == nil {
		InitLogger("stderr", INFO) // 默认输出到标准错误
	}
	if level >= currentLevel { // 值越小打印得越多
		_, file, line, _ := runtime.Caller(2) // 获取真正调用的文件+行号
		relPath := toolutil.TrimToProjectPath(file)

		formattedMsg := fmt.Sprintf(msg, args...)
		logger.Printf("[%s:%d] %s", relPath, line, formattedMsg)
	}
}

// 设置日志级别
func SetLogLevel(level int) {
	currentLevel = level
}

// Info 记录 INFO 日志
func Info(msg string, args ...any) {
	logMessage(INFO, "[INFO] "+msg, args...)
}

// Warn 记录 WARN 日志
func Warn(msg string, args ...any) {
	logMessage(WARN, "[WARN] "+msg, args...)
}

// Error 记录 ERROR 日志，附带完整调用堆栈
func Error(msg string, args ...any) {
	size := 1024 // 初始缓冲区大小
	for {
		// 在堆上分配内存
		buf := make([]byte, size)
		n := runtime.Stack(buf, false)

		if n < size { // 如果数据小于缓冲区，则不需要扩展
			logMessage(
				ERROR, "[ERR] "+msg+"\n调用堆栈:\n"+string(buf[:n]), args...)
			return
		}

		// 扩展缓冲区大小，倍增策略
		size *= 2
	}
}

// Debug 记录 DEBUG 日志
func Debug(msg string, args ...any) {
	logMessage(DEBUG, "[DBG] "+msg, args...)
}

// 关闭日志文件（如果有的话）
func CloseLogger() error {
	if logFile != nil && logFile != os.Stderr {
		err := logFile.Close()
		if err != nil {
			return err
		}
	}

	return nil
}
