package shell

import (
	"fmt"
	"io"

	"bashkit/internal/executor"
)

// ErrorReporter 错误报告器
type ErrorReporter struct {
	w          io.Writer
	scriptPath string // 脚本文件路径（如果是在执行脚本）
}

// NewErrorReporter 创建新的错误报告器
func NewErrorReporter(w io.Writer, scriptPath string) *ErrorReporter {
	return &ErrorReporter{w: w, scriptPath: scriptPath}
}

// SetScript 设置错误消息中显示的脚本路径
func (er *ErrorReporter) SetScript(path string) {
	er.scriptPath = path
}

// Report 输出错误并返回对应的退出码
func (er *ErrorReporter) Report(err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintln(er.w, er.Format(err))
	return ExitCode(err)
}

// Format 格式化错误消息，参考 bash 的格式：bashkit: 文件名: 错误消息
func (er *ErrorReporter) Format(err error) string {
	prefix := "bashkit"
	if er.scriptPath != "" {
		prefix = fmt.Sprintf("bashkit: %s", er.scriptPath)
	}

	kind, ok := executor.KindOf(err)
	if !ok {
		return fmt.Sprintf("%s: %v", prefix, err)
	}
	switch kind {
	case executor.ErrorKindSyntax:
		return fmt.Sprintf("%s: syntax error: %v", prefix, err)
	case executor.ErrorKindInternal:
		return fmt.Sprintf("%s: internal error: %v", prefix, err)
	default:
		return fmt.Sprintf("%s: %v", prefix, err)
	}
}

// ExitCode 错误对应的退出码，语法错误为2，其余为1
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if kind, ok := executor.KindOf(err); ok && kind == executor.ErrorKindSyntax {
		return 2
	}
	return 1
}
