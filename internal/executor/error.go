package executor

import (
	"errors"
	"fmt"

	"bashkit/internal/builtin"
)

// ErrorKind 执行器错误类型
type ErrorKind int

const (
	ErrorKindSyntax      ErrorKind = iota // 解析失败
	ErrorKindUnsupported                  // 语法合法但未实现
	ErrorKindNoHomeDir                    // 无法确定home目录
	ErrorKindInternal                     // 不应发生的内部错误
	ErrorKindExit                         // exit 控制流信号
)

// String 返回错误类型名
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindSyntax:
		return "SyntaxError"
	case ErrorKindUnsupported:
		return "FeatureUnsupported"
	case ErrorKindNoHomeDir:
		return "NoHomeDirectory"
	case ErrorKindInternal:
		return "InternalError"
	case ErrorKindExit:
		return "Exit"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// ShellError 表示shell执行中的错误
type ShellError struct {
	Kind    ErrorKind
	Message string
	Code    int   // 仅 ErrorKindExit 使用
	Err     error // 原始错误（如果可用）
}

// Error 实现 error 接口
func (e *ShellError) Error() string {
	var msg string
	switch e.Kind {
	case ErrorKindSyntax:
		msg = "couldn't parse bash script"
		if e.Message != "" {
			msg = fmt.Sprintf("%s: %s", msg, e.Message)
		}
	case ErrorKindUnsupported:
		msg = builtin.UnsupportedPrefix + e.Message
	case ErrorKindNoHomeDir:
		msg = "couldn't find home directory"
	case ErrorKindExit:
		msg = fmt.Sprintf("exit %d", e.Code)
	default:
		msg = e.Message
	}

	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap 返回原始错误
func (e *ShellError) Unwrap() error {
	return e.Err
}

// KindOf 返回错误链中第一个 ShellError 的类型
func KindOf(err error) (ErrorKind, bool) {
	var se *ShellError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}

func unsupported(format string, a ...any) *ShellError {
	return &ShellError{Kind: ErrorKindUnsupported, Message: fmt.Sprintf(format, a...)}
}

func internalError(err error, format string, a ...any) *ShellError {
	return &ShellError{Kind: ErrorKindInternal, Message: fmt.Sprintf(format, a...), Err: err}
}

// fromBuiltin 把内置命令错误转换为执行器错误
func fromBuiltin(err error) *ShellError {
	var be *builtin.Error
	if !errors.As(err, &be) {
		return internalError(err, "builtin failed")
	}
	switch be.Kind {
	case builtin.ErrorKindExit:
		return &ShellError{Kind: ErrorKindExit, Code: be.Code}
	case builtin.ErrorKindUnsupported:
		return &ShellError{Kind: ErrorKindUnsupported, Message: be.Message}
	default:
		return &ShellError{Kind: ErrorKindInternal, Message: be.Message}
	}
}
