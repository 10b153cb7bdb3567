package builtin

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
)

// UnsupportedPrefix 所有"语法合法但未实现"错误的统一前缀
const UnsupportedPrefix = "Used valid bash syntax not implemented: "

// Shell 内置命令可以访问的shell状态
type Shell interface {
	// ActiveDir 返回shell的当前目录（绝对路径）
	ActiveDir() (string, error)
	// Chdir 修改shell的当前目录，不影响进程目录
	Chdir(dir string) error
	HomeDir() (string, error)
	Code() int
	SetCode(code int)
	SetErrExit(on bool)
}

// CmdOut 内置命令的捕获输出
type CmdOut struct {
	Stdout string
	Stderr string
	Code   int
}

// BuiltinFunc 内置命令函数类型
type BuiltinFunc func(sh Shell, args []string) (CmdOut, error)

// ErrorKind 内置命令错误类型
type ErrorKind int

const (
	ErrorKindExit        ErrorKind = iota // exit 控制流信号，不是失败
	ErrorKindUnsupported                  // 未实现的功能
	ErrorKindInternal                     // 内部错误
)

// Error 内置命令返回的硬错误
// 参数错误不走这里，而是返回 Code 为1的 CmdOut
type Error struct {
	Kind    ErrorKind
	Message string
	Code    int // 仅 ErrorKindExit 使用
}

// Error 实现 error 接口
func (e *Error) Error() string {
	switch e.Kind {
	case ErrorKindExit:
		return fmt.Sprintf("exit %d", e.Code)
	case ErrorKindUnsupported:
		return UnsupportedPrefix + e.Message
	default:
		return e.Message
	}
}

func unsupported(format string, a ...any) error {
	return &Error{Kind: ErrorKindUnsupported, Message: fmt.Sprintf(format, a...)}
}

func internal(format string, a ...any) error {
	return &Error{Kind: ErrorKindInternal, Message: fmt.Sprintf(format, a...)}
}

// badCall 内置命令的误用，和真实shell一样只返回错误码1
func badCall(format string, a ...any) (CmdOut, error) {
	return CmdOut{Stderr: fmt.Sprintf(format, a...) + "\n", Code: 1}, nil
}

// Table 命令名到实现的映射
type Table map[string]BuiltinFunc

// Lookup 查找内置命令
func (t Table) Lookup(name string) (BuiltinFunc, bool) {
	fn, ok := t[name]
	return fn, ok
}

// Names 返回所有命令名
func (t Table) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	return names
}

var builtins = Table{
	"echo": Echo,
	"cd":   Cd,
	"pwd":  Pwd,
	"exit": Exit,
	"set":  Set,
}

// Default 返回内置命令表的副本，调用方可以在副本上增加命令
func Default() Table {
	return maps.Clone(builtins)
}

// Echo 打印参数
func Echo(sh Shell, args []string) (CmdOut, error) {
	newline := true
	i := 0
	for ; i < len(args); i++ {
		switch args[i] {
		case "-n":
			newline = false
			continue
		case "-e", "-E":
			return CmdOut{}, unsupported("echo: %s flag", args[i])
		}
		break
	}

	out := strings.Join(args[i:], " ")
	if newline {
		out += "\n"
	}
	return CmdOut{Stdout: out}, nil
}

// Pwd 打印shell当前目录
func Pwd(sh Shell, args []string) (CmdOut, error) {
	if len(args) > 0 {
		return CmdOut{}, unsupported("pwd: options or arguments")
	}
	dir, err := sh.ActiveDir()
	if err != nil {
		return CmdOut{}, internal("pwd: %v", err)
	}
	return CmdOut{Stdout: dir + "\n"}, nil
}

// Exit 记录退出码并通过 ErrorKindExit 通知外层停止执行
func Exit(sh Shell, args []string) (CmdOut, error) {
	code := sh.Code()
	switch len(args) {
	case 0:
	case 1:
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return badCall("exit: invalid number: %s", args[0])
		}
		code = n
	default:
		return badCall("exit: too many arguments")
	}

	sh.SetCode(code)
	return CmdOut{Code: code}, &Error{Kind: ErrorKindExit, Code: code}
}

// Set 只支持 set -e 和 set +e
func Set(sh Shell, args []string) (CmdOut, error) {
	if len(args) == 0 {
		return CmdOut{}, unsupported("set: listing variables")
	}
	if len(args) > 1 {
		return CmdOut{}, unsupported("set: positional parameters")
	}
	switch args[0] {
	case "-e":
		sh.SetErrExit(true)
	case "+e":
		sh.SetErrExit(false)
	default:
		return CmdOut{}, unsupported("set: option '%s', only 'set -e' and 'set +e' are supported", args[0])
	}
	return CmdOut{}, nil
}
