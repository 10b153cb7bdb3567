package builtin

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"bashkit/pkg/platform"
)

// Cd 改变shell的当前目录
// 目标取最后一个非选项参数，没有时切换到home目录
// -L 按逻辑路径处理（默认），-P 先解析符号链接，-e 被接受但忽略
func Cd(sh Shell, args []string) (CmdOut, error) {
	last := len(args) - 1
	physical := false
	for i, arg := range args {
		if i == last && !strings.HasPrefix(arg, "-") {
			break
		}
		switch arg {
		case "-L":
			physical = false
		case "-P":
			physical = true
		case "-e":
		case "-@":
			return CmdOut{}, unsupported("cd: -@ option")
		default:
			if strings.HasPrefix(arg, "-") {
				return badCall("cd: invalid option: %s", arg)
			}
			return badCall("cd: too many arguments")
		}
	}

	var target string
	if last >= 0 && !strings.HasPrefix(args[last], "-") {
		target = args[last]
	} else {
		home, err := sh.HomeDir()
		if err != nil {
			return badCall("cd: failed to get home directory")
		}
		target = home
	}

	base, err := sh.ActiveDir()
	if err != nil {
		return CmdOut{}, internal("cd: %v", err)
	}

	var dir string
	if physical {
		dir, err = platform.CanonicalPath(base, target)
	} else {
		dir, err = platform.NormalizePath(base, target)
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return badCall("cd: no such file or directory: %s", target)
		}
		return CmdOut{}, internal("cd: %v", err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return badCall("cd: no such file or directory: %s", target)
		}
		return badCall("cd: %s: %v", target, err)
	}
	if !info.IsDir() {
		return badCall("cd: not a directory: %s", target)
	}

	if err := sh.Chdir(dir); err != nil {
		return CmdOut{}, internal("cd: %v", err)
	}
	return CmdOut{}, nil
}
