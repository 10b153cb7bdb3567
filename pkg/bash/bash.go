// Package bash 提供一个可嵌入的POSIX子集shell解释器
//
// 支持管道、&& / ||、! 取反、子shell、命令替换、变量、~ 展开、
// 重定向（> >> < >& <&）和内置命令 echo/cd/pwd/exit/set。
// 不支持的语法会返回 ErrFeatureUnsupported，而不是静默忽略。
package bash

import (
	"fmt"
	"maps"

	"bashkit/internal/builtin"
	"bashkit/internal/executor"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Bash 命令构建器，可以重复调用 Run
type Bash struct {
	cmds     []string
	dir      string
	env      map[string]string
	envFiles []string
	logger   *zap.Logger
	builtins builtin.Table
}

// New 创建构建器
func New(cmds ...string) *Bash {
	return &Bash{
		cmds: cmds,
		env:  make(map[string]string),
	}
}

// Execute 在进程当前目录执行命令
func Execute(cmds ...string) (*BashOut, error) {
	return New(cmds...).Run()
}

// Cmd 追加一条顶层命令，每条命令可以包含多行
func (b *Bash) Cmd(cmd string) *Bash {
	b.cmds = append(b.cmds, cmd)
	return b
}

// Chdir 设置初始目录
func (b *Bash) Chdir(dir string) *Bash {
	b.dir = dir
	return b
}

// Env 设置shell变量，同时传给子进程
func (b *Bash) Env(key, value string) *Bash {
	b.env[key] = value
	return b
}

// EnvFile 从dotenv文件加载变量，Env 设置的同名变量优先
func (b *Bash) EnvFile(path string) *Bash {
	b.envFiles = append(b.envFiles, path)
	return b
}

// Logger 设置调试日志
func (b *Bash) Logger(l *zap.Logger) *Bash {
	b.logger = l
	return b
}

func (b *Bash) withBuiltins(t builtin.Table) *Bash {
	b.builtins = t
	return b
}

// options 合并dotenv文件和 Env 设置的变量
func (b *Bash) options() (executor.Options, error) {
	env := make(map[string]string)
	if len(b.envFiles) > 0 {
		loaded, err := godotenv.Read(b.envFiles...)
		if err != nil {
			return executor.Options{}, fmt.Errorf("loading env files: %w", err)
		}
		maps.Copy(env, loaded)
	}
	maps.Copy(env, b.env)
	return executor.Options{
		Dir:      b.dir,
		Env:      env,
		Builtins: b.builtins,
		Logger:   b.logger,
	}, nil
}

// Run 执行所有命令
// 语法错误、未实现功能和内部错误返回 *BashError，其中带有已经尝试的命令；
// 命令本身的非零退出码不是错误，用 BashOut.Code 或 BashOut.Check 判断
func (b *Bash) Run() (*BashOut, error) {
	opts, err := b.options()
	if err != nil {
		return nil, &BashError{Kind: ErrInternal, Err: err}
	}

	sh := executor.New(opts)
	records, err := sh.RunBatch(b.cmds)
	out := &BashOut{results: make([]CmdResult, 0, len(records))}
	for _, r := range records {
		out.results = append(out.results, CmdResult(r))
	}
	if err != nil {
		return out, newBashError(err, out)
	}
	return out, nil
}
