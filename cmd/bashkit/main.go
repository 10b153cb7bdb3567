package main

import (
	"flag"
	"fmt"
	"os"

	"bashkit/internal/shell"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/term"
)

func main() {
	os.Exit(run())
}

func run() int {
	var envFiles []string
	command := flag.String("c", "", "执行命令字符串")
	scriptFile := flag.String("f", "", "执行脚本文件")
	dir := flag.String("C", "", "初始工作目录")
	verbose := flag.Bool("v", false, "输出调试日志")
	flag.Func("env-file", "从dotenv文件加载变量，可重复", func(path string) error {
		envFiles = append(envFiles, path)
		return nil
	})
	flag.Parse()

	logger := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "bashkit: %v\n", err)
			return 1
		}
		logger = l
		defer logger.Sync()
	}

	var env map[string]string
	if len(envFiles) > 0 {
		loaded, err := godotenv.Read(envFiles...)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bashkit: %v\n", err)
			return 1
		}
		env = loaded
	}

	sh := shell.New(shell.Options{
		Dir:    *dir,
		Env:    env,
		Logger: logger,
	})
	finish := func(code int, err error) int {
		if err != nil {
			sh.Report(err)
		}
		return code
	}

	// 执行命令字符串
	if *command != "" {
		return finish(sh.ExecuteString(*command))
	}

	// 执行脚本文件：-f 或第一个位置参数
	path := *scriptFile
	if path == "" && flag.NArg() > 0 {
		path = flag.Arg(0)
	}
	if path != "" {
		return finish(sh.ExecuteScript(path))
	}

	// stdin 不是终端时把它当作脚本读取
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return finish(sh.ExecuteReader(os.Stdin))
	}

	// 交互式模式
	return sh.Run()
}
