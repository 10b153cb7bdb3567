package shell

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"bashkit/internal/builtin"
	"bashkit/internal/executor"

	"github.com/chzyer/readline"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
	"mvdan.cc/sh/v3/syntax"
)

const historyLimit = 1000

// Options Shell配置
type Options struct {
	Dir         string
	Env         map[string]string
	Logger      *zap.Logger
	Stdin       io.Reader // 为空时使用 os.Stdin
	Stdout      io.Writer // 为空时使用 os.Stdout
	Stderr      io.Writer // 为空时使用 os.Stderr
	HistoryFile string    // 为空时使用 ~/.bashkit_history
}

// Shell 交互式shell和脚本执行入口
type Shell struct {
	exec        *executor.Shell
	builtins    builtin.Table
	history     *History
	reporter    *ErrorReporter
	stdin       io.Reader
	stdout      io.Writer
	stderr      io.Writer
	historyFile string
	log         *zap.Logger
}

// New 创建新的Shell实例
func New(opts Options) *Shell {
	s := &Shell{
		history:     NewHistory(historyLimit),
		stdin:       opts.Stdin,
		stdout:      opts.Stdout,
		stderr:      opts.Stderr,
		historyFile: opts.HistoryFile,
		log:         opts.Logger,
	}
	if s.stdin == nil {
		s.stdin = os.Stdin
	}
	if s.stdout == nil {
		s.stdout = os.Stdout
	}
	if s.stderr == nil {
		s.stderr = os.Stderr
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.historyFile == "" {
		if path, err := homedir.Expand("~/.bashkit_history"); err == nil {
			s.historyFile = path
		}
	}
	s.reporter = NewErrorReporter(s.stderr, "")

	s.builtins = builtin.Default()
	s.builtins["history"] = s.history.Builtin()
	s.exec = executor.New(executor.Options{
		Dir:      opts.Dir,
		Env:      opts.Env,
		Builtins: s.builtins,
		Logger:   s.log,
	})
	return s
}

// Code 返回最近一条命令的退出码
func (s *Shell) Code() int {
	return s.exec.Code()
}

// Run 运行交互式Shell，返回退出码
func (s *Shell) Run() int {
	if s.historyFile != "" {
		if err := s.history.LoadFromFile(s.historyFile); err != nil {
			s.log.Debug("loading history failed", zap.Error(err))
		}
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          s.prompt(),
		HistoryFile:     s.historyFile,
		HistoryLimit:    historyLimit,
		AutoComplete:    NewCompleter(s),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		// readline 不可用时回退到逐行读取
		s.log.Debug("readline unavailable", zap.Error(err))
		return s.runSimple()
	}
	defer rl.Close()

	var pending []string
	for !s.exec.Exited() {
		if len(pending) == 0 {
			rl.SetPrompt(s.prompt())
		} else {
			rl.SetPrompt("> ")
		}

		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				pending = nil
				continue
			}
			// EOF或其他错误，退出
			break
		}

		pending = append(pending, line)
		src := strings.Join(pending, "\n")
		if incomplete(src) {
			continue
		}
		pending = nil
		s.executeLine(src)
	}
	return s.exec.Code()
}

// runSimple 简单的运行模式（当readline不可用时回退）
func (s *Shell) runSimple() int {
	scanner := bufio.NewScanner(s.stdin)
	var pending []string

	for !s.exec.Exited() {
		if len(pending) == 0 {
			fmt.Fprint(s.stdout, s.prompt())
		} else {
			fmt.Fprint(s.stdout, "> ")
		}
		if !scanner.Scan() {
			break
		}

		pending = append(pending, scanner.Text())
		src := strings.Join(pending, "\n")
		if incomplete(src) {
			continue
		}
		pending = nil
		s.executeLine(src)
	}

	if s.historyFile != "" {
		if err := s.history.SaveToFile(s.historyFile); err != nil {
			s.log.Debug("saving history failed", zap.Error(err))
		}
	}
	return s.exec.Code()
}

// executeLine 执行交互输入的一条命令，错误只报告不退出
func (s *Shell) executeLine(src string) {
	if strings.TrimSpace(src) == "" {
		return
	}
	s.history.Add(src)
	if _, err := s.run(src); err != nil {
		s.reporter.Report(err)
	}
}

// ExecuteScript 执行脚本文件，返回退出码
func (s *Shell) ExecuteScript(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 1, fmt.Errorf("无法打开脚本文件: %w", err)
	}
	defer file.Close()

	s.reporter.SetScript(path)
	return s.ExecuteReader(file)
}

// ExecuteReader 把Reader的全部内容作为一条命令执行
func (s *Shell) ExecuteReader(r io.Reader) (int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 1, err
	}
	return s.run(string(data))
}

// ExecuteString 执行一段命令字符串
func (s *Shell) ExecuteString(src string) (int, error) {
	return s.run(src)
}

// run 执行命令并把输出写到Shell的stdout和stderr
// 出错时返回错误对应的退出码
func (s *Shell) run(src string) (int, error) {
	records, err := s.exec.RunBatch([]string{src})
	for _, rec := range records {
		io.WriteString(s.stdout, rec.Stdout)
		io.WriteString(s.stderr, rec.Stderr)
	}
	if err != nil {
		return ExitCode(err), err
	}
	return s.exec.Code(), nil
}

// Report 按当前模式格式化并输出错误
func (s *Shell) Report(err error) {
	s.reporter.Report(err)
}

// incomplete 输入是否还需要更多行才能解析，如未闭合的引号或以 && 结尾
func incomplete(src string) bool {
	_, err := syntax.NewParser(syntax.Variant(syntax.LangPOSIX)).Parse(strings.NewReader(src), "")
	return err != nil && syntax.IsIncomplete(err)
}

// prompt 获取提示符
func (s *Shell) prompt() string {
	username := os.Getenv("USER")
	if username == "" {
		username = os.Getenv("USERNAME")
	}
	if username == "" {
		username = "user"
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "host"
	}

	wd, err := s.exec.ActiveDir()
	if err != nil {
		wd = "?"
	}
	if home, err := homedir.Dir(); err == nil && home != "" && (wd == home || strings.HasPrefix(wd, home+string(filepath.Separator))) {
		wd = "~" + strings.TrimPrefix(wd, home)
	}
	// 统一使用正斜杠显示
	wd = strings.ReplaceAll(wd, "\\", "/")

	return fmt.Sprintf("%s@%s:%s$ ", username, hostname, wd)
}
