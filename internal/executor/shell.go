package executor

import (
	"errors"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"bashkit/internal/builtin"
	"bashkit/pkg/platform"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
	"mvdan.cc/sh/v3/syntax"
)

// Options 创建shell时的配置
type Options struct {
	Dir      string            // 初始目录，为空时使用进程当前目录
	Env      map[string]string // 初始shell变量
	Builtins builtin.Table     // 为空时使用 builtin.Default()
	Logger   *zap.Logger
}

// Record 一条顶层命令的执行记录
type Record struct {
	Command string
	Code    int
	Stdout  string
	Stderr  string
}

// Shell 一个shell作用域的全部状态
// 子shell和命令替换通过 child 复制变量和目录，不共享可变状态
type Shell struct {
	dir      string
	vars     map[string]string
	errExit  bool
	code     int
	exited   bool
	stdout   strings.Builder
	stderr   strings.Builder
	builtins builtin.Table
	log      *zap.Logger
}

// New 创建顶层shell，默认开启 set -e
func New(opts Options) *Shell {
	s := &Shell{
		vars:     make(map[string]string, len(opts.Env)),
		errExit:  true,
		builtins: opts.Builtins,
		log:      opts.Logger,
	}
	maps.Copy(s.vars, opts.Env)
	if opts.Dir != "" {
		// 相对目录以进程当前目录为基准，shell记录的目录总是绝对路径
		if abs, err := platform.NormalizePath("", opts.Dir); err == nil {
			s.dir = abs
		} else {
			s.dir = filepath.Clean(opts.Dir)
		}
	}
	if s.builtins == nil {
		s.builtins = builtin.Default()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.log = s.log.Named("executor")
	return s
}

// child 创建继承变量和目录副本的子shell
func (s *Shell) child() *Shell {
	return &Shell{
		dir:      s.dir,
		vars:     maps.Clone(s.vars),
		errExit:  s.errExit,
		builtins: s.builtins,
		log:      s.log,
	}
}

// ActiveDir 返回shell的当前目录
func (s *Shell) ActiveDir() (string, error) {
	if s.dir != "" {
		return s.dir, nil
	}
	return platform.Getwd()
}

// Chdir 只修改shell记录的目录
func (s *Shell) Chdir(dir string) error {
	abs, err := platform.NormalizePath(s.dir, dir)
	if err != nil {
		return err
	}
	s.log.Debug("chdir", zap.String("dir", abs))
	s.dir = abs
	return nil
}

// homeDir 查找home目录，测试中可替换
var homeDir = homedir.Dir

// HomeDir 返回用户home目录
func (s *Shell) HomeDir() (string, error) {
	home, err := homeDir()
	if err != nil {
		return "", err
	}
	if home == "" {
		return "", errors.New("home directory is empty")
	}
	return home, nil
}

func (s *Shell) Code() int          { return s.code }
func (s *Shell) SetCode(code int)   { s.code = code }
func (s *Shell) SetErrExit(on bool) { s.errExit = on }

// ErrExit 返回 set -e 是否开启
func (s *Shell) ErrExit() bool { return s.errExit }

// Exited 返回最近一次 RunBatch 是否因 exit 结束
func (s *Shell) Exited() bool { return s.exited }

// Var 查找变量，先查shell变量，再查进程环境
func (s *Shell) Var(name string) (string, bool) {
	if v, ok := s.vars[name]; ok {
		return v, true
	}
	return os.LookupEnv(name)
}

// VarNames 返回shell变量名，已排序，不含进程环境
func (s *Shell) VarNames() []string {
	return slices.Sorted(maps.Keys(s.vars))
}

func (s *Shell) setVar(name, value string) {
	s.log.Debug("set variable", zap.String("name", name))
	s.vars[name] = value
}

// environ 返回子进程环境：进程环境 + shell变量 + 命令前缀赋值
func (s *Shell) environ(overlay []string) []string {
	env := os.Environ()
	for _, name := range s.VarNames() {
		env = append(env, name+"="+s.vars[name])
	}
	return append(env, overlay...)
}

// takeOutput 取出并清空本次捕获的输出
func (s *Shell) takeOutput() (string, string) {
	stdout, stderr := s.stdout.String(), s.stderr.String()
	s.stdout.Reset()
	s.stderr.Reset()
	return stdout, stderr
}

// RunBatch 依次执行每条顶层命令并返回执行记录
// 语法错误和未实现功能会中止整批命令；set -e 下非零退出码或 exit 也会停止后续命令
func (s *Shell) RunBatch(cmds []string) ([]Record, error) {
	s.exited = false
	records := make([]Record, 0, len(cmds))
	for _, cmd := range cmds {
		records = append(records, Record{Command: cmd, Code: s.code})
		s.log.Debug("running command", zap.String("cmd", cmd))

		err := s.Execute(cmd)

		rec := &records[len(records)-1]
		rec.Stdout, rec.Stderr = s.takeOutput()
		rec.Code = s.code
		if err != nil {
			s.log.Debug("command failed", zap.String("cmd", cmd), zap.Error(err))
			return records, err
		}
		if s.exited {
			s.log.Debug("exit builtin ended the batch", zap.Int("code", s.code))
			break
		}
		if s.errExit && s.code != 0 {
			s.log.Debug("set -e halted the batch", zap.Int("code", s.code))
			break
		}
	}
	return records, nil
}

// Execute 解析并执行一段脚本，输出累积在shell的缓冲区中
func (s *Shell) Execute(src string) error {
	parser := syntax.NewParser(syntax.Variant(syntax.LangPOSIX))
	file, err := parser.Parse(strings.NewReader(src), "")
	if err != nil {
		return &ShellError{Kind: ErrorKindSyntax, Err: err}
	}
	return s.runStmts(file.Stmts)
}

// runStmts 执行语句列表，exit 在这里被捕获
func (s *Shell) runStmts(stmts []*syntax.Stmt) error {
	for _, stmt := range stmts {
		err := s.runChain(stmt)
		if err != nil {
			if kind, _ := KindOf(err); kind == ErrorKindExit {
				s.exited = true
				return nil
			}
			return err
		}
		if s.errExit && s.code != 0 {
			return nil
		}
	}
	return nil
}

type chainLink struct {
	op   syntax.BinCmdOperator
	stmt *syntax.Stmt
}

// flattenChain 把 && / || 链展开为首条命令加后续链接
func flattenChain(stmt *syntax.Stmt) (*syntax.Stmt, []chainLink) {
	bc, ok := stmt.Cmd.(*syntax.BinaryCmd)
	if !ok || stmt.Negated || len(stmt.Redirs) > 0 || (bc.Op != syntax.AndStmt && bc.Op != syntax.OrStmt) {
		return stmt, nil
	}
	first, links := flattenChain(bc.X)
	yFirst, yLinks := flattenChain(bc.Y)
	links = append(links, chainLink{op: bc.Op, stmt: yFirst})
	return first, append(links, yLinks...)
}

// runChain 执行一条顶层语句，按上一条的退出码决定 && / || 是否继续
func (s *Shell) runChain(stmt *syntax.Stmt) error {
	if stmt.Background || stmt.Coprocess {
		return unsupported("background jobs ('&')")
	}
	first, links := flattenChain(stmt)
	if err := s.runListable(first); err != nil {
		return err
	}
	for _, link := range links {
		if (link.op == syntax.AndStmt) != (s.code == 0) {
			continue
		}
		if err := s.runListable(link.stmt); err != nil {
			return err
		}
	}
	return nil
}

// flattenPipe 把管道展开为阶段语句
func flattenPipe(stmt *syntax.Stmt) ([]*syntax.Stmt, error) {
	bc, ok := stmt.Cmd.(*syntax.BinaryCmd)
	if !ok || len(stmt.Redirs) > 0 {
		return []*syntax.Stmt{stmt}, nil
	}
	switch bc.Op {
	case syntax.Pipe:
	case syntax.PipeAll:
		return nil, unsupported("piping stderr with '|&'")
	default:
		return []*syntax.Stmt{stmt}, nil
	}
	left, err := flattenPipe(bc.X)
	if err != nil {
		return nil, err
	}
	right, err := flattenPipe(bc.Y)
	if err != nil {
		return nil, err
	}
	return append(left, right...), nil
}

// runListable 执行单条命令或管道，处理 ! 取反
func (s *Shell) runListable(stmt *syntax.Stmt) error {
	if stmt.Background || stmt.Coprocess {
		return unsupported("background jobs ('&')")
	}
	elems, err := flattenPipe(stmt)
	if err != nil {
		return err
	}

	p := &pipeline{negate: stmt.Negated}
	defer p.close()
	for i, el := range elems {
		if i > 0 && el.Negated {
			return unsupported("negation inside a pipeline")
		}
		st, err := s.buildStage(el)
		if err != nil {
			return err
		}
		p.stages = append(p.stages, st)
	}
	return p.run(s)
}

// runSubshell 在子shell中执行语句，子shell的 stderr 并入当前shell
func (s *Shell) runSubshell(stmts []*syntax.Stmt) (string, int, error) {
	s.log.Debug("entering subshell")
	child := s.child()
	err := child.runStmts(stmts)
	s.stderr.WriteString(child.stderr.String())
	if err != nil {
		return "", 0, err
	}
	return child.stdout.String(), child.code, nil
}
