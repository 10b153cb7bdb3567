package executor

import (
	"os"
	"slices"
	"strings"

	"bashkit/internal/builtin"
	"bashkit/pkg/platform"

	"go.uber.org/zap"
	"mvdan.cc/sh/v3/syntax"
)

type stageKind int

const (
	stageBuiltin  stageKind = iota // 内置命令
	stageExternal                  // 外部进程
	stageOutput                    // 预先算好的输出（子shell结果）
	stageNoop                      // 只有赋值或重定向
)

type destKind int

const (
	destStdout destKind = iota // 管道下一阶段或shell的stdout
	destStderr                 // shell的stderr
	destNull
	destFile
)

// dest 一个输出fd的去向
type dest struct {
	kind destKind
	file *os.File
}

// stage 管道中的一个阶段
type stage struct {
	kind   stageKind
	args   []string
	env    []string // 命令前缀赋值，只对本阶段生效
	fn     builtin.BuiltinFunc
	output string // stageOutput 的输出
	code   int    // stageOutput 的退出码
	stdin  *string
	fds    [3]dest
	files  []*os.File
	failed error // 重定向打开失败，阶段不执行
}

func newStage(kind stageKind) *stage {
	st := &stage{kind: kind}
	st.fds[1] = dest{kind: destStdout}
	st.fds[2] = dest{kind: destStderr}
	return st
}

func (st *stage) name() string {
	switch st.kind {
	case stageOutput:
		return "(subshell)"
	case stageNoop:
		return "(noop)"
	default:
		return st.args[0]
	}
}

func (st *stage) close() {
	for _, f := range st.files {
		f.Close()
	}
	st.files = nil
}

// buildStage 把一条语句转换为管道阶段
func (s *Shell) buildStage(stmt *syntax.Stmt) (*stage, error) {
	if stmt.Background || stmt.Coprocess {
		return nil, unsupported("background jobs ('&')")
	}

	switch cmd := stmt.Cmd.(type) {
	case nil:
		st := newStage(stageNoop)
		return st, s.applyRedirects(st, stmt.Redirs)
	case *syntax.CallExpr:
		return s.buildCall(cmd, stmt.Redirs)
	case *syntax.Subshell:
		out, code, err := s.runSubshell(cmd.Stmts)
		if err != nil {
			return nil, err
		}
		st := newStage(stageOutput)
		st.output, st.code = out, code
		return st, s.applyRedirects(st, stmt.Redirs)
	case *syntax.Block:
		return nil, unsupported("brace groups ('{ ...; }')")
	case *syntax.IfClause:
		return nil, unsupported("if statements")
	case *syntax.WhileClause:
		if cmd.Until {
			return nil, unsupported("until loops")
		}
		return nil, unsupported("while loops")
	case *syntax.ForClause:
		return nil, unsupported("for loops")
	case *syntax.CaseClause:
		return nil, unsupported("case statements")
	case *syntax.FuncDecl:
		return nil, unsupported("function definitions")
	case *syntax.ArithmCmd:
		return nil, unsupported("arithmetic commands ('(( ))')")
	case *syntax.TestClause:
		return nil, unsupported("test expressions ('[[ ]]')")
	case *syntax.DeclClause:
		return nil, unsupported("declaration builtins")
	case *syntax.LetClause:
		return nil, unsupported("let")
	case *syntax.TimeClause:
		return nil, unsupported("time")
	case *syntax.CoprocClause:
		return nil, unsupported("coprocesses")
	case *syntax.BinaryCmd:
		return nil, unsupported("command lists inside a pipeline")
	default:
		return nil, unsupported("command %T", cmd)
	}
}

// callItem 按源码位置合并的参数或重定向
type callItem struct {
	offset uint
	word   *syntax.Word
	redir  *syntax.Redirect
}

// buildCall 构建简单命令阶段
// 参数和重定向按出现顺序处理，重定向作用于它所在的命令
func (s *Shell) buildCall(call *syntax.CallExpr, redirs []*syntax.Redirect) (*stage, error) {
	var assigns []string
	for _, as := range call.Assigns {
		switch {
		case as.Append:
			return nil, unsupported("appending assignments ('+=')")
		case as.Array != nil:
			return nil, unsupported("arrays")
		case as.Index != nil:
			return nil, unsupported("array indexing")
		}
		value, err := s.evalWord(as.Value)
		if err != nil {
			return nil, err
		}
		assigns = append(assigns, as.Name.Value+"="+value)
	}

	items := make([]callItem, 0, len(call.Args)+len(redirs))
	for _, w := range call.Args {
		items = append(items, callItem{offset: w.Pos().Offset(), word: w})
	}
	for _, r := range redirs {
		items = append(items, callItem{offset: r.Pos().Offset(), redir: r})
	}
	slices.SortStableFunc(items, func(a, b callItem) int {
		return int(a.offset) - int(b.offset)
	})

	st := newStage(stageNoop)
	for _, item := range items {
		if item.redir != nil {
			if err := s.applyRedirect(st, item.redir); err != nil {
				st.close()
				return nil, err
			}
			if st.failed != nil {
				break
			}
			continue
		}
		arg, keep, err := s.expandArg(item.word)
		if err != nil {
			st.close()
			return nil, err
		}
		if keep {
			st.args = append(st.args, arg)
		}
	}

	if len(st.args) == 0 {
		if st.failed == nil {
			for _, kv := range assigns {
				name, value, _ := strings.Cut(kv, "=")
				s.setVar(name, value)
			}
		}
		return st, nil
	}

	st.env = assigns
	if fn, ok := s.builtins.Lookup(st.args[0]); ok {
		st.kind, st.fn = stageBuiltin, fn
	} else {
		st.kind = stageExternal
	}
	s.log.Debug("stage", zap.String("name", st.args[0]), zap.Strings("args", st.args[1:]))
	return st, nil
}

// expandArg 展开一个参数；不含引号且展开为空的参数被丢弃
func (s *Shell) expandArg(w *syntax.Word) (string, bool, error) {
	arg, err := s.evalWord(w)
	if err != nil {
		return "", false, err
	}
	if arg != "" {
		return arg, true, nil
	}
	for _, part := range w.Parts {
		switch part.(type) {
		case *syntax.SglQuoted, *syntax.DblQuoted:
			return arg, true, nil
		}
	}
	return arg, false, nil
}

func (s *Shell) applyRedirects(st *stage, redirs []*syntax.Redirect) error {
	for _, r := range redirs {
		if err := s.applyRedirect(st, r); err != nil {
			st.close()
			return err
		}
		if st.failed != nil {
			break
		}
	}
	return nil
}

// resolveCommand 相对路径的命令相对shell目录解析
func (s *Shell) resolveCommand(name string) (string, error) {
	if platform.IsAbsolute(name) || !strings.ContainsAny(name, `/\`) {
		return name, nil
	}
	dir, err := s.ActiveDir()
	if err != nil {
		return "", err
	}
	return platform.JoinPath(dir, name), nil
}
