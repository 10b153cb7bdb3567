package executor

import (
	"strings"

	"go.uber.org/zap"
	"mvdan.cc/sh/v3/syntax"
)

// evalWord 把一个词展开为字符串
// 各部分从左到右求值后拼接；只有开头的未加引号字面量才可能做 ~ 展开
func (s *Shell) evalWord(w *syntax.Word) (string, error) {
	if w == nil || len(w.Parts) == 0 {
		return "", nil
	}

	parts := w.Parts
	vals := make([]string, len(parts))
	lit, tilde := parts[0].(*syntax.Lit)
	tilde = tilde && strings.HasPrefix(lit.Value, "~")

	start := 0
	if tilde {
		// 开头的字面量没有副作用，先求后续部分以便判断 ~ 后面是否紧跟 /
		start = 1
	}
	for i := start; i < len(parts); i++ {
		v, err := s.evalPart(parts[i])
		if err != nil {
			return "", err
		}
		vals[i] = v
	}
	if tilde {
		next, hasNext := "", len(parts) > 1
		if hasNext {
			next = vals[1]
		}
		v, err := s.expandTilde(lit.Value, hasNext, next)
		if err != nil {
			return "", err
		}
		vals[0] = v
	}
	return strings.Join(vals, ""), nil
}

// expandTilde 只有单独的 ~ 或 ~ 后紧跟 / 时才展开为home目录
func (s *Shell) expandTilde(raw string, hasNext bool, next string) (string, error) {
	rest := raw[1:]
	var expand bool
	if rest == "" {
		expand = !hasNext || strings.HasPrefix(next, "/")
	} else {
		expand = strings.HasPrefix(rest, "/")
	}
	if !expand {
		return unquoteLit(raw)
	}

	home, err := s.HomeDir()
	if err != nil {
		return "", &ShellError{Kind: ErrorKindNoHomeDir, Err: err}
	}
	tail, err := unquoteLit(rest)
	if err != nil {
		return "", err
	}
	return home + tail, nil
}

func (s *Shell) evalPart(part syntax.WordPart) (string, error) {
	switch p := part.(type) {
	case *syntax.Lit:
		return unquoteLit(p.Value)
	case *syntax.SglQuoted:
		if p.Dollar {
			return "", unsupported("ANSI-C quoting ($'...')")
		}
		return p.Value, nil
	case *syntax.DblQuoted:
		if p.Dollar {
			return "", unsupported("locale translation ($\"...\")")
		}
		var sb strings.Builder
		for _, inner := range p.Parts {
			var v string
			var err error
			if l, ok := inner.(*syntax.Lit); ok {
				v = unquoteDouble(l.Value)
			} else {
				v, err = s.evalPart(inner)
			}
			if err != nil {
				return "", err
			}
			sb.WriteString(v)
		}
		return sb.String(), nil
	case *syntax.ParamExp:
		return s.evalParam(p)
	case *syntax.CmdSubst:
		return s.substitute(p.Stmts)
	case *syntax.ArithmExp:
		return "", unsupported("arithmetic expansion ('$(( ))')")
	case *syntax.ProcSubst:
		return "", unsupported("process substitution")
	case *syntax.ExtGlob:
		return "", unsupported("extended globs")
	case *syntax.BraceExp:
		return "", unsupported("brace expansion")
	default:
		return "", unsupported("word part %T", p)
	}
}

// unquoteLit 处理未加引号字面量中的反斜杠，拒绝通配符
func unquoteLit(raw string) (string, error) {
	if !strings.ContainsAny(raw, `\*?[]`) {
		return raw, nil
	}
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch c {
		case '\\':
			i++
			if i < len(raw) && raw[i] != '\n' {
				sb.WriteByte(raw[i])
			}
		case '*', '?', '[', ']':
			return "", unsupported("glob patterns ('%c')", c)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String(), nil
}

// unquoteDouble 双引号内只有 \$ \` \" \\ 和续行会去掉反斜杠
func unquoteDouble(raw string) string {
	if !strings.Contains(raw, `\`) {
		return raw
	}
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c == '\\' && i+1 < len(raw) {
			switch raw[i+1] {
			case '$', '`', '"', '\\':
				sb.WriteByte(raw[i+1])
				i++
				continue
			case '\n':
				i++
				continue
			}
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// evalParam 只支持 $name 和 ${name}
func (s *Shell) evalParam(p *syntax.ParamExp) (string, error) {
	switch {
	case p.Excl:
		return "", unsupported("indirect expansion ('${!name}')")
	case p.Length:
		return "", unsupported("parameter length ('${#name}')")
	case p.Width:
		return "", unsupported("parameter width ('${%%name}')")
	case p.Index != nil:
		return "", unsupported("array indexing")
	case p.Slice != nil:
		return "", unsupported("substring expansion ('${name:offset}')")
	case p.Repl != nil:
		return "", unsupported("pattern substitution ('${name/pattern/string}')")
	case p.Names != 0:
		return "", unsupported("prefix name matching ('${!prefix*}')")
	case p.Exp != nil:
		return "", unsupported("%s", describeExpansion(p.Exp.Op))
	}

	name := p.Param.Value
	switch name {
	case "@", "*", "#", "?", "-", "$", "!":
		return "", unsupported("special parameters ('$%s')", name)
	}
	if isNumber(name) {
		return "", unsupported("positional parameters ('$%s')", name)
	}

	v, _ := s.Var(name)
	return v, nil
}

func describeExpansion(op syntax.ParExpOperator) string {
	switch op {
	case syntax.DefaultUnset, syntax.DefaultUnsetOrNull:
		return "default value expansion ('${name:-word}')"
	case syntax.AlternateUnset, syntax.AlternateUnsetOrNull:
		return "alternate value expansion ('${name:+word}')"
	case syntax.AssignUnset, syntax.AssignUnsetOrNull:
		return "assign default expansion ('${name:=word}')"
	case syntax.ErrorUnset, syntax.ErrorUnsetOrNull:
		return "error if unset expansion ('${name:?word}')"
	case syntax.RemSmallSuffix, syntax.RemLargeSuffix:
		return "suffix removal ('${name%word}')"
	case syntax.RemSmallPrefix, syntax.RemLargePrefix:
		return "prefix removal ('${name#word}')"
	default:
		return "parameter expansion operator '" + op.String() + "'"
	}
}

// substitute 在子shell中执行命令替换，结果去掉结尾换行；子shell的退出码被忽略
func (s *Shell) substitute(stmts []*syntax.Stmt) (string, error) {
	s.log.Debug("command substitution", zap.Int("stmts", len(stmts)))
	child := s.child()
	err := child.runStmts(stmts)
	s.stderr.WriteString(child.stderr.String())
	if err != nil {
		return "", err
	}
	return strings.TrimRight(child.stdout.String(), "\n"), nil
}
