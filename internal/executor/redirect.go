package executor

import (
	"os"
	"strconv"
	"strings"

	"bashkit/pkg/platform"

	"go.uber.org/zap"
	"mvdan.cc/sh/v3/syntax"
)

type targetKind int

const (
	targetStdout targetKind = iota
	targetStderr
	targetNull
	targetFile
)

// redirect 解析后的重定向
type redirect struct {
	fd     int
	target targetKind
	path   string // targetFile 的原始路径
	read   bool
	write  bool
	append bool
	dup    bool
}

// resolveRedirect 解析重定向操作符和目标
func (s *Shell) resolveRedirect(rd *syntax.Redirect) (redirect, error) {
	var r redirect
	switch rd.Op {
	case syntax.RdrOut:
		r.write = true
	case syntax.AppOut:
		r.write, r.append = true, true
	case syntax.DplOut:
		r.write, r.dup = true, true
	case syntax.RdrIn:
		r.read = true
	case syntax.DplIn:
		r.read, r.dup = true, true
	case syntax.RdrInOut:
		return r, unsupported("read-write redirection ('<>')")
	case syntax.Hdoc, syntax.DashHdoc:
		return r, unsupported("heredoc redirection")
	case syntax.WordHdoc:
		return r, unsupported("here-string redirection ('<<<')")
	case syntax.ClbOut:
		return r, unsupported("clobber redirection ('>|')")
	case syntax.RdrAll, syntax.AppAll:
		return r, unsupported("redirecting stdout and stderr together ('%s')", rd.Op)
	default:
		return r, unsupported("redirection '%s'", rd.Op)
	}

	if r.read {
		r.fd = 0
	} else {
		r.fd = 1
	}
	if rd.N != nil {
		n, err := strconv.Atoi(rd.N.Value)
		if err != nil {
			return r, unsupported("named file descriptors ('{%s}')", rd.N.Value)
		}
		r.fd = n
	}
	switch {
	case r.read && r.fd != 0:
		return r, unsupported("reading into file descriptor %d", r.fd)
	case r.write && r.fd == 0:
		return r, unsupported("stdin redirection")
	case r.write && r.fd > 2:
		return r, unsupported("file descriptor %d", r.fd)
	}

	name, err := s.evalWord(rd.Word)
	if err != nil {
		return r, err
	}
	r.target, err = resolveTarget(name, r.dup)
	if err != nil {
		return r, err
	}
	r.path = name
	return r, nil
}

// resolveTarget 特殊路径优先，其余当作文件路径
func resolveTarget(name string, dup bool) (targetKind, error) {
	switch {
	case name == "/dev/stdin" || name == "/dev/fd/0" || (dup && name == "0"):
		return 0, unsupported("stdin redirection")
	case strings.HasPrefix(name, "/dev/tcp/") || strings.HasPrefix(name, "/dev/udp/"):
		return 0, unsupported("network redirection")
	case name == "/dev/stdout" || name == "/dev/fd/1" || (dup && name == "1"):
		return targetStdout, nil
	case name == "/dev/stderr" || name == "/dev/fd/2" || (dup && name == "2"):
		return targetStderr, nil
	case name == "/dev/null":
		return targetNull, nil
	case strings.HasPrefix(name, "/dev/fd/"):
		return 0, unsupported("file descriptor %s", strings.TrimPrefix(name, "/dev/fd/"))
	case dup && name == "-":
		return 0, unsupported("closing file descriptors")
	case dup && isNumber(name):
		return 0, unsupported("file descriptor %s", name)
	}
	return targetFile, nil
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// applyRedirect 解析重定向并改写阶段的输入输出
func (s *Shell) applyRedirect(st *stage, rd *syntax.Redirect) error {
	r, err := s.resolveRedirect(rd)
	if err != nil {
		return err
	}
	s.log.Debug("redirect", zap.Int("fd", r.fd), zap.String("target", r.path))
	return s.rewire(st, r)
}

// rewire 按 dup 语义改写fd：N>&M 复制M当前的去向
func (s *Shell) rewire(st *stage, r redirect) error {
	if r.read && r.write {
		return internalError(nil, "redirect to %q is marked both read and write", r.path)
	}

	var path string
	if r.target == targetFile {
		dir, err := s.ActiveDir()
		if err != nil {
			return internalError(err, "resolving redirect target")
		}
		if path, err = platform.NormalizePath(dir, r.path); err != nil {
			return internalError(err, "resolving redirect target")
		}
	}

	if r.read {
		var text string
		switch r.target {
		case targetStdout, targetStderr:
			return unsupported("reading from an output stream ('%s')", r.path)
		case targetFile:
			data, err := os.ReadFile(path)
			if err != nil {
				st.failed = err
				return nil
			}
			text = string(data)
		}
		st.stdin = &text
		return nil
	}

	switch r.target {
	case targetStdout:
		st.fds[r.fd] = st.fds[1]
	case targetStderr:
		st.fds[r.fd] = st.fds[2]
	case targetNull:
		st.fds[r.fd] = dest{kind: destNull}
	case targetFile:
		flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		if r.append {
			flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
		}
		f, err := os.OpenFile(path, flags, 0o644)
		if err != nil {
			st.failed = err
			return nil
		}
		st.files = append(st.files, f)
		st.fds[r.fd] = dest{kind: destFile, file: f}
	}
	return nil
}
