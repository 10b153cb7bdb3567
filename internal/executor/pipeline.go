package executor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"bashkit/internal/builtin"
	"bashkit/pkg/platform"

	"go.uber.org/zap"
)

// pipeline 一条管道的全部阶段
type pipeline struct {
	stages []*stage
	negate bool
}

func (p *pipeline) close() {
	for _, st := range p.stages {
		st.close()
	}
}

// run 从左到右执行各阶段
// 外部进程之间用OS管道连接，内置命令和子shell的输出以字符串传给下一阶段；
// 各阶段的 stderr 在管道结束后按阶段顺序追加到shell
func (p *pipeline) run(s *Shell) error {
	var (
		pendingFile *os.File // 上一个外部进程stdout管道的读端
		pendingText string
		started     []*exec.Cmd
		errBufs     []*bytes.Buffer
		lastOut     bytes.Buffer
		code        int
	)
	defer func() {
		if pendingFile != nil {
			pendingFile.Close()
		}
		s.wait(started)
	}()

	for i, st := range p.stages {
		last := i == len(p.stages)-1
		stageErr := new(bytes.Buffer)
		errBufs = append(errBufs, stageErr)

		stdinFile, stdinText := pendingFile, pendingText
		pendingFile, pendingText = nil, ""
		if st.stdin != nil {
			if stdinFile != nil {
				stdinFile.Close()
				stdinFile = nil
			}
			stdinText = *st.stdin
		}

		if st.failed != nil {
			if stdinFile != nil {
				stdinFile.Close()
			}
			fmt.Fprintf(stageErr, "bashkit: %v\n", st.failed)
			code = 1
			continue
		}

		if st.kind == stageExternal {
			cmd, next, err := s.start(st, stdinFile, stdinText, last, stageErr, &lastOut)
			if err != nil {
				s.log.Debug("spawn failed", zap.String("name", st.name()), zap.Error(err))
				fmt.Fprintln(stageErr, err.Error())
				code = spawnCode(err)
				continue
			}
			if !last {
				started = append(started, cmd)
				pendingFile = next
				continue
			}
			if code, err = exitCode(cmd.Wait()); err != nil {
				return internalError(err, "waiting for %s", st.name())
			}
			continue
		}

		if stdinFile != nil {
			// 内置命令不读stdin，关闭读端让上游收到 EPIPE
			stdinFile.Close()
		}
		out, err := st.call(s)
		if err != nil {
			// exit 等错误之前，前面阶段的 stderr 仍然要输出
			s.wait(started)
			started = nil
			flushStderr(s, errBufs)
			return fromBuiltin(err)
		}
		var stageOut bytes.Buffer
		if w := st.writer(1, &stageOut, stageErr); w != nil {
			io.WriteString(w, out.Stdout)
		}
		if w := st.writer(2, &stageOut, stageErr); w != nil {
			io.WriteString(w, out.Stderr)
		}
		if last {
			lastOut.Write(stageOut.Bytes())
			code = out.Code
		} else {
			pendingText = stageOut.String()
		}
	}

	s.wait(started)
	started = nil
	flushStderr(s, errBufs)
	s.stdout.WriteString(platform.NormalizeNewlines(lastOut.String()))

	if p.negate {
		if code == 0 {
			code = 1
		} else {
			code = 0
		}
	}
	s.code = code
	return nil
}

// flushStderr 按阶段顺序把各阶段的 stderr 追加到shell
func flushStderr(s *Shell, bufs []*bytes.Buffer) {
	for _, buf := range bufs {
		s.stderr.WriteString(platform.NormalizeNewlines(buf.String()))
	}
}

// call 执行内置命令或返回预先算好的输出
func (st *stage) call(s *Shell) (builtin.CmdOut, error) {
	switch st.kind {
	case stageBuiltin:
		s.log.Debug("builtin", zap.String("name", st.args[0]), zap.Strings("args", st.args[1:]))
		return st.fn(s, st.args[1:])
	case stageOutput:
		return builtin.CmdOut{Stdout: st.output, Code: st.code}, nil
	default:
		return builtin.CmdOut{}, nil
	}
}

// writer 返回fd对应的写入端；destNull 返回 nil，外部进程据此使用空设备
func (st *stage) writer(fd int, stdout, stderr io.Writer) io.Writer {
	switch d := st.fds[fd]; d.kind {
	case destStdout:
		return stdout
	case destStderr:
		return stderr
	case destFile:
		return d.file
	default:
		return nil
	}
}

// start 启动外部进程阶段
// 非最后阶段且有输出流向管道时，返回新管道的读端作为下一阶段的stdin
func (s *Shell) start(st *stage, stdinFile *os.File, stdinText string, last bool, stderr, stdout *bytes.Buffer) (*exec.Cmd, *os.File, error) {
	if stdinFile != nil {
		defer stdinFile.Close()
	}

	path, err := s.resolveCommand(st.args[0])
	if err != nil {
		return nil, nil, err
	}
	dir, err := s.ActiveDir()
	if err != nil {
		return nil, nil, err
	}

	cmd := exec.Command(path, st.args[1:]...)
	cmd.Dir = dir
	cmd.Env = s.environ(st.env)
	switch {
	case stdinFile != nil:
		cmd.Stdin = stdinFile
	case stdinText != "":
		cmd.Stdin = strings.NewReader(stdinText)
	}

	var out io.Writer = stdout
	var pr, pw *os.File
	if !last && (st.fds[1].kind == destStdout || st.fds[2].kind == destStdout) {
		if pr, pw, err = os.Pipe(); err != nil {
			return nil, nil, err
		}
		out = pw
	}
	cmd.Stdout = st.writer(1, out, stderr)
	cmd.Stderr = st.writer(2, out, stderr)

	s.log.Debug("spawn", zap.String("path", path), zap.Strings("args", st.args[1:]), zap.String("dir", dir))
	err = cmd.Start()
	if pw != nil {
		pw.Close()
	}
	if err != nil {
		if pr != nil {
			pr.Close()
		}
		return nil, nil, err
	}
	return cmd, pr, nil
}

// wait 等待已启动的非最后阶段进程，它们的退出码不影响结果
func (s *Shell) wait(cmds []*exec.Cmd) {
	for _, cmd := range cmds {
		if _, err := exitCode(cmd.Wait()); err != nil {
			s.log.Debug("wait failed", zap.String("path", cmd.Path), zap.Error(err))
		}
	}
}

// exitCode 从 Wait 的结果取退出码，平台无法给出时为1
func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if code := ee.ExitCode(); code >= 0 {
			return code, nil
		}
		return 1, nil
	}
	return 0, err
}

// spawnCode 启动失败时使用OS错误码，命令不存在时为 ENOENT
func spawnCode(err error) int {
	var errno syscall.Errno
	if errors.As(err, &errno) && errno != 0 {
		return int(errno)
	}
	if errors.Is(err, exec.ErrNotFound) {
		return int(syscall.ENOENT)
	}
	return 1
}
