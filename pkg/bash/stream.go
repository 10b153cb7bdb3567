package bash

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"
)

// streamWaitDelay 进程退出或取消后等待输出管道关闭的最长时间
const streamWaitDelay = 2 * time.Second

// LineFunc 每读到一行输出调用一次，不含换行符
type LineFunc func(line string)

// StreamOptions 流式执行的配置
type StreamOptions struct {
	Dir      string
	Env      map[string]string // 追加到进程环境
	Stdin    io.Reader
	OnStdout LineFunc
	OnStderr LineFunc
}

// Stream 运行外部命令并逐行回调它的输出
// stdout 和 stderr 各由一个goroutine读取，子进程不会因为管道写满而阻塞
func Stream(ctx context.Context, argv []string, opts StreamOptions) (int, error) {
	if len(argv) == 0 {
		return 0, errors.New("stream: empty command")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	cmd.Stdin = opts.Stdin
	if len(opts.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range opts.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 0, err
	}
	cmd.WaitDelay = streamWaitDelay
	if err := cmd.Start(); err != nil {
		return 0, err
	}

	// 取消时关闭读端，子进程的后代仍持有管道时读取也能结束
	stop := context.AfterFunc(ctx, func() {
		stdout.Close()
		stderr.Close()
	})
	defer stop()

	var g errgroup.Group
	g.Go(func() error { return scanLines(stdout, opts.OnStdout) })
	g.Go(func() error { return scanLines(stderr, opts.OnStderr) })
	readErr := g.Wait()
	if readErr != nil && ctx.Err() != nil && errors.Is(readErr, os.ErrClosed) {
		readErr = nil
	}

	code, err := exitCode(cmd.Wait())
	if err != nil {
		return code, err
	}
	return code, readErr
}

func scanLines(r io.Reader, fn LineFunc) error {
	if fn == nil {
		_, err := io.Copy(io.Discard, r)
		return err
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		fn(sc.Text())
	}
	if err := sc.Err(); err != nil {
		// 扫描失败后继续读空管道，避免子进程写满管道后阻塞
		io.Copy(io.Discard, r)
		return err
	}
	return nil
}

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
