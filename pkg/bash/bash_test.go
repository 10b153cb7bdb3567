package bash

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"bashkit/internal/builtin"
	"bashkit/internal/executor"

	"go.uber.org/zap"
)

func skipWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("测试依赖POSIX工具")
	}
}

func TestExecute(t *testing.T) {
	skipWindows(t)
	out, err := Execute("echo hello", "echo world")
	if err != nil {
		t.Fatalf("执行失败: %v", err)
	}
	if out.Stdout() != "hello\nworld\n" {
		t.Errorf("期望 %q，得到 %q", "hello\nworld\n", out.Stdout())
	}
	if out.LastStdout() != "world\n" {
		t.Errorf("期望最后输出 %q，得到 %q", "world\n", out.LastStdout())
	}
	if !out.Success() {
		t.Errorf("期望成功，得到退出码 %d", out.Code())
	}
}

func TestBuilderChdirAndEnv(t *testing.T) {
	skipWindows(t)
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	out, err := New().
		Chdir(dir).
		Env("FOO", "bar").
		Env("BAZ", "qux").
		Cmd("echo $FOO $(echo $BAZ)").
		Cmd("pwd").
		Cmd("sh -c 'echo $FOO'").
		Run()
	if err != nil {
		t.Fatalf("执行失败: %v", err)
	}
	expected := "bar qux\n" + dir + "\nbar\n"
	if out.Stdout() != expected {
		t.Errorf("期望 %q，得到 %q", expected, out.Stdout())
	}
}

func TestRelativeChdirIsAbsolute(t *testing.T) {
	skipWindows(t)
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		dir      string
		cmds     []string
		expected string
	}{
		{"当前目录", ".", []string{"pwd"}, wd + "\n"},
		{"上级目录", "..", []string{"pwd", "cd bash", "pwd"}, filepath.Dir(wd) + "\n" + wd + "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := New(tt.cmds...).Chdir(tt.dir).Run()
			if err != nil {
				t.Fatalf("执行失败: %v", err)
			}
			if first := strings.TrimSuffix(out.CommandResults()[0].Stdout, "\n"); !filepath.IsAbs(first) {
				t.Errorf("pwd 应返回绝对路径，得到 %q", first)
			}
			if out.Stdout() != tt.expected {
				t.Errorf("期望 %q，得到 %q", tt.expected, out.Stdout())
			}
		})
	}
}

func TestNoHomeDirectoryKind(t *testing.T) {
	err := newBashError(&executor.ShellError{Kind: executor.ErrorKindNoHomeDir}, NewBashOut())
	if !errors.Is(err, ErrNoHomeDirectory) {
		t.Errorf("期望 ErrNoHomeDirectory，得到 %v", err)
	}
}

func TestProcessEnvironment(t *testing.T) {
	skipWindows(t)
	t.Setenv("BASHKIT_FROM_ENV", "yes")
	out, err := Execute("echo $BASHKIT_FROM_ENV", "BASHKIT_FROM_ENV=shadow; echo $BASHKIT_FROM_ENV")
	if err != nil {
		t.Fatalf("执行失败: %v", err)
	}
	if out.Stdout() != "yes\nshadow\n" {
		t.Errorf("期望 %q，得到 %q", "yes\nshadow\n", out.Stdout())
	}
}

func TestBuilderReuse(t *testing.T) {
	skipWindows(t)
	b := New("X=1", "echo $X", "cd /")
	for i := 0; i < 2; i++ {
		out, err := b.Run()
		if err != nil {
			t.Fatalf("第%d次执行失败: %v", i+1, err)
		}
		if out.Stdout() != "1\n" || len(out.CommandResults()) != 3 {
			t.Errorf("第%d次运行结果不同: %q", i+1, out.Stdout())
		}
	}
}

func TestEnvFile(t *testing.T) {
	skipWindows(t)
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("FROM_FILE=file\nSHARED=file\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := New("echo $FROM_FILE $SHARED").EnvFile(path).Env("SHARED", "explicit").Run()
	if err != nil {
		t.Fatalf("执行失败: %v", err)
	}
	if out.Stdout() != "file explicit\n" {
		t.Errorf("期望 %q，得到 %q", "file explicit\n", out.Stdout())
	}

	_, err = New("echo").EnvFile(filepath.Join(t.TempDir(), "missing.env")).Run()
	if !errors.Is(err, ErrInternal) {
		t.Errorf("缺少dotenv文件应返回 ErrInternal，得到 %v", err)
	}
}

func TestLogger(t *testing.T) {
	skipWindows(t)
	out, err := New("echo hi | cat").Logger(zap.NewExample()).Run()
	if err != nil {
		t.Fatalf("执行失败: %v", err)
	}
	if out.Stdout() != "hi\n" {
		t.Errorf("期望 %q，得到 %q", "hi\n", out.Stdout())
	}
}

func TestStopsOnFailure(t *testing.T) {
	skipWindows(t)
	out, err := Execute("echo foo", "echo bar && false", "echo bar")
	if err != nil {
		t.Fatalf("非零退出码不应是错误: %v", err)
	}
	results := out.CommandResults()
	if len(results) != 2 {
		t.Fatalf("期望2条记录，得到 %d", len(results))
	}
	if results[1].Command != "echo bar && false" || results[1].Code != 1 {
		t.Errorf("最后一条记录错误: %+v", results[1])
	}
	if out.Code() != 1 || out.Success() {
		t.Errorf("期望退出码1，得到 %d", out.Code())
	}
	if !errors.Is(out.Check(), ErrNonZeroExit) {
		t.Errorf("Check 应返回 ErrNonZeroExit")
	}
}

func TestErrors(t *testing.T) {
	skipWindows(t)
	tests := []struct {
		name string
		cmds []string
		kind error
		runs int
	}{
		{"语法错误", []string{"echo ok", "echo 'unterminated"}, ErrSyntax, 2},
		{"未实现功能", []string{"if true; then echo x; fi"}, ErrFeatureUnsupported, 1},
		{"通配符", []string{"echo ok", "ls *.go", "echo never"}, ErrFeatureUnsupported, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Execute(tt.cmds...)
			if !errors.Is(err, tt.kind) {
				t.Fatalf("期望 %v，得到 %v", tt.kind, err)
			}
			var be *BashError
			if !errors.As(err, &be) {
				t.Fatalf("期望 *BashError，得到 %T", err)
			}
			if len(be.Out.CommandResults()) != tt.runs || len(out.CommandResults()) != tt.runs {
				t.Errorf("期望 %d 条记录，得到 %d", tt.runs, len(be.Out.CommandResults()))
			}
			if !strings.Contains(err.Error(), "Attempted commands:") {
				t.Errorf("错误信息应列出尝试过的命令: %q", err.Error())
			}
		})
	}
}

func TestUnsupportedMessage(t *testing.T) {
	_, err := Execute("echo $((1 + 2))")
	if err == nil || !strings.Contains(err.Error(), builtin.UnsupportedPrefix) {
		t.Errorf("错误信息应包含 %q，得到 %v", builtin.UnsupportedPrefix, err)
	}
}

func TestExitCode(t *testing.T) {
	skipWindows(t)
	out, err := Execute("echo before", "exit 4", "echo after")
	if err != nil {
		t.Fatalf("执行失败: %v", err)
	}
	if out.Code() != 4 || out.Stdout() != "before\n" {
		t.Errorf("期望退出码4且只输出before，得到 %d %q", out.Code(), out.Stdout())
	}
}

func TestCustomBuiltins(t *testing.T) {
	table := builtin.Default()
	table["greet"] = func(sh builtin.Shell, args []string) (builtin.CmdOut, error) {
		return builtin.CmdOut{Stdout: "hi " + strings.Join(args, " ") + "\n"}, nil
	}
	out, err := New("greet you").withBuiltins(table).Run()
	if err != nil {
		t.Fatalf("执行失败: %v", err)
	}
	if out.Stdout() != "hi you\n" {
		t.Errorf("期望 %q，得到 %q", "hi you\n", out.Stdout())
	}
}
