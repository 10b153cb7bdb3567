package bash

import (
	"errors"
	"strings"
	"testing"
)

func TestBashOutCode(t *testing.T) {
	empty := NewBashOut()
	if empty.Code() != 0 || !empty.Success() {
		t.Errorf("没有命令时期望退出码0，得到 %d", empty.Code())
	}

	out := NewBashOut(
		CmdResult{Command: "a", Code: 0},
		CmdResult{Command: "b", Code: 3},
	)
	if out.Code() != 3 {
		t.Errorf("期望退出码3，得到 %d", out.Code())
	}
	out.OverrideCode(0)
	if out.Code() != 0 || !out.Success() {
		t.Errorf("覆盖后期望退出码0，得到 %d", out.Code())
	}
}

func TestBashOutStreams(t *testing.T) {
	out := NewBashOut(
		CmdResult{Command: "a", Stdout: "out1\n", Stderr: "err1\n"},
		CmdResult{Command: "b", Stdout: "out2\n", Stderr: "err2\n"},
	)

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"Stdout", out.Stdout(), "out1\nout2\n"},
		{"Stderr", out.Stderr(), "err1\nerr2\n"},
		{"StdAll", out.StdAll(), "out1\nerr1\nout2\nerr2\n"},
		{"LastStdout", out.LastStdout(), "out2\n"},
		{"LastStderr", out.LastStderr(), "err2\n"},
		{"LastStdAll", out.LastStdAll(), "out2\nerr2\n"},
	}
	for _, tt := range tests {
		if tt.got != tt.expected {
			t.Errorf("%s: 期望 %q，得到 %q", tt.name, tt.expected, tt.got)
		}
	}

	results := out.CommandResults()
	results[0].Stdout = "changed"
	if out.Stdout() != "out1\nout2\n" {
		t.Error("CommandResults 应返回副本")
	}

	if NewBashOut().LastStdAll() != "" {
		t.Error("没有命令时最后输出应为空")
	}
}

func TestFmtAttemptedCommands(t *testing.T) {
	if got := NewBashOut().FmtAttemptedCommands(); got != "No commands run!" {
		t.Errorf("期望 %q，得到 %q", "No commands run!", got)
	}

	out := NewBashOut(
		CmdResult{Command: "echo foo"},
		CmdResult{Command: "  false\n", Code: 1},
	)
	expected := "Attempted commands:\n   0. echo foo\n   1. false <-- exited with code: 1"
	if got := out.FmtAttemptedCommands(); got != expected {
		t.Errorf("期望 %q，得到 %q", expected, got)
	}
}

func TestCheck(t *testing.T) {
	if err := NewBashOut(CmdResult{Command: "true"}).Check(); err != nil {
		t.Errorf("成功时不应返回错误: %v", err)
	}

	err := NewBashOut(CmdResult{Command: "false", Stdout: "partial", Code: 2}).Check()
	if !errors.Is(err, ErrNonZeroExit) {
		t.Fatalf("期望 ErrNonZeroExit，得到 %v", err)
	}
	for _, want := range []string{": 2.", "partial", "false <-- exited with code: 2"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("错误信息应包含 %q: %q", want, err.Error())
		}
	}
}

func TestBashErrorMessage(t *testing.T) {
	out := NewBashOut(CmdResult{Command: "echo *"})
	err := &BashError{Kind: ErrFeatureUnsupported, Out: out, Err: errors.New("glob")}

	expected := "BashFeatureUnsupported: glob\nAttempted commands:\n   0. echo * <-- exited with code: 0"
	if err.Error() != expected {
		t.Errorf("期望 %q，得到 %q", expected, err.Error())
	}
	if !errors.Is(err, ErrFeatureUnsupported) {
		t.Error("errors.Is 应匹配错误类型")
	}

	bare := &BashError{Kind: ErrInternal}
	if bare.Error() != "InternalError" || !errors.Is(bare, ErrInternal) {
		t.Errorf("没有原始错误时信息错误: %q", bare.Error())
	}
}
