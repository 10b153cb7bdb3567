package bash

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNonZeroExit 由 BashOut.Check 返回
var ErrNonZeroExit = errors.New("command returned a non zero exit code")

// CmdResult 一条顶层命令的结果
type CmdResult struct {
	Command string
	Code    int
	Stdout  string
	Stderr  string
}

// BashOut 一批命令的聚合结果
// 命令失败时它总是最后一条记录，之后的命令没有被执行
type BashOut struct {
	results      []CmdResult
	codeOverride *int
}

// NewBashOut 由命令结果创建聚合结果
func NewBashOut(results ...CmdResult) *BashOut {
	return &BashOut{results: results}
}

// CommandResults 返回所有尝试过的命令结果
func (o *BashOut) CommandResults() []CmdResult {
	return append([]CmdResult(nil), o.results...)
}

// OverrideCode 手动指定退出码
func (o *BashOut) OverrideCode(code int) {
	o.codeOverride = &code
}

// Code 返回手动指定的退出码，否则是最后一条命令的退出码，没有命令时为0
func (o *BashOut) Code() int {
	if o.codeOverride != nil {
		return *o.codeOverride
	}
	if len(o.results) == 0 {
		return 0
	}
	return o.results[len(o.results)-1].Code
}

// Success 退出码是否为0
func (o *BashOut) Success() bool {
	return o.Code() == 0
}

// Stdout 所有命令的stdout
func (o *BashOut) Stdout() string {
	var sb strings.Builder
	for _, r := range o.results {
		sb.WriteString(r.Stdout)
	}
	return sb.String()
}

// Stderr 所有命令的stderr
func (o *BashOut) Stderr() string {
	var sb strings.Builder
	for _, r := range o.results {
		sb.WriteString(r.Stderr)
	}
	return sb.String()
}

// StdAll 按命令顺序拼接每条命令的stdout和stderr
func (o *BashOut) StdAll() string {
	var sb strings.Builder
	for _, r := range o.results {
		sb.WriteString(r.Stdout)
		sb.WriteString(r.Stderr)
	}
	return sb.String()
}

func (o *BashOut) last() CmdResult {
	if len(o.results) == 0 {
		return CmdResult{}
	}
	return o.results[len(o.results)-1]
}

// LastStdout 最后一条命令的stdout
func (o *BashOut) LastStdout() string { return o.last().Stdout }

// LastStderr 最后一条命令的stderr
func (o *BashOut) LastStderr() string { return o.last().Stderr }

// LastStdAll 最后一条命令的stdout和stderr
func (o *BashOut) LastStdAll() string {
	r := o.last()
	return r.Stdout + r.Stderr
}

// FmtAttemptedCommands 列出尝试过的命令，最后一行附带退出码
func (o *BashOut) FmtAttemptedCommands() string {
	if len(o.results) == 0 {
		return "No commands run!"
	}
	var sb strings.Builder
	sb.WriteString("Attempted commands:\n")
	for i, r := range o.results {
		fmt.Fprintf(&sb, "   %d. %s", i, strings.TrimSpace(r.Command))
		if i < len(o.results)-1 {
			sb.WriteByte('\n')
		}
	}
	fmt.Fprintf(&sb, " <-- exited with code: %d", o.Code())
	return sb.String()
}

// Check 退出码非零时返回包含输出和命令列表的错误
func (o *BashOut) Check() error {
	if o.Success() {
		return nil
	}
	return fmt.Errorf("%w: %d. Std output: %s\n%s", ErrNonZeroExit, o.Code(), o.StdAll(), o.FmtAttemptedCommands())
}
